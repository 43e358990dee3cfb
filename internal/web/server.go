package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noahxzhu/broadcast-scheduler/internal/broadcast"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
	"github.com/noahxzhu/broadcast-scheduler/internal/storage"
)

//go:embed templates/*
var templateFS embed.FS

const defaultUpcoming = 5

// Service is what the control surface drives.
type Service interface {
	AddSchedule(sch model.Schedule) (model.Schedule, error)
	UpdateSchedule(id int, sch model.Schedule) (model.Schedule, error)
	RemoveSchedule(id int) error
	TestSchedule(id int) (int, error)
	StopAll()
	Schedules() []model.Schedule
	Snapshot() broadcast.Snapshot
	Upcoming(id, n int) ([]time.Time, error)
}

type Server struct {
	svc    Service
	router *http.ServeMux
	log    zerolog.Logger
}

func NewServer(svc Service, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		router: http.NewServeMux(),
		log:    logger.With().Str("component", "web").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleIndex)
	s.router.HandleFunc("/add", s.handleAdd)
	s.router.HandleFunc("/update", s.handleUpdate)
	s.router.HandleFunc("/delete", s.handleDelete)
	s.router.HandleFunc("/test", s.handleTest)
	s.router.HandleFunc("/stop", s.handleStop)

	s.router.HandleFunc("/api/status", s.handleAPIStatus)
	s.router.HandleFunc("/api/schedules", s.handleAPISchedules)
	s.router.HandleFunc("/api/upcoming", s.handleAPIUpcoming)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handlers

type indexView struct {
	Snapshot broadcast.Snapshot
	Week     [7]model.Weekday
	Flash    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderTemplate(w, "index.html", indexView{
		Snapshot: s.svc.Snapshot(),
		Week:     model.Week,
		Flash:    r.URL.Query().Get("msg"),
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sch, err := scheduleFromForm(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.svc.AddSchedule(sch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	redirect(w, r, "Added "+saved.Name)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := formID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sch, err := scheduleFromForm(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.svc.UpdateSchedule(id, sch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	redirect(w, r, "Updated "+saved.Name)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := formID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.RemoveSchedule(id); err != nil {
		s.writeError(w, err)
		return
	}
	redirect(w, r, fmt.Sprintf("Deleted schedule %d", id))
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := formID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.svc.TestSchedule(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	redirect(w, r, fmt.Sprintf("Testing %d files", n))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.svc.StopAll()
	redirect(w, r, "Playback stopped")
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleAPISchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.svc.Schedules())
	case http.MethodPost:
		var sch model.Schedule
		if err := json.NewDecoder(r.Body).Decode(&sch); err != nil {
			http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		saved, err := s.svc.AddSchedule(sch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, saved)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIUpcoming(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return
	}
	n := defaultUpcoming
	if raw := r.URL.Query().Get("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil || n < 1 || n > 100 {
			http.Error(w, "n must be between 1 and 100", http.StatusBadRequest)
			return
		}
	}
	times, err := s.svc.Upcoming(id, n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, times)
}

// Helpers

func scheduleFromForm(r *http.Request) (model.Schedule, error) {
	if err := r.ParseForm(); err != nil {
		return model.Schedule{}, err
	}
	days := make([]model.Weekday, 0, len(r.Form["days"]))
	for _, d := range r.Form["days"] {
		days = append(days, model.Weekday(d))
	}
	var files []string
	for _, line := range strings.Split(r.FormValue("files"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return model.Schedule{
		Name:  r.FormValue("name"),
		Days:  days,
		Time:  r.FormValue("time"),
		Files: files,
	}, nil
}

var errBadID = errors.New("invalid schedule id")

func formID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		return 0, errBadID
	}
	return id, nil
}

func redirect(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoDays),
		errors.Is(err, model.ErrNoFiles),
		errors.Is(err, model.ErrInvalidTime),
		errors.Is(err, model.ErrUnknownDay),
		errors.Is(err, broadcast.ErrNoValidFiles),
		errors.Is(err, errBadID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}

var funcs = template.FuncMap{
	"duration": model.FormatDuration,
	"days": func(days []model.Weekday) string {
		out := make([]string, 0, len(days))
		for _, d := range days {
			out = append(out, string(d))
		}
		return strings.Join(out, ", ")
	},
	"lines": func(files []string) string { return strings.Join(files, "\n") },
	"percent": func(p *float64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%.0f%%", *p*100)
	},
	"runsOn": func(sch model.Schedule, d model.Weekday) bool { return sch.RunsOn(d) },
}

func (s *Server) renderTemplate(w http.ResponseWriter, tmplName string, data interface{}) {
	tmpl, err := template.New(tmplName).Funcs(funcs).ParseFS(templateFS, "templates/"+tmplName)
	if err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("Execute error: %v", err), http.StatusInternalServerError)
	}
}
