package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/broadcast-scheduler/internal/broadcast"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
	"github.com/noahxzhu/broadcast-scheduler/internal/storage"
)

type fakeService struct {
	schedules []model.Schedule
	nextID    int
	tested    []int
	stopped   int
}

func (f *fakeService) AddSchedule(sch model.Schedule) (model.Schedule, error) {
	if err := sch.Normalize(); err != nil {
		return model.Schedule{}, err
	}
	f.nextID++
	sch.ID = f.nextID
	f.schedules = append(f.schedules, sch)
	return sch, nil
}

func (f *fakeService) UpdateSchedule(id int, sch model.Schedule) (model.Schedule, error) {
	if err := sch.Normalize(); err != nil {
		return model.Schedule{}, err
	}
	for i := range f.schedules {
		if f.schedules[i].ID == id {
			sch.ID = id
			f.schedules[i] = sch
			return sch, nil
		}
	}
	return model.Schedule{}, fmt.Errorf("%w: %d", storage.ErrNotFound, id)
}

func (f *fakeService) RemoveSchedule(id int) error {
	for i := range f.schedules {
		if f.schedules[i].ID == id {
			f.schedules = append(f.schedules[:i], f.schedules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", storage.ErrNotFound, id)
}

func (f *fakeService) TestSchedule(id int) (int, error) {
	if id == 13 {
		return 0, broadcast.ErrNoValidFiles
	}
	f.tested = append(f.tested, id)
	return 2, nil
}

func (f *fakeService) StopAll() { f.stopped++ }

func (f *fakeService) Schedules() []model.Schedule { return f.schedules }

func (f *fakeService) Snapshot() broadcast.Snapshot {
	secs := 95
	for i := range f.schedules {
		f.schedules[i].DurationSeconds = &secs
	}
	progress := 0.5
	return broadcast.Snapshot{
		Player:      broadcast.PlayerSnapshot{Status: "playing: a.mp3", Playing: true, Progress: &progress},
		Coordinator: "playing: morning",
		State:       "playing",
		Pending:     []broadcast.PendingSnapshot{{ScheduleID: 2, Name: "evening"}},
		Schedules:   f.schedules,
		Next:        &broadcast.NextSnapshot{ScheduleID: 1, Name: "morning", Time: "09:00", At: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC)},
	}
}

func (f *fakeService) Upcoming(id, n int) ([]time.Time, error) {
	if id != 1 {
		return nil, fmt.Errorf("%w: %d", storage.ErrNotFound, id)
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2024, 1, 2+7*i, 9, 0, 0, 0, time.UTC)
	}
	return out, nil
}

func newTestServer() (*Server, *fakeService) {
	svc := &fakeService{}
	return NewServer(svc, zerolog.Nop()), svc
}

func postForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func validForm() url.Values {
	return url.Values{
		"name":  {"morning"},
		"days":  {"monday", "friday"},
		"time":  {"9:00"},
		"files": {"/music/a.mp3\n\n/music/b.mp3\n"},
	}
}

func TestAddRedirectsAndStores(t *testing.T) {
	s, svc := newTestServer()
	rec := postForm(s, "/add", validForm())

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?msg=Added+morning", rec.Header().Get("Location"))
	require.Len(t, svc.schedules, 1)
	assert.Equal(t, []string{"/music/a.mp3", "/music/b.mp3"}, svc.schedules[0].Files)
	assert.Equal(t, "09:00", svc.schedules[0].Time)
}

func TestAddValidationErrorIsBadRequest(t *testing.T) {
	s, svc := newTestServer()
	form := validForm()
	form.Del("days")
	rec := postForm(s, "/add", form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), model.ErrNoDays.Error())
	assert.Empty(t, svc.schedules)
}

func TestAddRequiresPost(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/add", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUpdateDeleteAndNotFound(t *testing.T) {
	s, svc := newTestServer()
	postForm(s, "/add", validForm())

	form := validForm()
	form.Set("id", "1")
	form.Set("time", "10:30")
	rec := postForm(s, "/update", form)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "10:30", svc.schedules[0].Time)

	form.Set("id", "7")
	assert.Equal(t, http.StatusNotFound, postForm(s, "/update", form).Code)
	assert.Equal(t, http.StatusBadRequest, postForm(s, "/delete", url.Values{"id": {"abc"}}).Code)

	assert.Equal(t, http.StatusSeeOther, postForm(s, "/delete", url.Values{"id": {"1"}}).Code)
	assert.Empty(t, svc.schedules)
	assert.Equal(t, http.StatusNotFound, postForm(s, "/delete", url.Values{"id": {"1"}}).Code)
}

func TestTestAndStop(t *testing.T) {
	s, svc := newTestServer()

	rec := postForm(s, "/test", url.Values{"id": {"4"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []int{4}, svc.tested)

	rec = postForm(s, "/test", url.Values{"id": {"13"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(s, "/stop", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, svc.stopped)
}

func TestIndexRendersSchedules(t *testing.T) {
	s, _ := newTestServer()
	postForm(s, "/add", validForm())

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?msg=hello", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "morning")
	assert.Contains(t, body, "monday, friday")
	assert.Contains(t, body, "01:35")
	assert.Contains(t, body, "50%")
	assert.Contains(t, body, "Waiting:</strong> evening")
	assert.Contains(t, body, "hello")

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIStatusAndSchedules(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/schedules",
		strings.NewReader(`{"name":"api","days":["sunday"],"time":"12:00","files":["/x.mp3"]}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedules", nil))
	var list []model.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "api", list[0].Name)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var snap broadcast.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "playing: morning", snap.Coordinator)
	require.NotNil(t, snap.Next)
	assert.Equal(t, "09:00", snap.Next.Time)
}

func TestAPIUpcoming(t *testing.T) {
	s, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upcoming?id=1&n=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var times []time.Time
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &times))
	assert.Len(t, times, 2)

	for path, code := range map[string]int{
		"/api/upcoming?id=x":     http.StatusBadRequest,
		"/api/upcoming?id=1&n=0": http.StatusBadRequest,
		"/api/upcoming?id=9":     http.StatusNotFound,
	} {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rec.Code, path)
	}
}
