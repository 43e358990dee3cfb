package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

var (
	ErrNotFound = errors.New("schedule not found")
	// ErrPersist wraps write failures. The in-memory list is already updated
	// when it is returned.
	ErrPersist = errors.New("failed to persist schedules")
)

type Store struct {
	mu       sync.RWMutex
	fs       afero.Fs
	filePath string
	prober   audio.Prober
	log      zerolog.Logger
	Data     *model.AppSchema

	// lastWritten is the last document this store wrote, used to tell our
	// own writes apart from external edits.
	lastWritten []byte
}

func NewStore(fs afero.Fs, filePath string, prober audio.Prober, logger zerolog.Logger) *Store {
	return &Store{
		fs:       fs,
		filePath: filePath,
		prober:   prober,
		log:      logger.With().Str("component", "storage").Logger(),
		Data:     emptySchema(),
	}
}

func emptySchema() *model.AppSchema {
	return &model.AppSchema{NextID: 1, Schedules: []*model.Schedule{}}
}

// Load reads the schedule file. A missing, empty, unreadable or corrupt
// file yields an empty list; the problem is logged, never returned.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.filePath).Msg("failed to read schedule file, starting empty")
		}
		s.Data = emptySchema()
		return
	}
	s.Data = s.decode(data)
	s.lastWritten = data
}

// decode parses a schedule document, accepting the legacy bare-array form.
func (s *Store) decode(data []byte) *model.AppSchema {
	if len(bytes.TrimSpace(data)) == 0 {
		return emptySchema()
	}

	var doc model.AppSchema
	if err := json.Unmarshal(data, &doc); err != nil {
		var legacy []*model.Schedule
		if err2 := json.Unmarshal(data, &legacy); err2 != nil {
			s.log.Warn().Err(err).Str("path", s.filePath).Msg("corrupt schedule file, starting empty")
			return emptySchema()
		}
		doc = model.AppSchema{Schedules: legacy}
	}

	schedules := make([]*model.Schedule, 0, len(doc.Schedules))
	maxID := 0
	for _, sch := range doc.Schedules {
		if sch == nil {
			continue
		}
		if sch.ID > maxID {
			maxID = sch.ID
		}
		schedules = append(schedules, sch)
	}
	for _, sch := range schedules {
		if sch.ID == 0 {
			maxID++
			sch.ID = maxID
		}
		if err := sch.Normalize(); err != nil {
			s.log.Warn().Err(err).Int("schedule_id", sch.ID).Msg("stored schedule is invalid, kept but not scheduled")
		}
		if sch.Name == "" {
			sch.Name = model.DefaultName(sch.ID)
		}
		sch.InvalidFiles = nil
		for _, f := range sch.Files {
			if !audio.FileExists(s.fs, f) {
				sch.InvalidFiles = append(sch.InvalidFiles, f)
			}
		}
		if len(sch.InvalidFiles) > 0 {
			s.log.Warn().Int("schedule_id", sch.ID).Strs("files", sch.InvalidFiles).Msg("schedule references missing files")
		}
	}

	next := doc.NextID
	if next <= maxID {
		next = maxID + 1
	}
	return &model.AppSchema{NextID: next, Schedules: schedules}
}

// Save writes the whole document. Caller must not hold s.mu.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := s.writeLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) writeLocked() error {
	out := model.AppSchema{NextID: s.Data.NextID, Schedules: make([]*model.Schedule, 0, len(s.Data.Schedules))}
	for _, sch := range s.Data.Schedules {
		c := sch.Clone()
		c.InvalidFiles = nil
		out.Schedules = append(out.Schedules, &c)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	s.lastWritten = data
	return nil
}

// Add validates sch, assigns the next id and persists it.
func (s *Store) Add(sch model.Schedule) (model.Schedule, error) {
	if err := sch.Normalize(); err != nil {
		return model.Schedule{}, err
	}
	duration := s.totalDuration(sch.Files)

	s.mu.Lock()
	defer s.mu.Unlock()

	sch.ID = s.Data.NextID
	s.Data.NextID++
	if sch.Name == "" {
		sch.Name = model.DefaultName(sch.ID)
	}
	sch.DurationSeconds = duration
	sch.InvalidFiles = nil
	c := sch.Clone()
	s.Data.Schedules = append(s.Data.Schedules, &c)

	if err := s.saveLocked(); err != nil {
		return sch, err
	}
	return sch, nil
}

// Update replaces the whole record with the given id.
func (s *Store) Update(id int, sch model.Schedule) (model.Schedule, error) {
	if err := sch.Normalize(); err != nil {
		return model.Schedule{}, err
	}
	duration := s.totalDuration(sch.Files)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Schedule{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	sch.ID = id
	if sch.Name == "" {
		sch.Name = model.DefaultName(id)
	}
	sch.DurationSeconds = duration
	sch.InvalidFiles = nil
	c := sch.Clone()
	s.Data.Schedules[idx] = &c

	if err := s.saveLocked(); err != nil {
		return sch, err
	}
	return sch, nil
}

func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.Data.Schedules = append(s.Data.Schedules[:idx], s.Data.Schedules[idx+1:]...)
	return s.saveLocked()
}

func (s *Store) Get(id int) (model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Schedule{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s.Data.Schedules[idx].Clone(), nil
}

// GetAll returns copies of every stored schedule in list order.
func (s *Store) GetAll() []model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Schedule, 0, len(s.Data.Schedules))
	for _, sch := range s.Data.Schedules {
		result = append(result, sch.Clone())
	}
	return result
}

// Active returns copies of the stored schedules that pass validation. Invalid
// records stay in the document and in GetAll but never reach the scheduler.
func (s *Store) Active() []model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Schedule, 0, len(s.Data.Schedules))
	for _, sch := range s.Data.Schedules {
		if sch.Validate() != nil {
			continue
		}
		result = append(result, sch.Clone())
	}
	return result
}

func (s *Store) indexLocked(id int) int {
	for i, sch := range s.Data.Schedules {
		if sch.ID == id {
			return i
		}
	}
	return -1
}

// totalDuration sums the known durations of files. It is nil when no file
// has a known duration.
func (s *Store) totalDuration(files []string) *int {
	if s.prober == nil {
		return nil
	}
	var total time.Duration
	for _, f := range files {
		d, err := s.prober.Duration(f)
		if err != nil {
			s.log.Debug().Err(err).Str("file", f).Msg("duration unknown")
			continue
		}
		total += d
	}
	if total <= 0 {
		return nil
	}
	secs := int(total.Round(time.Second) / time.Second)
	return &secs
}
