// Package broadcast ties the schedule store, the recurrence scheduler, the
// trigger coordinator and the playback engine into the operations the
// control surfaces expose.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
	"github.com/noahxzhu/broadcast-scheduler/internal/coordinator"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
	"github.com/noahxzhu/broadcast-scheduler/internal/player"
	"github.com/noahxzhu/broadcast-scheduler/internal/scheduler"
	"github.com/noahxzhu/broadcast-scheduler/internal/storage"
)

var ErrNoValidFiles = errors.New("no valid files")

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	ScheduleTriggered(sch model.Schedule) bool
	PlaybackStarted(path string) bool
	CoordinatorStatus(st coordinator.Status) bool
}

type Service struct {
	store  *storage.Store
	sched  *scheduler.Scheduler
	coord  *coordinator.Coordinator
	player *player.Player
	fs     afero.Fs
	log    zerolog.Logger
	now    func() time.Time
}

// New wires the components together. notifier may be nil.
func New(
	store *storage.Store,
	sched *scheduler.Scheduler,
	coord *coordinator.Coordinator,
	pl *player.Player,
	fs afero.Fs,
	notifier Notifier,
	logger zerolog.Logger,
) *Service {
	s := &Service{
		store:  store,
		sched:  sched,
		coord:  coord,
		player: pl,
		fs:     fs,
		log:    logger.With().Str("component", "broadcast").Logger(),
		now:    time.Now,
	}

	sched.OnTrigger(func(sch model.Schedule) {
		if notifier != nil {
			notifier.ScheduleTriggered(sch)
		}
		st := coord.OnTrigger(sch)
		s.log.Info().Int("schedule_id", sch.ID).Str("status", st.String()).Msg("trigger handled")
	})
	pl.OnEnd(func() { coord.OnPlaybackIdle() })
	if notifier != nil {
		pl.OnStart(func(path string) { notifier.PlaybackStarted(path) })
		coord.OnStatus(func(st coordinator.Status) { notifier.CoordinatorStatus(st) })
	}
	return s
}

// Start loads the valid stored schedules into the scheduler and starts the
// polling loop.
func (s *Service) Start(ctx context.Context) {
	s.store.Load()
	active := s.store.Active()
	s.sched.SetAll(active)
	s.sched.Start(ctx)
	s.log.Info().Int("schedules", len(active)).Int("stored", len(s.store.GetAll())).Msg("broadcast service started")
}

// Watch keeps the scheduler in sync with external edits of the schedule
// file until ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	return s.store.Watch(ctx, s.sched.SetAll)
}

// Close stops the scheduler and the playback engine.
func (s *Service) Close() {
	s.sched.Stop()
	s.player.Close()
}

func (s *Service) AddSchedule(sch model.Schedule) (model.Schedule, error) {
	saved, err := s.store.Add(sch)
	if err := s.persistOnly(err); err != nil {
		return model.Schedule{}, err
	}
	s.sched.Add(saved)
	s.log.Info().Int("schedule_id", saved.ID).Str("name", saved.Name).Msg("schedule added")
	return saved, nil
}

func (s *Service) UpdateSchedule(id int, sch model.Schedule) (model.Schedule, error) {
	saved, err := s.store.Update(id, sch)
	if err := s.persistOnly(err); err != nil {
		return model.Schedule{}, err
	}
	if !s.sched.Update(id, saved) {
		s.sched.Add(saved)
	}
	s.log.Info().Int("schedule_id", id).Msg("schedule updated")
	return saved, nil
}

func (s *Service) RemoveSchedule(id int) error {
	if err := s.persistOnly(s.store.Remove(id)); err != nil {
		return err
	}
	s.sched.Remove(id)
	s.log.Info().Int("schedule_id", id).Msg("schedule removed")
	return nil
}

// persistOnly swallows write failures, which leave the in-memory list
// updated, and returns every other error.
func (s *Service) persistOnly(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrPersist) {
		s.log.Error().Err(err).Msg("schedule change kept in memory only")
		return nil
	}
	return err
}

func (s *Service) GetSchedule(id int) (model.Schedule, error) {
	sch, err := s.store.Get(id)
	if err != nil {
		return model.Schedule{}, err
	}
	s.annotate(&sch)
	return sch, nil
}

// Schedules returns the stored list with InvalidFiles reflecting the
// filesystem right now.
func (s *Service) Schedules() []model.Schedule {
	list := s.store.GetAll()
	for i := range list {
		s.annotate(&list[i])
	}
	return list
}

func (s *Service) annotate(sch *model.Schedule) {
	sch.InvalidFiles = nil
	for _, f := range sch.Files {
		if !audio.FileExists(s.fs, f) {
			sch.InvalidFiles = append(sch.InvalidFiles, f)
		}
	}
}

// TestSchedule plays the existing files of a stored schedule right away,
// outside the trigger bookkeeping. It returns how many files were queued.
func (s *Service) TestSchedule(id int) (int, error) {
	sch, err := s.store.Get(id)
	if err != nil {
		return 0, err
	}
	files := make([]string, 0, len(sch.Files))
	for _, f := range sch.Files {
		if audio.FileExists(s.fs, f) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoValidFiles, sch.Name)
	}
	n := s.player.PlayImmediately(files)
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoValidFiles, sch.Name)
	}
	s.log.Info().Int("schedule_id", id).Int("files", n).Msg("test playback queued")
	return n, nil
}

// StopAll stops playback and drops every queued file and pending trigger.
func (s *Service) StopAll() {
	s.coord.StopAll()
}

// Upcoming lists the next n fire times of a stored schedule.
func (s *Service) Upcoming(id, n int) ([]time.Time, error) {
	sch, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return scheduler.Upcoming(sch, s.now(), n)
}
