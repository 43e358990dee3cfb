// Package scheduler fires weekly schedules at their configured minute.
//
// A polling loop reads the wall clock about once per second, matches the
// current weekday and HH:MM against every schedule and calls the registered
// trigger hooks. A per-schedule dedup record makes each (schedule, date,
// minute) fire exactly once no matter how many ticks land inside the minute.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

const DefaultTickInterval = time.Second

// Clock is the source of wall-clock time.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// firedRecord remembers the last date and exact minute a schedule fired.
type firedRecord struct {
	Date string
	Key  string
	At   time.Time
}

type Scheduler struct {
	clock    Clock
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	schedules []model.Schedule
	fired     map[int]firedRecord
	running   bool
	stop      chan struct{}

	hooksMu   sync.RWMutex
	onTrigger []func(model.Schedule)
}

func New(clock Clock, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		log:      logger.With().Str("component", "scheduler").Logger(),
		fired:    make(map[int]firedRecord),
	}
}

// OnTrigger registers fn to be called with a copy of every schedule that
// fires. Hooks run on the polling goroutine in registration order and
// should return quickly.
func (s *Scheduler) OnTrigger(fn func(model.Schedule)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onTrigger = append(s.onTrigger, fn)
}

// Add appends sch to the working list. A schedule with the same id is
// replaced instead.
func (s *Scheduler) Add(sch model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.schedules {
		if s.schedules[i].ID == sch.ID {
			s.schedules[i] = sch.Clone()
			delete(s.fired, sch.ID)
			return
		}
	}
	s.schedules = append(s.schedules, sch.Clone())
}

// Remove drops the schedule and its dedup record.
func (s *Scheduler) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fired, id)
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
			return true
		}
	}
	return false
}

// Update replaces the schedule with the given id and clears its dedup
// record so the edit takes effect immediately.
func (s *Scheduler) Update(id int, sch model.Schedule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			c := sch.Clone()
			c.ID = id
			s.schedules[i] = c
			delete(s.fired, id)
			return true
		}
	}
	return false
}

// SetAll replaces the working list. Dedup records are kept only for
// schedules present before and after with identical content.
func (s *Scheduler) SetAll(list []model.Schedule) {
	next := make([]model.Schedule, 0, len(list))
	for _, sch := range list {
		next = append(next, sch.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make(map[int]model.Schedule, len(s.schedules))
	for _, sch := range s.schedules {
		prev[sch.ID] = sch
	}
	keep := make(map[int]bool, len(next))
	for _, sch := range next {
		if old, ok := prev[sch.ID]; ok && old.Equal(sch) {
			keep[sch.ID] = true
		}
	}
	for id := range s.fired {
		if !keep[id] {
			delete(s.fired, id)
		}
	}
	s.schedules = next
}

// Schedules returns a copy of the working list.
func (s *Scheduler) Schedules() []model.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, sch.Clone())
	}
	return out
}

// Start launches the polling loop unless it is already running. The loop
// ends when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(ctx, stop)
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop asks the loop to exit at its next wake-up. It does not wait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	s.stop = nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.safeTick(s.clock.Now())

		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.stop == stop {
				s.running = false
				s.stop = nil
			}
			s.mu.Unlock()
			s.log.Info().Msg("scheduler stopped")
			return
		case <-stop:
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// safeTick runs one pass; a failure is logged and the loop carries on.
func (s *Scheduler) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scheduler tick failed")
		}
	}()
	s.tick(now)
}

// tick fires every schedule matching now that has not yet fired for this
// date and minute.
func (s *Scheduler) tick(now time.Time) {
	clock := model.ClockString(now)
	weekday := model.WeekdayOf(now)
	today := now.Format("2006-01-02")

	var due []model.Schedule
	s.mu.Lock()
	for _, sch := range s.schedules {
		if sch.Time != clock || !sch.RunsOn(weekday) {
			continue
		}
		key := fmt.Sprintf("%d_%s_%s", sch.ID, today, clock)
		if rec, ok := s.fired[sch.ID]; ok && rec.Date == today && rec.Key == key {
			s.log.Debug().Int("schedule_id", sch.ID).Str("key", key).Msg("already fired this minute")
			continue
		}
		s.fired[sch.ID] = firedRecord{Date: today, Key: key, At: now}
		due = append(due, sch.Clone())
	}
	s.mu.Unlock()

	for _, sch := range due {
		s.log.Info().
			Int("schedule_id", sch.ID).
			Str("name", sch.Name).
			Str("time", sch.Time).
			Msg("schedule triggered")
		s.emit(sch)
	}
}

func (s *Scheduler) emit(sch model.Schedule) {
	s.hooksMu.RLock()
	hooks := append([]func(model.Schedule){}, s.onTrigger...)
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Int("schedule_id", sch.ID).Msg("trigger hook panicked")
				}
			}()
			fn(sch.Clone())
		}()
	}
}
