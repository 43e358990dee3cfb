// Package coordinator serialises schedule triggers onto the single playback
// engine. At most one schedule is active at a time; triggers that arrive
// while playback is busy wait in a FIFO and start, in arrival order, as soon
// as the engine drains.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

// Engine is the part of the playback engine the coordinator drives.
type Engine interface {
	Enqueue(paths []string) int
	IsPlaying() bool
	QueueSize() int
	Stop()
}

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StateWaiting State = "waiting"
	StateFailed  State = "failed"
)

// Status describes the outcome of a coordinator operation.
type Status struct {
	State        State
	TriggerID    uuid.UUID
	ScheduleID   int
	ScheduleName string
	PendingDepth int
	Files        []string
}

func (s Status) String() string {
	switch s.State {
	case StatePlaying:
		return "playing: " + s.ScheduleName
	case StateWaiting:
		return fmt.Sprintf("waiting: %s (pending_depth=%d)", s.ScheduleName, s.PendingDepth)
	case StateFailed:
		return fmt.Sprintf("failed: %s - no valid files", s.ScheduleName)
	default:
		return "idle"
	}
}

// Trigger is an accepted schedule trigger with its resolved files.
type Trigger struct {
	ID         uuid.UUID
	Schedule   model.Schedule
	Files      []string
	ReceivedAt time.Time
}

type Coordinator struct {
	engine Engine
	fs     afero.Fs
	log    zerolog.Logger

	mu      sync.Mutex
	pending []Trigger
	current *Trigger

	hooksMu  sync.RWMutex
	onStatus []func(Status)
}

func New(engine Engine, fs afero.Fs, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		engine: engine,
		fs:     fs,
		log:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// OnStatus registers fn to receive every status change.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onStatus = append(c.onStatus, fn)
}

// OnTrigger resolves the schedule's files and either starts them right away
// or queues them behind the active schedule. A schedule without any
// existing file is reported as failed and changes nothing.
func (c *Coordinator) OnTrigger(sch model.Schedule) Status {
	files := c.existing(sch.Files)
	if len(files) == 0 {
		st := Status{State: StateFailed, ScheduleID: sch.ID, ScheduleName: sch.Name}
		c.log.Warn().Int("schedule_id", sch.ID).Str("name", sch.Name).Msg("no valid files, trigger dropped")
		c.emit(st)
		return st
	}

	tr := Trigger{ID: uuid.New(), Schedule: sch.Clone(), Files: files, ReceivedAt: time.Now()}

	c.mu.Lock()
	if c.current == nil && !c.engine.IsPlaying() && c.engine.QueueSize() == 0 {
		st := c.startLocked(tr)
		c.mu.Unlock()
		c.emit(st)
		return st
	}
	c.pending = append(c.pending, tr)
	st := Status{
		State:        StateWaiting,
		TriggerID:    tr.ID,
		ScheduleID:   sch.ID,
		ScheduleName: sch.Name,
		PendingDepth: len(c.pending),
		Files:        files,
	}
	c.mu.Unlock()

	c.log.Info().
		Str("trigger_id", tr.ID.String()).
		Int("schedule_id", sch.ID).
		Int("pending_depth", st.PendingDepth).
		Msg("playback busy, trigger queued")
	c.emit(st)
	return st
}

// OnPlaybackIdle starts the oldest pending trigger once the engine has
// nothing playing and nothing queued. It is safe to call after every item;
// while the engine is still busy it only reports the current state.
func (c *Coordinator) OnPlaybackIdle() Status {
	c.mu.Lock()
	if c.engine.IsPlaying() || c.engine.QueueSize() > 0 {
		st := c.statusLocked()
		c.mu.Unlock()
		return st
	}

	var failed []Status
	for len(c.pending) > 0 {
		tr := c.pending[0]
		c.pending = c.pending[1:]
		st := c.startLocked(tr)
		if st.State == StatePlaying {
			c.mu.Unlock()
			for _, f := range failed {
				c.emit(f)
			}
			c.emit(st)
			return st
		}
		failed = append(failed, st)
	}

	c.current = nil
	c.mu.Unlock()

	for _, f := range failed {
		c.emit(f)
	}
	st := Status{State: StateIdle}
	c.log.Info().Msg("playback idle")
	c.emit(st)
	return st
}

// StopAll drops every pending trigger and stops the engine.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	dropped := len(c.pending)
	c.pending = nil
	c.current = nil
	c.mu.Unlock()

	c.engine.Stop()
	c.log.Info().Int("dropped_pending", dropped).Msg("all playback stopped")
	c.emit(Status{State: StateIdle})
}

// Current returns the active trigger, if any.
func (c *Coordinator) Current() (Trigger, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Trigger{}, false
	}
	return *c.current, true
}

// Pending returns the waiting triggers, oldest first.
func (c *Coordinator) Pending() []Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Trigger(nil), c.pending...)
}

func (c *Coordinator) PendingDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() Status {
	if c.current == nil {
		return Status{State: StateIdle, PendingDepth: len(c.pending)}
	}
	return Status{
		State:        StatePlaying,
		TriggerID:    c.current.ID,
		ScheduleID:   c.current.Schedule.ID,
		ScheduleName: c.current.Schedule.Name,
		PendingDepth: len(c.pending),
		Files:        c.current.Files,
	}
}

// startLocked hands tr to the engine and makes it current. Files can vanish
// between resolution and enqueue, in which case the trigger fails and the
// current schedule is left as it was.
func (c *Coordinator) startLocked(tr Trigger) Status {
	if c.engine.Enqueue(tr.Files) == 0 {
		c.log.Warn().Str("trigger_id", tr.ID.String()).Int("schedule_id", tr.Schedule.ID).Msg("files disappeared before playback")
		return Status{State: StateFailed, TriggerID: tr.ID, ScheduleID: tr.Schedule.ID, ScheduleName: tr.Schedule.Name}
	}
	t := tr
	c.current = &t
	c.log.Info().
		Str("trigger_id", tr.ID.String()).
		Int("schedule_id", tr.Schedule.ID).
		Str("name", tr.Schedule.Name).
		Int("files", len(tr.Files)).
		Msg("schedule playback started")
	return Status{
		State:        StatePlaying,
		TriggerID:    tr.ID,
		ScheduleID:   tr.Schedule.ID,
		ScheduleName: tr.Schedule.Name,
		PendingDepth: len(c.pending),
		Files:        tr.Files,
	}
}

func (c *Coordinator) existing(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if audio.FileExists(c.fs, p) {
			out = append(out, p)
		} else {
			c.log.Warn().Str("file", p).Msg("file does not exist, skipping")
		}
	}
	return out
}

func (c *Coordinator) emit(st Status) {
	c.hooksMu.RLock()
	hooks := append([]func(Status){}, c.onStatus...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(st)
	}
}
