// Package notify delivers lifecycle notifications (schedule fired, file
// started, coordinator state) to external sinks without ever blocking the
// scheduler or the playback worker.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noahxzhu/broadcast-scheduler/internal/coordinator"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

const (
	Title = "Broadcast Scheduler"

	DefaultBuffer      = 64
	DefaultSendTimeout = 10 * time.Second
)

type Kind string

const (
	KindScheduleTriggered Kind = "schedule_triggered"
	KindPlaybackStarted   Kind = "playback_started"
	KindCoordinator       Kind = "coordinator"
)

type Event struct {
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ScheduleID int       `json:"schedule_id,omitempty"`
	TriggerID  string    `json:"trigger_id,omitempty"`
	File       string    `json:"file,omitempty"`
	State      string    `json:"state,omitempty"`
	At         time.Time `json:"at"`
}

// Sink delivers one event somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Dispatcher queues events and hands them to every sink from a single
// goroutine. When the buffer is full new events are dropped.
type Dispatcher struct {
	sinks   []Sink
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	events chan Event
	quit   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

func NewDispatcher(logger zerolog.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher{
		sinks:   sinks,
		log:     logger.With().Str("component", "notify").Logger(),
		timeout: DefaultSendTimeout,
		now:     time.Now,
		events:  make(chan Event, buffer),
		quit:    make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It stops when ctx is cancelled or
// Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run(ctx)
	})
}

// Close stops delivery after flushing what is already queued.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}

// Notify queues ev and reports whether it was accepted.
func (d *Dispatcher) Notify(ev Event) bool {
	if len(d.sinks) == 0 {
		return false
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if ev.Title == "" {
		ev.Title = Title
	}
	select {
	case <-d.quit:
		return false
	default:
	}
	select {
	case d.events <- ev:
		return true
	default:
		d.log.Warn().Str("kind", string(ev.Kind)).Msg("notification buffer full, event dropped")
		return false
	}
}

func (d *Dispatcher) ScheduleTriggered(sch model.Schedule) bool {
	return d.Notify(Event{
		Kind:       KindScheduleTriggered,
		Message:    "Schedule triggered: " + sch.Name,
		ScheduleID: sch.ID,
	})
}

func (d *Dispatcher) PlaybackStarted(path string) bool {
	return d.Notify(Event{
		Kind:    KindPlaybackStarted,
		Message: "Now playing: " + filepath.Base(path),
		File:    path,
	})
}

// CoordinatorStatus forwards waiting and failed outcomes. Playing and idle
// are already covered by the other two events.
func (d *Dispatcher) CoordinatorStatus(st coordinator.Status) bool {
	if st.State != coordinator.StateWaiting && st.State != coordinator.StateFailed {
		return false
	}
	ev := Event{
		Kind:       KindCoordinator,
		Message:    st.String(),
		ScheduleID: st.ScheduleID,
		State:      string(st.State),
	}
	if st.TriggerID != uuid.Nil {
		ev.TriggerID = st.TriggerID.String()
	}
	return d.Notify(ev)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			return
		case <-d.quit:
			for {
				select {
				case ev := <-d.events:
					d.deliver(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		if err := d.send(ctx, sink, ev); err != nil {
			d.log.Warn().Err(err).Str("sink", sink.Name()).Str("kind", string(ev.Kind)).Msg("failed to deliver notification")
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return sink.Send(ctx, ev)
}
