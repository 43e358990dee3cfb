package broadcast

import (
	"time"

	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

type PlayerSnapshot struct {
	Status          string   `json:"status"`
	Playing         bool     `json:"playing"`
	File            string   `json:"file,omitempty"`
	QueueSize       int      `json:"queue_size"`
	PositionSeconds *float64 `json:"position_seconds"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Progress        *float64 `json:"progress"`
}

type NextSnapshot struct {
	ScheduleID int       `json:"schedule_id"`
	Name       string    `json:"name"`
	Time       string    `json:"time"`
	DaysAhead  int       `json:"days_ahead"`
	At         time.Time `json:"at"`
}

// PendingSnapshot is one trigger waiting for the engine to go idle.
type PendingSnapshot struct {
	TriggerID  string    `json:"trigger_id"`
	ScheduleID int       `json:"schedule_id"`
	Name       string    `json:"name"`
	ReceivedAt time.Time `json:"received_at"`
}

// Snapshot is the whole observable state at one instant.
type Snapshot struct {
	Player       PlayerSnapshot    `json:"player"`
	Coordinator  string            `json:"coordinator"`
	State        string            `json:"state"`
	PendingDepth int               `json:"pending_depth"`
	Pending      []PendingSnapshot `json:"pending"`
	Next         *NextSnapshot     `json:"next"`
	Schedules    []model.Schedule  `json:"schedules"`
}

func (s *Service) Snapshot() Snapshot {
	st := s.coord.Status()
	snap := Snapshot{
		Player: PlayerSnapshot{
			Status:    s.player.Status(),
			Playing:   s.player.IsPlaying(),
			File:      s.player.CurrentFile(),
			QueueSize: s.player.QueueSize(),
		},
		Coordinator:  st.String(),
		State:        string(st.State),
		PendingDepth: st.PendingDepth,
		Schedules:    s.Schedules(),
	}
	for _, tr := range s.coord.Pending() {
		snap.Pending = append(snap.Pending, PendingSnapshot{
			TriggerID:  tr.ID.String(),
			ScheduleID: tr.Schedule.ID,
			Name:       tr.Schedule.Name,
			ReceivedAt: tr.ReceivedAt,
		})
	}
	if pos, ok := s.player.Position(); ok {
		snap.Player.PositionSeconds = seconds(pos)
	}
	if d, ok := s.player.Duration(); ok {
		snap.Player.DurationSeconds = seconds(d)
	}
	if p, ok := s.player.Progress(); ok {
		snap.Player.Progress = &p
	}
	if occ, ok := s.sched.NextOccurrence(); ok {
		snap.Next = &NextSnapshot{
			ScheduleID: occ.Schedule.ID,
			Name:       occ.Schedule.Name,
			Time:       occ.Time,
			DaysAhead:  occ.DaysAhead,
			At:         occ.At,
		}
	}
	return snap
}

func seconds(d time.Duration) *float64 {
	v := d.Seconds()
	return &v
}
