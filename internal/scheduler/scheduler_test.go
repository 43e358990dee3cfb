package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

// 2024-01-02 is a Tuesday.
func tuesdayAt(h, m, sec int) time.Time {
	return time.Date(2024, 1, 2, h, m, sec, 0, time.Local)
}

type recorder struct {
	mu    sync.Mutex
	fired []model.Schedule
}

func (r *recorder) hook(s model.Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, s)
}

func (r *recorder) ids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.fired))
	for _, s := range r.fired {
		out = append(out, s.ID)
	}
	return out
}

func newTestScheduler(now time.Time) (*Scheduler, *recorder) {
	s := New(ClockFunc(func() time.Time { return now }), time.Second, zerolog.Nop())
	r := &recorder{}
	s.OnTrigger(r.hook)
	return s, r
}

func nineOnTuesday(id int) model.Schedule {
	return model.Schedule{
		ID:    id,
		Name:  "morning",
		Days:  []model.Weekday{model.Tuesday},
		Time:  "09:00",
		Files: []string{"/a.mp3", "/b.mp3"},
	}
}

func TestTickFiresOncePerMinute(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))

	for sec := 0; sec < 60; sec++ {
		s.tick(tuesdayAt(9, 0, sec))
	}
	assert.Equal(t, []int{1}, r.ids())

	s.tick(tuesdayAt(9, 1, 0))
	assert.Equal(t, []int{1}, r.ids())
}

func TestTickRequiresWeekdayAndMinute(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))

	s.tick(tuesdayAt(8, 59, 59))
	s.tick(tuesdayAt(9, 0, 0).AddDate(0, 0, 1)) // Wednesday 09:00
	assert.Empty(t, r.ids())
}

func TestTickFiresAgainNextWeek(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))

	s.tick(tuesdayAt(9, 0, 5))
	s.tick(tuesdayAt(9, 0, 5).AddDate(0, 0, 7))
	assert.Equal(t, []int{1, 1}, r.ids())
}

func TestUpdateClearsDedupRecord(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))

	s.tick(tuesdayAt(9, 0, 1))
	require.True(t, s.Update(1, nineOnTuesday(1)))
	s.tick(tuesdayAt(9, 0, 2))
	assert.Equal(t, []int{1, 1}, r.ids())
}

func TestRemoveClearsDedupRecord(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))

	s.tick(tuesdayAt(9, 0, 1))
	require.True(t, s.Remove(1))
	s.tick(tuesdayAt(9, 0, 2))
	assert.Equal(t, []int{1}, r.ids())

	s.Add(nineOnTuesday(1))
	s.tick(tuesdayAt(9, 0, 3))
	assert.Equal(t, []int{1, 1}, r.ids())
}

func TestDedupIsPerSchedule(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.Add(nineOnTuesday(1))
	s.Add(nineOnTuesday(2))

	s.tick(tuesdayAt(9, 0, 1))
	require.True(t, s.Update(2, nineOnTuesday(2)))
	s.tick(tuesdayAt(9, 0, 2))
	assert.Equal(t, []int{1, 2, 2}, r.ids())
}

func TestSetAllKeepsRecordsOfUnchangedSchedules(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.SetAll([]model.Schedule{nineOnTuesday(1), nineOnTuesday(2)})
	s.tick(tuesdayAt(9, 0, 1))
	assert.Equal(t, []int{1, 2}, r.ids())

	changed := nineOnTuesday(2)
	changed.Files = []string{"/c.mp3"}
	s.SetAll([]model.Schedule{nineOnTuesday(1), changed})
	s.tick(tuesdayAt(9, 0, 2))
	assert.Equal(t, []int{1, 2, 2}, r.ids())

	s.SetAll([]model.Schedule{nineOnTuesday(1)})
	s.SetAll([]model.Schedule{nineOnTuesday(1), changed})
	s.tick(tuesdayAt(9, 0, 3))
	assert.Equal(t, []int{1, 2, 2, 2}, r.ids())
}

func TestSchedulesAreCopies(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	in := nineOnTuesday(1)
	s.Add(in)
	in.Time = "10:00"

	s.tick(tuesdayAt(9, 0, 0))
	require.Len(t, r.fired, 1)
	r.fired[0].Files[0] = "/mutated.mp3"
	assert.Equal(t, "/a.mp3", s.Schedules()[0].Files[0])
}

func TestPanickingHookDoesNotStopOtherHooks(t *testing.T) {
	s, r := newTestScheduler(tuesdayAt(9, 0, 0))
	s.hooksMu.Lock()
	s.onTrigger = append([]func(model.Schedule){func(model.Schedule) { panic("boom") }}, s.onTrigger...)
	s.hooksMu.Unlock()
	s.Add(nineOnTuesday(1))

	s.safeTick(tuesdayAt(9, 0, 0))
	assert.Equal(t, []int{1}, r.ids())
}

func TestStartStopIdempotent(t *testing.T) {
	now := tuesdayAt(9, 0, 0)
	s := New(ClockFunc(func() time.Time { return now }), 10*time.Millisecond, zerolog.Nop())
	r := &recorder{}
	s.OnTrigger(r.hook)
	s.Add(nineOnTuesday(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx)
	assert.True(t, s.Running())

	require.Eventually(t, func() bool { return len(r.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{1}, r.ids())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	s.Start(ctx)
	assert.True(t, s.Running())
	cancel()
	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 5*time.Millisecond)
}

func TestNextOccurrenceNone(t *testing.T) {
	_, ok := NextOccurrence(nil, tuesdayAt(9, 0, 0))
	assert.False(t, ok)
}

func TestNextOccurrenceLaterToday(t *testing.T) {
	list := []model.Schedule{nineOnTuesday(1)}
	occ, ok := NextOccurrence(list, tuesdayAt(8, 30, 0))
	require.True(t, ok)
	assert.Equal(t, 0, occ.DaysAhead)
	assert.Equal(t, "09:00", occ.Time)
	assert.Equal(t, tuesdayAt(9, 0, 0), occ.At)
}

func TestNextOccurrencePassedTodayWrapsAWeek(t *testing.T) {
	list := []model.Schedule{nineOnTuesday(1)}
	occ, ok := NextOccurrence(list, tuesdayAt(9, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 7, occ.DaysAhead)
}

func TestNextOccurrenceWeekdayWraparound(t *testing.T) {
	friday := time.Date(2024, 1, 5, 18, 0, 0, 0, time.Local)
	list := []model.Schedule{{
		ID: 1, Days: []model.Weekday{model.Monday}, Time: "07:00", Files: []string{"/a.mp3"},
	}}
	occ, ok := NextOccurrence(list, friday)
	require.True(t, ok)
	assert.Equal(t, 3, occ.DaysAhead)
	assert.Equal(t, time.Date(2024, 1, 8, 7, 0, 0, 0, time.Local), occ.At)
}

func TestNextOccurrencePrefersSmallerOffsetOverEarlierTime(t *testing.T) {
	now := tuesdayAt(10, 0, 0)
	list := []model.Schedule{
		{ID: 1, Days: []model.Weekday{model.Thursday}, Time: "06:00", Files: []string{"/a"}},
		{ID: 2, Days: []model.Weekday{model.Tuesday}, Time: "23:00", Files: []string{"/b"}},
		{ID: 3, Days: []model.Weekday{model.Tuesday}, Time: "12:00", Files: []string{"/c"}},
		{ID: 4, Days: []model.Weekday{model.Tuesday}, Time: "12:00", Files: []string{"/d"}},
	}
	occ, ok := NextOccurrence(list, now)
	require.True(t, ok)
	assert.Equal(t, 3, occ.Schedule.ID)
	assert.Equal(t, 0, occ.DaysAhead)
}

func TestNextOccurrenceSkipsIneligible(t *testing.T) {
	list := []model.Schedule{
		{ID: 1, Days: nil, Time: "06:00"},
		{ID: 2, Days: []model.Weekday{model.Monday}, Time: "bad"},
	}
	_, ok := NextOccurrence(list, tuesdayAt(9, 0, 0))
	assert.False(t, ok)
}

func TestUpcoming(t *testing.T) {
	sch := nineOnTuesday(1)
	sch.Days = []model.Weekday{model.Tuesday, model.Thursday}
	times, err := Upcoming(sch, tuesdayAt(9, 0, 0), 3)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.Local), times[0])
	assert.Equal(t, time.Date(2024, 1, 9, 9, 0, 0, 0, time.Local), times[1])
	assert.Equal(t, time.Date(2024, 1, 11, 9, 0, 0, 0, time.Local), times[2])
}
