package scheduler

import (
	"time"

	"github.com/adhocore/gronx"

	"github.com/noahxzhu/broadcast-scheduler/internal/model"
)

// Occurrence is the next time a schedule will fire.
type Occurrence struct {
	Schedule model.Schedule
	Time     string
	// DaysAhead is 0 for later today, otherwise 1-7.
	DaysAhead int
	At        time.Time
}

// NextOccurrence returns the earliest upcoming firing across all schedules.
// Candidates are ordered by day offset, then time of day, then list order.
func (s *Scheduler) NextOccurrence() (Occurrence, bool) {
	return NextOccurrence(s.Schedules(), s.clock.Now())
}

// NextOccurrence computes the earliest firing of list strictly after now
// using weekday-index arithmetic.
func NextOccurrence(list []model.Schedule, now time.Time) (Occurrence, bool) {
	var (
		best      Occurrence
		bestFound bool
		bestMin   int
	)
	nowIdx := model.WeekdayIndex(now)
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()

	for _, sch := range list {
		minute := sch.Minute()
		if minute < 0 || len(sch.Days) == 0 {
			continue
		}
		offset := -1
		for _, d := range sch.Days {
			idx := d.Index()
			if idx < 0 {
				continue
			}
			ahead := (idx - nowIdx + 7) % 7
			if ahead == 0 && minute*60 <= nowSec {
				ahead = 7
			}
			if offset < 0 || ahead < offset {
				offset = ahead
			}
		}
		if offset < 0 {
			continue
		}
		if bestFound && (offset > best.DaysAhead || (offset == best.DaysAhead && minute >= bestMin)) {
			continue
		}
		day := now.AddDate(0, 0, offset)
		best = Occurrence{
			Schedule:  sch.Clone(),
			Time:      sch.Time,
			DaysAhead: offset,
			At:        time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, now.Location()),
		}
		bestMin = minute
		bestFound = true
	}
	return best, bestFound
}

// Upcoming lists the next n firing instants of sch after from.
func Upcoming(sch model.Schedule, from time.Time, n int) ([]time.Time, error) {
	expr, err := sch.CronExpr()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	ref := from
	for len(out) < n {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		ref = next
	}
	return out, nil
}
