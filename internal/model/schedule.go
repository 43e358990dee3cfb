package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

var (
	ErrNoDays      = errors.New("at least one day is required")
	ErrNoFiles     = errors.New("at least one file is required")
	ErrInvalidTime = errors.New("time must be HH:MM (24-hour)")
	ErrUnknownDay  = errors.New("unknown weekday")
)

// Weekday is the canonical lower-case English weekday token used in the
// persisted schedule list.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Week lists the weekdays by index, 0=Monday ... 6=Sunday.
var Week = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Index returns the position of d in Week, or -1 for an unknown token.
func (d Weekday) Index() int {
	for i, w := range Week {
		if w == d {
			return i
		}
	}
	return -1
}

// WeekdayIndex maps a time to 0=Monday ... 6=Sunday without going through
// locale dependent names.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekdayOf returns the canonical token for t's weekday.
func WeekdayOf(t time.Time) Weekday {
	return Week[WeekdayIndex(t)]
}

func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(strings.ToLower(strings.TrimSpace(s)))
	if d.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownDay, s)
	}
	return d, nil
}

// ParseClock parses "H:MM" or "HH:MM" and returns hour and minute.
func ParseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(ms) != 2 || len(hs) == 0 || len(hs) > 2 || !digits(hs) || !digits(ms) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return h, m, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ClockString formats t as the HH:MM key schedules are matched against.
func ClockString(t time.Time) string {
	return t.Format("15:04")
}

type Schedule struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Days            []Weekday `json:"days"`
	Time            string    `json:"time"`
	Files           []string  `json:"files"`
	DurationSeconds *int      `json:"duration_seconds"`
	// InvalidFiles is filled on load for referenced paths that do not exist.
	// It is never written back.
	InvalidFiles []string `json:"invalid_files,omitempty"`
}

// DefaultName is the name given to a schedule saved without one.
func DefaultName(id int) string {
	return fmt.Sprintf("Schedule %d", id)
}

// Normalize canonicalises days (lower-case, deduplicated, Monday first),
// zero-pads the time and trims the name. It returns the first configuration
// error found; s is left untouched on error.
func (s *Schedule) Normalize() error {
	if len(s.Days) == 0 {
		return ErrNoDays
	}
	seen := make(map[Weekday]bool, len(s.Days))
	days := make([]Weekday, 0, len(s.Days))
	for _, raw := range s.Days {
		d, err := ParseWeekday(string(raw))
		if err != nil {
			return err
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Index() < days[j].Index() })

	h, m, err := ParseClock(s.Time)
	if err != nil {
		return err
	}

	files := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return ErrNoFiles
	}

	s.Days = days
	s.Time = fmt.Sprintf("%02d:%02d", h, m)
	s.Files = files
	s.Name = strings.TrimSpace(s.Name)
	return nil
}

// Validate reports whether s may enter the active list.
func (s Schedule) Validate() error {
	c := s.Clone()
	return c.Normalize()
}

func (s Schedule) RunsOn(d Weekday) bool {
	for _, day := range s.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Minute returns the schedule time as minutes since midnight, or -1 when the
// time string is malformed.
func (s Schedule) Minute() int {
	h, m, err := ParseClock(s.Time)
	if err != nil {
		return -1
	}
	return h*60 + m
}

// CronExpr renders the schedule as a five-field cron expression. Cron counts
// Sunday as day 0.
func (s Schedule) CronExpr() (string, error) {
	h, m, err := ParseClock(s.Time)
	if err != nil {
		return "", err
	}
	if len(s.Days) == 0 {
		return "", ErrNoDays
	}
	dows := make([]string, 0, len(s.Days))
	for _, d := range s.Days {
		i := d.Index()
		if i < 0 {
			return "", fmt.Errorf("%w: %q", ErrUnknownDay, d)
		}
		dows = append(dows, strconv.Itoa((i+1)%7))
	}
	expr := fmt.Sprintf("%d %d * * %s", m, h, strings.Join(dows, ","))
	if !gronx.New().IsValid(expr) {
		return "", fmt.Errorf("invalid cron expression %q", expr)
	}
	return expr, nil
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	c := s
	c.Days = append([]Weekday(nil), s.Days...)
	c.Files = append([]string(nil), s.Files...)
	c.InvalidFiles = append([]string(nil), s.InvalidFiles...)
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		c.DurationSeconds = &d
	}
	return c
}

// Equal compares the fields that affect triggering and playback.
func (s Schedule) Equal(o Schedule) bool {
	if s.ID != o.ID || s.Name != o.Name || s.Time != o.Time ||
		len(s.Days) != len(o.Days) || len(s.Files) != len(o.Files) {
		return false
	}
	for i := range s.Days {
		if s.Days[i] != o.Days[i] {
			return false
		}
	}
	for i := range s.Files {
		if s.Files[i] != o.Files[i] {
			return false
		}
	}
	return true
}

// FormatDuration renders seconds as mm:ss or hh:mm:ss.
func FormatDuration(seconds *int) string {
	if seconds == nil {
		return "unknown"
	}
	total := *seconds
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// AppSchema is the on-disk document.
type AppSchema struct {
	NextID    int         `json:"next_id"`
	Schedules []*Schedule `json:"schedules"`
}
