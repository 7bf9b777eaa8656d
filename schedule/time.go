package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME OF DAY - Minute-resolution clock value (this IS a clock-time system)
// =============================================================================

// TimeOfDay is a time-of-day expressed as minutes since midnight.
// Valid values are 0 (00:00) through 1440 (24:00, exclusive end of day).
type TimeOfDay int

const MinutesPerDay = 24 * 60

// ParseTimeOfDay parses a "15:04" clock string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay parses a "15:04" clock string and panics on failure.
// For tests and static schedule definitions.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= MinutesPerDay }

// Add returns the time-of-day n minutes later. No wrap-around: callers
// validate that results stay within the day.
func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

func (t TimeOfDay) Before(other TimeOfDay) bool { return t < other }
func (t TimeOfDay) After(other TimeOfDay) bool  { return t > other }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MinutesBetween returns to - from in minutes.
func MinutesBetween(from, to TimeOfDay) int { return int(to) - int(from) }

// =============================================================================
// INTERVAL - Half-open [Start, End) time-of-day range
// =============================================================================

type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func NewInterval(start, end TimeOfDay) Interval {
	return Interval{Start: start, End: end}
}

// Duration returns the interval length in minutes.
func (iv Interval) Duration() int { return MinutesBetween(iv.Start, iv.End) }

// IsValid reports whether the interval is well-formed (start strictly
// before end, both within the day).
func (iv Interval) IsValid() bool {
	return iv.Start.Valid() && iv.End.Valid() && iv.Start < iv.End
}

// Overlaps reports whether two half-open intervals intersect.
// The predicate is symmetric: a.Overlaps(b) == b.Overlaps(a).
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return iv.Start <= other.Start && other.End <= iv.End
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s-%s", iv.Start, iv.End)
}

// =============================================================================
// DATE - Civil date, one fixed timezone per owner
// =============================================================================

// Date is a civil date. The zero value is the zero date.
type Date struct {
	Time time.Time // normalized to midnight UTC
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func Today(loc *time.Location) Date {
	now := time.Now().In(loc)
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) Equal(other Date) bool  { return d.String() == other.String() }
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) AddDays(n int) Date     { return Date{Time: d.Time.AddDate(0, 0, n)} }

// At combines the date with a time-of-day in the given location, producing
// the absolute instant the owner's clock shows.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

func (d Date) String() string { return d.Time.Format("2006-01-02") }
