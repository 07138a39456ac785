package calendar

import (
	"fmt"
	"time"
)

// Range is the half-open interval [Start, End) of calendar days.
type Range struct {
	Start Date
	End   Date
}

// DayRange covers exactly d.
func DayRange(d Date) Range {
	return Range{Start: d, End: d.AddDays(1)}
}

// WeekEnding covers the seven days that finish on last (inclusive).
func WeekEnding(last Date) Range {
	return Range{Start: last.AddDays(-6), End: last.AddDays(1)}
}

// WeekAfter covers the seven days that follow d.
func WeekAfter(d Date) Range {
	return Range{Start: d.AddDays(1), End: d.AddDays(8)}
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

func (r Range) Empty() bool {
	return !r.Start.Before(r.End)
}

func (r Range) Days() int {
	if r.Empty() {
		return 0
	}
	return r.Start.DaysUntil(r.End)
}

// Bounds returns the instants of the range edges in loc.
func (r Range) Bounds(loc *time.Location) (time.Time, time.Time) {
	return r.Start.Start(loc), r.End.Start(loc)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
