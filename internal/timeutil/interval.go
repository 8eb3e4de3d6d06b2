package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyInterval is returned when start is not strictly before end.
var ErrEmptyInterval = errors.New("interval start must be before end")

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval validates start < end.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s >= %s", ErrEmptyInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether two half-open ranges share at least one instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// Contains reports whether o lies fully inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Minutes is the duration rounded down to whole minutes.
func (i Interval) Minutes() int {
	return int(i.Duration() / time.Minute)
}

// Subtract removes cut from i and returns what is left, in order.
func (i Interval) Subtract(cut Interval) []Interval {
	if !i.Overlaps(cut) {
		return []Interval{i}
	}
	var out []Interval
	if i.Start.Before(cut.Start) {
		out = append(out, Interval{Start: i.Start, End: cut.Start})
	}
	if cut.End.Before(i.End) {
		out = append(out, Interval{Start: cut.End, End: i.End})
	}
	return out
}
