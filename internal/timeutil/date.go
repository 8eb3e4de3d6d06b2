package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the wire and key format of calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses YYYY-MM-DD in loc (UTC when loc is nil).
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateKey formats the calendar day of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EachDate calls fn for every calendar day in [from, to], stopping early when fn returns false.
// Days are stepped with AddDate so DST transitions do not skip or repeat a day.
func EachDate(from, to time.Time, fn func(day time.Time) bool) {
	end := DateOf(to)
	for day := DateOf(from); !day.After(end); day = day.AddDate(0, 0, 1) {
		if !fn(day) {
			return
		}
	}
}

// DayRange returns [midnight, next midnight) of t's day.
func DayRange(t time.Time) Interval {
	start := DateOf(t)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// CompareDates compares the calendar days of a and b, ignoring clock and location.
func CompareDates(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	an := ay*10000 + int(am)*100 + ad
	bn := by*10000 + int(bm)*100 + bd
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}
