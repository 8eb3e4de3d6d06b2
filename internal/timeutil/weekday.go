package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDayOfWeek is returned for unknown weekday names or numbers.
var ErrInvalidDayOfWeek = errors.New("invalid day of week")

// DayOfWeek uses ISO numbering: Monday=1 ... Sunday=7.
type DayOfWeek int

const (
	Monday DayOfWeek = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"", "mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var dayAliases = map[string]DayOfWeek{
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tues": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
	"sun": Sunday, "sunday": Sunday,
}

// FromWeekday maps time.Weekday (Sunday=0) onto ISO numbering.
func FromWeekday(w time.Weekday) DayOfWeek {
	if w == time.Sunday {
		return Sunday
	}
	return DayOfWeek(w)
}

// DayOf returns the ISO weekday of t in t's location.
func DayOf(t time.Time) DayOfWeek {
	return FromWeekday(t.Weekday())
}

// ParseDayOfWeek accepts short or long English names, or 1..7.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := dayAliases[key]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		if d := DayOfWeek(n); d.Valid() {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDayOfWeek, s)
}

func (d DayOfWeek) Valid() bool {
	return d >= Monday && d <= Sunday
}

// Weekday converts back to time.Weekday.
func (d DayOfWeek) Weekday() time.Weekday {
	if d == Sunday {
		return time.Sunday
	}
	return time.Weekday(d)
}

func (d DayOfWeek) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DayOfWeek(%d)", int(d))
	}
	return dayNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d DayOfWeek) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DayOfWeek) UnmarshalText(b []byte) error {
	v, err := ParseDayOfWeek(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
