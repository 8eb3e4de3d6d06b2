package model

import (
	"fmt"
	"time"

	"salonsched/internal/timeutil"
)

// TimeOffRequest blocks a staff member only once approved.
type TimeOffRequest struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    string    `json:"reason"`
	Approved  bool      `json:"approved"`
	AllDay    bool      `json:"all_day"`
	Note      string    `json:"note,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Interval is the blocked range. All-day requests cover whole calendar days
// from the start date through the end date.
func (r TimeOffRequest) Interval() timeutil.Interval {
	if !r.AllDay {
		return timeutil.Interval{Start: r.Start, End: r.End}
	}
	start := timeutil.DateOf(r.Start)
	end := timeutil.DateOf(r.End)
	if !r.End.Equal(end) || !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return timeutil.Interval{Start: start, End: end}
}

func (r TimeOffRequest) Validate() error {
	v := NewValidationError()
	if r.StaffID == "" {
		v.Add("staff_id", "is required")
	}
	if r.Start.IsZero() || r.End.IsZero() {
		v.Add("range", "start and end are required")
	} else if r.AllDay {
		if timeutil.CompareDates(r.End, r.Start) < 0 {
			v.Add("range", "end must not be before start")
		}
	} else if !r.Start.Before(r.End) {
		v.Add("range", "start must be before end")
	}
	return v.Err()
}

// TimeReservation blocks every listed staff member and room for its whole interval.
type TimeReservation struct {
	ID        string    `json:"id"`
	StaffIDs  []string  `json:"staff_ids"`
	RoomIDs   []string  `json:"room_ids"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func (r TimeReservation) Interval() timeutil.Interval {
	return timeutil.Interval{Start: r.Start, End: r.End}
}

func (r TimeReservation) HasStaff(id string) bool { return id != "" && contains(r.StaffIDs, id) }
func (r TimeReservation) HasRoom(id string) bool  { return id != "" && contains(r.RoomIDs, id) }

func (r TimeReservation) Validate() error {
	v := NewValidationError()
	if len(r.StaffIDs) == 0 && len(r.RoomIDs) == 0 {
		v.Add("targets", "at least one staff id or room id is required")
	}
	if r.Start.IsZero() || r.End.IsZero() {
		v.Add("range", "start and end are required")
	} else if !r.Start.Before(r.End) {
		v.Add("range", "start must be before end")
	}
	return v.Err()
}

// DayHours are the opening hours of one weekday.
type DayHours struct {
	Day    timeutil.DayOfWeek `json:"day" yaml:"day"`
	Open   timeutil.TimeOfDay `json:"open" yaml:"open"`
	Close  timeutil.TimeOfDay `json:"close" yaml:"close"`
	Closed bool               `json:"closed" yaml:"closed"`
}

// BusinessHours are the weekly opening hours of a branch. A weekday without an entry is closed.
type BusinessHours struct {
	BranchID string     `json:"branch_id" yaml:"branch_id"`
	Days     []DayHours `json:"days" yaml:"days"`
}

// For returns the hours of a weekday.
func (h BusinessHours) For(day timeutil.DayOfWeek) (DayHours, bool) {
	for _, d := range h.Days {
		if d.Day == day {
			return d, !d.Closed
		}
	}
	return DayHours{}, false
}

func (h BusinessHours) Validate() error {
	v := NewValidationError()
	if h.BranchID == "" {
		v.Add("branch_id", "is required")
	}
	seen := make(map[timeutil.DayOfWeek]bool)
	for i, d := range h.Days {
		prefix := fmt.Sprintf("days[%d]", i)
		if !d.Day.Valid() {
			v.Add(prefix+".day", "must be mon..sun")
		}
		if seen[d.Day] {
			v.Add(prefix+".day", "duplicate day "+d.Day.String())
		}
		seen[d.Day] = true
		if !d.Closed && (!d.Open.Valid() || !d.Close.Valid() || d.Open >= d.Close) {
			v.Add(prefix, "open must be before close")
		}
	}
	return v.Err()
}

// Break is an unavailable part of a shift.
type Break struct {
	Start timeutil.TimeOfDay `json:"start" yaml:"start"`
	End   timeutil.TimeOfDay `json:"end" yaml:"end"`
}

// ShiftDay is one weekday of a staff member's working pattern.
type ShiftDay struct {
	Day    timeutil.DayOfWeek `json:"day" yaml:"day"`
	Start  timeutil.TimeOfDay `json:"start" yaml:"start"`
	End    timeutil.TimeOfDay `json:"end" yaml:"end"`
	Breaks []Break            `json:"breaks,omitempty" yaml:"breaks,omitempty"`
	Off    bool               `json:"off" yaml:"off"`
}

// StaffShift overrides branch business hours for one staff member.
type StaffShift struct {
	StaffID  string     `json:"staff_id" yaml:"staff_id"`
	BranchID string     `json:"branch_id" yaml:"branch_id"`
	Days     []ShiftDay `json:"days" yaml:"days"`
}

// For returns the shift of a weekday; ok is false when the weekday has no entry.
func (s StaffShift) For(day timeutil.DayOfWeek) (ShiftDay, bool) {
	for _, d := range s.Days {
		if d.Day == day {
			return d, true
		}
	}
	return ShiftDay{}, false
}

func (s StaffShift) Validate() error {
	v := NewValidationError()
	if s.StaffID == "" {
		v.Add("staff_id", "is required")
	}
	seen := make(map[timeutil.DayOfWeek]bool)
	for i, d := range s.Days {
		prefix := fmt.Sprintf("days[%d]", i)
		if !d.Day.Valid() {
			v.Add(prefix+".day", "must be mon..sun")
		}
		if seen[d.Day] {
			v.Add(prefix+".day", "duplicate day "+d.Day.String())
		}
		seen[d.Day] = true
		if d.Off {
			continue
		}
		if !d.Start.Valid() || !d.End.Valid() || d.Start >= d.End {
			v.Add(prefix, "start must be before end")
			continue
		}
		for j, b := range d.Breaks {
			if b.Start >= b.End || b.Start < d.Start || b.End > d.End {
				v.Add(fmt.Sprintf("%s.breaks[%d]", prefix, j), "break must lie within the shift")
			}
		}
	}
	return v.Err()
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
