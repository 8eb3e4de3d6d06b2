package model

import (
	"time"

	"salonsched/internal/timeutil"

	"github.com/shopspring/decimal"
)

// StaticServiceSlot is one bookable occurrence, generated from a template or created ad hoc.
// A slot with a zero Date recurs weekly on DayOfWeek.
type StaticServiceSlot struct {
	ID                string             `json:"id"`
	TemplateID        string             `json:"template_id,omitempty"`
	PatternID         string             `json:"pattern_id,omitempty"`
	RoomID            string             `json:"room_id"`
	BranchID          string             `json:"branch_id"`
	Date              time.Time          `json:"date"`
	DayOfWeek         timeutil.DayOfWeek `json:"day_of_week"`
	Start             timeutil.TimeOfDay `json:"start_time"`
	End               timeutil.TimeOfDay `json:"end_time"`
	ServiceID         string             `json:"service_id"`
	Capacity          int                `json:"capacity"`
	InstructorStaffID string             `json:"instructor_staff_id,omitempty"`
	Price             decimal.Decimal    `json:"price"`
	IsOverride        bool               `json:"is_override"`
	IsCancelled       bool               `json:"is_cancelled"`
	OverrideDate      *time.Time         `json:"override_date,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// SlotKey identifies a generated occurrence.
type SlotKey struct {
	TemplateID string
	Date       string
	PatternID  string
}

// OverrideKey identifies one template day that carries an explicit override.
type OverrideKey struct {
	TemplateID string
	Date       string
}

func (s StaticServiceSlot) IsGenerated() bool {
	return s.TemplateID != "" && !s.IsOverride && !s.IsCancelled
}

// IsExplicit reports whether the slot overrides or cancels a template day.
func (s StaticServiceSlot) IsExplicit() bool {
	return s.IsOverride || s.IsCancelled
}

func (s StaticServiceSlot) Key() SlotKey {
	return SlotKey{TemplateID: s.TemplateID, Date: timeutil.DateKey(s.Date), PatternID: s.PatternID}
}

// OverrideKey is only meaningful for explicit slots.
func (s StaticServiceSlot) OverrideKey() OverrideKey {
	day := s.Date
	if s.OverrideDate != nil {
		day = *s.OverrideDate
	}
	return OverrideKey{TemplateID: s.TemplateID, Date: timeutil.DateKey(day)}
}

// OccursOn reports whether the slot takes place on the calendar day of day.
func (s StaticServiceSlot) OccursOn(day time.Time) bool {
	if s.Date.IsZero() {
		return s.DayOfWeek == timeutil.DayOf(day)
	}
	return timeutil.SameDate(s.Date, day)
}

// IntervalOn returns the concrete range of the slot on day.
func (s StaticServiceSlot) IntervalOn(day time.Time) timeutil.Interval {
	return timeutil.Interval{Start: s.Start.On(day), End: s.End.On(day)}
}

// Interval is the concrete range of a dated slot.
func (s StaticServiceSlot) Interval() timeutil.Interval {
	return s.IntervalOn(s.Date)
}

// Validate checks the structural invariants of a slot.
func (s StaticServiceSlot) Validate() error {
	v := NewValidationError()
	if s.Date.IsZero() && !s.DayOfWeek.Valid() {
		v.Add("date", "date or day_of_week is required")
	}
	if !s.IsCancelled {
		if !s.Start.Valid() || !s.End.Valid() {
			v.Add("time", "must be within 00:00..23:59")
		} else if s.Start >= s.End {
			v.Add("end_time", "must be after start_time")
		}
		if s.ServiceID == "" {
			v.Add("service_id", "is required")
		}
		if s.Capacity < 1 {
			v.Add("capacity", "must be at least 1")
		}
	}
	if s.Price.IsNegative() {
		v.Add("price", "cannot be negative")
	}
	if s.IsExplicit() {
		if s.OverrideDate == nil {
			v.Add("override_date", "is required for overrides and cancellations")
		}
		if s.TemplateID == "" {
			v.Add("template_id", "is required for overrides and cancellations")
		}
	}
	return v.Err()
}
