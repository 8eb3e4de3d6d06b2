// Package model defines the scheduling entities and the error taxonomy shared by every layer.
package model

import (
	"fmt"
	"time"

	"salonsched/internal/timeutil"

	"github.com/shopspring/decimal"
)

// TemplateState is the lifecycle state of a ScheduleTemplate.
type TemplateState string

const (
	TemplateDraft    TemplateState = "draft"
	TemplateActive   TemplateState = "active"
	TemplateInactive TemplateState = "inactive"
	TemplateDeleted  TemplateState = "deleted"
)

// WeeklySlotPattern is one recurring weekly occurrence inside a template.
type WeeklySlotPattern struct {
	ID                string             `json:"id"`
	DayOfWeek         timeutil.DayOfWeek `json:"day_of_week"`
	Start             timeutil.TimeOfDay `json:"start_time"`
	End               timeutil.TimeOfDay `json:"end_time"`
	ServiceID         string             `json:"service_id"`
	RoomID            string             `json:"room_id"`
	Capacity          int                `json:"capacity"`
	Price             decimal.Decimal    `json:"price"`
	InstructorStaffID string             `json:"instructor_staff_id,omitempty"`
}

func (p WeeklySlotPattern) validate(prefix string, v *ValidationError) {
	if p.ID == "" {
		v.Add(prefix+".id", "is required")
	}
	if !p.DayOfWeek.Valid() {
		v.Add(prefix+".day_of_week", "must be mon..sun")
	}
	if !p.Start.Valid() || !p.End.Valid() {
		v.Add(prefix+".time", "must be within 00:00..23:59")
	} else if p.Start >= p.End {
		v.Add(prefix+".end_time", "must be after start_time")
	}
	if p.ServiceID == "" {
		v.Add(prefix+".service_id", "is required")
	}
	if p.Capacity < 1 {
		v.Add(prefix+".capacity", "must be at least 1")
	}
	if p.Price.IsNegative() {
		v.Add(prefix+".price", "cannot be negative")
	}
}

// ScheduleTemplate is a weekly recurring pattern active over [ActiveFrom, ActiveUntil].
// A nil ActiveUntil means the template never expires.
type ScheduleTemplate struct {
	ID          string              `json:"id"`
	BusinessID  string              `json:"business_id"`
	BranchID    string              `json:"branch_id"`
	ActiveFrom  time.Time           `json:"active_from"`
	ActiveUntil *time.Time          `json:"active_until,omitempty"`
	State       TemplateState       `json:"state"`
	Patterns    []WeeklySlotPattern `json:"weekly_pattern"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (t *ScheduleTemplate) IsActive() bool {
	return t.State == TemplateActive
}

// ActiveOn reports whether the calendar day of day falls inside the active window.
func (t *ScheduleTemplate) ActiveOn(day time.Time) bool {
	if timeutil.CompareDates(day, t.ActiveFrom) < 0 {
		return false
	}
	return t.ActiveUntil == nil || timeutil.CompareDates(day, *t.ActiveUntil) <= 0
}

// PatternsFor returns the patterns of one weekday in template order.
func (t *ScheduleTemplate) PatternsFor(day timeutil.DayOfWeek) []WeeklySlotPattern {
	var out []WeeklySlotPattern
	for _, p := range t.Patterns {
		if p.DayOfWeek == day {
			out = append(out, p)
		}
	}
	return out
}

// Pattern looks up a pattern by id.
func (t *ScheduleTemplate) Pattern(id string) (WeeklySlotPattern, bool) {
	for _, p := range t.Patterns {
		if p.ID == id {
			return p, true
		}
	}
	return WeeklySlotPattern{}, false
}

// Validate checks the template fields and every pattern.
func (t *ScheduleTemplate) Validate() error {
	v := NewValidationError()
	if t.BranchID == "" {
		v.Add("branch_id", "is required")
	}
	if t.ActiveFrom.IsZero() {
		v.Add("active_from", "is required")
	}
	if t.ActiveUntil != nil && timeutil.CompareDates(*t.ActiveUntil, t.ActiveFrom) < 0 {
		v.Add("active_until", "must not be before active_from")
	}

	seen := make(map[string]bool, len(t.Patterns))
	for i, p := range t.Patterns {
		prefix := fmt.Sprintf("weekly_pattern[%d]", i)
		p.validate(prefix, v)
		if p.ID != "" && seen[p.ID] {
			v.Add(prefix+".id", "duplicate pattern id "+p.ID)
		}
		seen[p.ID] = true
	}
	return v.Err()
}

// Clone returns a deep copy.
func (t ScheduleTemplate) Clone() ScheduleTemplate {
	out := t
	out.Patterns = append([]WeeklySlotPattern(nil), t.Patterns...)
	if t.ActiveUntil != nil {
		until := *t.ActiveUntil
		out.ActiveUntil = &until
	}
	return out
}
