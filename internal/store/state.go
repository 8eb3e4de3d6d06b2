package store

import (
	"context"
	"sort"

	"salonsched/internal/model"
)

// State is the full set of versioned collections.
type State struct {
	Version      int64
	Templates    map[string]model.ScheduleTemplate
	Slots        map[string]model.StaticServiceSlot
	TimeOff      map[string]model.TimeOffRequest
	Reservations map[string]model.TimeReservation
	Resources    map[string]model.Resource
	Policies     map[string]model.CommissionPolicy
	Hours        map[string]model.BusinessHours // by branch id
	Shifts       map[string]model.StaffShift    // by staff id
	Bookings     map[string]model.Booking
}

// NewState returns empty collections at version 0.
func NewState() State {
	return State{
		Templates:    make(map[string]model.ScheduleTemplate),
		Slots:        make(map[string]model.StaticServiceSlot),
		TimeOff:      make(map[string]model.TimeOffRequest),
		Reservations: make(map[string]model.TimeReservation),
		Resources:    make(map[string]model.Resource),
		Policies:     make(map[string]model.CommissionPolicy),
		Hours:        make(map[string]model.BusinessHours),
		Shifts:       make(map[string]model.StaffShift),
		Bookings:     make(map[string]model.Booking),
	}
}

// Clone deep-copies every collection.
func (s State) Clone() State {
	out := NewState()
	out.Version = s.Version
	for k, v := range s.Templates {
		out.Templates[k] = v.Clone()
	}
	for k, v := range s.Slots {
		if v.OverrideDate != nil {
			d := *v.OverrideDate
			v.OverrideDate = &d
		}
		out.Slots[k] = v
	}
	for k, v := range s.TimeOff {
		out.TimeOff[k] = v
	}
	for k, v := range s.Reservations {
		v.StaffIDs = append([]string(nil), v.StaffIDs...)
		v.RoomIDs = append([]string(nil), v.RoomIDs...)
		out.Reservations[k] = v
	}
	for k, v := range s.Resources {
		out.Resources[k] = v.Clone()
	}
	for k, v := range s.Policies {
		if set, ok := v.StaffScope.(model.StaffSet); ok {
			v.StaffScope = model.StaffSet{IDs: append([]string(nil), set.IDs...)}
		}
		out.Policies[k] = v
	}
	for k, v := range s.Hours {
		v.Days = append([]model.DayHours(nil), v.Days...)
		out.Hours[k] = v
	}
	for k, v := range s.Shifts {
		days := make([]model.ShiftDay, len(v.Days))
		for i, d := range v.Days {
			d.Breaks = append([]model.Break(nil), d.Breaks...)
			days[i] = d
		}
		v.Days = days
		out.Shifts[k] = v
	}
	for k, v := range s.Bookings {
		out.Bookings[k] = v
	}
	return out
}

// PolicyList returns policies ordered by creation.
func (s State) PolicyList() []model.CommissionPolicy {
	out := make([]model.CommissionPolicy, 0, len(s.Policies))
	for _, p := range s.Policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Change is the write set of one committed command. A Persister applies it atomically.
type Change struct {
	Version int64

	Templates           []model.ScheduleTemplate
	Slots               []model.StaticServiceSlot
	DeletedSlots        []string
	TimeOff             []model.TimeOffRequest
	DeletedTimeOff      []string
	Reservations        []model.TimeReservation
	DeletedReservations []string
	Resources           []model.Resource
	DeletedResources    []string
	Policies            []model.CommissionPolicy
	DeletedPolicies     []string
	Hours               []model.BusinessHours
	DeletedHours        []string
	Shifts              []model.StaffShift
	DeletedShifts       []string
	Bookings            []model.Booking
}

// Persister stores committed changes. Apply must be all-or-nothing and honour ctx.
type Persister interface {
	Apply(ctx context.Context, change Change) error
}
