package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/slots"
	"salonsched/internal/timeutil"
)

// CreateSlot stores an ad hoc slot that belongs to no template.
func (s *Store) CreateSlot(ctx context.Context, slot model.StaticServiceSlot) (model.StaticServiceSlot, int64, error) {
	if slot.TemplateID != "" || slot.IsExplicit() {
		return model.StaticServiceSlot{}, 0, model.Invalid("template_id", "ad hoc slots cannot reference a template, use an override")
	}
	if !slot.Date.IsZero() {
		slot.Date = timeutil.DateOf(slot.Date)
		slot.DayOfWeek = timeutil.DayOf(slot.Date)
	}
	if err := slot.Validate(); err != nil {
		return model.StaticServiceSlot{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.ID == "" {
		slot.ID = s.newID()
	} else if _, ok := s.state.Slots[slot.ID]; ok {
		return model.StaticServiceSlot{}, 0, model.Invalid("id", "slot "+slot.ID+" already exists")
	}
	if slot.BranchID == "" {
		if r, ok := s.state.Resources[slot.RoomID]; ok {
			slot.BranchID = r.BranchID
		}
	}
	slot.CreatedAt = s.now()

	version, err := s.commit(ctx, Change{Slots: []model.StaticServiceSlot{slot}}, func(int64) {
		s.state.Slots[slot.ID] = slot
		s.index.PutSlot(slot)
	})
	if err != nil {
		return model.StaticServiceSlot{}, 0, fmt.Errorf("create slot: %w", err)
	}
	return slot, version, nil
}

// OverrideDay replaces every occurrence of a template on date. With no replacements the
// day is cancelled. Generated slots of that day are removed and earlier overrides of the
// day are replaced; the day then never regenerates.
func (s *Store) OverrideDay(ctx context.Context, templateID string, date time.Time, replacements []model.StaticServiceSlot) ([]model.StaticServiceSlot, int64, error) {
	if date.IsZero() {
		return nil, 0, model.Invalid("date", "is required")
	}
	day := timeutil.DateOf(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.state.Templates[templateID]
	if !ok || tpl.State == model.TemplateDeleted {
		return nil, 0, notFound("template", templateID)
	}

	now := s.now()
	var created []model.StaticServiceSlot
	if len(replacements) == 0 {
		created = append(created, model.StaticServiceSlot{
			ID:           s.newID(),
			TemplateID:   templateID,
			BranchID:     tpl.BranchID,
			Date:         day,
			DayOfWeek:    timeutil.DayOf(day),
			IsCancelled:  true,
			OverrideDate: &day,
			CreatedAt:    now,
		})
	}
	for i, r := range replacements {
		r.ID = s.newID()
		r.TemplateID = templateID
		r.Date = day
		r.DayOfWeek = timeutil.DayOf(day)
		r.IsOverride = true
		r.IsCancelled = false
		r.OverrideDate = &day
		r.CreatedAt = now
		if r.BranchID == "" {
			r.BranchID = tpl.BranchID
		}
		if r.Capacity == 0 {
			r.Capacity = 1
		}
		if err := r.Validate(); err != nil {
			return nil, 0, fmt.Errorf("replacement[%d]: %w", i, err)
		}
		created = append(created, r)
	}

	var removed []string
	for id, sl := range s.state.Slots {
		if sl.TemplateID != templateID {
			continue
		}
		onDay := (sl.IsGenerated() && timeutil.SameDate(sl.Date, day)) ||
			(sl.IsExplicit() && sl.OverrideKey().Date == timeutil.DateKey(day))
		if !onDay {
			continue
		}
		if s.slotBooked(id) {
			return nil, 0, model.Invalid("date", fmt.Sprintf("slot %s on %s has active bookings", id, timeutil.DateKey(day)))
		}
		removed = append(removed, id)
	}
	sort.Strings(removed)

	change := Change{Slots: created, DeletedSlots: removed}
	version, err := s.commit(ctx, change, func(int64) {
		for _, id := range removed {
			delete(s.state.Slots, id)
			s.index.RemoveSlot(id)
		}
		for _, sl := range created {
			s.state.Slots[sl.ID] = sl
			s.index.PutSlot(sl)
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("override day: %w", err)
	}

	s.logger.Info().
		Str("template_id", templateID).
		Str("date", timeutil.DateKey(day)).
		Int("replacements", len(replacements)).
		Msg("template day overridden")
	return created, version, nil
}

// DeleteSlot removes a slot that no active booking references.
func (s *Store) DeleteSlot(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Slots[id]; !ok {
		return 0, notFound("slot", id)
	}
	if s.slotBooked(id) {
		return 0, model.Invalid("slot", "slot "+id+" has active bookings")
	}
	version, err := s.commit(ctx, Change{DeletedSlots: []string{id}}, func(int64) {
		delete(s.state.Slots, id)
		s.index.RemoveSlot(id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete slot: %w", err)
	}
	return version, nil
}

// SlotFilter narrows a slot listing; zero fields match everything.
type SlotFilter struct {
	TemplateID string
	ServiceID  string
	RoomID     string
	BranchID   string
	From       time.Time
	To         time.Time
	// IncludeCancelled keeps cancellation markers in the listing.
	IncludeCancelled bool
}

func (f SlotFilter) match(sl model.StaticServiceSlot) bool {
	switch {
	case f.TemplateID != "" && sl.TemplateID != f.TemplateID,
		f.ServiceID != "" && sl.ServiceID != f.ServiceID,
		f.RoomID != "" && sl.RoomID != f.RoomID,
		f.BranchID != "" && sl.BranchID != f.BranchID,
		sl.IsCancelled && !f.IncludeCancelled:
		return false
	}
	if sl.Date.IsZero() {
		return true
	}
	if !f.From.IsZero() && timeutil.CompareDates(sl.Date, f.From) < 0 {
		return false
	}
	return f.To.IsZero() || timeutil.CompareDates(sl.Date, f.To) <= 0
}

// Slots lists stored slots ordered by date and start time.
func (s *Store) Slots(f SlotFilter) []model.StaticServiceSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StaticServiceSlot
	for _, sl := range s.state.Slots {
		if f.match(sl) {
			out = append(out, sl)
		}
	}
	slots.SortSlots(out)
	return out
}

// FreeSlot is one bookable occurrence with room left.
type FreeSlot struct {
	Slot      model.StaticServiceSlot `json:"slot"`
	Start     time.Time               `json:"start"`
	End       time.Time               `json:"end"`
	Booked    int                     `json:"booked"`
	Remaining int                     `json:"remaining"`
}

// FreeSlots lists occurrences of serviceID in [from, to] whose capacity is not used up
// by occupying bookings. Weekly ad hoc slots are expanded for every matching day.
func (s *Store) FreeSlots(ctx context.Context, serviceID string, from, to time.Time) ([]FreeSlot, error) {
	if from.IsZero() || to.IsZero() || timeutil.CompareDates(from, to) > 0 {
		return nil, model.Invalid("range", "from must not be after to")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FreeSlot
	add := func(sl model.StaticServiceSlot, day time.Time) {
		iv := sl.IntervalOn(day)
		_, _, bySlot := s.index.Bookings("", "", sl.ID, iv, "")
		booked := 0
		for _, b := range bySlot {
			booked += b.PartySize
		}
		if remaining := sl.Capacity - booked; remaining > 0 {
			out = append(out, FreeSlot{Slot: sl, Start: iv.Start, End: iv.End, Booked: booked, Remaining: remaining})
		}
	}

	var ctxErr error
	for _, sl := range s.state.Slots {
		if sl.IsCancelled || (serviceID != "" && sl.ServiceID != serviceID) {
			continue
		}
		if !sl.Date.IsZero() {
			if timeutil.CompareDates(sl.Date, from) >= 0 && timeutil.CompareDates(sl.Date, to) <= 0 {
				add(sl, sl.Date)
			}
			continue
		}
		timeutil.EachDate(from, to, func(day time.Time) bool {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
			if sl.OccursOn(day) {
				add(sl, day)
			}
			return true
		})
		if ctxErr != nil {
			return nil, ctxErr
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Slot.ID < out[j].Slot.ID
	})
	return out, nil
}
