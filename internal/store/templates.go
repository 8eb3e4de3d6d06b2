package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"salonsched/internal/events"
	"salonsched/internal/metrics"
	"salonsched/internal/model"
	"salonsched/internal/slots"
	"salonsched/internal/timeutil"
)

// CreateTemplate stores a new template in draft or active state.
func (s *Store) CreateTemplate(ctx context.Context, tpl model.ScheduleTemplate) (model.ScheduleTemplate, int64, error) {
	tpl = tpl.Clone()
	if tpl.State == "" {
		tpl.State = model.TemplateDraft
	}
	if tpl.State != model.TemplateDraft && tpl.State != model.TemplateActive {
		return model.ScheduleTemplate{}, 0, model.Invalid("state", "a new template must be draft or active")
	}
	for i := range tpl.Patterns {
		if tpl.Patterns[i].ID == "" {
			tpl.Patterns[i].ID = s.newID()
		}
	}
	if err := tpl.Validate(); err != nil {
		return model.ScheduleTemplate{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tpl.ID == "" {
		tpl.ID = s.newID()
	} else if _, ok := s.state.Templates[tpl.ID]; ok {
		return model.ScheduleTemplate{}, 0, model.Invalid("id", "template "+tpl.ID+" already exists")
	}
	now := s.now()
	tpl.Version = 1
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	version, err := s.commit(ctx, Change{Templates: []model.ScheduleTemplate{tpl}}, func(int64) {
		s.state.Templates[tpl.ID] = tpl
	})
	if err != nil {
		return model.ScheduleTemplate{}, 0, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info().Str("template_id", tpl.ID).Str("state", string(tpl.State)).Msg("template created")
	s.publish(ctx, events.Event{Type: events.TemplateChanged, StoreVersion: version, Template: &tpl})
	return tpl.Clone(), version, nil
}

// UpdateTemplate replaces the window and patterns of a template. The lifecycle state
// only changes through TransitionTemplate.
func (s *Store) UpdateTemplate(ctx context.Context, tpl model.ScheduleTemplate, expectedVersion int64) (model.ScheduleTemplate, int64, error) {
	tpl = tpl.Clone()
	for i := range tpl.Patterns {
		if tpl.Patterns[i].ID == "" {
			tpl.Patterns[i].ID = s.newID()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.state.Templates[tpl.ID]
	if !ok {
		return model.ScheduleTemplate{}, 0, notFound("template", tpl.ID)
	}
	if current.State == model.TemplateDeleted {
		return model.ScheduleTemplate{}, 0, fmt.Errorf("%w: template %s is deleted", model.ErrInvalidTransition, tpl.ID)
	}
	if err := checkVersion("template", tpl.ID, expectedVersion, current.Version); err != nil {
		return model.ScheduleTemplate{}, 0, err
	}
	tpl.State = current.State
	tpl.CreatedAt = current.CreatedAt
	if err := tpl.Validate(); err != nil {
		return model.ScheduleTemplate{}, 0, err
	}
	tpl.Version = current.Version + 1
	tpl.UpdatedAt = s.now()

	version, err := s.commit(ctx, Change{Templates: []model.ScheduleTemplate{tpl}}, func(int64) {
		s.state.Templates[tpl.ID] = tpl
	})
	if err != nil {
		return model.ScheduleTemplate{}, 0, fmt.Errorf("update template: %w", err)
	}
	s.publish(ctx, events.Event{Type: events.TemplateChanged, StoreVersion: version, Template: &tpl})
	return tpl.Clone(), version, nil
}

func (s *Store) ActivateTemplate(ctx context.Context, id string, expectedVersion int64) (model.ScheduleTemplate, int64, error) {
	return s.TransitionTemplate(ctx, id, model.TemplateActive, expectedVersion)
}

func (s *Store) DeactivateTemplate(ctx context.Context, id string, expectedVersion int64) (model.ScheduleTemplate, int64, error) {
	return s.TransitionTemplate(ctx, id, model.TemplateInactive, expectedVersion)
}

// DeleteTemplate marks the template deleted and removes every slot it owns.
func (s *Store) DeleteTemplate(ctx context.Context, id string, expectedVersion int64) (model.ScheduleTemplate, int64, error) {
	return s.TransitionTemplate(ctx, id, model.TemplateDeleted, expectedVersion)
}

// TransitionTemplate moves a template through its lifecycle.
func (s *Store) TransitionTemplate(ctx context.Context, id string, to model.TemplateState, expectedVersion int64) (model.ScheduleTemplate, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.state.Templates[id]
	if !ok {
		return model.ScheduleTemplate{}, 0, notFound("template", id)
	}
	if err := checkVersion("template", id, expectedVersion, tpl.Version); err != nil {
		return model.ScheduleTemplate{}, 0, err
	}
	if err := s.fsm.Transition(tpl.State, to); err != nil {
		return model.ScheduleTemplate{}, 0, err
	}

	tpl = tpl.Clone()
	tpl.State = to
	tpl.Version++
	tpl.UpdatedAt = s.now()

	change := Change{Templates: []model.ScheduleTemplate{tpl}}
	if to == model.TemplateDeleted {
		for slotID, sl := range s.state.Slots {
			if sl.TemplateID == id {
				change.DeletedSlots = append(change.DeletedSlots, slotID)
			}
		}
		sort.Strings(change.DeletedSlots)
	}

	version, err := s.commit(ctx, change, func(int64) {
		s.state.Templates[id] = tpl
		for _, slotID := range change.DeletedSlots {
			delete(s.state.Slots, slotID)
			s.index.RemoveSlot(slotID)
		}
	})
	if err != nil {
		return model.ScheduleTemplate{}, 0, fmt.Errorf("transition template: %w", err)
	}

	s.logger.Info().
		Str("template_id", id).
		Str("state", string(to)).
		Int("slots_removed", len(change.DeletedSlots)).
		Msg("template transitioned")
	s.publish(ctx, events.Event{Type: events.TemplateChanged, StoreVersion: version, Template: &tpl})
	return tpl.Clone(), version, nil
}

// Template returns one template, including deleted ones.
func (s *Store) Template(id string) (model.ScheduleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.state.Templates[id]
	if !ok {
		return model.ScheduleTemplate{}, notFound("template", id)
	}
	return tpl.Clone(), nil
}

// Templates lists templates of a branch (all branches when branchID is empty), oldest first.
func (s *Store) Templates(branchID string, includeDeleted bool) []model.ScheduleTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScheduleTemplate, 0, len(s.state.Templates))
	for _, tpl := range s.state.Templates {
		if branchID != "" && tpl.BranchID != branchID {
			continue
		}
		if tpl.State == model.TemplateDeleted && !includeDeleted {
			continue
		}
		out = append(out, tpl.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GenerateSlots materialises the template's occurrences in [from, to], skipping
// occurrences that already exist and days carrying an override.
func (s *Store) GenerateSlots(ctx context.Context, templateID string, from, to time.Time) (slots.Result, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(ctx, templateID, from, to, false)
}

// RegenerateSlots replaces the generated slots of [from, to] with fresh occurrences of
// the current patterns. Overrides, cancellations and slots holding active bookings are kept.
func (s *Store) RegenerateSlots(ctx context.Context, templateID string, from, to time.Time) (slots.Result, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(ctx, templateID, from, to, true)
}

func (s *Store) generate(ctx context.Context, templateID string, from, to time.Time, replace bool) (slots.Result, int64, error) {
	tpl, ok := s.state.Templates[templateID]
	if !ok || tpl.State == model.TemplateDeleted {
		return slots.Result{}, 0, notFound("template", templateID)
	}

	var (
		removed []string
		kept    []model.StaticServiceSlot
	)
	for id, sl := range s.state.Slots {
		if sl.TemplateID != templateID {
			continue
		}
		inRange := timeutil.CompareDates(sl.Date, from) >= 0 && timeutil.CompareDates(sl.Date, to) <= 0
		if replace && inRange && sl.IsGenerated() && !s.slotBooked(id) {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, sl)
	}
	sort.Strings(removed)

	res, err := s.generator.Generate(ctx, &tpl, slots.NewSlotSet(kept), from, to)
	if err != nil {
		return slots.Result{}, 0, err
	}
	if len(res.Created) == 0 && len(removed) == 0 {
		return res, s.state.Version, nil
	}

	change := Change{Slots: res.Created, DeletedSlots: removed}
	version, err := s.commit(ctx, change, func(int64) {
		for _, id := range removed {
			delete(s.state.Slots, id)
			s.index.RemoveSlot(id)
		}
		for _, sl := range res.Created {
			s.state.Slots[sl.ID] = sl
			s.index.PutSlot(sl)
		}
	})
	if err != nil {
		return slots.Result{}, 0, fmt.Errorf("generate slots: %w", err)
	}

	metrics.AddSlotsGenerated(len(res.Created))
	s.logger.Info().
		Str("template_id", templateID).
		Str("from", timeutil.DateKey(from)).
		Str("to", timeutil.DateKey(to)).
		Int("created", len(res.Created)).
		Int("skipped", res.Skipped).
		Int("overridden", res.Overridden).
		Int("replaced", len(removed)).
		Msg("slots generated")
	s.publish(ctx, events.Event{Type: events.SlotsGenerated, StoreVersion: version, Template: &tpl, SlotCount: len(res.Created)})
	return res, version, nil
}

// slotBooked reports whether an occupying booking references the slot. Callers hold s.mu.
func (s *Store) slotBooked(slotID string) bool {
	for _, b := range s.state.Bookings {
		if b.SlotID == slotID && b.Status.Occupies() {
			return true
		}
	}
	return false
}
