package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"
)

// CreateTimeOff records a time-off request. It blocks the staff member only once approved.
func (s *Store) CreateTimeOff(ctx context.Context, r model.TimeOffRequest) (model.TimeOffRequest, int64, error) {
	if err := r.Validate(); err != nil {
		return model.TimeOffRequest{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	} else if _, ok := s.state.TimeOff[r.ID]; ok {
		return model.TimeOffRequest{}, 0, model.Invalid("id", "time off "+r.ID+" already exists")
	}
	r.Version = 1
	r.CreatedAt = s.now()

	version, err := s.commit(ctx, Change{TimeOff: []model.TimeOffRequest{r}}, func(int64) {
		s.state.TimeOff[r.ID] = r
		s.index.PutTimeOff(r)
	})
	if err != nil {
		return model.TimeOffRequest{}, 0, fmt.Errorf("create time off: %w", err)
	}
	return r, version, nil
}

// ApproveTimeOff approves a pending request. Existing bookings are not affected.
func (s *Store) ApproveTimeOff(ctx context.Context, id string, expectedVersion int64) (model.TimeOffRequest, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.TimeOff[id]
	if !ok {
		return model.TimeOffRequest{}, 0, notFound("time off", id)
	}
	if err := checkVersion("time off", id, expectedVersion, r.Version); err != nil {
		return model.TimeOffRequest{}, 0, err
	}
	if r.Approved {
		return model.TimeOffRequest{}, 0, fmt.Errorf("%w: time off %s is already approved", model.ErrInvalidTransition, id)
	}
	r.Approved = true
	r.Version++

	version, err := s.commit(ctx, Change{TimeOff: []model.TimeOffRequest{r}}, func(int64) {
		s.state.TimeOff[id] = r
		s.index.PutTimeOff(r)
	})
	if err != nil {
		return model.TimeOffRequest{}, 0, fmt.Errorf("approve time off: %w", err)
	}
	s.logger.Info().Str("time_off_id", id).Str("staff_id", r.StaffID).Msg("time off approved")
	return r, version, nil
}

func (s *Store) DeleteTimeOff(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.TimeOff[id]; !ok {
		return 0, notFound("time off", id)
	}
	version, err := s.commit(ctx, Change{DeletedTimeOff: []string{id}}, func(int64) {
		delete(s.state.TimeOff, id)
		s.index.RemoveTimeOff(id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete time off: %w", err)
	}
	return version, nil
}

// TimeOff lists requests of a staff member (everyone when staffID is empty) by start.
func (s *Store) TimeOff(staffID string) []model.TimeOffRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TimeOffRequest
	for _, r := range s.state.TimeOff {
		if staffID == "" || r.StaffID == staffID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CreateReservation blocks the listed staff and rooms.
func (s *Store) CreateReservation(ctx context.Context, r model.TimeReservation) (model.TimeReservation, int64, error) {
	r.StaffIDs = model.NormalizeIDs(r.StaffIDs)
	r.RoomIDs = model.NormalizeIDs(r.RoomIDs)
	if err := r.Validate(); err != nil {
		return model.TimeReservation{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	} else if _, ok := s.state.Reservations[r.ID]; ok {
		return model.TimeReservation{}, 0, model.Invalid("id", "reservation "+r.ID+" already exists")
	}
	r.Version = 1
	r.CreatedAt = s.now()

	version, err := s.commit(ctx, Change{Reservations: []model.TimeReservation{r}}, func(int64) {
		s.state.Reservations[r.ID] = r
		s.index.PutReservation(r)
	})
	if err != nil {
		return model.TimeReservation{}, 0, fmt.Errorf("create reservation: %w", err)
	}
	return r, version, nil
}

func (s *Store) DeleteReservation(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Reservations[id]; !ok {
		return 0, notFound("reservation", id)
	}
	version, err := s.commit(ctx, Change{DeletedReservations: []string{id}}, func(int64) {
		delete(s.state.Reservations, id)
		s.index.RemoveReservation(id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete reservation: %w", err)
	}
	return version, nil
}

// Reservations lists reservations overlapping [from, to); zero bounds are open.
func (s *Store) Reservations(from, to time.Time) []model.TimeReservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TimeReservation
	for _, r := range s.state.Reservations {
		if !from.IsZero() && !r.End.After(from) {
			continue
		}
		if !to.IsZero() && !r.Start.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetBusinessHours replaces the opening hours of one branch.
func (s *Store) SetBusinessHours(ctx context.Context, h model.BusinessHours) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	version, err := s.commit(ctx, Change{Hours: []model.BusinessHours{h}}, func(int64) {
		s.state.Hours[h.BranchID] = h
		s.index.SetBusinessHours(h)
	})
	if err != nil {
		return 0, fmt.Errorf("set business hours: %w", err)
	}
	return version, nil
}

// SetStaffShift replaces the working pattern of one staff member.
func (s *Store) SetStaffShift(ctx context.Context, sh model.StaffShift) (int64, error) {
	if err := sh.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	version, err := s.commit(ctx, Change{Shifts: []model.StaffShift{sh}}, func(int64) {
		s.state.Shifts[sh.StaffID] = sh
		s.index.SetStaffShift(sh)
	})
	if err != nil {
		return 0, fmt.Errorf("set staff shift: %w", err)
	}
	return version, nil
}

// ReplaceHours swaps every business hours and staff shift entry in one command, as
// done when the hours file changes. Entries missing from the input are removed.
func (s *Store) ReplaceHours(ctx context.Context, hours []model.BusinessHours, shifts []model.StaffShift) (int64, error) {
	v := model.NewValidationError()
	for i, h := range hours {
		if err := h.Validate(); err != nil {
			v.Add(fmt.Sprintf("business_hours[%d]", i), err.Error())
		}
	}
	for i, sh := range shifts {
		if err := sh.Validate(); err != nil {
			v.Add(fmt.Sprintf("staff_shifts[%d]", i), err.Error())
		}
	}
	if err := v.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	change := Change{Hours: hours, Shifts: shifts}
	keepHours := make(map[string]bool, len(hours))
	for _, h := range hours {
		keepHours[h.BranchID] = true
	}
	for branchID := range s.state.Hours {
		if !keepHours[branchID] {
			change.DeletedHours = append(change.DeletedHours, branchID)
		}
	}
	keepShifts := make(map[string]bool, len(shifts))
	for _, sh := range shifts {
		keepShifts[sh.StaffID] = true
	}
	for staffID := range s.state.Shifts {
		if !keepShifts[staffID] {
			change.DeletedShifts = append(change.DeletedShifts, staffID)
		}
	}
	sort.Strings(change.DeletedHours)
	sort.Strings(change.DeletedShifts)

	version, err := s.commit(ctx, change, func(int64) {
		for _, id := range change.DeletedHours {
			delete(s.state.Hours, id)
			s.index.RemoveBusinessHours(id)
		}
		for _, id := range change.DeletedShifts {
			delete(s.state.Shifts, id)
			s.index.RemoveStaffShift(id)
		}
		for _, h := range hours {
			s.state.Hours[h.BranchID] = h
			s.index.SetBusinessHours(h)
		}
		for _, sh := range shifts {
			s.state.Shifts[sh.StaffID] = sh
			s.index.SetStaffShift(sh)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("replace hours: %w", err)
	}
	s.logger.Info().Int("branches", len(hours)).Int("shifts", len(shifts)).Msg("working hours replaced")
	return version, nil
}

// Committed lists every interval held by a staff member or room on day.
func (s *Store) Committed(staffID, roomID string, day time.Time) []timeutil.Interval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Committed(staffID, roomID, day)
}
