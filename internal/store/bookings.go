package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"salonsched/internal/availability"
	"salonsched/internal/events"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/model"
)

// CreateBooking books a staff member and/or room. Locks on staff:<id> then room:<id>
// are held while availability is checked and the booking is committed, so two
// overlapping requests for the same unit never both succeed.
func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, int64, error) {
	if b.Status == "" {
		b.Status = model.StatusConfirmed
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentUnpaid
	}
	if err := s.fillFromSlot(&b); err != nil {
		return model.Booking{}, 0, err
	}
	if err := b.Validate(); err != nil {
		return model.Booking{}, 0, err
	}

	release, err := lock.Acquire(ctx, s.locker, lock.BookingKeys(b.StaffID, b.RoomID, b.SlotID), s.lockOpts)
	if err != nil {
		return model.Booking{}, 0, fmt.Errorf("create booking: %w", err)
	}
	defer release()

	s.mu.Lock()
	if b.ID == "" {
		b.ID = s.newID()
	} else if _, ok := s.state.Bookings[b.ID]; ok {
		s.mu.Unlock()
		return model.Booking{}, 0, model.Invalid("id", "booking "+b.ID+" already exists")
	}

	if b.Status.Occupies() {
		if err := s.checkLocked(b, ""); err != nil {
			s.mu.Unlock()
			return model.Booking{}, 0, err
		}
	}

	now := s.now()
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	s.fillNames(&b)

	version, err := s.commit(ctx, Change{Bookings: []model.Booking{b}}, func(int64) {
		s.state.Bookings[b.ID] = b
		s.index.PutBooking(b)
	})
	s.mu.Unlock()
	if err != nil {
		return model.Booking{}, 0, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBooking(string(b.Status))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("staff_id", b.StaffID).
		Str("room_id", b.RoomID).
		Time("start", b.Start).
		Time("end", b.End).
		Msg("booking created")
	s.publish(ctx, events.Event{Type: events.BookingCreated, StoreVersion: version, Booking: &b})
	return b, version, nil
}

// CancelBooking frees the booking's interval.
func (s *Store) CancelBooking(ctx context.Context, id string, expectedVersion int64) (model.Booking, int64, error) {
	return s.UpdateBookingStatus(ctx, id, model.StatusCancelled, "", expectedVersion)
}

// UpdateBookingStatus changes status and/or payment status. Re-activating a cancelled
// booking checks availability again under the booking's locks.
func (s *Store) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus, payment model.PaymentStatus, expectedVersion int64) (model.Booking, int64, error) {
	v := model.NewValidationError()
	if status != "" && !status.Valid() {
		v.Add("status", "unknown status "+string(status))
	}
	if payment != "" && !payment.Valid() {
		v.Add("payment_status", "unknown payment status "+string(payment))
	}
	if status == "" && payment == "" {
		v.Add("status", "status or payment_status is required")
	}
	if err := v.Err(); err != nil {
		return model.Booking{}, 0, err
	}

	s.mu.RLock()
	current, ok := s.state.Bookings[id]
	s.mu.RUnlock()
	if !ok {
		return model.Booking{}, 0, notFound("booking", id)
	}

	release, err := lock.Acquire(ctx, s.locker, lock.BookingKeys(current.StaffID, current.RoomID, current.SlotID), s.lockOpts)
	if err != nil {
		return model.Booking{}, 0, fmt.Errorf("update booking: %w", err)
	}
	defer release()

	s.mu.Lock()
	b, ok := s.state.Bookings[id]
	if !ok {
		s.mu.Unlock()
		return model.Booking{}, 0, notFound("booking", id)
	}
	if err := checkVersion("booking", id, expectedVersion, b.Version); err != nil {
		s.mu.Unlock()
		return model.Booking{}, 0, err
	}
	if status == model.StatusCancelled && b.Status == model.StatusCancelled {
		s.mu.Unlock()
		return model.Booking{}, 0, fmt.Errorf("%w: booking %s is already cancelled", model.ErrInvalidTransition, id)
	}

	if status != "" {
		if !b.Status.Occupies() && status.Occupies() {
			if err := s.checkLocked(b, b.ID); err != nil {
				s.mu.Unlock()
				return model.Booking{}, 0, err
			}
		}
		b.Status = status
	}
	if payment != "" {
		b.PaymentStatus = payment
	}
	b.Version++
	b.UpdatedAt = s.now()

	version, err := s.commit(ctx, Change{Bookings: []model.Booking{b}}, func(int64) {
		s.state.Bookings[id] = b
		s.index.PutBooking(b)
	})
	s.mu.Unlock()
	if err != nil {
		return model.Booking{}, 0, fmt.Errorf("update booking: %w", err)
	}

	metrics.IncBooking(string(b.Status))
	s.logger.Info().Str("booking_id", id).Str("status", string(b.Status)).Str("payment", string(b.PaymentStatus)).Msg("booking updated")
	s.publish(ctx, events.Event{Type: events.BookingUpdated, StoreVersion: version, Booking: &b})
	return b, version, nil
}

// CheckAvailability runs the conflict rules for a candidate booking without committing anything.
func (s *Store) CheckAvailability(ctx context.Context, req availability.Request) (availability.Result, error) {
	if err := ctx.Err(); err != nil {
		return availability.Result{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if req.BranchID == "" {
		req.BranchID = s.branchOf(req.RoomID, req.SlotID)
	}
	return s.detector.Check(req)
}

// checkLocked runs the detector for b. Callers hold s.mu and the booking's locks.
func (s *Store) checkLocked(b model.Booking, ignoreID string) error {
	req := availability.Request{
		StaffID:         b.StaffID,
		RoomID:          b.RoomID,
		SlotID:          b.SlotID,
		BranchID:        s.branchOf(b.RoomID, b.SlotID),
		Start:           b.Start,
		End:             b.End,
		PartySize:       b.PartySize,
		IgnoreBookingID: ignoreID,
	}
	err := s.detector.Err(req)
	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		metrics.IncConflict(string(conflict.Kind))
		s.logger.Info().
			Str("kind", string(conflict.Kind)).
			Str("blocking_id", conflict.BlockingID).
			Str("staff_id", b.StaffID).
			Str("room_id", b.RoomID).
			Msg("booking rejected")
	}
	return err
}

// fillFromSlot copies room, range and price from the referenced slot when the booking
// leaves them empty.
func (s *Store) fillFromSlot(b *model.Booking) error {
	if b.SlotID == "" {
		return nil
	}
	s.mu.RLock()
	sl, ok := s.state.Slots[b.SlotID]
	s.mu.RUnlock()
	if !ok {
		return model.Invalid("slot_id", "unknown slot "+b.SlotID)
	}
	if sl.IsCancelled {
		return model.Invalid("slot_id", "slot "+b.SlotID+" is cancelled")
	}
	if b.RoomID == "" {
		b.RoomID = sl.RoomID
	}
	if b.ServiceID == "" {
		b.ServiceID = sl.ServiceID
	}
	if b.StaffID == "" {
		b.StaffID = sl.InstructorStaffID
	}
	if b.Start.IsZero() && b.End.IsZero() && !sl.Date.IsZero() {
		iv := sl.Interval()
		b.Start, b.End = iv.Start, iv.End
	}
	if b.Price.IsZero() {
		b.Price = sl.Price
	}
	if b.Start.IsZero() {
		return model.Invalid("start", "is required for weekly slot "+b.SlotID)
	}
	if !sl.OccursOn(b.Start) {
		return model.Invalid("slot_id", "booking date does not match slot "+b.SlotID)
	}
	// A slot booking always takes the whole occurrence so capacity is counted per occurrence.
	iv := sl.IntervalOn(b.Start)
	if b.End.IsZero() {
		b.End = iv.End
	}
	if !b.Start.Equal(iv.Start) || !b.End.Equal(iv.End) {
		return model.Invalid("start", fmt.Sprintf("booking must match slot %s (%s - %s)",
			b.SlotID, iv.Start.Format("2006-01-02 15:04"), iv.End.Format("15:04")))
	}
	return nil
}

func (s *Store) fillNames(b *model.Booking) {
	if b.RoomName == "" {
		if r, ok := s.state.Resources[b.RoomID]; ok {
			b.RoomName = r.Name
		}
	}
}

func (s *Store) branchOf(roomID, slotID string) string {
	if sl, ok := s.state.Slots[slotID]; ok && sl.BranchID != "" {
		return sl.BranchID
	}
	if r, ok := s.state.Resources[roomID]; ok {
		return r.BranchID
	}
	return ""
}

// Booking returns one booking.
func (s *Store) Booking(id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.Bookings[id]
	if !ok {
		return model.Booking{}, notFound("booking", id)
	}
	return b, nil
}

// BookingFilter narrows a booking listing; zero fields match everything.
type BookingFilter struct {
	StaffID          string
	RoomID           string
	From             time.Time
	To               time.Time
	IncludeCancelled bool
}

// Bookings lists bookings overlapping [From, To) ordered by start.
func (s *Store) Bookings(f BookingFilter) []model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.state.Bookings {
		switch {
		case f.StaffID != "" && b.StaffID != f.StaffID,
			f.RoomID != "" && b.RoomID != f.RoomID,
			!f.IncludeCancelled && !b.Status.Occupies(),
			!f.From.IsZero() && !b.End.After(f.From),
			!f.To.IsZero() && !b.Start.Before(f.To):
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
