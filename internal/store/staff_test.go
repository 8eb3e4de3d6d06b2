package store

import (
	"context"
	"testing"
	"time"

	"salonsched/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TimeOffLifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	r, v, err := s.CreateTimeOff(ctx, model.TimeOffRequest{
		StaffID: "X",
		Start:   date(2025, 5, 12),
		End:     at(2025, 5, 13, 12, 0),
		AllDay:  true,
		Reason:  "holiday",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, int64(1), v)

	_, _, err = s.ApproveTimeOff(ctx, r.ID, 7)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	approved, _, err := s.ApproveTimeOff(ctx, r.ID, r.Version)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	assert.Equal(t, int64(2), approved.Version)

	res, err := s.CheckAvailability(ctx, availabilityRequest("X", "", at(2025, 5, 13, 18, 0), at(2025, 5, 13, 19, 0)))
	require.NoError(t, err)
	assert.False(t, res.Valid, "all-day time off covers the whole end date")

	res, err = s.CheckAvailability(ctx, availabilityRequest("X", "", at(2025, 5, 14, 9, 0), at(2025, 5, 14, 10, 0)))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	assert.Len(t, s.TimeOff("X"), 1)
	assert.Empty(t, s.TimeOff("Y"))

	_, err = s.DeleteTimeOff(ctx, r.ID)
	require.NoError(t, err)
	_, err = s.DeleteTimeOff(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	res, err = s.CheckAvailability(ctx, availabilityRequest("X", "", at(2025, 5, 13, 18, 0), at(2025, 5, 13, 19, 0)))
	require.NoError(t, err)
	assert.True(t, res.Valid, "deleted time off no longer blocks")

	_, _, err = s.ApproveTimeOff(ctx, r.ID, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Reservations(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meeting, _, err := s.CreateReservation(ctx, model.TimeReservation{
		StaffIDs: []string{"X", "X", ""},
		RoomIDs:  []string{"R"},
		Start:    at(2025, 6, 2, 8, 0),
		End:      at(2025, 6, 2, 9, 0),
		Reason:   "team meeting",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, meeting.StaffIDs)

	_, _, err = s.CreateReservation(ctx, model.TimeReservation{
		RoomIDs: []string{"R2"},
		Start:   at(2025, 6, 3, 8, 0),
		End:     at(2025, 6, 3, 9, 0),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		staffID string
		roomID  string
		want    bool
	}{
		{name: "ReservedStaff", staffID: "X", want: false},
		{name: "ReservedRoom", roomID: "R", want: false},
		{name: "OtherStaff", staffID: "Y", want: true},
		{name: "OtherRoom", roomID: "R2", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.CheckAvailability(ctx, availabilityRequest(tt.staffID, tt.roomID, at(2025, 6, 2, 8, 30), at(2025, 6, 2, 9, 30)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Valid)
		})
	}

	_, _, err = s.CreateBooking(ctx, booking("X", "", at(2025, 6, 2, 8, 30), at(2025, 6, 2, 9, 30)))
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, model.ConflictReservation, conflict.Kind)
	assert.Equal(t, meeting.ID, conflict.BlockingID)

	assert.Len(t, s.Reservations(at(2025, 6, 2, 0, 0), at(2025, 6, 3, 0, 0)), 1)
	assert.Len(t, s.Reservations(at(2025, 6, 2, 9, 0), time.Time{}), 1, "touching the end does not overlap")
	assert.Len(t, s.Reservations(time.Time{}, time.Time{}), 2)

	_, err = s.DeleteReservation(ctx, meeting.ID)
	require.NoError(t, err)
	_, _, err = s.CreateBooking(ctx, booking("X", "", at(2025, 6, 2, 8, 30), at(2025, 6, 2, 9, 30)))
	assert.NoError(t, err)

	_, _, err = s.CreateReservation(ctx, model.TimeReservation{Start: at(2025, 6, 2, 8, 0), End: at(2025, 6, 2, 9, 0)})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "targets")
}
