package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/timeutil"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) Apply(ctx context.Context, change Change) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func newTestStore(opts ...Option) *Store {
	var seq atomic.Int64
	base := []Option{
		WithIDFunc(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		WithClock(func() time.Time { return time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC) }),
	}
	return New(append(base, opts...)...)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.UTC)
}

func mondayTemplate() model.ScheduleTemplate {
	return model.ScheduleTemplate{
		ID:         "tpl-1",
		BusinessID: "biz",
		BranchID:   "br-1",
		ActiveFrom: date(2025, 1, 1),
		State:      model.TemplateActive,
		Patterns: []model.WeeklySlotPattern{{
			ID:        "p-mon",
			DayOfWeek: timeutil.Monday,
			Start:     timeutil.MustParseTimeOfDay("09:00"),
			End:       timeutil.MustParseTimeOfDay("10:00"),
			ServiceID: "S",
			RoomID:    "R",
			Capacity:  10,
			Price:     decimal.NewFromInt(25),
		}},
	}
}

func TestStore_VersionsAndSnapshot(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, v1, err := s.CreateResource(ctx, model.Resource{ID: "R", BranchID: "br-1", Kind: model.KindRoom, Name: "Studio", Capacity: 2})
	require.NoError(t, err)
	_, v2, err := s.CreateTimeOff(ctx, model.TimeOffRequest{StaffID: "X", Start: at(2025, 10, 20, 9, 0), End: at(2025, 10, 20, 17, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.Version)

	r := snap.Resources["R"]
	r.ServiceIDs = append(r.ServiceIDs, "mutated")
	snap.Resources["R"] = r
	got, err := s.Resource("R")
	require.NoError(t, err)
	assert.Empty(t, got.ServiceIDs, "snapshot must not alias store state")
}

func TestStore_FailedCommandLeavesStateUntouched(t *testing.T) {
	persister := new(mockPersister)
	s := newTestStore(WithPersister(persister))
	ctx := context.Background()

	persister.On("Apply", ctx, mock.Anything).Return(errors.New("disk full")).Once()

	_, _, err := s.CreateResource(ctx, model.Resource{ID: "R", BranchID: "br-1", ServiceIDs: []string{"svc-1"}})
	require.Error(t, err)
	assert.Equal(t, int64(0), s.Version())
	_, err = s.Resource("R")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []string{"svc-1"}, s.UnassignedServices("br-1", []string{"svc-1"}))

	persister.On("Apply", ctx, mock.MatchedBy(func(c Change) bool { return c.Version == 1 })).Return(nil).Once()
	_, v, err := s.CreateResource(ctx, model.Resource{ID: "R", BranchID: "br-1", ServiceIDs: []string{"svc-1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	persister.AssertExpectations(t)
}

func TestStore_Load(t *testing.T) {
	st := NewState()
	st.Version = 7
	st.Resources["A"] = model.Resource{ID: "A", BranchID: "br", Kind: model.KindResource, Capacity: 1, ServiceIDs: []string{"svc-1"}, CreatedAt: date(2024, 1, 1)}
	st.Resources["B"] = model.Resource{ID: "B", BranchID: "br", Kind: model.KindResource, Capacity: 1, ServiceIDs: []string{"svc-1", "svc-2"}, CreatedAt: date(2024, 2, 1)}
	st.Bookings["b1"] = model.Booking{ID: "b1", StaffID: "X", ServiceID: "S", Start: at(2025, 3, 3, 10, 0), End: at(2025, 3, 3, 11, 0), Status: model.StatusConfirmed, PartySize: 1}

	s := newTestStore()
	s.Load(st)

	assert.Equal(t, int64(7), s.Version())
	assert.Empty(t, s.UnassignedServices("br", []string{"svc-1", "svc-2"}))

	res, err := s.CheckAvailability(context.Background(), availabilityRequest("X", "", at(2025, 3, 3, 10, 30), at(2025, 3, 3, 11, 30)))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, model.ConflictDoubleBook, res.Conflict.Kind)
}

func TestStore_Load_StripsClashingServices(t *testing.T) {
	st := NewState()
	st.Version = 3
	st.Resources["A"] = model.Resource{ID: "A", BranchID: "br", Kind: model.KindResource, Capacity: 1, ServiceIDs: []string{"svc-1"}, CreatedAt: date(2024, 1, 1)}
	st.Resources["B"] = model.Resource{ID: "B", BranchID: "br", Kind: model.KindResource, Capacity: 1, ServiceIDs: []string{"svc-1", "svc-2"}, CreatedAt: date(2024, 2, 1)}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	s := newTestStore(WithLogger(&logger))
	s.Load(st)

	b, err := s.Resource("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-2"}, b.ServiceIDs)
	assert.Equal(t, []string{"svc-2"}, s.Snapshot().Resources["B"].ServiceIDs)
	assert.Equal(t, []string{"svc-1", "svc-2"}, st.Resources["B"].ServiceIDs, "input state is not modified")
	assert.Contains(t, buf.String(), "integrity warning")

	_, _, err = s.AssignServices(context.Background(), "B", []string{"svc-1"}, 0)
	var conflict *model.AssignmentConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"svc-1"}, conflict.Conflicts)
}
