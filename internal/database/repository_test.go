package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"salonsched/internal/model"
	"salonsched/internal/store"
	"salonsched/internal/timeutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func at(d, hour, min int) time.Time {
	return time.Date(2025, 10, d, hour, min, 0, 0, time.UTC)
}

func TestDB_LoadStateEmpty(t *testing.T) {
	db := setupTestDB(t)

	st, err := db.LoadState(context.Background(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Version)
	assert.Empty(t, st.Templates)
	assert.Empty(t, st.Bookings)
}

func TestDB_RoundTripThroughStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := store.New(store.WithPersister(db))

	_, _, err := s.CreateResource(ctx, model.Resource{ID: "R", BranchID: "br-1", Kind: model.KindRoom, Name: "Studio", Capacity: 4, ServiceIDs: []string{"yoga"}})
	require.NoError(t, err)

	tpl, _, err := s.CreateTemplate(ctx, model.ScheduleTemplate{
		ID:         "tpl-1",
		BusinessID: "biz",
		BranchID:   "br-1",
		ActiveFrom: at(1, 0, 0),
		State:      model.TemplateActive,
		Patterns: []model.WeeklySlotPattern{{
			DayOfWeek: timeutil.Monday,
			Start:     timeutil.MustParseTimeOfDay("09:00"),
			End:       timeutil.MustParseTimeOfDay("10:00"),
			ServiceID: "yoga",
			RoomID:    "R",
			Capacity:  4,
			Price:     decimal.RequireFromString("12.50"),
		}},
	})
	require.NoError(t, err)

	res, _, err := s.GenerateSlots(ctx, tpl.ID, at(1, 0, 0), at(31, 0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, res.Created)

	_, _, err = s.CreateTimeOff(ctx, model.TimeOffRequest{StaffID: "X", Start: at(21, 9, 0), End: at(21, 17, 0), Reason: "dentist"})
	require.NoError(t, err)
	_, _, err = s.CreateReservation(ctx, model.TimeReservation{StaffIDs: []string{"X"}, Start: at(22, 12, 0), End: at(22, 13, 0)})
	require.NoError(t, err)
	_, _, err = s.CreatePolicy(ctx, model.CommissionPolicy{
		ID:         "pol-1",
		Scope:      model.ScopeService,
		Type:       model.CommissionPercent,
		Value:      decimal.NewFromInt(10),
		AppliesTo:  model.TargetServiceProvider,
		StaffScope: model.StaffSet{IDs: []string{"X"}},
	})
	require.NoError(t, err)
	_, err = s.SetBusinessHours(ctx, model.BusinessHours{BranchID: "br-1", Days: []model.DayHours{
		{Day: timeutil.Monday, Open: timeutil.MustParseTimeOfDay("08:00"), Close: timeutil.MustParseTimeOfDay("20:00")},
	}})
	require.NoError(t, err)

	booking, _, err := s.CreateBooking(ctx, model.Booking{
		SlotID:       res.Created[0].ID,
		CustomerName: "Alice",
		PartySize:    2,
	})
	require.NoError(t, err)
	_, version, err := s.CancelBooking(ctx, booking.ID, 0)
	require.NoError(t, err)

	loaded, err := db.LoadState(ctx, time.UTC)
	require.NoError(t, err)

	want := s.Snapshot()
	assert.Equal(t, version, loaded.Version)
	assert.Len(t, loaded.Slots, len(want.Slots))
	assert.Len(t, loaded.TimeOff, 1)
	assert.Len(t, loaded.Reservations, 1)
	assert.Contains(t, loaded.Hours, "br-1")

	gotTpl := loaded.Templates["tpl-1"]
	assert.Equal(t, want.Templates["tpl-1"].Version, gotTpl.Version)
	require.Len(t, gotTpl.Patterns, 1)
	assert.True(t, gotTpl.Patterns[0].Price.Equal(decimal.RequireFromString("12.50")))

	gotPolicy := loaded.Policies["pol-1"]
	assert.Equal(t, model.StaffSet{IDs: []string{"X"}}, gotPolicy.StaffScope)

	gotBooking := loaded.Bookings[booking.ID]
	assert.Equal(t, model.StatusCancelled, gotBooking.Status)
	assert.Equal(t, "R", gotBooking.RoomID)
	assert.Equal(t, 2, gotBooking.PartySize)
	assert.True(t, gotBooking.Start.Equal(booking.Start))
	assert.True(t, gotBooking.Price.Equal(booking.Price))

	// A store rebuilt from disk answers the same queries.
	restored := store.New()
	restored.Load(loaded)
	assert.Equal(t, version, restored.Version())
	assert.Empty(t, restored.UnassignedServices("br-1", []string{"yoga"}))
	free, err := restored.FreeSlots(ctx, "yoga", at(1, 0, 0), at(31, 0, 0))
	require.NoError(t, err)
	assert.Len(t, free, len(res.Created))
}

func TestDB_DeletesArePersisted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := store.New(store.WithPersister(db))

	r, _, err := s.CreateResource(ctx, model.Resource{ID: "A", BranchID: "br", ServiceIDs: []string{"svc"}})
	require.NoError(t, err)
	off, _, err := s.CreateTimeOff(ctx, model.TimeOffRequest{StaffID: "X", Start: at(20, 9, 0), End: at(20, 10, 0)})
	require.NoError(t, err)

	_, err = s.DeleteResource(ctx, r.ID)
	require.NoError(t, err)
	_, err = s.DeleteTimeOff(ctx, off.ID)
	require.NoError(t, err)

	loaded, err := db.LoadState(ctx, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, loaded.Resources)
	assert.Empty(t, loaded.TimeOff)
	assert.Equal(t, int64(4), loaded.Version)
}

func TestDB_ApplyHonoursCancelledContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.Apply(ctx, store.Change{Version: 1, Resources: []model.Resource{{ID: "A", BranchID: "br"}}})
	require.Error(t, err)

	loaded, err := db.LoadState(context.Background(), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, loaded.Resources)
}
