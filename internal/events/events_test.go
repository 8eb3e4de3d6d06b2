package events

import (
	"context"
	"errors"
	"testing"

	"salonsched/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus(nil)

	var got []string
	bus.Subscribe(BookingCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.Booking.ID)
		return errors.New("sink down")
	})
	bus.Subscribe(BookingCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.Booking.ID)
		assert.False(t, e.CreatedAt.IsZero())
		return nil
	})
	bus.Subscribe(BookingUpdated, func(context.Context, Event) error {
		t.Fatal("wrong type delivered")
		return nil
	})

	bus.Publish(context.Background(), Event{Type: BookingCreated, Booking: &model.Booking{ID: "b1"}})

	assert.Equal(t, []string{"first:b1", "second:b1"}, got)
}

func TestEventBus_NilSafe(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(context.Background(), Event{Type: BookingCreated}) })
}
