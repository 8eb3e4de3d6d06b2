// Package events is the in-process bus that carries committed store changes to sinks.
package events

import (
	"context"
	"sync"
	"time"

	"salonsched/internal/model"

	"github.com/rs/zerolog"
)

// Type names an event.
type Type string

const (
	BookingCreated  Type = "booking.created"
	BookingUpdated  Type = "booking.updated"
	TemplateChanged Type = "template.changed"
	SlotsGenerated  Type = "slots.generated"
)

// Event represents a committed domain change.
type Event struct {
	Type Type
	// StoreVersion is the store version the change was committed at.
	StoreVersion int64
	Booking      *model.Booking
	Template     *model.ScheduleTemplate
	SlotCount    int
	CreatedAt    time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[Type][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "events").Logger()
	}
	return &EventBus{subscribers: make(map[Type][]EventHandler), logger: l}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType Type, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged and do not
// stop the remaining handlers.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(ctx, event); err != nil {
			b.logger.Error().Err(err).Str("event", string(event.Type)).Msg("event handler failed")
		}
	}
}
