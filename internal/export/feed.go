package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"salonsched/internal/events"
	"salonsched/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by Handle when the feed cannot accept more records.
var ErrQueueFull = errors.New("export queue is full")

// Sink receives records one by one. Upsert is keyed by BookingID.
type Sink interface {
	Name() string
	Upsert(ctx context.Context, record CalendarEvent) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a sink error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryConfig holds the delays between delivery attempts; len(Delays) is the retry count.
type RetryConfig struct {
	Delays []time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Delays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}}
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

func WithRetry(cfg RetryConfig) FeedOption {
	return func(f *Feed) { f.retry = cfg }
}

// WithRateLimit caps sink calls per second across all sinks.
func WithRateLimit(perSecond float64, burst int) FeedOption {
	return func(f *Feed) { f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithQueueSize(n int) FeedOption {
	return func(f *Feed) { f.queue = make(chan CalendarEvent, n) }
}

// Feed streams booking events from the bus to sinks on a background worker.
type Feed struct {
	loc     *time.Location
	queue   chan CalendarEvent
	retry   RetryConfig
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.RWMutex
	sinks []Sink
}

func NewFeed(loc *time.Location, logger *zerolog.Logger, opts ...FeedOption) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "export_feed").Logger()
	}
	f := &Feed{
		loc:     loc,
		queue:   make(chan CalendarEvent, 256),
		retry:   DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  l,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) AddSink(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Subscribe wires the feed to booking events.
func (f *Feed) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.BookingCreated, f.Handle)
	bus.Subscribe(events.BookingUpdated, f.Handle)
}

// Handle queues the booking of ev without blocking the publisher.
func (f *Feed) Handle(_ context.Context, ev events.Event) error {
	if ev.Booking == nil {
		return nil
	}
	rec := FromBooking(*ev.Booking, f.loc)
	select {
	case f.queue <- rec:
		return nil
	default:
		metrics.IncExportRecord("queue", "dropped")
		return fmt.Errorf("booking %s: %w", rec.BookingID, ErrQueueFull)
	}
}

// Run delivers queued records until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-f.queue:
			f.mu.RLock()
			sinks := append([]Sink(nil), f.sinks...)
			f.mu.RUnlock()
			for _, s := range sinks {
				if err := f.deliver(ctx, s, rec); err != nil && ctx.Err() == nil {
					f.logger.Error().Err(err).
						Str("sink", s.Name()).
						Str("booking_id", rec.BookingID).
						Msg("export record dropped")
				}
			}
		}
	}
}

// deliver pushes one record with rate limiting and retries.
func (f *Feed) deliver(ctx context.Context, s Sink, rec CalendarEvent) error {
	var lastErr error
	for attempt := 0; attempt <= len(f.retry.Delays); attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := s.Upsert(ctx, rec)
		if err == nil {
			metrics.IncExportRecord(s.Name(), "ok")
			return nil
		}
		lastErr = err
		if IsPermanent(err) {
			metrics.IncExportRecord(s.Name(), "failed")
			return err
		}
		if attempt == len(f.retry.Delays) {
			break
		}

		delay := f.retry.Delays[attempt]
		metrics.IncExportRecord(s.Name(), "retry")
		f.logger.Warn().Err(err).
			Str("sink", s.Name()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying export record")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.IncExportRecord(s.Name(), "failed")
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
