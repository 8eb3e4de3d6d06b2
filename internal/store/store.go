// Package store owns the scheduling state: versioned collections, the command API
// that mutates them and the derived availability and assignment views.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"salonsched/internal/assignment"
	"salonsched/internal/availability"
	"salonsched/internal/commission"
	"salonsched/internal/events"
	"salonsched/internal/lock"
	"salonsched/internal/metrics"
	"salonsched/internal/model"
	"salonsched/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store serialises commands over the scheduling state. Every successful command
// increments the store version; a failed command leaves state untouched.
type Store struct {
	mu    sync.RWMutex
	state State

	index     *availability.Index
	detector  *availability.Detector
	assign    *assignment.Validator
	resolver  *commission.Resolver
	generator *slots.Generator
	fsm       *TemplateFSM

	locker   lock.Locker
	lockOpts lock.Options
	persist  Persister
	bus      *events.EventBus
	logger   zerolog.Logger

	newID func() string
	now   func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithLocker replaces the in-process locker.
func WithLocker(l lock.Locker, opts lock.Options) Option {
	return func(s *Store) {
		s.locker = l
		s.lockOpts = opts
	}
}

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithEventBus publishes committed changes to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Store) { s.bus = bus }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.With().Str("component", "store").Logger()
		}
	}
}

// WithGenerator replaces the slot generator.
func WithGenerator(g *slots.Generator) Option {
	return func(s *Store) { s.generator = g }
}

// WithIDFunc replaces the entity id source.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:    NewState(),
		index:    availability.NewIndex(),
		assign:   assignment.NewValidator(),
		fsm:      NewTemplateFSM(),
		locker:   lock.NewMemoryLocker(),
		lockOpts: lock.DefaultOptions(),
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = availability.NewDetector(s.index)
	s.resolver = commission.NewResolver(s.logger)
	if s.generator == nil {
		s.generator = slots.NewGenerator(slots.WithIDFunc(s.newID), slots.WithClock(s.now))
	}
	return s
}

// Load replaces the whole state, typically with what the database returned at startup,
// and rebuilds the derived views. Assignment clashes found in stored data are logged
// as integrity warnings; the oldest resource keeps the service.
func (s *Store) Load(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st.Clone()
	s.index = availability.NewIndex()
	s.detector = availability.NewDetector(s.index)

	for _, b := range s.state.Bookings {
		s.index.PutBooking(b)
	}
	for _, r := range s.state.TimeOff {
		s.index.PutTimeOff(r)
	}
	for _, r := range s.state.Reservations {
		s.index.PutReservation(r)
	}
	for _, sl := range s.state.Slots {
		s.index.PutSlot(sl)
	}
	for _, h := range s.state.Hours {
		s.index.SetBusinessHours(h)
	}
	for _, sh := range s.state.Shifts {
		s.index.SetStaffShift(sh)
	}

	resources := make([]model.Resource, 0, len(s.state.Resources))
	for _, r := range s.state.Resources {
		s.index.PutResource(r)
		resources = append(resources, r)
	}
	for _, clash := range s.assign.Load(resources) {
		// The older owner keeps the services; the snapshot must agree with the validator.
		if r, ok := s.state.Resources[clash.ResourceID]; ok {
			r.ServiceIDs = dropIDs(r.ServiceIDs, clash.Conflicts)
			s.state.Resources[r.ID] = r
			s.index.PutResource(r)
		}
		w := model.IntegrityWarning{
			Kind:   "assignment",
			Detail: fmt.Sprintf("services already owned in branch %s dropped from resource %s", clash.BranchID, clash.ResourceID),
			IDs:    clash.Conflicts,
		}
		s.logger.Warn().Str("warning", w.String()).Msg("integrity warning")
		metrics.IncIntegrityWarning(w.Kind)
	}

	s.logger.Info().
		Int64("version", s.state.Version).
		Int("templates", len(s.state.Templates)).
		Int("slots", len(s.state.Slots)).
		Int("bookings", len(s.state.Bookings)).
		Msg("state loaded")
}

func dropIDs(ids, drop []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}

// Version returns the current store version.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

// Snapshot returns an immutable copy of every collection at the current version.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// commit persists change and then runs apply. Callers hold s.mu for writing and must
// not have mutated state before calling. It returns the new store version.
func (s *Store) commit(ctx context.Context, change Change, apply func(version int64)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	version := s.state.Version + 1
	change.Version = version
	if s.persist != nil {
		if err := s.persist.Apply(ctx, change); err != nil {
			return 0, fmt.Errorf("persist change: %w", err)
		}
	}
	apply(version)
	s.state.Version = version
	return version, nil
}

func (s *Store) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, e)
}

// checkVersion enforces optimistic concurrency. expected 0 skips the check.
func checkVersion(kind, id string, expected, actual int64) error {
	if expected != 0 && expected != actual {
		return fmt.Errorf("%w: %s %s is at version %d, expected %d", model.ErrConcurrentModification, kind, id, actual, expected)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
}
