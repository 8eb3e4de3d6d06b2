// Package lock provides the per-staff and per-room mutual exclusion used while a
// booking is checked and committed.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"salonsched/internal/metrics"

	"github.com/google/uuid"
)

// Locker is a named try-lock with expiry. A successful Lock returns a token that
// identifies this acquisition; Unlock only releases the key while it still carries
// that token, so a release arriving after the TTL never frees someone else's lock.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

const (
	staffPrefix = "staff:"
	roomPrefix  = "room:"
	slotPrefix  = "slot:"
)

func StaffKey(id string) string { return staffPrefix + id }
func RoomKey(id string) string  { return roomPrefix + id }
func SlotKey(id string) string  { return slotPrefix + id }

// BookingKeys returns the lock keys a booking needs, in acquisition order.
func BookingKeys(staffID, roomID, slotID string) []string {
	var keys []string
	if staffID != "" {
		keys = append(keys, StaffKey(staffID))
	}
	if roomID != "" {
		keys = append(keys, RoomKey(roomID))
	}
	if slotID != "" {
		keys = append(keys, SlotKey(slotID))
	}
	return Order(keys)
}

// Order sorts keys into the global acquisition order: staff keys, then room keys,
// then slot keys, then anything else; lexicographic inside each group. Duplicates are dropped.
func Order(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func rank(key string) int {
	switch {
	case strings.HasPrefix(key, staffPrefix):
		return 0
	case strings.HasPrefix(key, roomPrefix):
		return 1
	case strings.HasPrefix(key, slotPrefix):
		return 2
	default:
		return 3
	}
}

// ErrLockTimeout is returned when MaxWait elapses before every key is held.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Options tune Acquire.
type Options struct {
	TTL          time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	// MaxWait bounds the whole acquisition; zero waits until ctx is done.
	MaxWait time.Duration
}

// DefaultOptions hold locks for at most 30s and poll between 5ms and 100ms.
func DefaultOptions() Options {
	return Options{TTL: 30 * time.Second, RetryInitial: 5 * time.Millisecond, RetryMax: 100 * time.Millisecond}
}

// Release unlocks everything Acquire took.
type Release func()

// Acquire takes every key in global order, waiting until ctx is done. On failure the
// keys taken so far are released and ctx.Err or the locker error is returned.
func Acquire(ctx context.Context, l Locker, keys []string, opts Options) (Release, error) {
	if opts.TTL <= 0 {
		opts = DefaultOptions()
	}
	ordered := Order(keys)
	started := time.Now()

	waitCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}

	type heldLock struct{ key, token string }
	held := make([]heldLock, 0, len(ordered))
	release := func() {
		// Unlock must succeed even when the caller's ctx is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.Unlock(unlockCtx, held[i].key, held[i].token)
		}
	}

	for _, key := range ordered {
		token, err := waitLock(waitCtx, l, key, opts)
		if err != nil {
			release()
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				err = ErrLockTimeout
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		held = append(held, heldLock{key: key, token: token})
	}
	metrics.ObserveLockWait(time.Since(started))

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func waitLock(ctx context.Context, l Locker, key string, opts Options) (string, error) {
	delay := opts.RetryInitial
	if delay <= 0 {
		delay = 5 * time.Millisecond
	}
	maxDelay := opts.RetryMax
	if maxDelay < delay {
		maxDelay = delay
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		token, ok, err := l.Lock(ctx, key, opts.TTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock), now: time.Now}
}

func (m *MemoryLocker) Lock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[key]; ok && now.Before(held.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.locks[key]; ok && held.token == token {
		delete(m.locks, key)
	}
	return nil
}
