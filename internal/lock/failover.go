package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker uses primary (Redis) and falls back to a local locker while the
// primary is unreachable, retrying the primary once per recovery interval.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	held      map[string]Locker // by key and token
}

// NewFailoverLocker wraps primary with fallback.
func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		held:     make(map[string]Locker),
	}
}

func (f *FailoverLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	target := f.fallback
	if f.shouldTryPrimary() {
		token, ok, err := f.primary.Lock(ctx, key, ttl)
		if err == nil {
			f.markUp()
			if ok {
				f.remember(key, token, f.primary)
			}
			return token, ok, nil
		}
		f.markDown(err)
	}

	token, ok, err := target.Lock(ctx, key, ttl)
	if err == nil && ok {
		f.remember(key, token, target)
	}
	return token, ok, err
}

// Unlock routes the release to whichever locker granted this acquisition.
func (f *FailoverLocker) Unlock(ctx context.Context, key, token string) error {
	id := heldID(key, token)
	f.mu.Lock()
	owner, ok := f.held[id]
	delete(f.held, id)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return owner.Unlock(ctx, key, token)
}

func (f *FailoverLocker) shouldTryPrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recoveryInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("primary locker unavailable, using local locks")
	}
}

func (f *FailoverLocker) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary locker recovered")
	}
}

func (f *FailoverLocker) remember(key, token string, owner Locker) {
	f.mu.Lock()
	f.held[heldID(key, token)] = owner
	f.mu.Unlock()
}

func heldID(key, token string) string { return key + "\x00" + token }
