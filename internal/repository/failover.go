package repository

import (
	"context"
	"sync/atomic"
	"time"

	"storagebooking/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverGuardStore prefers primary and degrades to fallback on errors,
// probing primary again once recoveryInterval has passed.
type FailoverGuardStore struct {
	primary   domain.GuardStore
	fallback  domain.GuardStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverGuardStore(primary, fallback domain.GuardStore, logger *zerolog.Logger) *FailoverGuardStore {
	return &FailoverGuardStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverGuardStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverGuardStore) observe(err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("primary guard store recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary guard store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverGuardStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Acquire(ctx, key, ttl)
		r.observe(err)
		if err == nil {
			return ok, nil
		}
	}
	return r.fallback.Acquire(ctx, key, ttl)
}

// Release goes to both stores since the lock may have been taken on either.
func (r *FailoverGuardStore) Release(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Release(ctx, key)
		r.observe(err)
	}
	return r.fallback.Release(ctx, key)
}

func (r *FailoverGuardStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.observe(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
