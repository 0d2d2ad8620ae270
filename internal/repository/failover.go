package repository

import (
	"context"
	"sync/atomic"
	"time"

	"smarterdog/internal/domain"
	"smarterdog/internal/wizard"

	"github.com/rs/zerolog"
)

// SessionStore is a draft repository that can also guard submissions.
type SessionStore interface {
	domain.DraftRepository
	domain.SubmissionGuard
}

const recoveryInterval = time.Minute

// FailoverStateRepository serves sessions from primary (Redis) and switches
// to fallback (memory) while primary is failing.
type FailoverStateRepository struct {
	primary   SessionStore
	fallback  SessionStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback SessionStore, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStateRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session store recovered")
	}
}

func (r *FailoverStateRepository) GetSession(ctx context.Context, id string) (*wizard.State, error) {
	if r.usePrimary() {
		state, err := r.primary.GetSession(ctx, id)
		if err == nil {
			r.markUp()
			if state != nil {
				return state, nil
			}
			// sessions written during an outage live only in the fallback
			return r.fallback.GetSession(ctx, id)
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverStateRepository) SetSession(ctx context.Context, id string, state *wizard.State) error {
	if r.usePrimary() {
		err := r.primary.SetSession(ctx, id, state)
		if err == nil {
			r.markUp()
			_ = r.fallback.ClearSession(ctx, id)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSession(ctx, id, state)
}

func (r *FailoverStateRepository) ClearSession(ctx context.Context, id string) error {
	_ = r.fallback.ClearSession(ctx, id)
	if r.usePrimary() {
		err := r.primary.ClearSession(ctx, id)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverStateRepository) AcquireSubmitLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.AcquireSubmitLock(ctx, sessionID, owner, ttl)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.AcquireSubmitLock(ctx, sessionID, owner, ttl)
}

func (r *FailoverStateRepository) ReleaseSubmitLock(ctx context.Context, sessionID, owner string) error {
	_ = r.fallback.ReleaseSubmitLock(ctx, sessionID, owner)
	if r.usePrimary() {
		err := r.primary.ReleaseSubmitLock(ctx, sessionID, owner)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}
