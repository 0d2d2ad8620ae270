package repository

import (
	"context"
	"sync"
	"time"

	"smarterdog/internal/wizard"
)

type MemoryStateRepository struct {
	sessions   sync.Map
	rateLimits sync.Map
	locks      sync.Map
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
}

type sessionEntry struct {
	state     wizard.State
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryStateRepository) GetSession(ctx context.Context, id string) (*wizard.State, error) {
	val, ok := r.sessions.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(*sessionEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.sessions.Delete(id)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemoryStateRepository) SetSession(ctx context.Context, id string, state *wizard.State) error {
	r.sessions.Store(id, &sessionEntry{state: *state, expiresAt: r.now().Add(r.ttl)})
	return nil
}

func (r *MemoryStateRepository) ClearSession(ctx context.Context, id string) error {
	r.sessions.Delete(id)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

func (r *MemoryStateRepository) AcquireSubmitLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if val, ok := r.locks.Load(sessionID); ok && now.Before(val.(lockEntry).expiresAt) {
		return false, nil
	}
	r.locks.Store(sessionID, lockEntry{owner: owner, expiresAt: now.Add(ttl)})
	return true, nil
}

func (r *MemoryStateRepository) ReleaseSubmitLock(ctx context.Context, sessionID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if val, ok := r.locks.Load(sessionID); ok && val.(lockEntry).owner == owner {
		r.locks.Delete(sessionID)
	}
	return nil
}
