// Package cooldown throttles repeated authentication attempts per guild member.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Limiter admits one attempt per (guild, actor) within a window. When it
// denies, remaining is the time left until the next attempt is admitted.
type Limiter interface {
	Allow(ctx context.Context, guildID, actorID string, window time.Duration) (allowed bool, remaining time.Duration, err error)
}

func key(guildID, actorID string) string {
	return guildID + ":" + actorID
}

// MemoryLimiter keeps windows in process memory.
type MemoryLimiter struct {
	nowFunc func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		nowFunc: time.Now,
		expires: make(map[string]time.Time),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, guildID, actorID string, window time.Duration) (bool, time.Duration, error) {
	if window <= 0 {
		return true, 0, nil
	}
	now := l.nowFunc()
	k := key(guildID, actorID)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	if until, ok := l.expires[k]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}
	l.expires[k] = now.Add(window)
	return true, 0, nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for k, until := range l.expires {
		if !now.Before(until) {
			delete(l.expires, k)
		}
	}
}
