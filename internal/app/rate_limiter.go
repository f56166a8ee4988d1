package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/StreamRelay/internal/domain"
)

var ErrRateLimited = errors.New("publish rate limited")

// PublishLimiter bounds publish attempts per path in a sliding window,
// which stops a flapping encoder from spamming subscribers.
type PublishLimiter struct {
	mu       sync.Mutex
	history  map[domain.StreamPath][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewPublishLimiter returns nil when limit is not positive; a nil limiter allows everything.
func NewPublishLimiter(limit int, interval time.Duration) *PublishLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &PublishLimiter{
		history:  make(map[domain.StreamPath][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *PublishLimiter) Allow(path domain.StreamPath) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	rl.prune(windowStart)

	attempts := rl.history[path]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[path] = fresh
		return false
	}

	rl.history[path] = append(fresh, now)
	return true
}

// prune drops paths whose newest attempt has left the window.
func (rl *PublishLimiter) prune(windowStart time.Time) {
	for path, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, path)
		}
	}
}
