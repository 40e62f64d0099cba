// Package cooldown keeps per-user fixed-window rate limits for commands.
package cooldown

import (
	"sync"
	"time"

	"growtube/internal/game"
)

// Rule allows Rate uses per Per window. The window opens on the first use.
type Rule struct {
	Rate int
	Per  time.Duration
}

var (
	Collect     = Rule{Rate: 2, Per: 30 * time.Second}
	CareerBegin = Rule{Rate: 1, Per: 120 * time.Second}
	CareerStop  = Rule{Rate: 1, Per: 360 * time.Second}
)

type key struct {
	action string
	userID int64
}

type bucket struct {
	opened time.Time
	used   int
	per    time.Duration
}

type Limiter struct {
	mu      sync.Mutex
	buckets map[key]*bucket
	now     func() time.Time
}

func New() *Limiter {
	return &Limiter{buckets: make(map[key]*bucket), now: time.Now}
}

// WithClock replaces the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Take consumes one use of action for userID. When the window is exhausted
// it returns a *game.RateLimitedError carrying the time left.
func (l *Limiter) Take(action string, userID int64, rule Rule) error {
	if rule.Rate <= 0 || rule.Per <= 0 {
		return nil
	}
	now := l.now()
	k := key{action: action, userID: userID}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[k]
	if !ok || !now.Before(b.opened.Add(b.per)) {
		b = &bucket{opened: now, per: rule.Per}
		l.buckets[k] = b
	}
	if b.used >= rule.Rate {
		return &game.RateLimitedError{Action: action, RetryAfter: b.opened.Add(b.per).Sub(now)}
	}
	b.used++
	return nil
}

// Refund gives back one use, e.g. when the guarded command failed before
// doing anything.
func (l *Limiter) Refund(action string, userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key{action: action, userID: userID}]; ok && b.used > 0 {
		b.used--
	}
}

// Prune drops expired windows and reports how many were removed.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if !now.Before(b.opened.Add(b.per)) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
