// Package ratelimit implements fixed-window admission control per
// (category, identifier).
//
// Windows are not aligned to the epoch: a window opens on the first request
// of a caller and closes windowMs later, at which point the next request
// replaces it with a fresh one. Like every fixed window scheme this admits up
// to 2x the limit in a short span straddling a window boundary.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"
	"invoice-api/pkg/janitor"

	"go.uber.org/zap"
)

const shardCount = 32

type windowKey struct {
	category   string
	identifier string
}

type window struct {
	count       int
	windowStart time.Time
	resetAt     time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[windowKey]*window
}

// Limiter is a sharded fixed-window rate limiter. Safe for concurrent use.
type Limiter struct {
	rules   map[string]config.RateLimitRule
	shards  [shardCount]*shard
	clock   clock.Clock
	logger  *zap.Logger
	janitor *janitor.Janitor
}

// New creates a limiter. Categories missing from cfg.Rules, including
// "default" itself, fall back to the built-in defaults.
func New(cfg config.RateLimitConfig, clk clock.Clock, logger *zap.Logger) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rules := config.DefaultRateLimitRules()
	for category, rule := range cfg.Rules {
		if rule.MaxRequests > 0 && rule.Window > 0 {
			rules[category] = rule
		} else {
			logger.Warn("Ignoring invalid rate limit rule",
				zap.String("category", category),
				zap.Int("max_requests", rule.MaxRequests),
				zap.Duration("window", rule.Window))
		}
	}

	l := &Limiter{
		rules:  rules,
		clock:  clk,
		logger: logger,
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[windowKey]*window)}
	}
	l.janitor = janitor.New("ratelimit", cfg.SweepInterval, l.Sweep, logger)

	return l
}

// Start begins the periodic sweep of expired windows
func (l *Limiter) Start(ctx context.Context) {
	l.janitor.Start(ctx)
}

// Stop halts the sweep routine
func (l *Limiter) Stop() {
	l.janitor.Stop()
}

// Rule returns the effective rule for a category and the category it resolved to
func (l *Limiter) Rule(category string) (string, config.RateLimitRule) {
	if rule, ok := l.rules[category]; ok {
		return category, rule
	}
	return config.CategoryDefault, l.rules[config.CategoryDefault]
}

// Check counts one request against the caller's window and reports whether
// it is admitted. The request that takes the count to max+1 is the first one
// denied. Check never fails.
func (l *Limiter) Check(category, identifier string) domain.Decision {
	category, rule := l.Rule(category)
	now := l.clock.Now()
	key := windowKey{category: category, identifier: identifier}

	s := l.shardFor(key)
	s.mu.Lock()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{windowStart: now, resetAt: now.Add(rule.Window)}
		s.windows[key] = w
	}
	w.count++
	count, resetAt := w.count, w.resetAt
	s.mu.Unlock()

	decision := domain.Decision{
		Category:  category,
		Allowed:   count <= rule.MaxRequests,
		Limit:     rule.MaxRequests,
		Remaining: max(0, rule.MaxRequests-count),
		ResetAt:   resetAt,
	}

	if !decision.Allowed {
		decision.RetryAfterSeconds = max(0, resetAt.Sub(now).Seconds())
	}

	return decision
}

// Sweep drops every window that has already closed
func (l *Limiter) Sweep() {
	now := l.clock.Now()
	removed := 0

	for _, s := range l.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		l.logger.Debug("Expired rate limit windows swept", zap.Int("removed", removed))
	}
}

// Stats counts open windows per category
func (l *Limiter) Stats() domain.RateLimitStats {
	stats := domain.RateLimitStats{ByCategory: make(map[string]int)}

	for _, s := range l.shards {
		s.mu.Lock()
		for key := range s.windows {
			stats.ByCategory[key.category]++
			stats.ActiveWindows++
		}
		s.mu.Unlock()
	}

	return stats
}

func (l *Limiter) shardFor(key windowKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.category))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.identifier))
	return l.shards[h.Sum32()%shardCount]
}
