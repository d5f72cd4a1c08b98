package middleware

import (
	"sync"
	"time"

	"healthapp/types"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter is a process-wide sliding-window counter keyed by client IP.
// Stale keys are evicted on a ticker so the map cannot grow without bound.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	nowFn  func() time.Time
}

// NewRateLimiter allows limit requests per key per window and starts the
// background eviction loop.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(limit, window, time.Now)
	go rl.evictLoop()
	return rl
}

func newRateLimiter(limit int, window time.Duration, nowFn func() time.Time) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		nowFn:  nowFn,
	}
}

// Allow records a hit for the key and reports whether it stays within the
// window's budget.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.nowFn()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.hits[key] = recent
		return false
	}

	rl.hits[key] = append(recent, now)
	return true
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		rl.evict()
	}
}

func (rl *RateLimiter) evict() {
	cutoff := rl.nowFn().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, times := range rl.hits {
		live := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		if len(live) == 0 {
			delete(rl.hits, key)
		} else {
			rl.hits[key] = live
		}
	}
}

// Middleware rejects requests over the budget with 429.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(types.ApiResponse{
				Status:  fiber.StatusTooManyRequests,
				Message: "Too many OTP requests, please slow down",
			})
		}
		return c.Next()
	}
}
