package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting for outbound exchange
// calls. The REST surface is limited to 10 requests per second; exceeding
// that gets the API key throttled by the venue, so every client call waits
// on the bucket first.
type RateLimiter struct {
	capacity   int
	tokens     int
	refillRate int // tokens added per second
	lastRefill time.Time
	mutex      sync.Mutex
	name       string
}

// NewRateLimiter creates a new rate limiter starting at full capacity.
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		name:       name,
	}
}

// Allow checks if an operation is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if N operations are allowed under the rate limit
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= n {
		rl.tokens -= n
		return true
	}

	return false
}

// Wait blocks until an operation is allowed or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until N operations are allowed or the context is cancelled.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	for {
		if rl.AllowN(n) {
			return nil
		}

		waitTime := rl.calculateWaitTime(n)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// refillTokens adds tokens based on elapsed time
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed < time.Second {
		return
	}

	tokensToAdd := int(elapsed.Seconds()) * rl.refillRate
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}
}

// calculateWaitTime calculates how long to wait for N tokens
func (rl *RateLimiter) calculateWaitTime(n int) time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= n {
		return 0
	}

	tokensNeeded := n - rl.tokens
	secondsToWait := float64(tokensNeeded) / float64(rl.refillRate)

	// Small buffer to account for timing precision.
	return time.Duration(secondsToWait*1000+100) * time.Millisecond
}

// RateLimiterStats is a point-in-time snapshot for status logging.
type RateLimiterStats struct {
	Name      string
	Tokens    int
	Capacity  int
	Available float64 // fraction of capacity available
}

// GetStats returns current statistics about the rate limiter
func (rl *RateLimiter) GetStats() RateLimiterStats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	return RateLimiterStats{
		Name:      rl.name,
		Tokens:    rl.tokens,
		Capacity:  rl.capacity,
		Available: float64(rl.tokens) / float64(rl.capacity),
	}
}
