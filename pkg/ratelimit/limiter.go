package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting upstream requests
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket refills to full capacity once per refill period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// PerMinute is a bucket of n requests refilled every minute.
func PerMinute(n int) *TokenBucket {
	return NewTokenBucket(n, time.Minute)
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill <= 0 {
			untilRefill = 100 * time.Millisecond
		}
		if err := sleep(ctx, untilRefill); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// Jitter pauses for a random duration in [Min, Max] between consecutive
// items of a batch so requests do not arrive at a fixed cadence.
type Jitter struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitter creates a pacer for the given window
func NewJitter(lo, hi time.Duration) *Jitter {
	return &Jitter{
		Min: lo,
		Max: hi,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next pause without sleeping
func (j *Jitter) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rng == nil {
		j.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return j.Min + time.Duration(j.rng.Int63n(int64(j.Max-j.Min)+1))
}

// Wait sleeps for the next pause or until ctx is done
func (j *Jitter) Wait(ctx context.Context) error {
	return sleep(ctx, j.Next())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
