package reminders

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig caps sends per second. Jitter bounds are milliseconds.
type RateLimiterConfig struct {
	// Rate is the number of sends allowed per second.
	Rate float64
	// Burst is the maximum number of sends at once.
	Burst int
	// JitterMin and JitterMax bound the random delay, in milliseconds,
	// added before each send.
	JitterMin int
	JitterMax int
}

// DefaultRateLimiterConfig keeps well under typical SMTP relay limits.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:      2.0,
		Burst:     5,
		JitterMin: 20,
		JitterMax: 100,
	}
}

// RateLimiter is a token bucket with jitter.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
	mu      sync.Mutex
	rng     *rand.Rand
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = DefaultRateLimiterConfig().Rate
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until a send is allowed or ctx is done. It reports whether
// the caller had to wait for a token.
func (r *RateLimiter) Wait(ctx context.Context) (waited bool, err error) {
	if jitter := r.jitter(); jitter > 0 {
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	if r.limiter.Allow() {
		return false, nil
	}
	return true, r.limiter.Wait(ctx)
}

func (r *RateLimiter) jitter() time.Duration {
	if r.config.JitterMax <= r.config.JitterMin {
		return time.Duration(r.config.JitterMin) * time.Millisecond
	}

	r.mu.Lock()
	ms := r.config.JitterMin + r.rng.Intn(r.config.JitterMax-r.config.JitterMin)
	r.mu.Unlock()

	return time.Duration(ms) * time.Millisecond
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

// Available returns the current number of tokens.
func (r *RateLimiter) Available() float64 {
	return r.limiter.Tokens()
}
