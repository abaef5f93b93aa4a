// Package retrylimit retries outbound requests with backoff and an adaptive
// rate limit that slows down on 429 and 5xx responses and recovers on
// success.
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// calm is how long after the last failure the limit stays where it is.
const calm = 10 * time.Second

// AdaptiveLimiter is a token bucket whose rate moves between min and max.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	min, max  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
	now       func() time.Time
}

// NewAdaptiveLimiter starts at initial requests per second. Each success
// adds stepUp; each overload multiplies the rate by stepDown.
func NewAdaptiveLimiter(initial, lo, hi, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	lo = max(lo, 1)
	initial = max(initial, lo)
	hi = max(hi, initial)
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst(initial)),
		min:      lo,
		max:      hi,
		stepUp:   stepUp,
		stepDown: stepDown,
		now:      time.Now,
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless a failure happened recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > calm {
		a.set(a.limiter.Limit() + a.stepUp)
	}
}

// Overloaded lowers the rate.
func (a *AdaptiveLimiter) Overloaded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = a.now()
	a.set(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// Limit is the current rate in requests per second.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limiter.Limit()
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = min(max(l, a.min), a.max)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burst(l))
	}
}

func burst(l rate.Limit) int { return max(1, int(l)) }

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Fatal marks err as not worth retrying.
func Fatal(err error) error { return &fatalError{err} }

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Config controls Do.
type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool

	// Retryable decides whether a non-HTTP error is retried. Nil retries
	// only 429 and 5xx responses.
	Retryable func(error) bool

	Log zerolog.Logger
}

// DefaultConfig suits chat replies: a few quick attempts, then give up.
func DefaultConfig(log zerolog.Logger) Config {
	return Config{
		MaxAttempts:    4,
		InitialDelay:   250 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
		Log:            log,
	}
}

// Do runs fn until it succeeds, returns a fatal or non-retryable error,
// the attempts run out or ctx ends. The last error is returned as is.
func Do(ctx context.Context, lim *AdaptiveLimiter, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		if err = fn(); err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Log.Debug().Int("attempt", attempt).Msg("request succeeded after retry")
			}
			return nil
		}

		var fatal *fatalError
		if errors.As(err, &fatal) {
			return fatal.err
		}

		code := StatusOf(err)
		wait := delay
		switch {
		case code == http.StatusTooManyRequests:
			if lim != nil {
				lim.Overloaded()
			}
			wait = cfg.RateLimitDelay
		case code >= 500 && code < 600:
			if lim != nil {
				lim.Overloaded()
			}
		case cfg.Retryable != nil && cfg.Retryable(err):
		default:
			return err
		}
		if attempt == attempts {
			break
		}

		if cfg.Jitter {
			wait = jitter(wait)
		}
		cfg.Log.Warn().Err(err).Int("attempt", attempt).Int("status", code).Dur("wait", wait).Msg("request failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}
