package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		RateLimitDelay: time.Millisecond,
		Multiplier:     2,
		Log:            zerolog.Nop(),
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		if calls < 3 {
			return statusErr(502)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		return fmt.Errorf("send: %w", statusErr(429))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 429, StatusOf(err))
}

func TestDoStopsOnClientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		return statusErr(403)
	})
	assert.Equal(t, statusErr(403), err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnFatal(t *testing.T) {
	boom := errors.New("boom")
	cfg := fastConfig()
	cfg.Retryable = func(error) bool { return true }

	calls := 0
	err := Do(context.Background(), nil, cfg, func() error {
		calls++
		return Fatal(boom)
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour

	err := Do(ctx, nil, cfg, func() error {
		cancel()
		return statusErr(500)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterAdapts(t *testing.T) {
	lim := NewAdaptiveLimiter(8, 1, 10, 1, 0.5)
	now := time.Unix(1000, 0)
	lim.now = func() time.Time { return now }

	lim.Overloaded()
	assert.Equal(t, rate.Limit(4), lim.Limit())

	lim.Success()
	assert.Equal(t, rate.Limit(4), lim.Limit(), "no recovery right after a failure")

	now = now.Add(time.Minute)
	lim.Success()
	lim.Success()
	assert.Equal(t, rate.Limit(6), lim.Limit())

	for range 10 {
		lim.Overloaded()
	}
	assert.Equal(t, rate.Limit(1), lim.Limit(), "never below the floor")
}

func TestDoFeedsLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(100, 1, 100, 1, 0.5)

	calls := 0
	err := Do(context.Background(), lim, fastConfig(), func() error {
		calls++
		if calls == 1 {
			return statusErr(503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, rate.Limit(50), lim.Limit())
}
