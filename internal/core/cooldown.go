package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type bucketKey struct {
	command string
	user    string
}

// Cooldowns tracks per-user, per-command rate limits.
type Cooldowns struct {
	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
	now     func() time.Time
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{
		buckets: make(map[bucketKey]*rate.Limiter),
		now:     time.Now,
	}
}

// Hit records an invocation of cmd by userID. It returns a *CooldownError
// and records nothing when the user is over the limit.
func (c *Cooldowns) Hit(cmd *Command, userID string) error {
	cd := cmd.Cooldown
	if cd == nil || cd.Rate <= 0 || cd.Per <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := bucketKey{command: cmd.Name, user: userID}
	lim, ok := c.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(cd.Per/time.Duration(cd.Rate)), cd.Rate)
		c.buckets[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return &CooldownError{Command: cmd.Name, RetryAfter: cd.Per}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &CooldownError{Command: cmd.Name, RetryAfter: delay}
	}
	return nil
}

// Reset forgets a user's history for cmd.
func (c *Cooldowns) Reset(cmd *Command, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, bucketKey{command: cmd.Name, user: userID})
}

// Sweep drops buckets that have fully refilled and returns how many it
// dropped.
func (c *Cooldowns) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, lim := range c.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(c.buckets, key)
			dropped++
		}
	}
	return dropped
}

func (c *Cooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// RunCooldownCleaner sweeps idle buckets every interval until ctx is done.
func RunCooldownCleaner(ctx context.Context, c *Cooldowns, every time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				log.Trace().Int("dropped", n).Msg("cooldown buckets swept")
			}
		}
	}
}
