package shared

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const DefaultMinLiveInterval = time.Minute

// LiveCache spaces calls to a live endpoint. While the limiter denies a
// call, or the server asked us to back off, the last good reading is
// served unchanged. A failed fetch other than a rate limit drops it.
type LiveCache struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	last         *core.Reading
	blockedUntil time.Time
}

func NewLiveCache(minInterval time.Duration) *LiveCache {
	if minInterval <= 0 {
		minInterval = DefaultMinLiveInterval
	}
	return &LiveCache{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Fetch calls fetch unless a cached reading can stand in for it. cached
// reports whether the returned reading came from the cache. Without a
// cached reading fetch always runs, except during a server back-off.
func (c *LiveCache) Fetch(now time.Time, fetch func() (core.Reading, error)) (r core.Reading, cached bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.blockedUntil) {
		if c.last != nil {
			return *c.last, true, nil
		}
		return core.Reading{}, false, &RateLimitError{RetryAfter: c.blockedUntil.Sub(now)}
	}
	if !c.limiter.AllowN(now, 1) && c.last != nil {
		return *c.last, true, nil
	}

	r, err = fetch()
	if err != nil {
		var rl *RateLimitError
		switch {
		case errors.As(err, &rl):
			if rl.RetryAfter > 0 {
				c.blockedUntil = now.Add(rl.RetryAfter)
			}
		default:
			// Any other failure means the last reading can no longer be
			// vouched for.
			c.last = nil
		}
		return core.Reading{}, false, err
	}
	c.last = &r
	return r, false, nil
}

// Last returns the cached reading, if any.
func (c *LiveCache) Last() (core.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return core.Reading{}, false
	}
	return *c.last, true
}
