package limiter

import (
	"sync"
	"time"
)

// RateLimiter enforces a cooldown between successful scrapes of one listing.
// State is in memory only and starts empty on every process start.
type RateLimiter struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[int64]time.Time
}

// NewRateLimiter returns a limiter with the given cooldown.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		now:      time.Now,
		last:     make(map[int64]time.Time),
	}
}

// CanScrape reports whether the listing was never scraped or its cooldown is over.
func (r *RateLimiter) CanScrape(listingID int64) bool {
	return r.TimeUntilNextScrape(listingID) == 0
}

// MarkScraped starts the listing's cooldown. Call it after a successful scrape only.
func (r *RateLimiter) MarkScraped(listingID int64) {
	now := r.now()
	r.mu.Lock()
	r.last[listingID] = now
	r.mu.Unlock()
}

// TimeUntilNextScrape is the remaining cooldown, zero when the listing is eligible.
func (r *RateLimiter) TimeUntilNextScrape(listingID int64) time.Duration {
	r.mu.Lock()
	last, ok := r.last[listingID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	remaining := r.interval - r.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Interval is the configured cooldown.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
