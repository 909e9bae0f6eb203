package models

import "time"

// ScrapeLog records the outcome of scraping one listing in one cycle.
// It is never persisted; the driver logs it and tallies it.
type ScrapeLog struct {
	ListingID  int64
	SellerID   int64
	URL        string
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Price      *float64
	Status     UpdateStatus
	Error      string
	RetryCount int
}

// Duration is the wall time spent on the listing, retries included.
func (l ScrapeLog) Duration() time.Duration {
	if l.FinishedAt.IsZero() {
		return 0
	}
	return l.FinishedAt.Sub(l.StartedAt)
}

// CycleSummary tallies the scrape logs of one cycle.
type CycleSummary struct {
	Total     int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// Add counts one scrape log.
func (s *CycleSummary) Add(l ScrapeLog) {
	s.Total++
	switch {
	case !l.Success:
		s.Failed++
	case l.Status == StatusSkipped:
		s.Skipped++
	case l.Status == StatusUnchanged:
		s.Unchanged++
	default:
		s.Updated++
	}
}
