package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/models"
)

// Run repeats scrape cycles until ctx is cancelled. A failing cycle is logged
// and retried after ErrorBackoff; it never ends the loop.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().
		Int("max_concurrent", a.Slots.Capacity()).
		Dur("scrape_interval", a.Rate.Interval()).
		Msg("scrape loop started")

	for {
		_, err := a.safeCycle(ctx)
		if ctx.Err() != nil {
			a.log.Info().Msg("scrape loop stopped")
			return nil
		}

		delay := a.Config.Scraper.CycleDelay
		if err != nil {
			delay = a.Config.Scraper.ErrorBackoff
			a.log.Error().Err(err).Dur("backoff", delay).Msg("scrape cycle failed")
		}
		if sleep(ctx, delay) != nil {
			a.log.Info().Msg("scrape loop stopped")
			return nil
		}
	}
}

// safeCycle turns a panic in the cycle body into an error.
func (a *App) safeCycle(ctx context.Context) (summary models.CycleSummary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scrape cycle panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return a.RunCycle(ctx)
}

// RunCycle scrapes every active listing once, at most MaxConcurrent at a
// time, and waits for all of them. Per-listing failures are part of the
// summary, not the returned error.
func (a *App) RunCycle(ctx context.Context) (models.CycleSummary, error) {
	start := a.now()

	listings, err := a.Store.ListActiveListings(ctx)
	if err != nil {
		return models.CycleSummary{}, fmt.Errorf("list active listings: %w", err)
	}
	bctx, err := a.Browser.GetContext()
	if err != nil {
		return models.CycleSummary{}, fmt.Errorf("get browser context: %w", err)
	}

	logs := make([]models.ScrapeLog, len(listings))
	var wg sync.WaitGroup
	for i, l := range listings {
		wg.Add(1)
		go func(i int, l models.Listing) {
			defer wg.Done()
			logs[i] = a.runTask(ctx, bctx, l)
		}(i, l)
	}
	wg.Wait()

	var summary models.CycleSummary
	for _, entry := range logs {
		summary.Add(entry)
	}
	summary.Duration = a.now().Sub(start)
	a.Metrics.ObserveCycle(summary.Duration)

	a.log.Info().
		Int("total", summary.Total).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("scrape cycle finished")
	return summary, nil
}

// runTask holds a concurrency slot for the whole listing scrape. A panic is
// contained to its own listing.
func (a *App) runTask(ctx context.Context, bctx browser.Context, l models.Listing) (entry models.ScrapeLog) {
	defer func() {
		if p := recover(); p != nil {
			a.log.Error().
				Int64("listing_id", l.ID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("scrape task panicked")
			entry = models.ScrapeLog{
				ListingID:  l.ID,
				SellerID:   l.SellerID,
				URL:        l.URL,
				Status:     models.StatusError,
				Error:      fmt.Sprintf("panic: %v", p),
				StartedAt:  entry.StartedAt,
				FinishedAt: a.now(),
			}
		}
	}()

	start := a.now()
	if err := a.Slots.Acquire(ctx); err != nil {
		entry = models.ScrapeLog{
			ListingID:  l.ID,
			SellerID:   l.SellerID,
			URL:        l.URL,
			Status:     models.StatusError,
			Error:      fmt.Sprintf("waiting for a scrape slot: %v", err),
			StartedAt:  start,
			FinishedAt: a.now(),
		}
		a.logAttempt(entry)
		a.Metrics.ObserveAttempt(string(entry.Status), 0, entry.Duration())
		return entry
	}
	a.Metrics.SlotAcquired()
	defer func() {
		a.Slots.Release()
		a.Metrics.SlotReleased()
	}()

	return a.ScrapeListing(ctx, bctx, l)
}
