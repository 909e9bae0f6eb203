package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/models"
	"PriceTracker/internal/pricing"
	"PriceTracker/internal/scraper"
)

// ScrapeListing runs one listing through rate check, then up to MaxRetries+1
// attempts of parser resolution and scrape. It never returns an error: every outcome ends
// up in the returned log, which is also written to the log stream.
func (a *App) ScrapeListing(ctx context.Context, bctx browser.Context, l models.Listing) (entry models.ScrapeLog) {
	entry = models.ScrapeLog{
		ListingID: l.ID,
		SellerID:  l.SellerID,
		URL:       l.URL,
		StartedAt: a.now(),
	}
	defer func() {
		entry.FinishedAt = a.now()
		a.logAttempt(entry)
		a.Metrics.ObserveAttempt(string(entry.Status), entry.RetryCount, entry.Duration())
	}()

	if wait := a.Rate.TimeUntilNextScrape(l.ID); wait > 0 {
		entry.Success = true
		entry.Status = models.StatusSkipped
		entry.Error = fmt.Sprintf("rate limited: next scrape in %d seconds", int64(math.Ceil(wait.Seconds())))
		return entry
	}

	var parse scraper.Parser
	maxRetries := a.Config.Scraper.MaxRetries
	for attempt := 0; ; attempt++ {
		entry.RetryCount = attempt

		// Resolution is repeated only after a transient seller lookup failure.
		var res *pricing.Result
		var err error
		if parse == nil {
			parse, err = a.Registry.ForListing(ctx, l)
		}
		if err == nil {
			res, err = a.attempt(ctx, bctx, l, parse)
		}
		if err == nil {
			entry.Success = true
			entry.Status = res.Status
			entry.Error = ""
			price := res.Record.Price
			entry.Price = &price
			a.Rate.MarkScraped(l.ID)
			if res.Status == models.StatusUpdated {
				a.publish(ctx, l, res)
			}
			return entry
		}

		entry.Status = models.StatusError
		entry.Error = err.Error()
		if !scraper.IsRetryable(err) || attempt >= maxRetries {
			return entry
		}

		a.log.Debug().
			Int64("listing_id", l.ID).
			Int("attempt", attempt+1).
			Err(err).
			Dur("retry_in", a.Config.Scraper.RetryDelay).
			Msg("attempt failed, retrying")
		if err := sleep(ctx, a.Config.Scraper.RetryDelay); err != nil {
			entry.Error = fmt.Sprintf("%s (retry abandoned: %v)", entry.Error, err)
			return entry
		}
	}
}

// attempt is one navigate, parse, update pass on a fresh page. The page is
// closed on every exit path.
func (a *App) attempt(ctx context.Context, bctx browser.Context, l models.Listing, parse scraper.Parser) (*pricing.Result, error) {
	page, err := bctx.NewPage()
	if err != nil {
		return nil, &scraper.Error{Kind: scraper.KindNavigation, ListingID: l.ID, Message: "open page", Err: err}
	}
	defer browser.Release(a.log, "page", page)

	if err := page.BlockResources(browser.PageBlockedKinds...); err != nil {
		a.log.Debug().Err(err).Int64("listing_id", l.ID).Msg("resource blocking unavailable")
	}

	status, err := page.Goto(ctx, l.URL, a.Config.Scraper.PageTimeout)
	if err != nil {
		return nil, &scraper.Error{Kind: scraper.KindNavigation, ListingID: l.ID, Message: "navigate to " + l.URL, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &scraper.Error{Kind: scraper.KindNavigation, ListingID: l.ID, Message: fmt.Sprintf("navigate to %s: HTTP %d", l.URL, status)}
	}

	quote, err := parse(ctx, page)
	if err != nil {
		var se *scraper.Error
		if errors.As(err, &se) {
			se.ListingID = l.ID
			return nil, err
		}
		return nil, &scraper.Error{Kind: scraper.KindParsing, ListingID: l.ID, Message: "parse price", Err: err}
	}

	res, err := a.Updater.UpdatePrice(ctx, l.ID, quote.Price, quote.InStock)
	if err != nil {
		return nil, &scraper.Error{Kind: scraper.KindProtocol, ListingID: l.ID, Err: err}
	}
	return res, nil
}

func (a *App) publish(ctx context.Context, l models.Listing, res *pricing.Result) {
	change := models.PriceChange{
		ListingID: l.ID,
		DeviceID:  l.DeviceID,
		SellerID:  l.SellerID,
		Price:     res.Record.Price,
		InStock:   res.Record.InStock,
		ValidFrom: res.Record.ValidFrom,
	}
	if res.Previous != nil {
		previous := res.Previous.Price
		change.PreviousPrice = &previous
	}
	if err := a.Publisher.Publish(ctx, change); err != nil {
		a.log.Warn().Err(err).Int64("listing_id", l.ID).Msg("publish price change failed")
	}
}

func (a *App) logAttempt(entry models.ScrapeLog) {
	ev := a.log.Info()
	if !entry.Success {
		ev = a.log.Warn()
	}
	ev = ev.
		Int64("listing_id", entry.ListingID).
		Int64("seller_id", entry.SellerID).
		Str("url", entry.URL).
		Str("status", string(entry.Status)).
		Bool("success", entry.Success).
		Int("retries", entry.RetryCount).
		Dur("duration", entry.Duration())
	if entry.Price != nil {
		ev = ev.Float64("price", *entry.Price)
	}
	if entry.Error != "" {
		ev = ev.Str("error", entry.Error)
	}
	ev.Msg("scrape finished")
}
