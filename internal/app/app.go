package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/database"
	"PriceTracker/internal/limiter"
	"PriceTracker/internal/metrics"
	"PriceTracker/internal/pricing"
	"PriceTracker/internal/publisher"
	"PriceTracker/internal/scraper"
	"PriceTracker/internal/scraper/sellers"
	"PriceTracker/pkg/config"
	"PriceTracker/pkg/logger"
)

// App is the main application structure holding all dependencies.
type App struct {
	Config    *config.Config
	Store     database.Store
	Registry  *scraper.Registry
	Rate      *limiter.RateLimiter
	Slots     *limiter.ConcurrencyLimiter
	Browser   *browser.Manager
	Updater   *pricing.Updater
	Publisher publisher.Publisher
	Metrics   *metrics.Metrics

	log zerolog.Logger
	now func() time.Time
}

// Deps are the collaborators App does not build itself.
type Deps struct {
	Store    database.Store
	Launcher browser.Launcher
	// Publisher defaults to publisher.Noop.
	Publisher publisher.Publisher
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// New wires an App from configuration. The browser is not started until
// Initialize.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if deps.Launcher == nil {
		return nil, errors.New("app: browser launcher is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.Noop{}
	}

	registry, err := scraper.NewRegistry(deps.Store, cfg.Scraper.SellerCacheTTL, sellers.Builtin()...)
	if err != nil {
		return nil, fmt.Errorf("build scraper registry: %w", err)
	}

	manager := browser.NewManager(
		deps.Launcher,
		browser.LaunchOptions{Headless: cfg.Browser.Headless, Bin: cfg.Browser.Bin},
		cfg.Browser.ContextLifetime,
		logger.For("browser"),
	)
	manager.OnRotate = deps.Metrics.IncContextRotation

	return &App{
		Config:    cfg,
		Store:     deps.Store,
		Registry:  registry,
		Rate:      limiter.NewRateLimiter(cfg.Scraper.ScrapeInterval),
		Slots:     limiter.NewConcurrencyLimiter(cfg.Scraper.MaxConcurrent),
		Browser:   manager,
		Updater:   pricing.NewUpdater(deps.Store),
		Publisher: deps.Publisher,
		Metrics:   deps.Metrics,
		log:       logger.For("scraper"),
		now:       time.Now,
	}, nil
}

// Initialize starts the browser.
func (a *App) Initialize(ctx context.Context) error {
	return a.Browser.Initialize(ctx)
}

// Healthy reports whether the browser is up.
func (a *App) Healthy() error {
	return a.Browser.Ready()
}

// Close shuts the browser down and releases the publisher. The store belongs
// to the caller.
func (a *App) Close() {
	a.Browser.Cleanup()
	browser.Release(a.log, "publisher", a.Publisher)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
