// Package browser owns the headless browser: one process, one rotating
// browsing context shared by all scrape workers, and a fresh page per attempt.
package browser

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Engine is a running browser process.
type Engine interface {
	NewContext() (Context, error)
	Close() error
}

// Context is an isolated browsing session (cookies, cache, storage).
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	// Goto navigates to url and waits for DOMContentLoaded. It returns the
	// HTTP status of the main document.
	Goto(ctx context.Context, url string, timeout time.Duration) (int, error)
	// BlockResources aborts requests for the given resource kinds
	// ("image", "font", "media", ...).
	BlockResources(kinds ...string) error
	// Text returns the text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the current document.
	HTML() (string, error)
	Close() error
}

// LaunchOptions configure the browser process.
type LaunchOptions struct {
	Headless bool
	Bin      string
}

// Launcher starts a browser process.
type Launcher func(ctx context.Context, opts LaunchOptions) (Engine, error)

// Release closes c and logs a failure instead of returning it. Resource
// release on every exit path goes through here so it can never abort a scrape
// or a shutdown.
func Release(log zerolog.Logger, what string, c io.Closer) {
	if c == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn().Str("resource", what).Interface("panic", p).Msg("release panicked")
		}
	}()
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("release failed")
	}
}
