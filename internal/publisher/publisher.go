// Package publisher announces price changes to downstream consumers.
package publisher

import (
	"context"

	"PriceTracker/internal/models"
)

// Publisher delivers price-change events.
type Publisher interface {
	// Publish sends one event. Callers log failures; they never fail a scrape.
	Publish(ctx context.Context, change models.PriceChange) error

	// Close releases the connection.
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.PriceChange) error { return nil }

func (Noop) Close() error { return nil }
