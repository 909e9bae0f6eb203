package database

import (
	"context"
	"errors"
	"time"

	"PriceTracker/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistent side of the scraper: the listing catalog (read-only
// to the scraper) and the append-only price history.
type Store interface {
	ListActiveListings(ctx context.Context) ([]models.Listing, error)
	FindSeller(ctx context.Context, id int64) (*models.Seller, error)

	// WithinTx runs fn in one transaction. fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	OpenPriceRecords(ctx context.Context, listingID int64) ([]models.PriceRecord, error)
	PriceHistory(ctx context.Context, listingID int64) ([]models.PriceRecord, error)

	SaveSeller(ctx context.Context, s models.Seller) error
	SaveListing(ctx context.Context, l models.Listing) error

	Close() error
}

// Tx is the transactional view used by the price update protocol.
// FindListingByID locks the listing row where the backend supports it, so
// concurrent updaters of one listing serialize.
type Tx interface {
	FindListingByID(ctx context.Context, id int64) (*models.Listing, error)
	FindOpenPriceRecord(ctx context.Context, listingID int64) (*models.PriceRecord, error)
	ClosePriceRecord(ctx context.Context, id int64, now time.Time) error
	InsertPriceRecord(ctx context.Context, rec models.PriceRecord) (*models.PriceRecord, error)
	TouchPriceRecord(ctx context.Context, id int64, now time.Time) error

	SaveSeller(ctx context.Context, s models.Seller) error
	SaveListing(ctx context.Context, l models.Listing) error
}

// Open picks the store implementation for driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(dsn)
	}
}
