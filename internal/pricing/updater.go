// Package pricing keeps a listing's price history: one open record holding
// the current price and stock state, closed and replaced whenever either changes.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceTracker/internal/database"
	"PriceTracker/internal/models"
)

var (
	// ErrListingNotFound means the listing vanished from the catalog.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingInactive means the listing was deactivated since it was queued.
	ErrListingInactive = errors.New("listing not active")
)

// Result is the outcome of UpdatePrice. Previous is the record that was
// closed, if any.
type Result struct {
	Record   *models.PriceRecord
	Status   models.UpdateStatus
	Previous *models.PriceRecord
}

// Updater applies price observations to the store.
type Updater struct {
	store database.Store
	now   func() time.Time
}

// NewUpdater returns an Updater writing to store.
func NewUpdater(store database.Store) *Updater {
	return &Updater{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// UpdatePrice records that listingID was seen at price with the given stock
// state. Everything happens in one transaction: an identical observation only
// touches the open record; a different one closes it and opens a new one.
func (u *Updater) UpdatePrice(ctx context.Context, listingID int64, price float64, inStock bool) (*Result, error) {
	var result *Result
	err := u.store.WithinTx(ctx, func(tx database.Tx) error {
		listing, err := tx.FindListingByID(ctx, listingID)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrListingNotFound, listingID)
		}
		if err != nil {
			return err
		}
		if !listing.Active {
			return fmt.Errorf("%w: %d", ErrListingInactive, listingID)
		}

		now := u.now()

		open, err := tx.FindOpenPriceRecord(ctx, listingID)
		if err != nil {
			return err
		}

		if open != nil && open.Matches(price, inStock) {
			if err := tx.TouchPriceRecord(ctx, open.ID, now); err != nil {
				return err
			}
			open.UpdatedAt = now
			result = &Result{Record: open, Status: models.StatusUnchanged}
			return nil
		}

		if open != nil {
			if err := tx.ClosePriceRecord(ctx, open.ID, now); err != nil {
				return err
			}
			closedAt := now
			open.ValidTo = &closedAt
			open.UpdatedAt = now
		}

		rec, err := tx.InsertPriceRecord(ctx, models.PriceRecord{
			ListingID: listingID,
			Price:     price,
			InStock:   inStock,
			ValidFrom: now,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		result = &Result{Record: rec, Status: models.StatusUpdated, Previous: open}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update price of listing %d: %w", listingID, err)
	}
	return result, nil
}
