package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PriceTracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCatalog(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveSeller(ctx, models.Seller{ID: 1, Name: "Shop", ScraperID: "amazon"}))
	require.NoError(t, store.SaveListing(ctx, models.Listing{
		ID: 1, DeviceID: 10, SellerID: 1, URL: "https://shop.example/p/1", Active: true,
		Metadata: models.Metadata(`{"variant_index":2}`),
	}))
	require.NoError(t, store.SaveListing(ctx, models.Listing{
		ID: 2, DeviceID: 11, SellerID: 1, URL: "https://shop.example/p/2", Active: false,
	}))
}

func TestSQLiteStore(t *testing.T) {
	store := openTestSQLite(t)
	seedCatalog(t, store)
	runStoreContract(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN is not set, skipping test")
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Pool.Exec(ctx, "TRUNCATE price_history, listings, sellers RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	seedCatalog(t, store)
	runStoreContract(t, store)
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	listings, err := store.ListActiveListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(1), listings[0].ID)
	assert.Equal(t, int64(10), listings[0].DeviceID)
	assert.JSONEq(t, `{"variant_index":2}`, string(listings[0].Metadata))

	seller, err := store.FindSeller(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "amazon", seller.ScraperID)

	_, err = store.FindSeller(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var firstID int64
	err = store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.FindListingByID(ctx, 1)
		if err != nil {
			return err
		}
		assert.True(t, l.Active)

		open, err := tx.FindOpenPriceRecord(ctx, 1)
		if err != nil {
			return err
		}
		assert.Nil(t, open)

		rec, err := tx.InsertPriceRecord(ctx, models.PriceRecord{
			ListingID: 1, Price: 49.99, InStock: true, ValidFrom: t0, CreatedAt: t0, UpdatedAt: t0,
		})
		if err != nil {
			return err
		}
		firstID = rec.ID
		return nil
	})
	require.NoError(t, err)
	assert.NotZero(t, firstID)

	t1 := t0.Add(time.Hour)
	err = store.WithinTx(ctx, func(tx Tx) error {
		open, err := tx.FindOpenPriceRecord(ctx, 1)
		if err != nil {
			return err
		}
		require.NotNil(t, open)
		assert.Equal(t, firstID, open.ID)
		assert.InDelta(t, 49.99, open.Price, 1e-9)
		assert.True(t, open.IsOpen())

		if err := tx.TouchPriceRecord(ctx, open.ID, t1); err != nil {
			return err
		}
		if err := tx.ClosePriceRecord(ctx, open.ID, t1); err != nil {
			return err
		}
		_, err = tx.InsertPriceRecord(ctx, models.PriceRecord{
			ListingID: 1, Price: 44.99, InStock: false, ValidFrom: t1, CreatedAt: t1, UpdatedAt: t1,
		})
		return err
	})
	require.NoError(t, err)

	history, err := store.PriceHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ValidTo)
	assert.True(t, history[0].ValidTo.Equal(t1))
	assert.Nil(t, history[1].ValidTo)
	assert.False(t, history[1].InStock)

	open, err := store.OpenPriceRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 44.99, open[0].Price, 1e-9)

	// Closing an already closed record is refused.
	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.ClosePriceRecord(ctx, firstID, t1)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// A failing callback rolls back its writes.
	boom := errors.New("boom")
	err = store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertPriceRecord(ctx, models.PriceRecord{
			ListingID: 2, Price: 1, InStock: true, ValidFrom: t1, CreatedAt: t1, UpdatedAt: t1,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	history, err = store.PriceHistory(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = lookupListing(ctx, store, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRejectsSecondOpenRecord(t *testing.T) {
	store := openTestSQLite(t)
	seedCatalog(t, store)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func() error {
		return store.WithinTx(ctx, func(tx Tx) error {
			_, err := tx.InsertPriceRecord(ctx, models.PriceRecord{
				ListingID: 1, Price: 10, InStock: true, ValidFrom: now, CreatedAt: now, UpdatedAt: now,
			})
			return err
		})
	}
	require.NoError(t, insert())
	assert.Error(t, insert())
}

func lookupListing(ctx context.Context, store Store, id int64) (*models.Listing, error) {
	var l *models.Listing
	err := store.WithinTx(ctx, func(tx Tx) error {
		var err error
		l, err = tx.FindListingByID(ctx, id)
		return err
	})
	return l, err
}
