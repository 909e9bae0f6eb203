package pricing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PriceTracker/internal/database"
	"PriceTracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUpdater(t *testing.T) (*Updater, *database.SQLiteStore) {
	t.Helper()
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveSeller(ctx, models.Seller{ID: 1, Name: "Shop", ScraperID: "amazon"}))
	require.NoError(t, store.SaveListing(ctx, models.Listing{ID: 1, DeviceID: 7, SellerID: 1, URL: "https://shop.example/1", Active: true}))
	require.NoError(t, store.SaveListing(ctx, models.Listing{ID: 2, DeviceID: 8, SellerID: 1, URL: "https://shop.example/2", Active: false}))

	u := NewUpdater(store)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	u.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	return u, store
}

func openRecords(t *testing.T, store database.Store, listingID int64) []models.PriceRecord {
	t.Helper()
	recs, err := store.OpenPriceRecords(context.Background(), listingID)
	require.NoError(t, err)
	return recs
}

func TestUpdatePriceScenarios(t *testing.T) {
	u, store := newTestUpdater(t)
	ctx := context.Background()

	// First observation opens a record.
	res, err := u.UpdatePrice(ctx, 1, 49.99, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, res.Status)
	assert.InDelta(t, 49.99, res.Record.Price, 1e-9)
	assert.Nil(t, res.Record.ValidTo)
	assert.Nil(t, res.Previous)
	firstID := res.Record.ID

	// Same observation again only touches it.
	res, err = u.UpdatePrice(ctx, 1, 49.99, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnchanged, res.Status)
	assert.Equal(t, firstID, res.Record.ID)
	assert.True(t, res.Record.UpdatedAt.After(res.Record.ValidFrom))
	require.Len(t, openRecords(t, store, 1), 1)

	history, err := store.PriceHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// A new price closes the old record and opens another.
	res, err = u.UpdatePrice(ctx, 1, 44.99, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, res.Status)
	assert.NotEqual(t, firstID, res.Record.ID)
	require.NotNil(t, res.Previous)
	assert.Equal(t, firstID, res.Previous.ID)

	open := openRecords(t, store, 1)
	require.Len(t, open, 1)
	assert.InDelta(t, 44.99, open[0].Price, 1e-9)

	history, err = store.PriceHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ValidTo)
	assert.True(t, history[0].ValidTo.Equal(history[1].ValidFrom))
}

func TestUpdatePriceStockChangeIsAChange(t *testing.T) {
	u, store := newTestUpdater(t)
	ctx := context.Background()

	_, err := u.UpdatePrice(ctx, 1, 10, true)
	require.NoError(t, err)
	res, err := u.UpdatePrice(ctx, 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, res.Status)

	open := openRecords(t, store, 1)
	require.Len(t, open, 1)
	assert.False(t, open[0].InStock)
}

func TestUpdatePriceRejectsUnknownAndInactive(t *testing.T) {
	u, store := newTestUpdater(t)
	ctx := context.Background()

	_, err := u.UpdatePrice(ctx, 404, 1, true)
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = u.UpdatePrice(ctx, 2, 1, true)
	assert.ErrorIs(t, err, ErrListingInactive)
	assert.Empty(t, openRecords(t, store, 2))
}

func TestUpdatePriceConcurrentWritersKeepOneOpenRecord(t *testing.T) {
	u, store := newTestUpdater(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := u.UpdatePrice(ctx, 1, float64(100+i%3), true)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Len(t, openRecords(t, store, 1), 1)
}
