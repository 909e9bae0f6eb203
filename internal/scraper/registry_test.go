package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/database"
	"PriceTracker/internal/models"
)

type sellerStub struct {
	mu      sync.Mutex
	sellers map[int64]models.Seller
	err     error
	calls   int
}

func (s *sellerStub) FindSeller(_ context.Context, id int64) (*models.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	seller, ok := s.sellers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &seller, nil
}

func fixedPrice(price float64) ParseFunc {
	return func(context.Context, browser.Page, models.Metadata) (models.Quote, error) {
		return models.Quote{Price: price, InStock: true}, nil
	}
}

func newStub() *sellerStub {
	return &sellerStub{sellers: map[int64]models.Seller{
		1: {ID: 1, Name: "Shop One", ScraperID: "shopify"},
		2: {ID: 2, Name: "Shop Two", ScraperID: "shopify"},
		3: {ID: 3, Name: "Legacy", ScraperID: "retired"},
	}}
}

func TestResolveSharedScraperID(t *testing.T) {
	r, err := NewRegistry(newStub(), 0, Definition{ID: "shopify", Parse: fixedPrice(10)})
	require.NoError(t, err)

	for _, sellerID := range []int64{1, 2} {
		def, ok, err := r.Resolve(context.Background(), sellerID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "shopify", def.ID)
	}
}

func TestResolveAbsent(t *testing.T) {
	r, err := NewRegistry(newStub(), 0, Definition{ID: "shopify", Parse: fixedPrice(10)})
	require.NoError(t, err)

	_, ok, err := r.Resolve(context.Background(), 99)
	assert.NoError(t, err, "unknown seller is absent, not an error")
	assert.False(t, ok)

	_, ok, err = r.Resolve(context.Background(), 3)
	assert.NoError(t, err, "unregistered scraper id is absent, not an error")
	assert.False(t, ok)
}

func TestResolveStoreFailure(t *testing.T) {
	stub := newStub()
	stub.err = errors.New("database is locked")
	r, err := NewRegistry(stub, 0)
	require.NoError(t, err)

	_, ok, err := r.Resolve(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, ok)

	_, err = r.ForListing(context.Background(), models.Listing{ID: 7, SellerID: 1})
	require.Error(t, err)
	assert.Equal(t, KindStorage, KindOf(err, ""))
	assert.True(t, IsRetryable(err), "a locked database can clear up before the next attempt")
}

func TestRegisterOverridesAtRuntime(t *testing.T) {
	r, err := NewRegistry(newStub(), 0, Definition{ID: "shopify", Parse: fixedPrice(10)})
	require.NoError(t, err)

	_, ok, _ := r.Resolve(context.Background(), 3)
	assert.False(t, ok)

	require.NoError(t, r.Register(Definition{ID: "retired", Parse: fixedPrice(5)}))
	require.NoError(t, r.Register(Definition{ID: "shopify", Parse: fixedPrice(20)}))

	parse, err := r.ForListing(context.Background(), models.Listing{ID: 7, SellerID: 1})
	require.NoError(t, err)
	quote, err := parse(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20.0, quote.Price)

	_, ok, _ = r.Resolve(context.Background(), 3)
	assert.True(t, ok)
	assert.Equal(t, []string{"retired", "shopify"}, r.IDs())
}

func TestRegisterRejectsIncompleteDefinitions(t *testing.T) {
	r, err := NewRegistry(newStub(), 0)
	require.NoError(t, err)
	assert.Error(t, r.Register(Definition{Parse: fixedPrice(1)}))
	assert.Error(t, r.Register(Definition{ID: "x"}))
}

func TestForListingNoScraper(t *testing.T) {
	r, err := NewRegistry(newStub(), 0)
	require.NoError(t, err)

	_, err = r.ForListing(context.Background(), models.Listing{ID: 4, SellerID: 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scraper found")

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindConfiguration, se.Kind)
	assert.Equal(t, int64(4), se.ListingID)
	assert.False(t, IsRetryable(err))
}

func TestForListingMalformedMetadata(t *testing.T) {
	def := Definition{
		ID:    "shopify",
		Parse: fixedPrice(1),
		Validate: func(meta models.Metadata) error {
			var m struct {
				Index *int `json:"variant_index"`
			}
			if err := meta.Decode(&m); err != nil {
				return err
			}
			if m.Index == nil {
				return errors.New("variant_index is required")
			}
			return nil
		},
	}
	r, err := NewRegistry(newStub(), 0, def)
	require.NoError(t, err)

	_, err = r.ForListing(context.Background(), models.Listing{ID: 1, SellerID: 1, Metadata: models.Metadata(`{}`)})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err, ""))
	assert.Contains(t, err.Error(), "variant_index is required")

	_, err = r.ForListing(context.Background(), models.Listing{ID: 1, SellerID: 1, Metadata: models.Metadata(`{"variant_index":1}`)})
	assert.NoError(t, err)
}

func TestSellerLookupsAreCached(t *testing.T) {
	stub := newStub()
	r, err := NewRegistry(stub, time.Minute, Definition{ID: "shopify", Parse: fixedPrice(1)})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, ok, err := r.Resolve(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, stub.calls)

	// Unknown sellers are looked up every time so new catalog rows show up.
	r.Resolve(context.Background(), 99)
	r.Resolve(context.Background(), 99)
	assert.Equal(t, 3, stub.calls)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("net::ERR_TIMED_OUT")
	err := Wrap(KindNavigation, base, "goto %s", "https://example.com")
	assert.Equal(t, "goto https://example.com: net::ERR_TIMED_OUT", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, err.Retryable())

	assert.True(t, Errorf(KindProtocol, "listing not active").Retryable())
	assert.False(t, Errorf(KindConfiguration, "no scraper").Retryable())
	assert.True(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
	assert.Equal(t, KindParsing, KindOf(base, KindParsing))
}
