// Package scraper maps sellers to the parsers that read prices off their pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/database"
	"PriceTracker/internal/models"
)

// sellerCacheSize bounds the seller -> scraper id cache.
const sellerCacheSize = 1024

// ParseFunc reads a quote off a loaded page. It fails with a descriptive error
// when the price cannot be located or parsed.
type ParseFunc func(ctx context.Context, page browser.Page, meta models.Metadata) (models.Quote, error)

// Parser is a ParseFunc bound to one listing's metadata.
type Parser func(ctx context.Context, page browser.Page) (models.Quote, error)

// Definition registers a parser under a scraper id.
type Definition struct {
	ID    string
	Parse ParseFunc
	// Validate checks a listing's metadata before any page is opened.
	// Nil accepts any metadata.
	Validate func(meta models.Metadata) error
}

// SellerFinder is the part of the store the registry reads.
type SellerFinder interface {
	FindSeller(ctx context.Context, id int64) (*models.Seller, error)
}

// Registry resolves sellers to parsers. Sellers point at a scraper id rather
// than a parser directly, so several shops running the same storefront
// software share one parser.
type Registry struct {
	sellers SellerFinder
	cache   *expirable.LRU[int64, string]

	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns a registry preloaded with defs. Seller lookups are
// cached for ttl; a zero ttl disables the cache.
func NewRegistry(sellers SellerFinder, ttl time.Duration, defs ...Definition) (*Registry, error) {
	r := &Registry{
		sellers: sellers,
		defs:    make(map[string]Definition, len(defs)),
	}
	if ttl > 0 {
		r.cache = expirable.NewLRU[int64, string](sellerCacheSize, nil, ttl)
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a parser or replaces the one already under def.ID.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return errors.New("scraper definition has no id")
	}
	if def.Parse == nil {
		return fmt.Errorf("scraper %q has no parse function", def.ID)
	}
	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
	return nil
}

// IDs lists the registered scraper ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Resolve finds the definition for a seller. ok is false, with a nil error,
// when the seller is unknown or its scraper id has no parser. err is set only
// when the seller lookup itself failed.
func (r *Registry) Resolve(ctx context.Context, sellerID int64) (def Definition, ok bool, err error) {
	scraperID, found, err := r.scraperID(ctx, sellerID)
	if err != nil || !found {
		return Definition{}, false, err
	}
	r.mu.RLock()
	def, ok = r.defs[scraperID]
	r.mu.RUnlock()
	return def, ok, nil
}

// ForListing resolves the listing's seller and binds the parser to the
// listing's metadata. A missing parser or malformed metadata yields a
// configuration error; a failed seller lookup a storage error.
func (r *Registry) ForListing(ctx context.Context, l models.Listing) (Parser, error) {
	def, ok, err := r.Resolve(ctx, l.SellerID)
	if err != nil {
		return nil, &Error{Kind: KindStorage, ListingID: l.ID, Message: fmt.Sprintf("look up seller %d", l.SellerID), Err: err}
	}
	if !ok {
		return nil, &Error{Kind: KindConfiguration, ListingID: l.ID, Message: fmt.Sprintf("no scraper found for seller %d", l.SellerID)}
	}
	if def.Validate != nil {
		if err := def.Validate(l.Metadata); err != nil {
			return nil, &Error{Kind: KindConfiguration, ListingID: l.ID, Message: fmt.Sprintf("invalid metadata for scraper %q", def.ID), Err: err}
		}
	}
	meta := l.Metadata
	return func(ctx context.Context, page browser.Page) (models.Quote, error) {
		return def.Parse(ctx, page, meta)
	}, nil
}

func (r *Registry) scraperID(ctx context.Context, sellerID int64) (string, bool, error) {
	if r.cache != nil {
		if id, ok := r.cache.Get(sellerID); ok {
			return id, true, nil
		}
	}
	seller, err := r.sellers.FindSeller(ctx, sellerID)
	if errors.Is(err, database.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if r.cache != nil {
		r.cache.Add(sellerID, seller.ScraperID)
	}
	return seller.ScraperID, true, nil
}
