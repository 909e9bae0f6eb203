package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"PriceTracker/internal/database"
	"PriceTracker/internal/models"
	"PriceTracker/internal/scraper"
)

// Catalog is the seed file layout.
type Catalog struct {
	Sellers  []models.Seller  `yaml:"sellers"`
	Listings []models.Listing `yaml:"listings"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog YAML: %w", err)
	}

	// Listings are active unless the file says otherwise.
	var flags struct {
		Listings []struct {
			Active *bool `yaml:"active"`
		} `yaml:"listings"`
	}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("unmarshal catalog YAML: %w", err)
	}
	for i, f := range flags.Listings {
		if f.Active == nil && i < len(c.Listings) {
			c.Listings[i].Active = true
		}
	}
	return &c, nil
}

// Validate checks references inside the catalog and every listing's metadata
// against the parser its seller uses. Sellers pointing at an unknown scraper
// id are allowed; the scraper reports them at run time.
func (c *Catalog) Validate(defs []scraper.Definition) error {
	byID := make(map[string]scraper.Definition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	var errs []error
	sellers := make(map[int64]models.Seller, len(c.Sellers))
	for _, s := range c.Sellers {
		switch {
		case s.ID <= 0:
			errs = append(errs, fmt.Errorf("seller %q: id must be positive", s.Name))
		case s.ScraperID == "":
			errs = append(errs, fmt.Errorf("seller %d: scraper_id is required", s.ID))
		}
		sellers[s.ID] = s
	}

	for _, l := range c.Listings {
		if l.ID <= 0 {
			errs = append(errs, fmt.Errorf("listing for %s: id must be positive", l.URL))
			continue
		}
		if l.URL == "" {
			errs = append(errs, fmt.Errorf("listing %d: url is required", l.ID))
		}
		seller, ok := sellers[l.SellerID]
		if !ok {
			errs = append(errs, fmt.Errorf("listing %d: unknown seller %d", l.ID, l.SellerID))
			continue
		}
		if def, ok := byID[seller.ScraperID]; ok && def.Validate != nil {
			if err := def.Validate(l.Metadata); err != nil {
				errs = append(errs, fmt.Errorf("listing %d: %w", l.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply upserts sellers first, then listings, in one transaction: a failing
// row leaves the store as it was.
func (c *Catalog) Apply(ctx context.Context, store database.Store) error {
	return store.WithinTx(ctx, func(tx database.Tx) error {
		for _, s := range c.Sellers {
			if err := tx.SaveSeller(ctx, s); err != nil {
				return fmt.Errorf("seller %d: %w", s.ID, err)
			}
		}
		for _, l := range c.Listings {
			if err := tx.SaveListing(ctx, l); err != nil {
				return fmt.Errorf("listing %d: %w", l.ID, err)
			}
		}
		return nil
	})
}
