package sellers

import (
	"context"
	"errors"
	"fmt"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/models"
	"PriceTracker/internal/scraper"
)

const defaultOutOfStockText = "out of stock"

// SelectorMetadata configures the generic CSS-selector parser.
type SelectorMetadata struct {
	PriceSelector string `json:"price_selector"`
	// Prefix must lead the price text and is removed before parsing.
	Prefix         string `json:"prefix,omitempty"`
	StockSelector  string `json:"stock_selector,omitempty"`
	OutOfStockText string `json:"out_of_stock_text,omitempty"`
}

// Selector reads shops whose price sits in one element described by the
// listing's metadata.
func Selector() scraper.Definition {
	return scraper.Definition{
		ID:    "selector",
		Parse: parseSelector,
		Validate: func(meta models.Metadata) error {
			_, err := decodeSelector(meta)
			return err
		},
	}
}

func decodeSelector(meta models.Metadata) (SelectorMetadata, error) {
	var m SelectorMetadata
	if err := meta.Decode(&m); err != nil {
		return m, fmt.Errorf("decode selector metadata: %w", err)
	}
	if m.PriceSelector == "" {
		return m, errors.New("price_selector is required")
	}
	if err := compileSelector("price_selector", m.PriceSelector); err != nil {
		return m, err
	}
	if m.StockSelector != "" {
		if err := compileSelector("stock_selector", m.StockSelector); err != nil {
			return m, err
		}
	}
	if m.OutOfStockText == "" {
		m.OutOfStockText = defaultOutOfStockText
	}
	return m, nil
}

func parseSelector(ctx context.Context, page browser.Page, meta models.Metadata) (models.Quote, error) {
	m, err := decodeSelector(meta)
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindConfiguration, err, "selector scraper")
	}

	text, _, err := firstText(ctx, page, m.PriceSelector)
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindParsing, err, "price element %s", m.PriceSelector)
	}
	price, err := parsePrice(text, m.Prefix)
	if err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{Price: price, InStock: true}
	if m.StockSelector != "" {
		if stock, err := page.Text(ctx, m.StockSelector); err == nil {
			quote.InStock = !containsFold(stock, m.OutOfStockText)
		}
	}
	return quote, nil
}
