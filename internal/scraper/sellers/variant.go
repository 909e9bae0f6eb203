package sellers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/models"
	"PriceTracker/internal/scraper"
)

// VariantMetadata picks one entry from a page that lists several variants
// (storage sizes, colours) of a device, each carrying its own price.
type VariantMetadata struct {
	VariantIndex    *int   `json:"variant_index"`
	VariantSelector string `json:"variant_selector,omitempty"`
	PriceAttr       string `json:"price_attr,omitempty"`
	// StockAttr holds "false" or "0" on sold-out variants.
	StockAttr string `json:"stock_attr,omitempty"`
}

// Variant reads the variant at variant_index from the page HTML.
func Variant() scraper.Definition {
	return scraper.Definition{
		ID:    "variant",
		Parse: parseVariant,
		Validate: func(meta models.Metadata) error {
			_, err := decodeVariant(meta)
			return err
		},
	}
}

func decodeVariant(meta models.Metadata) (VariantMetadata, error) {
	var m VariantMetadata
	if err := meta.Decode(&m); err != nil {
		return m, fmt.Errorf("decode variant metadata: %w", err)
	}
	if m.VariantIndex == nil {
		return m, errors.New("variant_index is required")
	}
	if *m.VariantIndex < 0 {
		return m, fmt.Errorf("variant_index must be >= 0, got %d", *m.VariantIndex)
	}
	if m.VariantSelector == "" {
		m.VariantSelector = "[data-variant]"
	}
	if err := compileSelector("variant_selector", m.VariantSelector); err != nil {
		return m, err
	}
	if m.PriceAttr == "" {
		m.PriceAttr = "data-price"
	}
	if m.StockAttr == "" {
		m.StockAttr = "data-available"
	}
	return m, nil
}

func parseVariant(_ context.Context, page browser.Page, meta models.Metadata) (models.Quote, error) {
	m, err := decodeVariant(meta)
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindConfiguration, err, "variant scraper")
	}

	html, err := page.HTML()
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindParsing, err, "read page html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindParsing, err, "parse page html")
	}

	variants := doc.Find(m.VariantSelector)
	if *m.VariantIndex >= variants.Length() {
		return models.Quote{}, scraper.Errorf(scraper.KindParsing, "variant %d not found, page lists %d", *m.VariantIndex, variants.Length())
	}
	v := variants.Eq(*m.VariantIndex)

	text, ok := v.Attr(m.PriceAttr)
	if !ok {
		text = v.Text()
	}
	price, err := parsePrice(strings.TrimSpace(text), "")
	if err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{Price: price, InStock: true}
	if stock, ok := v.Attr(m.StockAttr); ok {
		s := strings.ToLower(strings.TrimSpace(stock))
		quote.InStock = s != "false" && s != "0"
	}
	return quote, nil
}
