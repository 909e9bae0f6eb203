package sellers

import (
	"context"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/models"
	"PriceTracker/internal/scraper"
)

var (
	// The element with class priceToPay holds the price the customer pays.
	amazonPriceSelectors = []string{
		".priceToPay .a-offscreen",
		"#corePrice_feature_div .a-offscreen",
	}
	amazonAvailabilitySelectors = []string{
		"#availability",
		".a-section.a-spacing-none span.a-size-medium",
	}
	amazonOutOfStock = []string{"currently unavailable", "out of stock"}
)

// Amazon reads Amazon product detail pages. It takes no metadata.
func Amazon() scraper.Definition {
	return scraper.Definition{
		ID:    "amazon",
		Parse: parseAmazon,
	}
}

func parseAmazon(ctx context.Context, page browser.Page, _ models.Metadata) (models.Quote, error) {
	text, _, err := firstText(ctx, page, amazonPriceSelectors...)
	if err != nil {
		return models.Quote{}, scraper.Wrap(scraper.KindParsing, err, "amazon price element")
	}
	price, err := parsePrice(text, "")
	if err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{Price: price, InStock: true}
	if availability, _, err := firstText(ctx, page, amazonAvailabilitySelectors...); err == nil {
		quote.InStock = !containsFold(availability, amazonOutOfStock...)
	}
	return quote, nil
}
