// Package sellers holds the built-in seller parsers.
package sellers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"

	"PriceTracker/internal/browser"
	"PriceTracker/internal/scraper"
	"PriceTracker/utils"
)

// Builtin returns every parser shipped with the scraper.
func Builtin() []scraper.Definition {
	return []scraper.Definition{
		Amazon(),
		Selector(),
		Variant(),
	}
}

// firstText returns the text of the first selector that matches.
func firstText(ctx context.Context, page browser.Page, selectors ...string) (string, string, error) {
	var lastErr error
	for _, sel := range selectors {
		text, err := page.Text(ctx, sel)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), sel, nil
		}
		if err == nil {
			err = errors.New("empty text in " + sel)
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		lastErr = err
	}
	return "", "", lastErr
}

// compileSelector rejects CSS that no page could ever match, so a typo in a
// listing's metadata fails at resolution instead of on every page load.
func compileSelector(field, sel string) error {
	if _, err := cascadia.Compile(sel); err != nil {
		return fmt.Errorf("%s %q: %w", field, sel, err)
	}
	return nil
}

func parsePrice(text, prefix string) (float64, error) {
	if prefix != "" {
		stripped, err := utils.StripPrefix(text, prefix)
		if err != nil {
			return 0, scraper.Wrap(scraper.KindParsing, err, "strip price prefix")
		}
		text = stripped
	}
	price, err := utils.ParsePrice(text)
	if err != nil {
		return 0, scraper.Wrap(scraper.KindParsing, err, "parse price %q", text)
	}
	return price, nil
}

// containsFold reports whether text contains any of the phrases, ignoring case.
func containsFold(text string, phrases ...string) bool {
	text = strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
