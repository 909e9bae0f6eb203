package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoPrice is returned when a string holds nothing that looks like a price.
var ErrNoPrice = errors.New("no price found")

// priceRegex finds the first number-like run in a string.
// It handles integers (1,079), decimals (119.00) and thousands separators.
var priceRegex = regexp.MustCompile(`\d[\d,.]*`)

// ParsePrice extracts the first price in priceStr, e.g. "List Price: AED 1,219.41".
// Both "1,219.41" and the European "1.219,41" are understood.
func ParsePrice(priceStr string) (float64, error) {
	found := priceRegex.FindString(priceStr)
	if found == "" {
		return 0, fmt.Errorf("%w in %q", ErrNoPrice, priceStr)
	}

	cleaned := normalizeSeparators(strings.TrimRight(found, ".,"))

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q from %q: %w", cleaned, priceStr, err)
	}
	return price, nil
}

// normalizeSeparators turns a number with mixed "," and "." into one
// strconv understands. The right-most separator followed by one or two
// digits is treated as the decimal point. A lone separator followed by
// exactly three digits groups thousands, so "1.299" and "1,299" are both 1299.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	decimal := -1
	switch {
	case lastComma > lastDot && len(s)-lastComma-1 <= 2:
		decimal = lastComma
	case lastDot > lastComma && len(s)-lastDot-1 <= 2:
		decimal = lastDot
	case lastDot > lastComma && strings.Count(s, ".") == 1 && lastComma == -1 && len(s)-lastDot-1 != 3:
		decimal = lastDot
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case i == decimal:
			b.WriteRune('.')
		case r == ',' || r == '.':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripPrefix removes prefix from text after trimming whitespace.
// It fails when the prefix is not there, which usually means the page changed.
func StripPrefix(text, prefix string) (string, error) {
	text = strings.TrimSpace(text)
	if prefix == "" {
		return text, nil
	}
	if !strings.HasPrefix(text, prefix) {
		return "", fmt.Errorf("expected prefix %q in %q", prefix, text)
	}
	return strings.TrimSpace(strings.TrimPrefix(text, prefix)), nil
}
