package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected float64
	}{
		{"Standard Price", "AED 1,079.00", 1079.00},
		{"Price with Comma", "AED 2,550.50", 2550.50},
		{"Price without Comma", "AED 350.75", 350.75},
		{"Integer Price", "AED 99", 99.0},
		{"Dollar Sign", "$49.99", 49.99},
		{"European Decimal", "1.219,41 €", 1219.41},
		{"Thousands Only", "1,079", 1079},
		{"Many Thousands", "1.234.567", 1234567},
		{"European Thousands", "1.299 €", 1299},
		{"Three Decimals", "0.1299", 0.1299},
		{"Trailing Dot", "Price: 49.", 49},
		{"Surrounding Text", "List Price: AED 219.41 incl. VAT", 219.41},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParsePrice(tc.input)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 1e-9)
		})
	}
}

func TestParsePriceFailures(t *testing.T) {
	for _, input := range []string{"", "No Price", "€"} {
		_, err := ParsePrice(input)
		assert.ErrorIs(t, err, ErrNoPrice, input)
	}
}

func TestStripPrefix(t *testing.T) {
	got, err := StripPrefix("  Now: $44.99 ", "Now:")
	require.NoError(t, err)
	assert.Equal(t, "$44.99", got)

	got, err = StripPrefix(" 12 ", "")
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	_, err = StripPrefix("Was: $50", "Now:")
	assert.Error(t, err)
}
