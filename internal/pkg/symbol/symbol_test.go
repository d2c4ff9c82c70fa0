package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"tradingview perpetual", "BINANCE:BTCUSDT.P", "BTCUSDT"},
		{"dash perp marker", "ETHUSDT-PERP", "ETHUSDT"},
		{"dotted perp marker", "SOLUSDT.PERP", "SOLUSDT"},
		{"bare perp marker", "BTCUSDTPERP", "BTCUSDT"},
		{"underscore perp marker", "ETHUSDT_PERP", "ETHUSDT"},
		{"prefix only", "BYBIT:ETHUSDT", "ETHUSDT"},
		{"plain symbol untouched", "BTCUSDT", "BTCUSDT"},
		{"lower case input", "binance:btcusdt.p", "BTCUSDT"},
		{"surrounding whitespace", "  SOLUSDT.P  ", "SOLUSDT"},
		{"empty", "", ""},
		{"prefix with empty remainder", "BINANCE:", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeDoesNotDuplicateQuote(t *testing.T) {
	// The marker must be trimmed, never substituted, so the quote currency
	// cannot end up doubled.
	got := Normalize("ETHUSDT-PERP")
	assert.Equal(t, "ETHUSDT", got)
	assert.NotEqual(t, "ETHUSDTUSDT", got)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("BINANCE:BTCUSDT.P"))
	assert.False(t, IsValid("   "))
	assert.False(t, IsValid("OKX:"))
}
