package symbol

import (
	"strings"
)

// Suffix order matters: the dotted/dashed variants must be tried before the
// bare "PERP" so "BTCUSDT.PERP" loses the dot along with the marker.
var perpetualSuffixes = []string{".PERP", "-PERP", "_PERP", "PERP", ".P"}

// Normalize converts a charting-platform ticker into the plain futures
// symbol the exchange expects: drops an exchange prefix ("BINANCE:BTCUSDT"),
// strips a perpetual-contract marker from the end ("BTCUSDT.P",
// "ETHUSDT-PERP"), and upper-cases. Returns "" when nothing usable remains.
//
// Only exact end-of-string markers are removed; the quote currency is never
// rewritten, so "ETHUSDT-PERP" yields "ETHUSDT" and never "ETHUSDTUSDT".
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}

	for _, suffix := range perpetualSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}

	return strings.TrimSpace(s)
}

// IsValid reports whether the raw ticker normalizes to a non-empty symbol.
func IsValid(raw string) bool {
	return Normalize(raw) != ""
}
