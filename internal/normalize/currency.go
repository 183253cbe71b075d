package normalize

import (
	"strings"
)

// currencySymbols is the closed set of symbols we translate. Ambiguous
// symbols such as a bare "$" or "¥" are deliberately absent.
var currencySymbols = map[string]string{
	"€":   "EUR",
	"£":   "GBP",
	"HK$": "HKD",
	"US$": "USD",
	"A$":  "AUD",
	"C$":  "CAD",
	"S$":  "SGD",
}

// CurrencyCode returns an upper-case ISO 4217 style code for v. It accepts
// the symbols above and any three-letter alphabetic code; everything else is
// rejected rather than guessed.
func CurrencyCode(v any) (string, bool) {
	s := CleanText(v)
	if s == "" {
		return "", false
	}
	if code, ok := currencySymbols[strings.ToUpper(s)]; ok {
		return code, true
	}
	if len(s) != 3 {
		return "", false
	}
	for i := 0; i < 3; i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}
