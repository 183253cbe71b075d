// Package normalize cleans and canonicalizes free-text values returned by
// vision providers: party names, currency codes, dates, amounts and domains.
package normalize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CleanText trims a string value. Anything that is not a string yields "".
func CleanText(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// hyphens maps Unicode dash and hyphen variants onto ASCII '-'.
var hyphens = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
	"−", "-", // minus sign
	"﹘", "-",
	"﹣", "-",
	"－", "-",
)

// CompanyName produces a lowercase ASCII key used only for fuzzy containment
// checks between party names. It is never shown to users.
//
// NFKC folding runs first so that full-width Latin ("ＡＢＣ") survives as
// "abc" instead of being stripped.
func CompanyName(v any) string {
	s := CleanText(v)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = hyphens.Replace(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '&', r == '.', r == '-':
			b.WriteRune(r)
			space = false
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// NameIncludes reports whether one name contains the other, ignoring case.
// Both names must be at least two characters long after trimming so that a
// single letter never matches everything.
func NameIncludes(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if utf8.RuneCountInString(a) < 2 || utf8.RuneCountInString(b) < 2 {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// NamesMatch reports whether an extracted party name refers to any of the
// given tenant names. The raw values and their normalized keys are both
// compared, and bilingual composites are split first.
func NamesMatch(extracted string, names []string) bool {
	if strings.TrimSpace(extracted) == "" {
		return false
	}
	for _, cand := range SplitBilingualCandidates(extracted) {
		key := CompanyName(cand)
		for _, n := range names {
			if NameIncludes(cand, n) {
				return true
			}
			if NameIncludes(key, CompanyName(n)) {
				return true
			}
		}
	}
	return false
}
