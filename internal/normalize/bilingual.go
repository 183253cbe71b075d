package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// bilingualSep splits composites such as "ABC Ltd (ABC有限公司)" or
// "Foo / 富" into their parts. ASCII hyphens only split when surrounded by
// spaces so that "Coca-Cola" stays whole.
var bilingualSep = regexp.MustCompile(`[()（）\[\]【】{}<>《》/／|｜•·・]|\s+-\s+|[–—]`)

// SplitBilingualCandidates returns raw followed by every part of at least two
// characters, deduplicated in order.
func SplitBilingualCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := []string{raw}
	seen := map[string]bool{raw: true}
	for _, part := range bilingualSep.Split(raw, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) < 2 || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// scriptRatio returns the share of letters in s that belong to table.
func scriptRatio(s string, table *unicode.RangeTable) float64 {
	var letters, hits int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(table, r) {
			hits++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hits) / float64(letters)
}

// ChooseLocalePreferredName picks the variant of a possibly bilingual name
// that matches the tenant locale: the most Han-heavy candidate for zh
// locales, the most Latin-heavy for en. Ties go to the longer candidate. When
// no candidate contains the preferred script, or the locale is neither, the
// trimmed raw value is returned.
func ChooseLocalePreferredName(value, locale string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}

	var table *unicode.RangeTable
	switch loc := strings.ToLower(locale); {
	case strings.HasPrefix(loc, "zh"):
		table = unicode.Han
	case strings.HasPrefix(loc, "en"):
		table = unicode.Latin
	default:
		return raw
	}

	best, bestScore := raw, 0.0
	for _, cand := range SplitBilingualCandidates(raw) {
		score := scriptRatio(cand, table)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && utf8.RuneCountInString(cand) > utf8.RuneCountInString(best)) {
			best, bestScore = cand, score
		}
	}
	if bestScore == 0 {
		return raw
	}
	return best
}
