package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	legalSuffix = regexp.MustCompile(`\b(inc|corp|corporation|ltd|limited|llc|co|company)\b\.?$`)
)

// CompanyKey reduces a company name to the key used for duplicate grouping:
// accents folded, lowercase, whitespace collapsed, one trailing legal-entity suffix removed.
// The key is a heuristic; unrelated companies can collide and real duplicates can differ.
func CompanyKey(name string) string {
	s := cases.Lower(language.Und).String(FoldAccents(name))
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = legalSuffix.ReplaceAllString(s, "")
	return strings.TrimRight(s, " ,.")
}

// FoldAccents strips combining marks ("Café" -> "Cafe"). On transform failure the input is
// returned unchanged.
func FoldAccents(s string) string {
	// Transformers carry state, so build a fresh chain per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
