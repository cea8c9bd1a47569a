package validation

import "strings"

// htmlSignificant are the characters stripped from stored text fields to
// prevent stored XSS when entries are later rendered. Removal (rather than
// escaping) keeps Sanitize idempotent.
const htmlSignificant = "<>\"'`"

// Sanitize trims whitespace and strips HTML-significant characters.
// Sanitize(Sanitize(x)) == Sanitize(x) for every input.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !strings.ContainsRune(htmlSignificant, r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
