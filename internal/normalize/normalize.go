// Package normalize cleans email text before it is sent to the classifier.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// keep reports whether r survives cleanup: letters, digits, underscore, any
// Unicode whitespace and the punctuation . , ! ? @
func keep(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune("_.,!?@", r)
}

// Text strips punctuation noise and collapses whitespace runs into a single
// space. It is idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
