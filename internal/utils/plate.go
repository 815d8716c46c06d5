package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate reduces an OCR plate reading to its canonical form:
// letters and digits only, uppercased. Spaces, dashes, dots and any other
// punctuation cameras tend to emit are stripped.
func NormalizePlate(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
