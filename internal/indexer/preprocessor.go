package indexer

import (
	"strings"
	"unicode"
)

// Preprocess cleans a fragment before it is embedded: whitespace runs collapse to one
// space, and control and format characters (zero-width spaces, BOMs, stray OCR
// control codes) are dropped.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
