package images

import (
	"strings"
	"unicode"
)

// maxQueryLength bounds the search query sent to billed providers.
const maxQueryLength = 120

// BuildQuery turns an item title and category into a clean search
// query: alphanumerics and spaces only, collapsed whitespace, capped
// length with no mid-word cut.
func BuildQuery(title, category string) string {
	text := title
	if category != "" {
		text = title + " " + category
	}

	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	query := strings.TrimSpace(b.String())
	if len(query) <= maxQueryLength {
		return query
	}

	cut := query[:maxQueryLength]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
