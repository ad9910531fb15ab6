package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/ternarybob/newswire/internal/models"
)

// fieldDelimiter joins normalized fields before digesting. Fixed so the
// fingerprint is stable across versions.
const fieldDelimiter = "\x1f"

// Fingerprint computes the dedupe hash for a normalized item. Two items
// are "the same content" iff their normalized source fields are
// byte-identical - intentionally strict, no fuzzy matching. This is the
// sole source of truth for dedupe.
func Fingerprint(item models.NormalizedItem) string {
	parts := []string{
		normalize(item.SourceID),
		normalize(item.Category),
		normalize(item.Title),
		normalize(item.Summary),
		normalize(item.SourceURL),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, fieldDelimiter)))
	return hex.EncodeToString(sum[:])
}

// RewriteKey computes the rewrite idempotency key. Unchanged inputs
// produce the same key, letting the rewrite worker skip repeat LLM calls.
func RewriteKey(contentHash, promptVersion, model string) string {
	sum := sha256.Sum256([]byte(contentHash + fieldDelimiter + promptVersion + fieldDelimiter + model))
	return hex.EncodeToString(sum[:])
}

// QueryKey hashes a normalized search query plus a provider-version tag
// for the image-search cache.
func QueryKey(query, providerTag string) string {
	sum := sha256.Sum256([]byte(normalize(query) + fieldDelimiter + providerTag))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases, trims, collapses internal whitespace and strips
// control characters.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	return b.String()
}
