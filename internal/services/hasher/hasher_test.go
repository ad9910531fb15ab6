package hasher

import (
	"testing"

	"github.com/ternarybob/newswire/internal/models"
)

func baseItem() models.NormalizedItem {
	return models.NormalizedItem{
		SourceID:  "toi",
		Category:  "sports",
		Title:     "India wins match",
		Summary:   "A thrilling finish in the final over.",
		SourceURL: "https://toi.in/x",
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(baseItem())
	b := Fingerprint(baseItem())
	if a != b {
		t.Errorf("same item produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint(baseItem())

	tests := []struct {
		name   string
		mutate func(*models.NormalizedItem)
	}{
		{"title", func(i *models.NormalizedItem) { i.Title = "India loses match" }},
		{"summary", func(i *models.NormalizedItem) { i.Summary = "different" }},
		{"source_url", func(i *models.NormalizedItem) { i.SourceURL = "https://toi.in/y" }},
		{"category", func(i *models.NormalizedItem) { i.Category = "politics" }},
		{"source_id", func(i *models.NormalizedItem) { i.SourceID = "bbc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := baseItem()
			tt.mutate(&item)
			if Fingerprint(item) == base {
				t.Errorf("changing %s did not change the fingerprint", tt.name)
			}
		})
	}
}

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint(baseItem())

	tests := []struct {
		name   string
		mutate func(*models.NormalizedItem)
	}{
		{"case", func(i *models.NormalizedItem) { i.Title = "INDIA WINS MATCH" }},
		{"leading trailing space", func(i *models.NormalizedItem) { i.Title = "  India wins match  " }},
		{"collapsed whitespace", func(i *models.NormalizedItem) { i.Title = "India  wins\t match" }},
		{"control characters", func(i *models.NormalizedItem) { i.Summary = "A thrilling finish in the final over.\x00" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := baseItem()
			tt.mutate(&item)
			if got := Fingerprint(item); got != base {
				t.Errorf("normalization-only change altered the fingerprint")
			}
		})
	}
}

func TestRewriteKey(t *testing.T) {
	k1 := RewriteKey("abc", "v3", "gemini-3-flash-preview")
	k2 := RewriteKey("abc", "v3", "gemini-3-flash-preview")
	if k1 != k2 {
		t.Error("rewrite key is not deterministic")
	}

	if RewriteKey("abc", "v4", "gemini-3-flash-preview") == k1 {
		t.Error("prompt version change did not alter rewrite key")
	}
	if RewriteKey("abc", "v3", "claude-haiku-3-5-20241022") == k1 {
		t.Error("model change did not alter rewrite key")
	}
	if RewriteKey("abd", "v3", "gemini-3-flash-preview") == k1 {
		t.Error("content hash change did not alter rewrite key")
	}
}

func TestQueryKeyNormalizes(t *testing.T) {
	if QueryKey("India Wins Match", "serper-v1") != QueryKey("  india  wins match ", "serper-v1") {
		t.Error("query key should normalize whitespace and case")
	}
	if QueryKey("india wins match", "serper-v1") == QueryKey("india wins match", "serper-v2") {
		t.Error("provider tag should be part of the query key")
	}
}
