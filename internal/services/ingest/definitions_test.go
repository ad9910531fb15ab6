package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/models"
)

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefinitionsValid(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: toi
    name: Times of India
    category: national
    enabled: true
    schedule: "*/30 * * * *"
    urls:
      - https://example.com/feed.xml
    extraction:
      engine: feed
  - id: scraped
    name: Scraped Site
    category: business
    enabled: false
    urls:
      - https://example.com/markets
    extraction:
      engine: html
      item_selector: "div.story"
      title_selector: "h3"
`)

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "toi", defs[0].ID)
	assert.Equal(t, models.EngineFeed, defs[0].Extraction.Engine)
	assert.False(t, defs[1].Enabled, "disabled sources stay listed")
}

func TestLoadDefinitionsRejectsDuplicateIDs(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: toi
    urls: [https://example.com/a.xml]
    extraction: {engine: feed}
  - id: toi
    urls: [https://example.com/b.xml]
    extraction: {engine: feed}
`)
	_, err := LoadDefinitions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source id")
}

func TestLoadDefinitionsRejectsMissingURLs(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: toi
    urls: []
    extraction: {engine: feed}
`)
	_, err := LoadDefinitions(path)
	assert.Error(t, err)
}

func TestLoadDefinitionsRejectsHTMLWithoutItemSelector(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: scraped
    urls: [https://example.com/markets]
    extraction: {engine: html}
`)
	_, err := LoadDefinitions(path)
	assert.Error(t, err)
}

func TestLoadDefinitionsRejectsFirecrawlWithoutSchema(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: managed
    urls: [https://example.com/page]
    extraction: {engine: firecrawl}
`)
	_, err := LoadDefinitions(path)
	assert.Error(t, err)
}

func TestLoadDefinitionsRejectsUnknownEngine(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: odd
    urls: [https://example.com/page]
    extraction: {engine: telepathy}
`)
	_, err := LoadDefinitions(path)
	assert.Error(t, err)
}

func TestLoadDefinitionsRejectsEmptyFile(t *testing.T) {
	path := writeSources(t, "sources: []\n")
	_, err := LoadDefinitions(path)
	assert.Error(t, err)
}
