package ingest

import (
	"strings"
	"time"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// definitionAdapter is the single generic adapter implementation. All
// source behavior comes from the definition; there is one adapter type
// for every source.
type definitionAdapter struct {
	def models.SourceDefinition
}

func (a *definitionAdapter) GetURLs(params interfaces.AdapterParams) []string {
	return a.def.URLs
}

func (a *definitionAdapter) GetExtractionConfig() models.ExtractionConfig {
	return a.def.Extraction
}

// Normalize reduces raw items to the hashed and persisted fields. Items
// missing both title and link are dropped; a missing publish time falls
// back to now so feed ordering stays sane.
func (a *definitionAdapter) Normalize(raw []models.RawItem, params interfaces.AdapterParams) []models.NormalizedItem {
	category := params.Category
	if category == "" {
		category = a.def.Category
	}

	items := make([]models.NormalizedItem, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		link := strings.TrimSpace(r.Link)
		if title == "" && link == "" {
			continue
		}

		item := models.NormalizedItem{
			SourceID:    a.def.ID,
			Category:    category,
			Title:       title,
			Summary:     strings.TrimSpace(r.Summary),
			SourceURL:   link,
			PublishedAt: r.PublishedAt,
			RawPayload:  r.Raw,
		}
		if item.PublishedAt.IsZero() {
			item.PublishedAt = time.Now()
		}

		items = append(items, item)
	}

	return items
}

// Registry resolves the definition-driven adapter per source.
type Registry struct {
	adapters    map[string]interfaces.SourceAdapter
	definitions []models.SourceDefinition
}

// NewRegistry builds adapters for every definition, enabled or not.
func NewRegistry(definitions []models.SourceDefinition) *Registry {
	adapters := make(map[string]interfaces.SourceAdapter, len(definitions))
	for _, def := range definitions {
		adapters[def.ID] = &definitionAdapter{def: def}
	}
	return &Registry{adapters: adapters, definitions: definitions}
}

// NewRegistryFromFile loads sources.yaml and builds the registry.
func NewRegistryFromFile(path string) (*Registry, error) {
	definitions, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(definitions), nil
}

func (r *Registry) Adapter(sourceID string) (interfaces.SourceAdapter, bool) {
	adapter, ok := r.adapters[sourceID]
	return adapter, ok
}

func (r *Registry) Definitions() []models.SourceDefinition {
	return r.definitions
}

// Definition returns the raw definition for a source ID.
func (r *Registry) Definition(sourceID string) (models.SourceDefinition, bool) {
	for _, def := range r.definitions {
		if def.ID == sourceID {
			return def, true
		}
	}
	return models.SourceDefinition{}, false
}
