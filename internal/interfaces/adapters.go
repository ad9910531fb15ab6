package interfaces

import (
	"context"

	"github.com/ternarybob/newswire/internal/models"
)

// AdapterParams scope one adapter execution.
type AdapterParams struct {
	SourceID string
	Category string
}

// SourceAdapter turns a raw fetch into normalized items. Implementations
// are definition-driven; the pipeline never knows source specifics.
type SourceAdapter interface {
	GetURLs(params AdapterParams) []string
	GetExtractionConfig() models.ExtractionConfig
	Normalize(raw []models.RawItem, params AdapterParams) []models.NormalizedItem
}

// AdapterRegistry resolves adapters by source ID.
type AdapterRegistry interface {
	Adapter(sourceID string) (SourceAdapter, bool)
	Definitions() []models.SourceDefinition
}

// ExtractionEngine fetches one URL and yields raw items according to the
// engine-specific extraction config.
type ExtractionEngine interface {
	Type() models.EngineType
	Extract(ctx context.Context, url string, cfg models.ExtractionConfig) ([]models.RawItem, error)
}

// EngineRegistry resolves extraction engines by type.
type EngineRegistry interface {
	Engine(engineType models.EngineType) (ExtractionEngine, error)
}
