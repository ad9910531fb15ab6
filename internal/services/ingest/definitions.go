package ingest

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/newswire/internal/models"
)

// sourcesFile is the top-level shape of sources.yaml.
type sourcesFile struct {
	Sources []models.SourceDefinition `yaml:"sources"`
}

// LoadDefinitions reads and validates the source definition file.
// Disabled sources are kept so the API can list them; callers filter
// on Enabled where it matters.
func LoadDefinitions(path string) ([]models.SourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source definitions %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse source definitions %s: %w", path, err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("source definitions %s: no sources defined", path)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		def := &file.Sources[i]
		if err := validate.Struct(def); err != nil {
			return nil, fmt.Errorf("source definition %q invalid: %w", def.ID, err)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("source definitions %s: duplicate source id %q", path, def.ID)
		}
		seen[def.ID] = true

		if err := validateExtraction(def); err != nil {
			return nil, err
		}
	}

	return file.Sources, nil
}

// validateExtraction checks the engine-specific config constraints the
// struct tags cannot express.
func validateExtraction(def *models.SourceDefinition) error {
	switch def.Extraction.Engine {
	case models.EngineFeed:
		// selectors unused
	case models.EngineHTML, models.EngineBrowser:
		if def.Extraction.ItemSelector == "" {
			return fmt.Errorf("source %q: engine %s requires item_selector", def.ID, def.Extraction.Engine)
		}
	case models.EngineFirecrawl:
		if len(def.Extraction.Schema) == 0 {
			return fmt.Errorf("source %q: firecrawl engine requires a schema", def.ID)
		}
	default:
		return fmt.Errorf("source %q: unknown extraction engine %q", def.ID, def.Extraction.Engine)
	}
	return nil
}
