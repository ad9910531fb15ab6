package models

import "time"

// EngineType selects the extraction engine for a source.
type EngineType string

const (
	EngineFeed      EngineType = "feed"      // RSS/Atom parser
	EngineHTML      EngineType = "html"      // goquery scraper
	EngineBrowser   EngineType = "browser"   // chromedp headless browser
	EngineFirecrawl EngineType = "firecrawl" // managed crawler API
)

// ExtractionConfig carries engine-specific settings for a source.
type ExtractionConfig struct {
	Engine EngineType `yaml:"engine" json:"engine"`

	// HTML/browser engines
	ItemSelector    string `yaml:"item_selector,omitempty" json:"item_selector,omitempty"`
	TitleSelector   string `yaml:"title_selector,omitempty" json:"title_selector,omitempty"`
	SummarySelector string `yaml:"summary_selector,omitempty" json:"summary_selector,omitempty"`
	LinkSelector    string `yaml:"link_selector,omitempty" json:"link_selector,omitempty"`
	WaitSelector    string `yaml:"wait_selector,omitempty" json:"wait_selector,omitempty"`

	// Firecrawl engine
	Schema map[string]string `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// SourceDefinition describes one external news source. Definitions load
// from sources.yaml; the generic adapter is driven entirely by them.
type SourceDefinition struct {
	ID         string           `yaml:"id" json:"id" validate:"required"`
	Name       string           `yaml:"name" json:"name"`
	Category   string           `yaml:"category" json:"category"`
	URLs       []string         `yaml:"urls" json:"urls" validate:"required,min=1,dive,url"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" validate:"required"`
	Schedule   string           `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Enabled    bool             `yaml:"enabled" json:"enabled"`
}

// NormalizedItem is the adapter output: one raw item reduced to the
// fields the pipeline hashes and persists.
type NormalizedItem struct {
	SourceID    string    `json:"source_id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	SourceURL   string    `json:"source_url"`
	PublishedAt time.Time `json:"published_at"`
	RawPayload  string    `json:"raw_payload,omitempty"`
}

// RawItem is what an extraction engine yields before normalization.
type RawItem struct {
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	Link        string            `json:"link"`
	PublishedAt time.Time         `json:"published_at"`
	Fields      map[string]string `json:"fields,omitempty"`
	Raw         string            `json:"raw,omitempty"`
}
