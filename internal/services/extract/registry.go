package extract

import (
	"fmt"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// Registry holds the configured extraction engines keyed by type.
type Registry struct {
	engines map[models.EngineType]interfaces.ExtractionEngine
	browser *BrowserEngine
}

// NewRegistry wires up all engines from the crawler and firecrawl
// config. Every engine type is registered; unusable ones (firecrawl
// without a key) fail at extraction time with a clear error.
func NewRegistry(crawlerCfg common.CrawlerConfig, firecrawlCfg common.FirecrawlConfig) *Registry {
	fetcher := NewFetcher(crawlerCfg)
	htmlEngine := NewHTMLEngine(fetcher)
	browserEngine := NewBrowserEngine(crawlerCfg, htmlEngine)

	r := &Registry{
		engines: make(map[models.EngineType]interfaces.ExtractionEngine),
		browser: browserEngine,
	}
	r.register(NewFeedEngine(fetcher))
	r.register(htmlEngine)
	r.register(browserEngine)
	r.register(NewFirecrawlEngine(firecrawlCfg))
	return r
}

func (r *Registry) register(engine interfaces.ExtractionEngine) {
	r.engines[engine.Type()] = engine
}

// Engine returns the engine for the given type.
func (r *Registry) Engine(engineType models.EngineType) (interfaces.ExtractionEngine, error) {
	engine, ok := r.engines[engineType]
	if !ok {
		return nil, fmt.Errorf("unknown extraction engine %q", engineType)
	}
	return engine, nil
}

// Browser exposes the shared browser engine for callers that need raw
// page rendering outside listing extraction.
func (r *Registry) Browser() *BrowserEngine {
	return r.browser
}

// Close releases engine resources.
func (r *Registry) Close() {
	r.browser.Close()
}
