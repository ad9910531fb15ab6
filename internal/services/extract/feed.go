package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

// FeedEngine extracts items from RSS and Atom feeds.
type FeedEngine struct {
	fetcher *Fetcher
	parser  *gofeed.Parser
	logger  arbor.ILogger
}

func NewFeedEngine(fetcher *Fetcher) *FeedEngine {
	return &FeedEngine{
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
		logger:  common.GetLogger(),
	}
}

func (e *FeedEngine) Type() models.EngineType {
	return models.EngineFeed
}

func (e *FeedEngine) Extract(ctx context.Context, url string, _ models.ExtractionConfig) ([]models.RawItem, error) {
	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	parsed, err := e.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := make([]models.RawItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := feedLink(entry)
		if link == "" {
			e.logger.Debug().Str("feed", url).Str("title", entry.Title).Msg("Skipping feed entry without link")
			continue
		}

		item := models.RawItem{
			Title:   strings.TrimSpace(entry.Title),
			Summary: strings.TrimSpace(entry.Description),
			Link:    link,
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		}

		items = append(items, item)
	}

	e.logger.Debug().
		Str("feed", url).
		Int("entries", len(parsed.Items)).
		Int("extracted", len(items)).
		Msg("Feed parsed")

	return items, nil
}

// feedLink returns the best available URL from a feed entry, preferring
// the explicit Link field and falling back to an HTTP-looking GUID.
func feedLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}
