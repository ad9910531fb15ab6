package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

// HTMLEngine extracts items from static listing pages using the
// selectors in the extraction config.
type HTMLEngine struct {
	fetcher   *Fetcher
	converter *md.Converter
	logger    arbor.ILogger
}

func NewHTMLEngine(fetcher *Fetcher) *HTMLEngine {
	return &HTMLEngine{
		fetcher:   fetcher,
		converter: md.NewConverter("", true, nil),
		logger:    common.GetLogger(),
	}
}

func (e *HTMLEngine) Type() models.EngineType {
	return models.EngineHTML
}

func (e *HTMLEngine) Extract(ctx context.Context, pageURL string, cfg models.ExtractionConfig) ([]models.RawItem, error) {
	if cfg.ItemSelector == "" {
		return nil, fmt.Errorf("html engine requires item_selector for %s", pageURL)
	}

	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	return e.extractFromHTML(pageURL, body, cfg)
}

// extractFromHTML is shared with the browser engine, which supplies
// rendered HTML instead of a raw fetch.
func (e *HTMLEngine) extractFromHTML(pageURL string, body []byte, cfg models.ExtractionConfig) ([]models.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %s: %w", pageURL, err)
	}

	var items []models.RawItem
	doc.Find(cfg.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		item := models.RawItem{
			Title:   selectText(sel, cfg.TitleSelector),
			Summary: e.selectMarkdown(sel, cfg.SummarySelector),
			Link:    resolveLink(base, selectHref(sel, cfg.LinkSelector)),
		}
		if item.Title == "" && item.Link == "" {
			return
		}
		items = append(items, item)
	})

	e.logger.Debug().
		Str("page", pageURL).
		Str("item_selector", cfg.ItemSelector).
		Int("extracted", len(items)).
		Msg("HTML page scraped")

	return items, nil
}

// selectMarkdown converts the matched element's inner HTML to markdown
// so summaries keep basic structure without tags.
func (e *HTMLEngine) selectMarkdown(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	target := sel.Find(selector).First()
	if target.Length() == 0 {
		return ""
	}

	html, err := target.Html()
	if err != nil {
		return strings.TrimSpace(target.Text())
	}

	markdown, err := e.converter.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(target.Text())
	}
	return strings.TrimSpace(markdown)
}

func selectText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

// selectHref resolves the anchor within the item. An empty selector
// means the item element itself carries the href.
func selectHref(sel *goquery.Selection, selector string) string {
	target := sel
	if selector != "" {
		target = sel.Find(selector).First()
	}
	if href, ok := target.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if href, ok := target.Find("a").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
