package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// PageFetcher fetches raw page HTML. The plain HTTP fetcher satisfies
// it; the worker optionally holds a browser renderer for pages that
// defeat plain fetches.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageRenderer renders a page with JavaScript executed.
type PageRenderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// Worker handles enrich-stage jobs: fetch the article page, extract
// metadata, persist under the DB semaphore, then fan out the rewrite
// and image jobs. Fan-out happens whether enrichment succeeded or not;
// downstream stages work from original fields when metadata is missing.
type Worker struct {
	content   interfaces.ContentStorage
	queue     interfaces.Enqueuer
	semaphore interfaces.Semaphore
	fetcher   PageFetcher
	renderer  PageRenderer
	logger    arbor.ILogger
}

func NewWorker(
	content interfaces.ContentStorage,
	queue interfaces.Enqueuer,
	semaphore interfaces.Semaphore,
	fetcher PageFetcher,
	renderer PageRenderer,
) *Worker {
	return &Worker{
		content:   content,
		queue:     queue,
		semaphore: semaphore,
		fetcher:   fetcher,
		renderer:  renderer,
		logger:    common.GetLogger(),
	}
}

// HandleMessage is the enrich-stage queue handler.
func (w *Worker) HandleMessage(ctx context.Context, msg models.QueueMessage) error {
	var payload models.ItemPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode enrich payload: %w", err)
	}
	return w.Process(ctx, payload)
}

// Process enriches one item end to end.
func (w *Worker) Process(ctx context.Context, payload models.ItemPayload) error {
	item, err := w.content.Get(ctx, payload.ContentID)
	if err != nil {
		return fmt.Errorf("load content %s: %w", payload.ContentID, err)
	}

	if item.EnrichmentStatus != models.EnrichmentPending {
		w.logger.Warn().
			Str("content_id", item.ID).
			Str("status", string(item.EnrichmentStatus)).
			Msg("Enrichment already terminal, fanning out only")
		return w.fanOut(ctx, item.ID, payload.RunID)
	}

	if item.SourceURL == "" {
		// Nothing to fetch: enrichment is advisory, mark it done and
		// let downstream stages use the original fields.
		if err := item.AdvanceEnrichment(models.EnrichmentDone); err != nil {
			return err
		}
		if err := w.persist(ctx, item); err != nil {
			return err
		}
		return w.fanOut(ctx, item.ID, payload.RunID)
	}

	// Network work happens outside the semaphore.
	meta, enrichErr := w.enrich(ctx, item)

	if enrichErr != nil {
		if err := item.AdvanceEnrichment(models.EnrichmentFailed); err != nil {
			return err
		}
		item.EnrichmentError = enrichErr.Error()
		w.logger.Warn().Err(enrichErr).Str("content_id", item.ID).Msg("Enrichment failed")
	} else {
		if err := item.AdvanceEnrichment(models.EnrichmentDone); err != nil {
			return err
		}
		item.CanonicalURL = meta.CanonicalURL
		item.SiteName = meta.SiteName
		item.OGImageURL = meta.OGImageURL
		item.TwitterImageURL = meta.TwitterImageURL
	}

	if err := w.persist(ctx, item); err != nil {
		return err
	}

	return w.fanOut(ctx, item.ID, payload.RunID)
}

// enrich fetches the article page and extracts its metadata, falling
// back to a browser render when the plain fetch fails.
func (w *Worker) enrich(ctx context.Context, item *models.ContentItem) (*PageMetadata, error) {
	html, err := w.fetcher.Fetch(ctx, item.SourceURL)
	if err != nil {
		if w.renderer == nil {
			return nil, err
		}
		w.logger.Debug().Err(err).Str("url", item.SourceURL).Msg("Plain fetch failed, rendering with browser")
		rendered, renderErr := w.renderer.Render(ctx, item.SourceURL, "")
		if renderErr != nil {
			return nil, fmt.Errorf("fetch failed (%v) and render failed: %w", err, renderErr)
		}
		html = []byte(rendered)
	}

	return ExtractMetadata(item.SourceURL, html)
}

// persist updates the item while holding a DB semaphore slot.
func (w *Worker) persist(ctx context.Context, item *models.ContentItem) error {
	token, err := w.semaphore.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire enrich semaphore: %w", err)
	}
	defer func() {
		if err := w.semaphore.Release(context.WithoutCancel(ctx), token); err != nil {
			w.logger.Warn().Err(err).Str("content_id", item.ID).Msg("Semaphore release failed")
		}
	}()

	if err := w.content.Update(ctx, item); err != nil {
		return fmt.Errorf("persist enrichment for %s: %w", item.ID, err)
	}
	return nil
}

// fanOut enqueues the rewrite and image jobs for the item.
func (w *Worker) fanOut(ctx context.Context, contentID, runID string) error {
	for _, stage := range []models.Stage{models.StageRewrite, models.StageImage} {
		msg, err := models.NewItemMessage(common.NewJobID(), stage, models.ItemPayload{
			ContentID: contentID,
			RunID:     runID,
		})
		if err != nil {
			return fmt.Errorf("build %s message: %w", stage, err)
		}
		if err := w.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s job: %w", stage, err)
		}
	}
	return nil
}
