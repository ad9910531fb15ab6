package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/hasher"
)

// maxRunErrors caps how many per-URL and per-item failure messages a
// run record keeps.
const maxRunErrors = 50

// Processor executes ingestion runs: extract, normalize, dedupe by
// content hash, persist, and fan out one enrich job per new item.
type Processor struct {
	registry interfaces.AdapterRegistry
	engines  interfaces.EngineRegistry
	content  interfaces.ContentStorage
	runs     interfaces.RunStorage
	queue    interfaces.Enqueuer
	logger   arbor.ILogger
}

func NewProcessor(
	registry interfaces.AdapterRegistry,
	engines interfaces.EngineRegistry,
	content interfaces.ContentStorage,
	runs interfaces.RunStorage,
	queue interfaces.Enqueuer,
) *Processor {
	return &Processor{
		registry: registry,
		engines:  engines,
		content:  content,
		runs:     runs,
		queue:    queue,
		logger:   common.GetLogger(),
	}
}

// StartRun creates a queued run record and enqueues the ingest job.
func (p *Processor) StartRun(ctx context.Context, sourceID, category string) (*models.IngestionRun, error) {
	if _, ok := p.registry.Adapter(sourceID); !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}

	run := &models.IngestionRun{
		RunID:     common.NewRunID(),
		SourceID:  sourceID,
		Category:  category,
		Status:    models.RunQueued,
		CreatedAt: time.Now(),
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	msg, err := models.NewIngestMessage(common.NewJobID(), models.IngestPayload{
		RunID:    run.RunID,
		SourceID: sourceID,
		Category: category,
	})
	if err != nil {
		return nil, fmt.Errorf("build ingest message: %w", err)
	}
	if err := p.queue.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueue ingest job: %w", err)
	}

	p.logger.Info().
		Str("run_id", run.RunID).
		Str("source_id", sourceID).
		Str("category", category).
		Msg("Ingestion run queued")

	return run, nil
}

// HandleMessage is the ingest-stage queue handler.
func (p *Processor) HandleMessage(ctx context.Context, msg models.QueueMessage) error {
	var payload models.IngestPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode ingest payload: %w", err)
	}
	return p.Execute(ctx, payload)
}

// Execute runs one ingestion end to end and records the outcome on the
// run record. Per-URL and per-item failures are isolated: they count in
// the stats but never abort the run.
func (p *Processor) Execute(ctx context.Context, payload models.IngestPayload) error {
	run, err := p.runs.Get(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", payload.RunID, err)
	}
	if run.Status == models.RunCompleted || run.Status == models.RunFailed {
		p.logger.Warn().Str("run_id", run.RunID).Str("status", string(run.Status)).Msg("Run already terminal, skipping redelivery")
		return nil
	}

	now := time.Now()
	run.Status = models.RunRunning
	run.StartedAt = &now
	if err := p.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	stats, runErr := p.execute(ctx, payload, run)

	completed := time.Now()
	run.CompletedAt = &completed
	run.Stats = stats
	if runErr != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = models.RunCompleted
	}
	if err := p.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("record run outcome: %w", err)
	}

	p.logger.Info().
		Str("run_id", run.RunID).
		Str("source_id", run.SourceID).
		Str("status", string(run.Status)).
		Int("extracted", stats.Extracted).
		Int("inserted", stats.Inserted).
		Int("skipped", stats.Skipped).
		Int("failures", stats.Failures).
		Msg("Ingestion run finished")

	// A failed run is a recorded outcome, not a redeliverable job.
	return nil
}

func (p *Processor) execute(ctx context.Context, payload models.IngestPayload, run *models.IngestionRun) (models.RunStats, error) {
	var stats models.RunStats

	adapter, ok := p.registry.Adapter(payload.SourceID)
	if !ok {
		return stats, fmt.Errorf("unknown source %q", payload.SourceID)
	}

	cfg := adapter.GetExtractionConfig()
	engine, err := p.engines.Engine(cfg.Engine)
	if err != nil {
		return stats, err
	}

	params := interfaces.AdapterParams{SourceID: payload.SourceID, Category: payload.Category}
	urls := adapter.GetURLs(params)
	if len(urls) == 0 {
		return stats, fmt.Errorf("source %q has no URLs", payload.SourceID)
	}

	var raw []models.RawItem
	fetched := 0
	for _, url := range urls {
		items, err := engine.Extract(ctx, url, cfg)
		if err != nil {
			stats.Failures++
			recordError(&stats, fmt.Sprintf("extract %s: %v", url, err))
			p.logger.Warn().Err(err).Str("run_id", run.RunID).Str("url", url).Msg("URL extraction failed")
			continue
		}
		fetched++
		raw = append(raw, items...)
	}
	if fetched == 0 {
		return stats, fmt.Errorf("all %d source URLs failed", len(urls))
	}

	normalized := adapter.Normalize(raw, params)
	stats.Extracted = len(normalized)

	for _, item := range normalized {
		if err := p.processItem(ctx, item, run.RunID, &stats); err != nil {
			stats.Failures++
			recordError(&stats, fmt.Sprintf("item %q: %v", item.Title, err))
			p.logger.Warn().Err(err).Str("run_id", run.RunID).Str("title", item.Title).Msg("Item processing failed")
		}
	}

	return stats, nil
}

// processItem dedupes and persists one normalized item, then enqueues
// exactly one enrich job for it. Hash collisions with existing items
// are skips; everything else is a failure charged to this item only.
func (p *Processor) processItem(ctx context.Context, item models.NormalizedItem, runID string, stats *models.RunStats) error {
	hash := hasher.Fingerprint(item)

	if _, err := p.content.GetByHash(ctx, hash); err == nil {
		stats.Skipped++
		return nil
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("hash lookup: %w", err)
	}

	content := models.NewContentItem(common.NewContentID(), hash)
	content.SourceID = item.SourceID
	content.SourceCategory = item.Category
	content.TitleOriginal = item.Title
	content.SummaryOriginal = item.Summary
	content.SourceURL = item.SourceURL
	content.PublishedAt = item.PublishedAt
	content.RawPayload = item.RawPayload

	if err := p.content.Insert(ctx, content); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateHash) {
			// Lost a race with a concurrent run; the item exists.
			stats.Skipped++
			return nil
		}
		return fmt.Errorf("insert: %w", err)
	}

	msg, err := models.NewItemMessage(common.NewJobID(), models.StageEnrich, models.ItemPayload{
		ContentID: content.ID,
		RunID:     runID,
	})
	if err != nil {
		return fmt.Errorf("build enrich message: %w", err)
	}
	if err := p.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue enrich job: %w", err)
	}

	stats.Inserted++
	return nil
}

func recordError(stats *models.RunStats, msg string) {
	if len(stats.Errors) < maxRunErrors {
		stats.Errors = append(stats.Errors, msg)
	}
}
