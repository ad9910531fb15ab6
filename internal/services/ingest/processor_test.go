package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// memContentStorage is an in-memory ContentStorage with the same hash
// uniqueness semantics as the Badger implementation.
type memContentStorage struct {
	mu     sync.Mutex
	byID   map[string]*models.ContentItem
	byHash map[string]*models.ContentItem
}

func newMemContentStorage() *memContentStorage {
	return &memContentStorage{
		byID:   make(map[string]*models.ContentItem),
		byHash: make(map[string]*models.ContentItem),
	}
}

func (s *memContentStorage) Insert(_ context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[item.Hash]; ok {
		return fmt.Errorf("hash %s: %w", item.Hash, interfaces.ErrDuplicateHash)
	}
	cp := *item
	s.byID[item.ID] = &cp
	s.byHash[item.Hash] = &cp
	return nil
}

func (s *memContentStorage) Update(_ context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[item.ID]; !ok {
		return interfaces.ErrNotFound
	}
	cp := *item
	s.byID[item.ID] = &cp
	s.byHash[item.Hash] = &cp
	return nil
}

func (s *memContentStorage) Get(_ context.Context, id string) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *memContentStorage) GetByHash(_ context.Context, hash string) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byHash[hash]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *memContentStorage) Feed(_ context.Context, _ interfaces.FeedOptions) ([]*models.ContentItem, error) {
	return nil, nil
}

func (s *memContentStorage) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID), nil
}

type memRunStorage struct {
	mu   sync.Mutex
	runs map[string]*models.IngestionRun
}

func newMemRunStorage() *memRunStorage {
	return &memRunStorage{runs: make(map[string]*models.IngestionRun)}
}

func (s *memRunStorage) Create(_ context.Context, run *models.IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *memRunStorage) Update(_ context.Context, run *models.IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; !ok {
		return interfaces.ErrNotFound
	}
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *memRunStorage) Get(_ context.Context, runID string) (*models.IngestionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memRunStorage) ListBySource(_ context.Context, _ string, _ int) ([]*models.IngestionRun, error) {
	return nil, nil
}

func (s *memRunStorage) List(_ context.Context, _ int) ([]*models.IngestionRun, error) {
	return nil, nil
}

// recordingQueue captures enqueued messages.
type recordingQueue struct {
	mu       sync.Mutex
	messages []models.QueueMessage
}

func (q *recordingQueue) Enqueue(_ context.Context, msg models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *recordingQueue) byStage(stage models.Stage) []models.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.QueueMessage
	for _, m := range q.messages {
		if m.Stage == stage {
			out = append(out, m)
		}
	}
	return out
}

// stubEngine returns canned items per URL.
type stubEngine struct {
	items map[string][]models.RawItem
	errs  map[string]error
}

func (e *stubEngine) Type() models.EngineType { return models.EngineFeed }

func (e *stubEngine) Extract(_ context.Context, url string, _ models.ExtractionConfig) ([]models.RawItem, error) {
	if err, ok := e.errs[url]; ok {
		return nil, err
	}
	return e.items[url], nil
}

type stubEngineRegistry struct {
	engine interfaces.ExtractionEngine
}

func (r *stubEngineRegistry) Engine(_ models.EngineType) (interfaces.ExtractionEngine, error) {
	return r.engine, nil
}

func testDefinitions() []models.SourceDefinition {
	return []models.SourceDefinition{{
		ID:       "toi",
		Name:     "Times of India",
		Category: "sports",
		URLs:     []string{"https://toi.in/rss"},
		Extraction: models.ExtractionConfig{
			Engine: models.EngineFeed,
		},
		Enabled: true,
	}}
}

func newTestProcessor(engine interfaces.ExtractionEngine) (*Processor, *memContentStorage, *memRunStorage, *recordingQueue) {
	content := newMemContentStorage()
	runs := newMemRunStorage()
	queue := &recordingQueue{}
	p := NewProcessor(
		NewRegistry(testDefinitions()),
		&stubEngineRegistry{engine: engine},
		content, runs, queue,
	)
	return p, content, runs, queue
}

func rawItems(titles ...string) []models.RawItem {
	items := make([]models.RawItem, 0, len(titles))
	for i, t := range titles {
		items = append(items, models.RawItem{
			Title:       t,
			Summary:     "summary of " + t,
			Link:        fmt.Sprintf("https://toi.in/a/%d", i),
			PublishedAt: time.Now().Add(-time.Hour),
		})
	}
	return items
}

func TestRunInsertsNewItemsAndEnqueuesEnrich(t *testing.T) {
	engine := &stubEngine{items: map[string][]models.RawItem{
		"https://toi.in/rss": rawItems("one", "two", "three"),
	}}
	p, content, runs, queue := newTestProcessor(engine)
	ctx := context.Background()

	run, err := p.StartRun(ctx, "toi", "sports")
	require.NoError(t, err)
	require.NoError(t, p.Execute(ctx, models.IngestPayload{RunID: run.RunID, SourceID: "toi", Category: "sports"}))

	final, err := runs.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 3, final.Stats.Extracted)
	assert.Equal(t, 3, final.Stats.Inserted)
	assert.Equal(t, 0, final.Stats.Skipped)

	count, _ := content.Count(ctx)
	assert.Equal(t, 3, count)

	// Exactly one enrich job per inserted item.
	assert.Len(t, queue.byStage(models.StageEnrich), 3)
}

func TestRunSkipsDuplicatesOnSecondExecution(t *testing.T) {
	engine := &stubEngine{items: map[string][]models.RawItem{
		"https://toi.in/rss": rawItems("one", "two", "three"),
	}}
	p, content, runs, queue := newTestProcessor(engine)
	ctx := context.Background()

	first, err := p.StartRun(ctx, "toi", "sports")
	require.NoError(t, err)
	require.NoError(t, p.Execute(ctx, models.IngestPayload{RunID: first.RunID, SourceID: "toi", Category: "sports"}))

	// Same source again: identical content, everything dedupes.
	second, err := p.StartRun(ctx, "toi", "sports")
	require.NoError(t, err)
	require.NoError(t, p.Execute(ctx, models.IngestPayload{RunID: second.RunID, SourceID: "toi", Category: "sports"}))

	final, err := runs.Get(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 0, final.Stats.Inserted)
	assert.Equal(t, 3, final.Stats.Skipped)

	count, _ := content.Count(ctx)
	assert.Equal(t, 3, count)

	// No new enrich jobs for skipped items.
	assert.Len(t, queue.byStage(models.StageEnrich), 3)
}

func TestRunIsolatesPartialFailures(t *testing.T) {
	// Two URLs: one succeeds, one fails. The run completes with the
	// failure recorded, and the good URL's items are ingested.
	defs := testDefinitions()
	defs[0].URLs = []string{"https://toi.in/rss", "https://toi.in/broken"}

	engine := &stubEngine{
		items: map[string][]models.RawItem{"https://toi.in/rss": rawItems("one", "two")},
		errs:  map[string]error{"https://toi.in/broken": fmt.Errorf("status 503")},
	}

	content := newMemContentStorage()
	runs := newMemRunStorage()
	queue := &recordingQueue{}
	p := NewProcessor(NewRegistry(defs), &stubEngineRegistry{engine: engine}, content, runs, queue)
	ctx := context.Background()

	run, err := p.StartRun(ctx, "toi", "")
	require.NoError(t, err)
	require.NoError(t, p.Execute(ctx, models.IngestPayload{RunID: run.RunID, SourceID: "toi"}))

	final, err := runs.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
	assert.Equal(t, 2, final.Stats.Inserted)
	assert.Equal(t, 1, final.Stats.Failures)
	require.Len(t, final.Stats.Errors, 1)
	assert.Contains(t, final.Stats.Errors[0], "broken")
}

func TestRunFailsWhenAllURLsFail(t *testing.T) {
	engine := &stubEngine{
		errs: map[string]error{"https://toi.in/rss": fmt.Errorf("connection refused")},
	}
	p, _, runs, queue := newTestProcessor(engine)
	ctx := context.Background()

	run, err := p.StartRun(ctx, "toi", "")
	require.NoError(t, err)
	require.NoError(t, p.Execute(ctx, models.IngestPayload{RunID: run.RunID, SourceID: "toi"}))

	final, err := runs.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, final.Status)
	assert.NotEmpty(t, final.ErrorMessage)
	assert.Empty(t, queue.byStage(models.StageEnrich))
}

func TestStartRunRejectsUnknownSource(t *testing.T) {
	p, _, _, _ := newTestProcessor(&stubEngine{})
	_, err := p.StartRun(context.Background(), "nope", "")
	assert.Error(t, err)
}

func TestExecuteSkipsTerminalRunRedelivery(t *testing.T) {
	engine := &stubEngine{items: map[string][]models.RawItem{
		"https://toi.in/rss": rawItems("one"),
	}}
	p, _, runs, queue := newTestProcessor(engine)
	ctx := context.Background()

	run, err := p.StartRun(ctx, "toi", "")
	require.NoError(t, err)
	payload := models.IngestPayload{RunID: run.RunID, SourceID: "toi"}
	require.NoError(t, p.Execute(ctx, payload))

	// Redelivery of the same job must not re-ingest.
	require.NoError(t, p.Execute(ctx, payload))

	final, err := runs.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Stats.Inserted)
	assert.Len(t, queue.byStage(models.StageEnrich), 1)
}
