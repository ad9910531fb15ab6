package rewrite

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/hasher"
	"github.com/ternarybob/newswire/internal/services/llm"
)

type fakeContentStorage struct {
	mu    sync.Mutex
	items map[string]*models.ContentItem
}

func newFakeContentStorage(items ...*models.ContentItem) *fakeContentStorage {
	s := &fakeContentStorage{items: make(map[string]*models.ContentItem)}
	for _, item := range items {
		cp := *item
		s.items[item.ID] = &cp
	}
	return s
}

func (s *fakeContentStorage) Insert(_ context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *fakeContentStorage) Update(_ context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return interfaces.ErrNotFound
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *fakeContentStorage) Get(_ context.Context, id string) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *fakeContentStorage) GetByHash(_ context.Context, _ string) (*models.ContentItem, error) {
	return nil, interfaces.ErrNotFound
}

func (s *fakeContentStorage) Feed(_ context.Context, _ interfaces.FeedOptions) ([]*models.ContentItem, error) {
	return nil, nil
}

func (s *fakeContentStorage) Count(_ context.Context) (int, error) { return len(s.items), nil }

type fakeQueue struct {
	mu       sync.Mutex
	messages []models.QueueMessage
}

func (q *fakeQueue) Enqueue(_ context.Context, msg models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeQueue) count(stage models.Stage) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.messages {
		if m.Stage == stage {
			n++
		}
	}
	return n
}

type fakeSemaphore struct {
	acquires int
	releases int
}

func (s *fakeSemaphore) Acquire(_ context.Context) (string, error) {
	s.acquires++
	return "tok", nil
}

func (s *fakeSemaphore) Release(_ context.Context, _ string) error {
	s.releases++
	return nil
}

func (s *fakeSemaphore) Stats(_ context.Context) (interfaces.SemaphoreStats, error) {
	return interfaces.SemaphoreStats{}, nil
}

func (s *fakeSemaphore) Reset(_ context.Context) error { return nil }

type fakeChain struct {
	result *llm.Result
	err    error
	calls  int
}

func (c *fakeChain) Chat(_ context.Context, _, _ string, _ interfaces.ChatOptions) (*llm.Result, error) {
	c.calls++
	return c.result, c.err
}

func pendingItem() *models.ContentItem {
	item := models.NewContentItem("content_1", "hash1")
	item.SourceID = "toi"
	item.SourceCategory = "sports"
	item.TitleOriginal = "India wins match"
	item.SummaryOriginal = "A thrilling finish."
	return item
}

func TestRewriteHappyPath(t *testing.T) {
	storage := newFakeContentStorage(pendingItem())
	queue := &fakeQueue{}
	sem := &fakeSemaphore{}
	chain := &fakeChain{result: &llm.Result{
		Text:     `{"title":"India clinch thriller","summary":"A last-over finish sealed the match."}`,
		Provider: "gemini",
		Model:    "gemini-3-flash-preview",
	}}

	w := NewWorker(storage, queue, sem, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	item, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewriteDone, item.RewriteStatus)
	assert.Equal(t, "India clinch thriller", item.TitleRewritten)
	assert.Equal(t, "gemini-3-flash-preview", item.RewriteModel)
	assert.Equal(t, "v3", item.RewritePromptVersion)
	assert.Equal(t, hasher.RewriteKey("hash1", "v3", "gemini-3-flash-preview"), item.RewriteHash)

	assert.Equal(t, 1, queue.count(models.StageImage))
	assert.Equal(t, 1, sem.acquires)
	assert.Equal(t, 1, sem.releases)
}

func TestRewriteSkipsWhenKeyMatches(t *testing.T) {
	item := pendingItem()
	require.NoError(t, item.AdvanceRewrite(models.RewriteDone))
	item.TitleRewritten = "already rewritten"
	item.RewriteModel = "gemini-3-flash-preview"
	item.RewritePromptVersion = "v3"
	item.RewriteHash = hasher.RewriteKey("hash1", "v3", "gemini-3-flash-preview")

	storage := newFakeContentStorage(item)
	queue := &fakeQueue{}
	chain := &fakeChain{}

	w := NewWorker(storage, queue, &fakeSemaphore{}, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	// No LLM call, image job still enqueued.
	assert.Equal(t, 0, chain.calls)
	assert.Equal(t, 1, queue.count(models.StageImage))

	got, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, "already rewritten", got.TitleRewritten)
}

func TestRewriteRerunsOnPromptVersionChange(t *testing.T) {
	// Stored result was produced by a v2 prompt; the worker now runs v3.
	// The stale done status must be reopened, not rejected.
	item := pendingItem()
	require.NoError(t, item.AdvanceRewrite(models.RewriteDone))
	item.TitleRewritten = "old title"
	item.RewriteModel = "gemini-3-flash-preview"
	item.RewritePromptVersion = "v2"
	item.RewriteHash = hasher.RewriteKey("hash1", "v2", "gemini-3-flash-preview")

	storage := newFakeContentStorage(item)
	chain := &fakeChain{result: &llm.Result{
		Text:  `{"title":"New title","summary":"New summary."}`,
		Model: "gemini-3-flash-preview",
	}}

	w := NewWorker(storage, &fakeQueue{}, &fakeSemaphore{}, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	assert.Equal(t, 1, chain.calls)
	got, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewriteDone, got.RewriteStatus)
	assert.Equal(t, "New title", got.TitleRewritten)
	assert.Equal(t, hasher.RewriteKey("hash1", "v3", "gemini-3-flash-preview"), got.RewriteHash)
}

func TestRewriteRetriesFailedItemOnRedelivery(t *testing.T) {
	item := pendingItem()
	require.NoError(t, item.AdvanceRewrite(models.RewriteFailed))

	storage := newFakeContentStorage(item)
	chain := &fakeChain{result: &llm.Result{
		Text:  `{"title":"Recovered title","summary":"Recovered summary."}`,
		Model: "gemini-3-flash-preview",
	}}

	w := NewWorker(storage, &fakeQueue{}, &fakeSemaphore{}, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	got, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewriteDone, got.RewriteStatus)
	assert.Equal(t, "Recovered title", got.TitleRewritten)
}

func TestRewriteFailureStillEnqueuesImage(t *testing.T) {
	storage := newFakeContentStorage(pendingItem())
	queue := &fakeQueue{}
	chain := &fakeChain{err: fmt.Errorf("all chat providers failed: boom")}

	w := NewWorker(storage, queue, &fakeSemaphore{}, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	item, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewriteFailed, item.RewriteStatus)
	assert.Equal(t, 1, queue.count(models.StageImage))
}

func TestRewriteRejectsUnparseableResponse(t *testing.T) {
	storage := newFakeContentStorage(pendingItem())
	queue := &fakeQueue{}
	chain := &fakeChain{result: &llm.Result{Text: "sorry, I cannot", Provider: "claude", Model: "c-1"}}

	w := NewWorker(storage, queue, &fakeSemaphore{}, chain, "v3")
	require.NoError(t, w.Process(context.Background(), models.ItemPayload{ContentID: "content_1"}))

	item, err := storage.Get(context.Background(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewriteFailed, item.RewriteStatus)
	assert.Empty(t, item.TitleRewritten)
	assert.Equal(t, 1, queue.count(models.StageImage))
}
