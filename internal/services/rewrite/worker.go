package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/hasher"
	"github.com/ternarybob/newswire/internal/services/llm"
)

// ChatChain is the provider fallback chain the worker rewrites through.
type ChatChain interface {
	Chat(ctx context.Context, system, user string, opts interfaces.ChatOptions) (*llm.Result, error)
}

// rewriteOutput is the JSON shape requested from the model.
type rewriteOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Worker handles rewrite-stage jobs: rewrite the title and summary
// through the LLM chain, persist under the DB semaphore, and enqueue
// the image job regardless of outcome.
type Worker struct {
	content       interfaces.ContentStorage
	queue         interfaces.Enqueuer
	semaphore     interfaces.Semaphore
	chain         ChatChain
	promptVersion string
	logger        arbor.ILogger
}

func NewWorker(
	content interfaces.ContentStorage,
	queue interfaces.Enqueuer,
	semaphore interfaces.Semaphore,
	chain ChatChain,
	promptVersion string,
) *Worker {
	return &Worker{
		content:       content,
		queue:         queue,
		semaphore:     semaphore,
		chain:         chain,
		promptVersion: promptVersion,
		logger:        common.GetLogger(),
	}
}

// HandleMessage is the rewrite-stage queue handler.
func (w *Worker) HandleMessage(ctx context.Context, msg models.QueueMessage) error {
	var payload models.ItemPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode rewrite payload: %w", err)
	}
	return w.Process(ctx, payload)
}

// Process rewrites one item. A stored idempotency key that still
// matches means the work is already done and the LLM is not called.
func (w *Worker) Process(ctx context.Context, payload models.ItemPayload) error {
	item, err := w.content.Get(ctx, payload.ContentID)
	if err != nil {
		return fmt.Errorf("load content %s: %w", payload.ContentID, err)
	}

	if w.alreadyRewritten(item) {
		w.logger.Debug().Str("content_id", item.ID).Msg("Rewrite key matches, skipping LLM call")
		return w.enqueueImage(ctx, item.ID, payload.RunID)
	}

	// A terminal status with a stale or missing key is a re-run
	// trigger: the prompt version moved on, or a duplicate delivery is
	// retrying a failed attempt. Reopen the stage so the new result
	// can land.
	if item.RewriteStatus != models.RewritePending {
		w.logger.Info().
			Str("content_id", item.ID).
			Str("status", string(item.RewriteStatus)).
			Msg("Reopening rewrite stage for stale result")
		item.ResetRewrite()
	}

	// The LLM call happens outside the semaphore.
	output, result, rewriteErr := w.rewrite(ctx, item)

	if rewriteErr != nil {
		w.logger.Warn().Err(rewriteErr).Str("content_id", item.ID).Msg("Rewrite failed")
		if item.RewriteStatus == models.RewritePending {
			if err := item.AdvanceRewrite(models.RewriteFailed); err != nil {
				return err
			}
			if err := w.persist(ctx, item); err != nil {
				return err
			}
		}
		// A missing rewrite must not block image resolution.
		return w.enqueueImage(ctx, item.ID, payload.RunID)
	}

	if err := item.AdvanceRewrite(models.RewriteDone); err != nil {
		return err
	}
	item.TitleRewritten = output.Title
	item.SummaryRewritten = output.Summary
	item.RewriteModel = result.Model
	item.RewritePromptVersion = w.promptVersion
	item.RewriteHash = hasher.RewriteKey(item.Hash, w.promptVersion, result.Model)

	if err := w.persist(ctx, item); err != nil {
		return err
	}

	w.logger.Info().
		Str("content_id", item.ID).
		Str("provider", result.Provider).
		Str("model", result.Model).
		Msg("Item rewritten")

	return w.enqueueImage(ctx, item.ID, payload.RunID)
}

// alreadyRewritten checks the stored idempotency key against the
// current prompt version and the model that produced the stored text.
func (w *Worker) alreadyRewritten(item *models.ContentItem) bool {
	if item.RewriteStatus != models.RewriteDone || item.RewriteHash == "" {
		return false
	}
	return item.RewriteHash == hasher.RewriteKey(item.Hash, w.promptVersion, item.RewriteModel)
}

func (w *Worker) rewrite(ctx context.Context, item *models.ContentItem) (*rewriteOutput, *llm.Result, error) {
	user := buildUserPrompt(item.TitleOriginal, item.SummaryOriginal, item.SourceCategory)

	result, err := w.chain.Chat(ctx, systemPrompt, user, interfaces.ChatOptions{JSONMode: true})
	if err != nil {
		return nil, nil, err
	}

	var output rewriteOutput
	if err := llm.ParseJSON(result.Text, &output); err != nil {
		return nil, nil, fmt.Errorf("provider %s: %w", result.Provider, err)
	}

	output.Title = strings.TrimSpace(output.Title)
	output.Summary = strings.TrimSpace(output.Summary)
	if output.Title == "" {
		return nil, nil, fmt.Errorf("provider %s returned empty title", result.Provider)
	}

	return &output, result, nil
}

// persist updates the item while holding a DB semaphore slot.
func (w *Worker) persist(ctx context.Context, item *models.ContentItem) error {
	token, err := w.semaphore.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire rewrite semaphore: %w", err)
	}
	defer func() {
		if err := w.semaphore.Release(context.WithoutCancel(ctx), token); err != nil {
			w.logger.Warn().Err(err).Str("content_id", item.ID).Msg("Semaphore release failed")
		}
	}()

	if err := w.content.Update(ctx, item); err != nil {
		return fmt.Errorf("persist rewrite for %s: %w", item.ID, err)
	}
	return nil
}

func (w *Worker) enqueueImage(ctx context.Context, contentID, runID string) error {
	msg, err := models.NewItemMessage(common.NewJobID(), models.StageImage, models.ItemPayload{
		ContentID: contentID,
		RunID:     runID,
	})
	if err != nil {
		return fmt.Errorf("build image message: %w", err)
	}
	if err := w.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue image job: %w", err)
	}
	return nil
}
