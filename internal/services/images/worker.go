package images

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// Worker handles image-stage queue messages. All acquisition work runs
// outside the semaphore; only the final status write is guarded.
type Worker struct {
	content   interfaces.ContentStorage
	semaphore interfaces.Semaphore
	resolver  *Resolver
	logger    arbor.ILogger
}

func NewWorker(content interfaces.ContentStorage, semaphore interfaces.Semaphore, resolver *Resolver) *Worker {
	return &Worker{
		content:   content,
		semaphore: semaphore,
		resolver:  resolver,
		logger:    common.GetLogger(),
	}
}

// HandleMessage is the image-stage queue handler.
func (w *Worker) HandleMessage(ctx context.Context, msg models.QueueMessage) error {
	var payload models.ItemPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode image payload: %w", err)
	}
	return w.Process(ctx, payload.ContentID)
}

// Process resolves an image for the item. Re-enqueued messages for an
// already resolved item are a no-op.
func (w *Worker) Process(ctx context.Context, contentID string) error {
	item, err := w.content.Get(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content item %s: %w", contentID, err)
	}

	if item.ImageStorageURL != "" || item.ImageStatus.IsTerminal() {
		w.logger.Debug().Str("content_id", contentID).Str("status", string(item.ImageStatus)).Msg("Image already resolved, skipping")
		return nil
	}

	resolution := w.resolver.Resolve(ctx, item)

	if err := item.AdvanceImage(resolution.Status); err != nil {
		return fmt.Errorf("image transition for %s: %w", contentID, err)
	}
	item.ImageSelectedURL = resolution.SelectedURL
	item.ImageSourcePageURL = resolution.SourcePageURL
	item.ImageStorageURL = resolution.StorageURL
	item.ImagePrompt = resolution.Prompt
	item.ImageModel = resolution.Model
	for key, value := range resolution.Metadata {
		item.SetImageMeta(key, value)
	}

	token, err := w.semaphore.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire image semaphore: %w", err)
	}
	defer w.semaphore.Release(context.WithoutCancel(ctx), token)

	if err := w.content.Update(ctx, item); err != nil {
		return fmt.Errorf("persist image resolution for %s: %w", contentID, err)
	}

	w.logger.Info().
		Str("content_id", contentID).
		Str("status", string(item.ImageStatus)).
		Str("storage_url", item.ImageStorageURL).
		Msg("Image stage completed")
	return nil
}
