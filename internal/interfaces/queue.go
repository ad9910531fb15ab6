package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/newswire/internal/models"
)

// QueueStats describes one stage queue for observability.
type QueueStats struct {
	Stage   models.Stage `json:"stage"`
	Ready   int          `json:"ready"`
	Delayed int          `json:"delayed"`
	Dead    int          `json:"dead,omitempty"`
}

// DeadMessage is a message parked in the dead-letter queue after
// exhausting its retries.
type DeadMessage struct {
	ID         string              `json:"id"`
	Message    models.QueueMessage `json:"message"`
	FromStage  models.Stage        `json:"from_stage"`
	LastError  string              `json:"last_error,omitempty"`
	Receives   int                 `json:"receives"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	DeadAt     time.Time           `json:"dead_at"`
}

// Enqueuer is the producer side of the job queue. Workers depend on this
// narrow interface so tests can record enqueues without a real queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
}

// QueueManager is the full queue contract: durable, retrying,
// backoff-scheduled delivery with dead-letter routing.
type QueueManager interface {
	Enqueuer
	// Receive pulls the next visible message for a stage. The returned
	// ack function deletes the message; nack records the failure and
	// leaves it for backoff redelivery. Returns models.ErrNoMessage
	// when nothing is ready.
	Receive(ctx context.Context, stage models.Stage) (*models.QueueMessage, func() error, func(error), error)
	Stats(ctx context.Context) ([]QueueStats, error)
	DeadLetters(ctx context.Context, limit int) ([]DeadMessage, error)
	RetryDeadLetter(ctx context.Context, id string) error
	Close() error
}
