package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// envelope is the internal structure stored in Badger around each
// queue message.
type envelope struct {
	ID           string              `json:"id"`
	Message      models.QueueMessage `json:"message"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
	LastError    string              `json:"last_error,omitempty"`
}

// Options configure queue delivery behavior.
type Options struct {
	// VisibilityTimeout is how long a received message stays invisible
	// before redelivery when the consumer neither acks nor nacks
	// (crashed worker).
	VisibilityTimeout time.Duration
	// MaxReceive is the number of receives before dead-letter routing.
	MaxReceive int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
}

// BadgerQueue implements durable stage queues on BadgerDB. Messages are
// stored under per-stage key prefixes with a visibility index sorted by
// timestamp; failed messages are redelivered with exponential backoff
// and parked in the dead-letter space after MaxReceive attempts.
type BadgerQueue struct {
	db     *badger.DB
	opts   Options
	logger arbor.ILogger
}

// NewBadgerQueue creates a queue over an existing Badger database.
func NewBadgerQueue(db *badger.DB, opts Options, logger arbor.ILogger) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	if opts.MaxReceive <= 0 {
		opts.MaxReceive = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 10 * time.Second
	}

	return &BadgerQueue{
		db:     db,
		opts:   opts,
		logger: logger,
	}, nil
}

// Enqueue adds a message to its stage queue, immediately visible.
func (q *BadgerQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if msg.Stage == "" || msg.Stage == models.StageDead {
		return fmt.Errorf("invalid stage %q", msg.Stage)
	}

	env := envelope{
		ID:         uuid.New().String(),
		Message:    msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(msg.Stage, env.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.Stage, env.VisibleAt, env.ID), []byte{})
	})
}

// Receive pulls the next visible message from a stage queue. Returns the
// message, an ack function (delete) and a nack function (failure record +
// backoff redelivery or dead-letter). Returns models.ErrNoMessage when
// the queue has nothing ready.
func (q *BadgerQueue) Receive(ctx context.Context, stage models.Stage) (*models.QueueMessage, func() error, func(error), error) {
	var claimed envelope

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := indexPrefix(stage)
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := parseIndexKey(stage, key)
			if err != nil {
				continue
			}

			// Keys sort by timestamp: a future entry means nothing
			// later is ready either.
			if ts.After(now) {
				break
			}

			item, err := txn.Get(msgKey(stage, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var env envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			// A message redelivered this many times came from workers
			// that crashed without nacking. Park it.
			if env.ReceiveCount >= q.opts.MaxReceive {
				if err := q.moveToDeadTxn(txn, stage, key, &env, "exceeded max receives without ack"); err != nil {
					return err
				}
				continue
			}

			env.ReceiveCount++
			env.VisibleAt = now.Add(q.opts.VisibilityTimeout)

			newData, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(stage, env.ID), newData); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(indexKey(stage, env.VisibleAt, env.ID), []byte{}); err != nil {
				return err
			}

			claimed = env
			return nil
		}

		return models.ErrNoMessage
	})

	if err != nil {
		return nil, nil, nil, err
	}

	msgID := claimed.ID

	ack := func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			return q.deleteMessageTxn(txn, stage, msgID)
		})
	}

	nack := func(cause error) {
		if err := q.fail(stage, msgID, cause); err != nil {
			q.logger.Error().Err(err).
				Str("stage", string(stage)).
				Str("message_id", msgID).
				Msg("Failed to record message failure")
		}
	}

	return &claimed.Message, ack, nack, nil
}

// fail records a handler failure: exponential backoff redelivery while
// attempts remain, dead-letter routing once they are exhausted.
func (q *BadgerQueue) fail(stage models.Stage, msgID string, cause error) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(msgKey(stage, msgID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already acked or parked
			}
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		if cause != nil {
			env.LastError = cause.Error()
		}

		oldIndex := indexKey(stage, env.VisibleAt, env.ID)

		if env.ReceiveCount >= q.opts.MaxReceive {
			q.logger.Warn().
				Str("stage", string(stage)).
				Str("message_id", msgID).
				Int("receives", env.ReceiveCount).
				Str("last_error", env.LastError).
				Msg("Message exhausted retries, moving to dead-letter queue")
			return q.moveToDeadTxn(txn, stage, oldIndex, &env, env.LastError)
		}

		// Exponential backoff: base * 2^(attempt-1)
		delay := q.opts.BackoffBase << (env.ReceiveCount - 1)
		env.VisibleAt = time.Now().Add(delay)

		newData, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(stage, env.ID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndex); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(indexKey(stage, env.VisibleAt, env.ID), []byte{})
	})
}

// moveToDeadTxn parks a message in the dead-letter space and removes it
// from its stage queue.
func (q *BadgerQueue) moveToDeadTxn(txn *badger.Txn, stage models.Stage, currentIndexKey []byte, env *envelope, lastError string) error {
	dead := interfaces.DeadMessage{
		ID:         env.ID,
		Message:    env.Message,
		FromStage:  stage,
		LastError:  lastError,
		Receives:   env.ReceiveCount,
		EnqueuedAt: env.EnqueuedAt,
		DeadAt:     time.Now(),
	}

	data, err := json.Marshal(dead)
	if err != nil {
		return err
	}
	if err := txn.Set(deadKey(env.ID), data); err != nil {
		return err
	}
	if err := txn.Delete(currentIndexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return txn.Delete(msgKey(stage, env.ID))
}

func (q *BadgerQueue) deleteMessageTxn(txn *badger.Txn, stage models.Stage, msgID string) error {
	item, err := txn.Get(msgKey(stage, msgID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil // Already deleted
		}
		return err
	}

	var env envelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return err
	}

	if err := txn.Delete(indexKey(stage, env.VisibleAt, env.ID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return txn.Delete(msgKey(stage, msgID))
}

// Stats reports ready/delayed counts per stage plus the dead-letter total.
func (q *BadgerQueue) Stats(ctx context.Context) ([]interfaces.QueueStats, error) {
	stats := make([]interfaces.QueueStats, 0, len(models.Stages())+1)
	now := time.Now()

	err := q.db.View(func(txn *badger.Txn) error {
		for _, stage := range models.Stages() {
			s := interfaces.QueueStats{Stage: stage}

			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			prefix := indexPrefix(stage)
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				ts, _, err := parseIndexKey(stage, it.Item().Key())
				if err != nil {
					continue
				}
				if ts.After(now) {
					s.Delayed++
				} else {
					s.Ready++
				}
			}
			it.Close()

			stats = append(stats, s)
		}

		deadCount := 0
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(deadPrefix)
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			deadCount++
		}
		it.Close()

		stats = append(stats, interfaces.QueueStats{Stage: models.StageDead, Dead: deadCount})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeadLetters lists parked messages for forensic inspection.
func (q *BadgerQueue) DeadLetters(ctx context.Context, limit int) ([]interfaces.DeadMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var dead []interfaces.DeadMessage
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(deadPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(dead) < limit; it.Next() {
			var d interfaces.DeadMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				continue
			}
			dead = append(dead, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dead, nil
}

// RetryDeadLetter re-drives a parked message into its original stage
// with a fresh attempt budget.
func (q *BadgerQueue) RetryDeadLetter(ctx context.Context, id string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(deadKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("dead-letter message %s not found", id)
			}
			return err
		}

		var dead interfaces.DeadMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dead)
		}); err != nil {
			return err
		}

		env := envelope{
			ID:         uuid.New().String(),
			Message:    dead.Message,
			EnqueuedAt: time.Now(),
			VisibleAt:  time.Now(),
		}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}

		if err := txn.Set(msgKey(dead.FromStage, env.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(dead.FromStage, env.VisibleAt, env.ID), []byte{}); err != nil {
			return err
		}
		return txn.Delete(deadKey(id))
	})
}

// Close closes the queue (the DB is managed externally).
func (q *BadgerQueue) Close() error {
	return nil
}

// Key helpers

const deadPrefix = "queue:dead:msg:"

func msgKey(stage models.Stage, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", stage, id))
}

func indexKey(stage models.Stage, visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", stage, visibleAt.UnixNano(), id))
}

func indexPrefix(stage models.Stage) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", stage))
}

func deadKey(id string) []byte {
	return []byte(deadPrefix + id)
}

func parseIndexKey(stage models.Stage, key []byte) (time.Time, string, error) {
	prefix := indexPrefix(stage)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	// Suffix is "{20-digit-ts}:{id}"
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}

var _ interfaces.QueueManager = (*BadgerQueue)(nil)
