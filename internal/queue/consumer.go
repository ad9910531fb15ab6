package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// Handler processes one queue message. A nil return acks the message; an
// error nacks it for backoff redelivery.
type Handler func(ctx context.Context, msg models.QueueMessage) error

// Consumer polls one stage queue and dispatches messages to a handler
// with a small in-process concurrency limit. The binding constraint on
// database load is the cluster-wide semaphore held inside handlers, not
// this limit.
type Consumer struct {
	queue        interfaces.QueueManager
	stage        models.Stage
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer for one stage.
func NewConsumer(queue interfaces.QueueManager, stage models.Stage, handler Handler, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Consumer{
		queue:        queue,
		stage:        stage,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start launches the poll loops. Call Stop to drain.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info().
		Str("stage", string(c.stage)).
		Int("concurrency", c.concurrency).
		Msg("Starting queue consumer")

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.loop(ctx, i)
	}
}

// Stop cancels the poll loops and waits for in-flight handlers.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Str("stage", string(c.stage)).Msg("Queue consumer stopped")
}

func (c *Consumer) loop(ctx context.Context, workerID int) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ack, nack, err := c.queue.Receive(ctx, c.stage)
		if err != nil {
			if !errors.Is(err, models.ErrNoMessage) {
				c.logger.Error().Err(err).
					Str("stage", string(c.stage)).
					Msg("Queue receive failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.pollInterval):
			}
			continue
		}

		if err := c.process(ctx, *msg); err != nil {
			c.logger.Error().Err(err).
				Str("stage", string(c.stage)).
				Str("job_id", msg.JobID).
				Int("worker", workerID).
				Msg("Job failed")
			nack(err)
			continue
		}

		if err := ack(); err != nil {
			c.logger.Error().Err(err).
				Str("stage", string(c.stage)).
				Str("job_id", msg.JobID).
				Msg("Failed to ack message")
		}
	}
}

// process runs the handler with panic recovery so one bad message never
// takes down the consumer.
func (c *Consumer) process(ctx context.Context, msg models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return c.handler(ctx, msg)
}
