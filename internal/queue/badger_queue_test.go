package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

func testQueue(t *testing.T, opts Options) *BadgerQueue {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q, err := NewBadgerQueue(db, opts, common.GetLogger())
	require.NoError(t, err)
	return q
}

func enqueueItem(t *testing.T, q *BadgerQueue, stage models.Stage, contentID string) {
	t.Helper()
	msg, err := models.NewItemMessage("job-"+contentID, stage, models.ItemPayload{ContentID: contentID})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), msg))
}

func TestEnqueueReceiveAck(t *testing.T) {
	q := testQueue(t, Options{})
	ctx := context.Background()

	enqueueItem(t, q, models.StageEnrich, "c1")

	msg, ack, _, err := q.Receive(ctx, models.StageEnrich)
	require.NoError(t, err)
	assert.Equal(t, "job-c1", msg.JobID)
	require.NoError(t, ack())

	_, _, _, err = q.Receive(ctx, models.StageEnrich)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestReceiveEmptyQueue(t *testing.T) {
	q := testQueue(t, Options{})
	_, _, _, err := q.Receive(context.Background(), models.StageRewrite)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestStagesAreIsolated(t *testing.T) {
	q := testQueue(t, Options{})
	ctx := context.Background()

	enqueueItem(t, q, models.StageEnrich, "c1")

	_, _, _, err := q.Receive(ctx, models.StageImage)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	msg, ack, _, err := q.Receive(ctx, models.StageEnrich)
	require.NoError(t, err)
	assert.Equal(t, models.StageEnrich, msg.Stage)
	require.NoError(t, ack())
}

func TestNackSchedulesBackoffRedelivery(t *testing.T) {
	q := testQueue(t, Options{BackoffBase: 20 * time.Millisecond, MaxReceive: 5})
	ctx := context.Background()

	enqueueItem(t, q, models.StageEnrich, "c1")

	_, _, nack, err := q.Receive(ctx, models.StageEnrich)
	require.NoError(t, err)
	nack(errors.New("transient failure"))

	// Not visible until the backoff elapses.
	_, _, _, err = q.Receive(ctx, models.StageEnrich)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	require.Eventually(t, func() bool {
		msg, ack, _, err := q.Receive(ctx, models.StageEnrich)
		if err != nil {
			return false
		}
		require.NoError(t, ack())
		return msg.JobID == "job-c1"
	}, time.Second, 10*time.Millisecond, "message must come back after backoff")
}

func TestExhaustedRetriesRouteToDeadLetter(t *testing.T) {
	q := testQueue(t, Options{BackoffBase: time.Millisecond, MaxReceive: 2})
	ctx := context.Background()

	enqueueItem(t, q, models.StageRewrite, "c1")

	for i := 0; i < 2; i++ {
		var nack func(error)
		var err error
		require.Eventually(t, func() bool {
			_, _, nack, err = q.Receive(ctx, models.StageRewrite)
			return err == nil
		}, time.Second, 5*time.Millisecond)
		nack(errors.New("permanent failure"))
	}

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, models.StageRewrite, dead[0].FromStage)
	assert.Contains(t, dead[0].LastError, "permanent failure")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	for _, s := range stats {
		if s.Stage == models.StageRewrite {
			assert.Zero(t, s.Ready+s.Delayed, "dead message must leave the live queue")
		}
	}
}

func TestRetryDeadLetterRequeues(t *testing.T) {
	q := testQueue(t, Options{BackoffBase: time.Millisecond, MaxReceive: 1})
	ctx := context.Background()

	enqueueItem(t, q, models.StageImage, "c1")

	_, _, nack, err := q.Receive(ctx, models.StageImage)
	require.NoError(t, err)
	nack(errors.New("boom"))

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	require.NoError(t, q.RetryDeadLetter(ctx, dead[0].ID))

	dead, err = q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)

	msg, ack, _, err := q.Receive(ctx, models.StageImage)
	require.NoError(t, err)
	assert.Equal(t, "job-c1", msg.JobID)
	require.NoError(t, ack())
}

func TestRetryDeadLetterUnknownID(t *testing.T) {
	q := testQueue(t, Options{})
	assert.Error(t, q.RetryDeadLetter(context.Background(), "missing"))
}

func TestStatsCountsReadyAndDelayed(t *testing.T) {
	q := testQueue(t, Options{BackoffBase: time.Hour, MaxReceive: 5})
	ctx := context.Background()

	enqueueItem(t, q, models.StageEnrich, "c1")
	enqueueItem(t, q, models.StageEnrich, "c2")

	_, _, nack, err := q.Receive(ctx, models.StageEnrich)
	require.NoError(t, err)
	nack(errors.New("slow down"))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)

	var enrich *interfaces.QueueStats
	for i := range stats {
		if stats[i].Stage == models.StageEnrich {
			enrich = &stats[i]
		}
	}
	require.NotNil(t, enrich)
	assert.Equal(t, 1, enrich.Ready)
	assert.Equal(t, 1, enrich.Delayed)
}
