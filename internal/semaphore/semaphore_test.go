package semaphore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/common"
)

func testSemaphore(t *testing.T, max int64, acquireTimeout time.Duration) (*RedisSemaphore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sem, err := New(client, Config{
		Name:           "test",
		Max:            max,
		AcquireTimeout: acquireTimeout,
		PollInterval:   10 * time.Millisecond,
		HolderTTL:      time.Minute,
	}, common.GetLogger())
	require.NoError(t, err)
	return sem, mr
}

func TestAcquireReleaseCycle(t *testing.T) {
	sem, _ := testSemaphore(t, 2, time.Second)
	ctx := context.Background()

	token1, err := sem.Acquire(ctx)
	require.NoError(t, err)
	token2, err := sem.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)

	stats, err := sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(0), stats.Available)

	require.NoError(t, sem.Release(ctx, token1))
	stats, err = sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Active)
}

func TestAcquireTimesOutWhenSaturated(t *testing.T) {
	sem, _ := testSemaphore(t, 1, 50*time.Millisecond)
	ctx := context.Background()

	_, err := sem.Acquire(ctx)
	require.NoError(t, err)

	_, err = sem.Acquire(ctx)
	assert.ErrorIs(t, err, ErrSlotTimeout)
}

func TestAcquireAfterRelease(t *testing.T) {
	sem, _ := testSemaphore(t, 1, time.Second)
	ctx := context.Background()

	token, err := sem.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, sem.Release(ctx, token))

	_, err = sem.Acquire(ctx)
	assert.NoError(t, err)
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	sem, _ := testSemaphore(t, 2, time.Second)
	ctx := context.Background()

	token, err := sem.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, sem.Release(ctx, token))
	require.NoError(t, sem.Release(ctx, token))

	stats, err := sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active, "double release must not go negative")
}

func TestHolderTTLHealsCrashedHolder(t *testing.T) {
	sem, mr := testSemaphore(t, 1, time.Second)
	ctx := context.Background()

	_, err := sem.Acquire(ctx)
	require.NoError(t, err)

	// Simulate a crashed holder: the token expires without a release,
	// leaving the counter elevated with zero live holders.
	mr.FastForward(2 * time.Minute)

	// The next acquire reclaims the leaked slot on its own.
	token, err := sem.Acquire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stats, err := sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(0), stats.Available)
}

func TestStatsReconcilesExpiredHolders(t *testing.T) {
	sem, mr := testSemaphore(t, 2, time.Second)
	ctx := context.Background()

	_, err := sem.Acquire(ctx)
	require.NoError(t, err)
	_, err = sem.Acquire(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	stats, err := sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(2), stats.Available)
}

func TestResetClearsCounterAndHolders(t *testing.T) {
	sem, mr := testSemaphore(t, 3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sem.Acquire(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, sem.Reset(ctx))

	stats, err := sem.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Empty(t, mr.Keys())
}

func TestAcquireRespectsContextCancel(t *testing.T) {
	sem, _ := testSemaphore(t, 1, 10*time.Second)

	_, err := sem.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = sem.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
