package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

func testManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	mgr, err := NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func storedItem(id, hash, sourceID, category string, createdAt time.Time) *models.ContentItem {
	return &models.ContentItem{
		ID:             id,
		Hash:           hash,
		SourceID:       sourceID,
		SourceCategory: category,
		TitleOriginal:  "Title " + id,
		CreatedAt:      createdAt,
	}
}

func TestContentInsertAndGet(t *testing.T) {
	store := testManager(t).ContentStorage()
	ctx := context.Background()

	item := storedItem("c1", "hash-1", "toi", "sports", time.Time{})
	require.NoError(t, store.Insert(ctx, item))
	assert.False(t, item.CreatedAt.IsZero())

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.Hash)
	assert.Equal(t, "Title c1", got.TitleOriginal)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestContentInsertRejectsDuplicateHash(t *testing.T) {
	store := testManager(t).ContentStorage()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, storedItem("c1", "same-hash", "toi", "sports", time.Time{})))

	err := store.Insert(ctx, storedItem("c2", "same-hash", "toi", "sports", time.Time{}))
	assert.ErrorIs(t, err, interfaces.ErrDuplicateHash)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestContentGetByHash(t *testing.T) {
	store := testManager(t).ContentStorage()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, storedItem("c1", "hash-1", "toi", "sports", time.Time{})))

	got, err := store.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	_, err = store.GetByHash(ctx, "unknown")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestContentUpdateUnknownItem(t *testing.T) {
	store := testManager(t).ContentStorage()

	err := store.Update(context.Background(), storedItem("ghost", "hash-g", "toi", "sports", time.Time{}))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFeedFiltersAndPaginates(t *testing.T) {
	store := testManager(t).ContentStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		category := "sports"
		if i%2 == 1 {
			category = "business"
		}
		item := storedItem(
			fmt.Sprintf("c%d", i),
			fmt.Sprintf("hash-%d", i),
			"toi",
			category,
			base.Add(time.Duration(i)*time.Minute),
		)
		require.NoError(t, store.Insert(ctx, item))
	}

	// Newest first.
	page, err := store.Feed(ctx, interfaces.FeedOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "c4", page[0].ID)
	assert.Equal(t, "c2", page[2].ID)

	// Cursor excludes the boundary item.
	next, err := store.Feed(ctx, interfaces.FeedOptions{Limit: 3, Cursor: page[2].CreatedAt})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "c1", next[0].ID)
	assert.Equal(t, "c0", next[1].ID)

	// Category filter.
	business, err := store.Feed(ctx, interfaces.FeedOptions{Category: "business"})
	require.NoError(t, err)
	require.Len(t, business, 2)
	for _, item := range business {
		assert.Equal(t, "business", item.SourceCategory)
	}
}

func TestFeedCursorBreaksCreatedAtTies(t *testing.T) {
	store := testManager(t).ContentStorage()
	ctx := context.Background()

	// Three items sharing one nanosecond timestamp.
	ts := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		item := storedItem(fmt.Sprintf("c%d", i), fmt.Sprintf("hash-%d", i), "toi", "sports", ts)
		require.NoError(t, store.Insert(ctx, item))
	}

	page, err := store.Feed(ctx, interfaces.FeedOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c2", page[0].ID)
	assert.Equal(t, "c1", page[1].ID)

	// Without the ID tiebreak a strict CreatedAt cursor would return
	// nothing here and c0 would never be served.
	rest, err := store.Feed(ctx, interfaces.FeedOptions{
		Limit:    2,
		Cursor:   page[1].CreatedAt,
		CursorID: page[1].ID,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c0", rest[0].ID)
}

func TestRunStorageRoundTrip(t *testing.T) {
	store := testManager(t).RunStorage()
	ctx := context.Background()

	run := &models.IngestionRun{
		RunID:    "run-1",
		SourceID: "toi",
		Status:   models.RunQueued,
	}
	require.NoError(t, store.Create(ctx, run))
	assert.False(t, run.CreatedAt.IsZero())

	run.Status = models.RunCompleted
	run.Stats = models.RunStats{Inserted: 3, Skipped: 2}
	require.NoError(t, store.Update(ctx, run))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	assert.Equal(t, 3, got.Stats.Inserted)

	_, err = store.Get(ctx, "run-404")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRunListBySourceNewestFirst(t *testing.T) {
	store := testManager(t).RunStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, &models.IngestionRun{
			RunID:     fmt.Sprintf("run-%d", i),
			SourceID:  "toi",
			Status:    models.RunCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Create(ctx, &models.IngestionRun{
		RunID:    "run-other",
		SourceID: "ndtv",
		Status:   models.RunCompleted,
	}))

	runs, err := store.ListBySource(ctx, "toi", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)

	all, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
