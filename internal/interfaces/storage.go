package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/newswire/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateHash is returned by Insert when another item already
// holds the same content hash. Ingestion treats it as a skip, not a
// failure, so concurrent runs cannot double-insert.
var ErrDuplicateHash = errors.New("duplicate content hash")

// FeedOptions filters the reader-facing content projection.
type FeedOptions struct {
	SourceID string
	Category string
	// Cursor is an exclusive upper bound on CreatedAt; zero means newest.
	Cursor time.Time
	// CursorID breaks CreatedAt ties at page boundaries: items with
	// CreatedAt equal to Cursor are included only when their ID sorts
	// below it.
	CursorID string
	Limit    int
}

// ContentStorage persists content items. Hash is the dedupe key: Insert
// must fail (or the caller must check GetByHash first) rather than create
// a second item with the same hash.
type ContentStorage interface {
	Insert(ctx context.Context, item *models.ContentItem) error
	Update(ctx context.Context, item *models.ContentItem) error
	Get(ctx context.Context, id string) (*models.ContentItem, error)
	GetByHash(ctx context.Context, hash string) (*models.ContentItem, error)
	Feed(ctx context.Context, opts FeedOptions) ([]*models.ContentItem, error)
	Count(ctx context.Context) (int, error)
}

// RunStorage persists ingestion run records.
type RunStorage interface {
	Create(ctx context.Context, run *models.IngestionRun) error
	Update(ctx context.Context, run *models.IngestionRun) error
	Get(ctx context.Context, runID string) (*models.IngestionRun, error)
	ListBySource(ctx context.Context, sourceID string, limit int) ([]*models.IngestionRun, error)
	List(ctx context.Context, limit int) ([]*models.IngestionRun, error)
}

// StorageManager bundles the storage interfaces behind one lifecycle.
type StorageManager interface {
	ContentStorage() ContentStorage
	RunStorage() RunStorage
	// DB returns the underlying database handle for components that
	// need raw transactions (the queue).
	DB() interface{}
	Close() error
}
