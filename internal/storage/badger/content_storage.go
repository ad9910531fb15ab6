package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ContentStorage implements the ContentStorage interface for Badger
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) Insert(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		return fmt.Errorf("content item ID is required")
	}
	if item.Hash == "" {
		return fmt.Errorf("content item hash is required")
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	// badgerhold enforces the unique constraint on Hash
	if err := s.db.Store().Insert(item.ID, item); err != nil {
		if err == badgerhold.ErrUniqueExists {
			return fmt.Errorf("content item with hash %s: %w", item.Hash, interfaces.ErrDuplicateHash)
		}
		return fmt.Errorf("failed to insert content item: %w", err)
	}
	return nil
}

func (s *ContentStorage) Update(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		return fmt.Errorf("content item ID is required")
	}
	item.UpdatedAt = time.Now()

	if err := s.db.Store().Update(item.ID, item); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to update content item: %w", err)
	}
	return nil
}

func (s *ContentStorage) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return &item, nil
}

func (s *ContentStorage) GetByHash(ctx context.Context, hash string) (*models.ContentItem, error) {
	var items []models.ContentItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Hash").Eq(hash).Index("Hash")); err != nil {
		return nil, fmt.Errorf("failed to find content item by hash: %w", err)
	}
	if len(items) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &items[0], nil
}

func (s *ContentStorage) Feed(ctx context.Context, opts interfaces.FeedOptions) ([]*models.ContentItem, error) {
	query := feedQuery(opts)

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var items []models.ContentItem
	err := s.db.Store().Find(&items, query.SortBy("CreatedAt", "ID").Reverse().Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}

	result := make([]*models.ContentItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

// feedQuery builds the cursored feed filter. A cursor with an ID
// includes items sharing the boundary CreatedAt whose ID sorts below
// it, so nanosecond ties never drop entries between pages.
func feedQuery(opts interfaces.FeedOptions) *badgerhold.Query {
	filters := func(q *badgerhold.Query) *badgerhold.Query {
		if opts.SourceID != "" {
			q = q.And("SourceID").Eq(opts.SourceID)
		}
		if opts.Category != "" {
			q = q.And("SourceCategory").Eq(opts.Category)
		}
		return q
	}

	if opts.Cursor.IsZero() {
		return filters(badgerhold.Where("ID").Ne(""))
	}

	before := filters(badgerhold.Where("CreatedAt").Lt(opts.Cursor))
	if opts.CursorID == "" {
		return before
	}
	ties := filters(badgerhold.Where("CreatedAt").Eq(opts.Cursor).And("ID").Lt(opts.CursorID))
	return before.Or(ties)
}

func (s *ContentStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ContentItem{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count content items: %w", err)
	}
	return int(count), nil
}
