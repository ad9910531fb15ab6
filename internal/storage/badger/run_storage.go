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

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) Create(ctx context.Context, run *models.IngestionRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(run.RunID, run); err != nil {
		return fmt.Errorf("failed to create ingestion run: %w", err)
	}
	return nil
}

func (s *RunStorage) Update(ctx context.Context, run *models.IngestionRun) error {
	if err := s.db.Store().Update(run.RunID, run); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to update ingestion run: %w", err)
	}
	return nil
}

func (s *RunStorage) Get(ctx context.Context, runID string) (*models.IngestionRun, error) {
	var run models.IngestionRun
	if err := s.db.Store().Get(runID, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ingestion run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListBySource(ctx context.Context, sourceID string, limit int) ([]*models.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []models.IngestionRun
	query := badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID").SortBy("CreatedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}

	result := make([]*models.IngestionRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) List(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []models.IngestionRun
	query := badgerhold.Where("RunID").Ne("").SortBy("CreatedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}

	result := make([]*models.IngestionRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}
