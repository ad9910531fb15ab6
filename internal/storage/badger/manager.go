package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	content interfaces.ContentStorage
	run     interfaces.RunStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		content: NewContentStorage(db, logger),
		run:     NewRunStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ContentStorage returns the content item storage interface
func (m *Manager) ContentStorage() interfaces.ContentStorage {
	return m.content
}

// RunStorage returns the ingestion run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// DB returns the underlying badger database for raw transactions
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store().Badger()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
