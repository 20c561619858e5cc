package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	document interfaces.DocumentStorage
	job      interfaces.JobStorage
	section  interfaces.SectionStorage
	template interfaces.TemplateStorage
	proposal interfaces.ProposalStorage
	kv       interfaces.KVStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		document: NewDocumentStorage(db, logger),
		job:      NewJobStorage(db, logger),
		section:  NewSectionStorage(db, logger),
		template: NewTemplateStorage(db, logger),
		proposal: NewProposalStorage(db, logger),
		kv:       NewKVStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// DocumentStorage returns the Document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// SectionStorage returns the Section storage interface
func (m *Manager) SectionStorage() interfaces.SectionStorage {
	return m.section
}

// TemplateStorage returns the Template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage {
	return m.template
}

// ProposalStorage returns the Proposal storage interface
func (m *Manager) ProposalStorage() interfaces.ProposalStorage {
	return m.proposal
}

// KVStorage returns the KeyValue storage interface
func (m *Manager) KVStorage() interfaces.KVStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
