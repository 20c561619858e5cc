package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SectionStorage implements the SectionStorage interface for Badger
type SectionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSectionStorage creates a new SectionStorage instance
func NewSectionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SectionStorage {
	return &SectionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SectionStorage) SaveSection(ctx context.Context, section *models.DocumentSection) error {
	if section.ID == "" {
		return fmt.Errorf("%w: section ID is required", models.ErrPersistence)
	}

	if err := s.db.Store().Upsert(section.ID, section); err != nil {
		return fmt.Errorf("%w: failed to save section: %v", models.ErrPersistence, err)
	}
	return nil
}

// GetSectionsByDocument returns the document's sections in display order
func (s *SectionStorage) GetSectionsByDocument(ctx context.Context, documentID string) ([]*models.DocumentSection, error) {
	var sections []models.DocumentSection
	if err := s.db.Store().Find(&sections, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
		return nil, fmt.Errorf("%w: failed to find sections: %v", models.ErrPersistence, err)
	}

	sort.Slice(sections, func(i, j int) bool {
		return sections[i].SectionOrder < sections[j].SectionOrder
	})

	out := make([]*models.DocumentSection, len(sections))
	for i := range sections {
		out[i] = &sections[i]
	}
	return out, nil
}

// DeleteSectionsByDocument removes all of a document's sections, returning
// the number deleted. Used for replace semantics on generation re-runs.
func (s *SectionStorage) DeleteSectionsByDocument(ctx context.Context, documentID string) (int, error) {
	sections, err := s.GetSectionsByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, section := range sections {
		if err := s.db.Store().Delete(section.ID, &models.DocumentSection{}); err != nil && err != badgerhold.ErrNotFound {
			return deleted, fmt.Errorf("%w: failed to delete section %s: %v", models.ErrPersistence, section.ID, err)
		}
		deleted++
	}
	return deleted, nil
}
