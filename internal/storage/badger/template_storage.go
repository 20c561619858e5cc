package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TemplateStorage implements the TemplateStorage interface for Badger
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TemplateStorage) SaveTemplate(ctx context.Context, template *models.Template) error {
	if template.ID == "" {
		return fmt.Errorf("%w: template ID is required", models.ErrPersistence)
	}

	now := time.Now()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now

	if err := s.db.Store().Upsert(template.ID, template); err != nil {
		return fmt.Errorf("%w: failed to save template: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *TemplateStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var template models.Template
	if err := s.db.Store().Get(id, &template); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("template not found: %s", id)
		}
		return nil, fmt.Errorf("%w: failed to get template: %v", models.ErrPersistence, err)
	}
	return &template, nil
}

func (s *TemplateStorage) ListTemplates(ctx context.Context, tenantID string) ([]*models.Template, error) {
	var templates []models.Template
	if err := s.db.Store().Find(&templates, badgerhold.Where("TenantID").Eq(tenantID)); err != nil {
		return nil, fmt.Errorf("%w: failed to list templates: %v", models.ErrPersistence, err)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	out := make([]*models.Template, len(templates))
	for i := range templates {
		out[i] = &templates[i]
	}
	return out, nil
}

func (s *TemplateStorage) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Template{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("%w: failed to delete template: %v", models.ErrPersistence, err)
	}
	return nil
}
