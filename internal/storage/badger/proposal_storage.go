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

// ProposalStorage implements the ProposalStorage interface for Badger
type ProposalStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProposalStorage creates a new ProposalStorage instance
func NewProposalStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProposalStorage {
	return &ProposalStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProposalStorage) SaveProposal(ctx context.Context, proposal *models.StructureProposal) error {
	if proposal.ID == "" {
		return fmt.Errorf("%w: proposal ID is required", models.ErrPersistence)
	}

	now := time.Now()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.UpdatedAt = now

	if err := s.db.Store().Upsert(proposal.ID, proposal); err != nil {
		return fmt.Errorf("%w: failed to save proposal: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *ProposalStorage) GetProposal(ctx context.Context, id string) (*models.StructureProposal, error) {
	var proposal models.StructureProposal
	if err := s.db.Store().Get(id, &proposal); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("proposal not found: %s", id)
		}
		return nil, fmt.Errorf("%w: failed to get proposal: %v", models.ErrPersistence, err)
	}
	return &proposal, nil
}

func (s *ProposalStorage) GetProposalsByDocument(ctx context.Context, documentID string) ([]*models.StructureProposal, error) {
	var proposals []models.StructureProposal
	if err := s.db.Store().Find(&proposals, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
		return nil, fmt.Errorf("%w: failed to find proposals: %v", models.ErrPersistence, err)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.After(proposals[j].CreatedAt)
	})

	out := make([]*models.StructureProposal, len(proposals))
	for i := range proposals {
		out[i] = &proposals[i]
	}
	return out, nil
}

// GetLatestApprovedProposal returns the most recently created approved
// proposal for the document, or nil when none exists
func (s *ProposalStorage) GetLatestApprovedProposal(ctx context.Context, documentID string) (*models.StructureProposal, error) {
	var proposals []models.StructureProposal
	err := s.db.Store().Find(&proposals,
		badgerhold.Where("DocumentID").Eq(documentID).And("Status").Eq(models.ProposalStatusApproved))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find approved proposals: %v", models.ErrPersistence, err)
	}
	if len(proposals) == 0 {
		return nil, nil
	}

	latest := &proposals[0]
	for i := range proposals {
		if proposals[i].CreatedAt.After(latest.CreatedAt) {
			latest = &proposals[i]
		}
	}
	return latest, nil
}

// DeleteProposalsByDocument removes all of a document's proposals, part of
// the document delete cascade
func (s *ProposalStorage) DeleteProposalsByDocument(ctx context.Context, documentID string) error {
	err := s.db.Store().DeleteMatching(&models.StructureProposal{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("%w: failed to delete proposals: %v", models.ErrPersistence, err)
	}
	return nil
}
