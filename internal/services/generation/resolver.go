package generation

import (
	"context"

	"github.com/ternarybob/trado/internal/models"
)

// resolvePlan decides the ordered list of sections to produce. Decision
// order: the attached template's parsed outline in template mode, then the
// most recently approved proposal, then the fixed default outline. The
// resolver never fabricates content, only structure.
func (s *Service) resolvePlan(ctx context.Context, doc *models.Document) ([]models.SectionPlan, error) {
	if doc.GenerationMode == models.GenerationModeTemplate && doc.TemplateID != "" {
		template, err := s.storage.TemplateStorage().GetTemplate(ctx, doc.TemplateID)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("document_id", doc.ID).
				Str("template_id", doc.TemplateID).
				Msg("Template unavailable, falling back")
		} else if template.Status == models.TemplateStatusReady && !template.Outline.IsEmpty() {
			return s.capPlan(template.Outline.ToPlan()), nil
		}
	}

	proposal, err := s.storage.ProposalStorage().GetLatestApprovedProposal(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if proposal != nil && len(proposal.Sections) > 0 {
		return s.capPlan(proposal.Sections), nil
	}

	s.logger.Info().
		Str("document_id", doc.ID).
		Str("generation_mode", string(doc.GenerationMode)).
		Msg("No template outline or approved proposal, using default outline")

	return models.DefaultOutlinePlan(), nil
}

// capPlan bounds the plan at the configured maximum section count and
// renumbers orders densely from 1
func (s *Service) capPlan(plan []models.SectionPlan) []models.SectionPlan {
	maxSections := s.config.Generation.MaxSections
	if maxSections > 0 && len(plan) > maxSections {
		s.logger.Warn().
			Int("planned", len(plan)).
			Int("max", maxSections).
			Msg("Section plan exceeds maximum, truncating")
		plan = plan[:maxSections]
	}
	for i := range plan {
		plan[i].Order = i + 1
	}
	return plan
}
