package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// proposedSection is the JSON shape the AI is asked to return
type proposedSection struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	EstimatedSources []string `json:"estimated_sources"`
}

// ProposeStructure aggregates the document's sources and asks the AI service
// for a section outline, persisting it as a pending proposal awaiting user
// review. An unparseable AI response degrades to the fixed default proposal;
// an AI call failure is fatal.
func (s *Service) ProposeStructure(ctx context.Context, documentID string) (*models.StructureProposal, error) {
	doc, err := s.storage.DocumentStorage().GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	_, summary := s.aggregator.Aggregate(ctx, doc)

	prompt, err := buildProposalPrompt(doc, summary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAIGeneration, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.sectionTimeout)
	defer cancel()

	response, err := s.llm.Chat(callCtx, []interfaces.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: structure proposal: %v", models.ErrAIGeneration, err)
	}

	sections := parseProposedSections(response)
	if len(sections) == 0 {
		s.logger.Warn().
			Str("document_id", documentID).
			Msg("Could not parse proposed structure, using default proposal")
		sections = models.DefaultProposalSections()
	}

	proposal := models.NewStructureProposal(documentID, sections)
	if err := s.storage.ProposalStorage().SaveProposal(ctx, proposal); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("document_id", documentID).
		Str("proposal_id", proposal.ID).
		Int("sections", len(sections)).
		Msg("Structure proposal created")

	return proposal, nil
}

// parseProposedSections extracts the first JSON array from the AI response
// and converts it into section plans. Returns nil when no valid, non-empty
// array can be recovered.
func parseProposedSections(response string) []models.SectionPlan {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil
	}

	var proposed []proposedSection
	if err := json.Unmarshal([]byte(response[start:end+1]), &proposed); err != nil {
		return nil
	}

	plan := make([]models.SectionPlan, 0, len(proposed))
	for _, section := range proposed {
		title := strings.TrimSpace(section.Title)
		if title == "" {
			continue
		}
		plan = append(plan, models.SectionPlan{
			Order:            len(plan) + 1,
			Title:            title,
			Level:            1,
			Description:      strings.TrimSpace(section.Description),
			EstimatedSources: normalizeSources(section.EstimatedSources),
		})
	}
	return plan
}

// normalizeSources keeps only supported source types, mapping the "slack"
// alias the AI tends to emit onto the messaging source
func normalizeSources(sources []string) []string {
	var out []string
	for _, source := range sources {
		source = strings.ToLower(strings.TrimSpace(source))
		if source == "slack" {
			source = models.SourceMessaging
		}
		if models.IsValidSource(source) {
			out = append(out, source)
		}
	}
	return out
}
