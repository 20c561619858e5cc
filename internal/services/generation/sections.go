package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// generateSectionContent filters the corpus down to the section's relevant
// sources and asks the AI service for the section's markdown body. An empty
// source estimate means the section sees the whole corpus. AI failures are
// fatal for the run.
func (s *Service) generateSectionContent(ctx context.Context, plan models.SectionPlan, corpus *models.Corpus) (string, error) {
	filtered := corpus.FilterSources(plan.EstimatedSources)

	prompt, err := buildSectionPrompt(plan, filtered)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAIGeneration, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.sectionTimeout)
	defer cancel()

	content, err := s.llm.Chat(callCtx, []interfaces.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("%w: section '%s': %v", models.ErrAIGeneration, plan.Title, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: section '%s': empty response", models.ErrAIGeneration, plan.Title)
	}

	return content, nil
}

// sectionSourceTags records which sources the section drew from. An empty
// estimate expands to the document's selected sources for traceability.
func sectionSourceTags(plan models.SectionPlan, doc *models.Document) []string {
	if len(plan.EstimatedSources) > 0 {
		return plan.EstimatedSources
	}
	return doc.DataSources
}
