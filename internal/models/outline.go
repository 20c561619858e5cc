package models

// SectionPlan is the unit the structure resolver produces and the section
// content generator consumes. Not persisted on its own; it lives inside
// proposals and template outlines.
type SectionPlan struct {
	Order       int    `json:"order"` // 1-based, dense within a plan
	Title       string `json:"title"`
	Level       int    `json:"level,omitempty"`
	Description string `json:"description,omitempty"`

	// EstimatedSources names the source types relevant to this section.
	// Empty means "use everything".
	EstimatedSources []string `json:"estimated_sources,omitempty"`
}

// OutlineSection is one heading extracted from a template file
type OutlineSection struct {
	Order int    `json:"order"` // 1-based, dense; skipped non-headings consume no order value
	Title string `json:"title"`
	Level int    `json:"level"`
}

// ParsedOutline is the format-agnostic output of the template structure
// extractors, persisted as the template's structure.
type ParsedOutline struct {
	Sections []OutlineSection `json:"sections"`
}

// IsEmpty reports whether the outline carries no sections
func (o *ParsedOutline) IsEmpty() bool {
	return o == nil || len(o.Sections) == 0
}

// ToPlan converts a parsed outline into section plans. Template outlines have
// no descriptions or source estimates, so every section sees the full corpus.
func (o *ParsedOutline) ToPlan() []SectionPlan {
	if o == nil {
		return nil
	}
	plan := make([]SectionPlan, 0, len(o.Sections))
	for _, s := range o.Sections {
		plan = append(plan, SectionPlan{
			Order: s.Order,
			Title: s.Title,
			Level: s.Level,
		})
	}
	return plan
}

// DefaultOutlinePlan returns the fixed fallback outline used when neither a
// template nor an approved proposal yields a non-empty plan.
func DefaultOutlinePlan() []SectionPlan {
	return []SectionPlan{
		{Order: 1, Title: "概要", Level: 1, Description: "業務全体の概要"},
		{Order: 2, Title: "担当業務", Level: 1, Description: "担当していた業務の内容"},
		{Order: 3, Title: "引き継ぎ事項", Level: 1, Description: "後任者への引き継ぎ事項"},
	}
}
