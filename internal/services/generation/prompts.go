package generation

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/trado/internal/models"
)

// Prompt templates for the AI text-generation service. Generated documents
// target Japanese handover material, so the instructions are written in
// Japanese. The instructions pin three behaviors: use only the supplied
// data, flag unknown information as 「情報なし」 instead of inventing it,
// and answer in Markdown.

const sectionPromptTemplate = `あなたは引き継ぎ資料を作成するアシスタントです。
以下のセクションの内容を日本語のMarkdown形式で生成してください。

## セクション情報
- タイトル: %s
- 説明: %s

## 参照データ
%s

## 指示
- 提供されたデータに基づいて、正確かつ簡潔な内容を生成してください
- 箇条書きや表を適切に使用してください
- 不明な情報は推測せず、「情報なし」と記載してください
- Markdown形式で出力してください`

const proposalPromptTemplate = `あなたは引き継ぎ資料の構成を提案するアシスタントです。
以下のデータ概要から、最適な引き継ぎ資料のセクション構成を提案してください。

## データ概要
%s

## 出力形式
以下のJSON配列形式で出力してください。他のテキストは含めないでください。
[
  {
    "title": "セクションタイトル",
    "description": "このセクションに含める内容の説明",
    "estimated_sources": ["calendar", "messaging", "spreadsheet"]
  }
]

## 指示
- 引き継ぎに必要な一般的なセクション（概要、担当業務、進行中プロジェクト、連絡先など）を含めてください
- 利用可能なデータソースに基づいて適切なセクションを提案してください
- 5〜10セクション程度が適切です`

// buildSectionPrompt serializes the filtered corpus and produces the
// deterministic section generation instruction
func buildSectionPrompt(plan models.SectionPlan, corpus *models.Corpus) (string, error) {
	sourceData, err := json.Marshal(corpus)
	if err != nil {
		return "", fmt.Errorf("failed to serialize corpus: %w", err)
	}
	return fmt.Sprintf(sectionPromptTemplate, plan.Title, plan.Description, string(sourceData)), nil
}

// proposalContext is the data summary serialized into the structure
// proposal prompt
type proposalContext struct {
	Title            string               `json:"title"`
	TargetUserEmail  string               `json:"target_user_email,omitempty"`
	DateRangeStart   string               `json:"date_range_start"`
	DateRangeEnd     string               `json:"date_range_end"`
	AvailableSources []string             `json:"available_sources"`
	Summary          models.CorpusSummary `json:"summary"`
}

// buildProposalPrompt produces the structure proposal instruction from the
// document's selections and the aggregated data summary
func buildProposalPrompt(doc *models.Document, summary models.CorpusSummary) (string, error) {
	context := proposalContext{
		Title:            doc.Title,
		TargetUserEmail:  doc.TargetUserEmail,
		DateRangeStart:   doc.DateRangeStart.Format("2006-01-02"),
		DateRangeEnd:     doc.DateRangeEnd.Format("2006-01-02"),
		AvailableSources: doc.DataSources,
		Summary:          summary,
	}
	summaryText, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("failed to serialize data summary: %w", err)
	}
	return fmt.Sprintf(proposalPromptTemplate, string(summaryText)), nil
}
