package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/models"
)

type testHarness struct {
	service    *Service
	store      *memStore
	aggregator *stubAggregator
	llm        *stubLLM
	events     *recordingEvents
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store := newMemStore()
	aggregator := &stubAggregator{corpus: testCorpus()}
	llm := &stubLLM{response: "## 生成された内容\n- 項目1"}
	events := &recordingEvents{}

	service, err := NewService(common.NewDefaultConfig(), arbor.NewLogger(), store, aggregator, llm, events)
	require.NoError(t, err)

	return &testHarness{
		service:    service,
		store:      store,
		aggregator: aggregator,
		llm:        llm,
		events:     events,
	}
}

func testCorpus() *models.Corpus {
	return &models.Corpus{
		CalendarEvents: []models.CalendarEvent{
			{ID: "ev1", Title: "週次定例", Start: time.Now()},
		},
		Messages: []models.ChannelMessage{
			{ChannelID: "C1", ChannelName: "general", Text: "リリース完了しました"},
		},
		Spreadsheets: []models.SpreadsheetData{
			{SpreadsheetID: "sp1", Title: "タスク管理"},
		},
	}
}

// seedDocumentAndJob creates a draft document with an approved two-section
// proposal and a pending job
func seedDocumentAndJob(t *testing.T, store *memStore) (*models.Document, *models.GenerationJob) {
	t.Helper()
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "引き継ぎ資料")
	doc.GenerationMode = models.GenerationModeAIProposal
	doc.DataSources = models.AllSources
	require.NoError(t, store.SaveDocument(ctx, doc))

	proposal := models.NewStructureProposal(doc.ID, []models.SectionPlan{
		{Order: 1, Title: "概要", Description: "全体像"},
		{Order: 2, Title: "連絡事項", Description: "チャットの要点", EstimatedSources: []string{models.SourceMessaging}},
	})
	proposal.Approve()
	require.NoError(t, store.SaveProposal(ctx, proposal))

	job := models.NewGenerationJob(doc.ID, doc.TenantID)
	require.NoError(t, store.SaveJob(ctx, job))

	return doc, job
}

func TestGenerate_CompletesWithSections(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	require.NoError(t, h.service.Generate(ctx, doc.ID, job.ID))

	stored, err := h.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, "done", stored.CurrentStep)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Empty(t, stored.ErrorMessage)

	storedDoc, err := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusCompleted, storedDoc.Status)

	sections, err := h.store.GetSectionsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, []int{1, 2}, []int{sections[0].SectionOrder, sections[1].SectionOrder})
	assert.Equal(t, "概要", sections[0].Title)
	assert.Equal(t, "連絡事項", sections[1].Title)
	for _, section := range sections {
		assert.True(t, section.IsAIGenerated)
		assert.NotEmpty(t, section.Content)
	}
}

func TestGenerate_ProgressIsMonotonicAndTerminalOnlyAt100(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	require.NoError(t, h.service.Generate(ctx, doc.ID, job.ID))

	updates := h.events.statusUpdates()
	require.NotEmpty(t, updates)

	previous := -1
	for _, update := range updates {
		assert.GreaterOrEqual(t, update.Progress, previous, "progress must never decrease")
		previous = update.Progress
		if update.Progress == 100 {
			assert.Equal(t, models.JobStatusCompleted, update.Status)
		}
		if !update.IsTerminal() {
			assert.Less(t, update.Progress, 100)
		}
	}
	assert.Equal(t, 100, updates[len(updates)-1].Progress)
}

func TestGenerate_SectionFilteringRestrictsPromptData(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	require.NoError(t, h.service.Generate(ctx, doc.ID, job.ID))

	prompts := h.llm.sentPrompts()
	require.Len(t, prompts, 2)

	// First section has no source estimate: sees everything
	assert.Contains(t, prompts[0], "週次定例")
	assert.Contains(t, prompts[0], "リリース完了しました")
	assert.Contains(t, prompts[0], "タスク管理")

	// Second section is messaging-only
	assert.Contains(t, prompts[1], "リリース完了しました")
	assert.NotContains(t, prompts[1], "週次定例")
	assert.NotContains(t, prompts[1], "タスク管理")
}

func TestGenerate_AIFailureFailsJobAndDocument(t *testing.T) {
	h := newTestHarness(t)
	h.llm.err = errors.New("upstream unavailable")
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	err := h.service.Generate(ctx, doc.ID, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAIGeneration)

	stored, getErr := h.store.GetJob(ctx, job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)
	assert.Less(t, stored.Progress, 100)

	storedDoc, getErr := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.DocumentStatusError, storedDoc.Status)
}

func TestGenerate_DocumentNotFoundFailsJob(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	job := models.NewGenerationJob("doc_missing", "tenant-1")
	require.NoError(t, h.store.SaveJob(ctx, job))

	err := h.service.Generate(ctx, "doc_missing", job.ID)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	stored, getErr := h.store.GetJob(ctx, job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestGenerate_RejectsConcurrentRunForSameJob(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	block := make(chan struct{})
	h.llm.blockUntil = block

	done := make(chan error, 1)
	go func() {
		done <- h.service.Generate(ctx, doc.ID, job.ID)
	}()

	require.Eventually(t, func() bool {
		return h.service.IsRunning(job.ID)
	}, time.Second, 5*time.Millisecond)

	err := h.service.Generate(ctx, doc.ID, job.ID)
	assert.ErrorIs(t, err, models.ErrJobActive)

	close(block)
	require.NoError(t, <-done)
	assert.False(t, h.service.IsRunning(job.ID))
}

func TestGenerate_ReplacesPriorSectionsOnRerun(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	stale := models.NewDocumentSection(doc.ID, 1, "古いセクション")
	stale.Content = "previous run output"
	require.NoError(t, h.store.SaveSection(ctx, stale))

	require.NoError(t, h.service.Generate(ctx, doc.ID, job.ID))

	sections, err := h.store.GetSectionsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	for _, section := range sections {
		assert.NotEqual(t, "古いセクション", section.Title)
	}
}

func TestGenerate_TerminalJobIsNotRerun(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	doc, job := seedDocumentAndJob(t, h.store)

	job.MarkStarted()
	job.MarkCompleted()
	require.NoError(t, h.store.SaveJob(ctx, job))

	err := h.service.Generate(ctx, doc.ID, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestGenerate_FallsBackToDefaultOutline(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "提案なし資料")
	doc.GenerationMode = models.GenerationModeAIProposal
	doc.DataSources = []string{models.SourceCalendar}
	require.NoError(t, h.store.SaveDocument(ctx, doc))

	job := models.NewGenerationJob(doc.ID, doc.TenantID)
	require.NoError(t, h.store.SaveJob(ctx, job))

	require.NoError(t, h.service.Generate(ctx, doc.ID, job.ID))

	sections, err := h.store.GetSectionsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, "概要", sections[0].Title)
	assert.Equal(t, "担当業務", sections[1].Title)
	assert.Equal(t, "引き継ぎ事項", sections[2].Title)
}

func TestSectionProgress(t *testing.T) {
	// 2 sections: fetch at 33, first section at 66, second at 99 (capped)
	assert.Equal(t, 33, fetchProgress(2))
	assert.Equal(t, 66, sectionProgress(0, 2))
	assert.Equal(t, 99, sectionProgress(1, 2))

	// Larger plans stay strictly below 100 until completion
	for total := 1; total <= 10; total++ {
		for i := 0; i < total; i++ {
			progress := sectionProgress(i, total)
			assert.Less(t, progress, 100)
			assert.Greater(t, progress, 0)
		}
	}
}

func TestResolvePlan_TemplateModeUsesParsedOutline(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	template := models.NewTemplate("tenant-1", "旧資料", "/tmp/x.docx", models.TemplateFormatDocx)
	template.MarkReady(&models.ParsedOutline{Sections: []models.OutlineSection{
		{Order: 1, Title: "はじめに", Level: 1},
		{Order: 2, Title: "業務詳細", Level: 2},
	}})
	require.NoError(t, h.store.SaveTemplate(ctx, template))

	doc := models.NewDocument("tenant-1", "テンプレート資料")
	doc.GenerationMode = models.GenerationModeTemplate
	doc.TemplateID = template.ID

	plan, err := h.service.resolvePlan(ctx, doc)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "はじめに", plan[0].Title)
	assert.Equal(t, 2, plan[1].Level)
	assert.Empty(t, plan[0].EstimatedSources, "template sections see the full corpus")
}

func TestResolvePlan_TemplateMissingFallsBack(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "壊れた参照")
	doc.GenerationMode = models.GenerationModeTemplate
	doc.TemplateID = "tpl_missing"

	plan, err := h.service.resolvePlan(ctx, doc)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, "概要", plan[0].Title)
}

func TestResolvePlan_CapsOversizedPlans(t *testing.T) {
	h := newTestHarness(t)
	h.service.config.Generation.MaxSections = 3
	ctx := context.Background()

	doc := models.NewDocument("tenant-1", "大きな提案")
	doc.GenerationMode = models.GenerationModeAIProposal

	var sections []models.SectionPlan
	for i := 0; i < 8; i++ {
		sections = append(sections, models.SectionPlan{Order: i + 1, Title: "セクション"})
	}
	proposal := models.NewStructureProposal(doc.ID, sections)
	proposal.Approve()
	require.NoError(t, h.store.SaveProposal(ctx, proposal))
	require.NoError(t, h.store.SaveDocument(ctx, doc))

	plan, err := h.service.resolvePlan(ctx, doc)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{plan[0].Order, plan[1].Order, plan[2].Order})
}
