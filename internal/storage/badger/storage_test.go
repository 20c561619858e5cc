package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewGenerationJob("doc_1", "tenant_1")
	require.NoError(t, storage.SaveJob(ctx, job))

	loaded, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, models.JobStatusPending, loaded.Status)

	job.MarkStarted()
	job.Checkpoint(25, "データを収集中")
	require.NoError(t, storage.SaveJob(ctx, job))

	loaded, err = storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, loaded.Status)
	assert.Equal(t, 25, loaded.Progress)
	assert.Equal(t, "データを収集中", loaded.CurrentStep)

	_, err = storage.GetJob(ctx, "job_missing")
	assert.Error(t, err)
}

func TestJobStorage_GetStaleJobs(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	stale := models.NewGenerationJob("doc_1", "tenant_1")
	stale.MarkStarted()
	require.NoError(t, storage.SaveJob(ctx, stale))

	// Backdate the update timestamp past the cutoff
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Store().Upsert(stale.ID, stale))

	fresh := models.NewGenerationJob("doc_2", "tenant_1")
	fresh.MarkStarted()
	require.NoError(t, storage.SaveJob(ctx, fresh))

	done := models.NewGenerationJob("doc_3", "tenant_1")
	done.MarkStarted()
	done.MarkCompleted()
	require.NoError(t, storage.SaveJob(ctx, done))
	done.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Store().Upsert(done.ID, done))

	found, err := storage.GetStaleJobs(ctx, 3600)
	require.NoError(t, err)
	require.Len(t, found, 1, "only stale processing jobs are returned")
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestJobStorage_DeleteByDocument(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, storage.SaveJob(ctx, models.NewGenerationJob("doc_1", "tenant_1")))
	}
	kept := models.NewGenerationJob("doc_2", "tenant_1")
	require.NoError(t, storage.SaveJob(ctx, kept))

	require.NoError(t, storage.DeleteJobsByDocument(ctx, "doc_1"))

	gone, err := storage.GetJobsByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	remaining, err := storage.GetJobsByDocument(ctx, "doc_2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	// Deleting for a document with no jobs is a no-op
	require.NoError(t, storage.DeleteJobsByDocument(ctx, "doc_missing"))
}

func TestProposalStorage_DeleteByDocument(t *testing.T) {
	db := newTestDB(t)
	storage := NewProposalStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doomed := models.NewStructureProposal("doc_1", models.DefaultProposalSections())
	require.NoError(t, storage.SaveProposal(ctx, doomed))
	kept := models.NewStructureProposal("doc_2", models.DefaultProposalSections())
	require.NoError(t, storage.SaveProposal(ctx, kept))

	require.NoError(t, storage.DeleteProposalsByDocument(ctx, "doc_1"))

	gone, err := storage.GetProposalsByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	remaining, err := storage.GetProposalsByDocument(ctx, "doc_2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDocumentStorage_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doc := models.NewDocument("tenant_1", "引き継ぎ資料")
	doc.GenerationMode = models.GenerationModeAIProposal
	doc.DataSources = []string{models.SourceCalendar, models.SourceMessaging}
	doc.Metadata["slack_channel_ids"] = []string{"C123"}
	require.NoError(t, storage.SaveDocument(ctx, doc))

	loaded, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "引き継ぎ資料", loaded.Title)
	assert.Equal(t, []string{"C123"}, loaded.StringSliceMeta("slack_channel_ids"))

	_, err = storage.GetDocument(ctx, "doc_missing")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	list, err := storage.ListDocuments(ctx, "tenant_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, storage.DeleteDocument(ctx, doc.ID))
	_, err = storage.GetDocument(ctx, doc.ID)
	assert.Error(t, err)
}

func TestSectionStorage_OrderAndReplace(t *testing.T) {
	db := newTestDB(t)
	storage := NewSectionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, order := range []int{3, 1, 2} {
		section := models.NewDocumentSection("doc_1", order, "section")
		section.Content = "本文"
		require.NoError(t, storage.SaveSection(ctx, section))
	}
	other := models.NewDocumentSection("doc_2", 1, "other")
	require.NoError(t, storage.SaveSection(ctx, other))

	sections, err := storage.GetSectionsByDocument(ctx, "doc_1")
	require.NoError(t, err)
	require.Len(t, sections, 3)
	for i, section := range sections {
		assert.Equal(t, i+1, section.SectionOrder, "sections come back in display order")
	}

	deleted, err := storage.DeleteSectionsByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	sections, err = storage.GetSectionsByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Empty(t, sections)

	remaining, err := storage.GetSectionsByDocument(ctx, "doc_2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "other documents' sections are untouched")
}

func TestProposalStorage_LatestApproved(t *testing.T) {
	db := newTestDB(t)
	storage := NewProposalStorage(db, arbor.NewLogger())
	ctx := context.Background()

	older := models.NewStructureProposal("doc_1", models.DefaultProposalSections())
	older.Approve()
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveProposal(ctx, older))

	newer := models.NewStructureProposal("doc_1", models.DefaultProposalSections())
	newer.Approve()
	require.NoError(t, storage.SaveProposal(ctx, newer))

	pending := models.NewStructureProposal("doc_1", models.DefaultProposalSections())
	require.NoError(t, storage.SaveProposal(ctx, pending))

	latest, err := storage.GetLatestApprovedProposal(ctx, "doc_1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)

	none, err := storage.GetLatestApprovedProposal(ctx, "doc_other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTemplateStorage_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewTemplateStorage(db, arbor.NewLogger())
	ctx := context.Background()

	template := models.NewTemplate("tenant_1", "標準テンプレート", "/tmp/t.docx", models.TemplateFormatDocx)
	require.NoError(t, storage.SaveTemplate(ctx, template))

	template.MarkReady(&models.ParsedOutline{Sections: []models.OutlineSection{
		{Order: 1, Title: "概要", Level: 1},
	}})
	require.NoError(t, storage.SaveTemplate(ctx, template))

	loaded, err := storage.GetTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TemplateStatusReady, loaded.Status)
	require.NotNil(t, loaded.Outline)
	assert.Len(t, loaded.Outline.Sections, 1)
}

func TestKVStorage_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "Scheduler.LastRun", []byte("2026-08-31")))

	value, err := storage.Get(ctx, "scheduler.lastrun")
	require.NoError(t, err)
	assert.Equal(t, []byte("2026-08-31"), value, "keys are case-insensitive")

	require.NoError(t, storage.Delete(ctx, "scheduler.lastrun"))
	_, err = storage.Get(ctx, "scheduler.lastrun")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
