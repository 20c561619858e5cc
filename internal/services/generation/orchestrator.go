// -----------------------------------------------------------------------
// Job Orchestrator - checkpointed generation pipeline
// -----------------------------------------------------------------------

package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// Checkpoint step labels, surfaced to clients via job status
const (
	stepResolvingStructure = "resolving_structure"
	stepFetchingData       = "fetching_data"
	stepGeneratingContent  = "generating_content"
	stepDone               = "done"
)

// CorpusAggregator fetches and merges source data for a document
type CorpusAggregator interface {
	Aggregate(ctx context.Context, doc *models.Document) (*models.Corpus, models.CorpusSummary)
}

// Service drives the generation pipeline as an ordered sequence of
// checkpointed stages, each persisting (progress, current_step) before
// doing its work. It implements interfaces.GenerationService.
type Service struct {
	config     *common.Config
	logger     arbor.ILogger
	storage    interfaces.StorageManager
	aggregator CorpusAggregator
	llm        interfaces.LLMService
	events     interfaces.EventService

	sectionTimeout time.Duration

	// activeRuns guarantees at most one run per job id; progress writes
	// are not otherwise serialized.
	runMu      sync.Mutex
	activeRuns map[string]struct{}
}

// pipelineRun carries one invocation's state across stages
type pipelineRun struct {
	job    *models.GenerationJob
	doc    *models.Document
	plan   []models.SectionPlan
	corpus *models.Corpus
}

// pipelineStage is one named, checkpointed step of the run
type pipelineStage struct {
	name string
	run  func(ctx context.Context, run *pipelineRun) error
}

// NewService creates the generation orchestrator
func NewService(
	config *common.Config,
	logger arbor.ILogger,
	storage interfaces.StorageManager,
	aggregator CorpusAggregator,
	llm interfaces.LLMService,
	events interfaces.EventService,
) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage manager cannot be nil")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm service cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event service cannot be nil")
	}

	sectionTimeout, err := time.ParseDuration(config.Generation.SectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid section timeout '%s': %w", config.Generation.SectionTimeout, err)
	}

	return &Service{
		config:         config,
		logger:         logger,
		storage:        storage,
		aggregator:     aggregator,
		llm:            llm,
		events:         events,
		sectionTimeout: sectionTimeout,
		activeRuns:     make(map[string]struct{}),
	}, nil
}

// Generate runs the checkpointed pipeline for (document, job). The job is
// always left in a terminal state before return, including on panic: a
// stuck processing job is never an acceptable outcome.
func (s *Service) Generate(ctx context.Context, documentID, jobID string) (err error) {
	if !s.acquireRun(jobID) {
		return fmt.Errorf("%w: %s", models.ErrJobActive, jobID)
	}
	defer s.releaseRun(jobID)

	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	run := &pipelineRun{job: job}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
			s.logger.Error().
				Str("job_id", jobID).
				Str("document_id", documentID).
				Msg(err.Error())
			s.finishFailed(ctx, run, err)
		}
	}()

	job.MarkStarted()
	if err := s.saveAndPublish(ctx, job); err != nil {
		s.finishFailed(ctx, run, err)
		return err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("document_id", documentID).
		Msg("Generation started")

	doc, err := s.storage.DocumentStorage().GetDocument(ctx, documentID)
	if err != nil {
		s.finishFailed(ctx, run, err)
		return err
	}
	run.doc = doc

	doc.Status = models.DocumentStatusGenerating
	doc.UpdatedAt = time.Now()
	if err := s.storage.DocumentStorage().SaveDocument(ctx, doc); err != nil {
		s.finishFailed(ctx, run, err)
		return err
	}

	stages := []pipelineStage{
		{name: stepResolvingStructure, run: s.stageResolveStructure},
		{name: stepFetchingData, run: s.stageFetchData},
		{name: stepGeneratingContent, run: s.stageGenerateSections},
	}

	for _, stage := range stages {
		if err := stage.run(ctx, run); err != nil {
			s.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Str("stage", stage.name).
				Msg("Generation stage failed")
			s.finishFailed(ctx, run, err)
			return err
		}
	}

	return s.finishCompleted(ctx, run)
}

// stageResolveStructure resolves the section plan for the run
func (s *Service) stageResolveStructure(ctx context.Context, run *pipelineRun) error {
	if err := s.checkpoint(ctx, run.job, 0, stepResolvingStructure); err != nil {
		return err
	}

	plan, err := s.resolvePlan(ctx, run.doc)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return fmt.Errorf("resolved section plan is empty")
	}
	run.plan = plan
	return nil
}

// stageFetchData aggregates the document's selected sources into the run
// corpus. Individual source failures have already been absorbed by the
// aggregator; the stage itself only fails on checkpoint persistence.
func (s *Service) stageFetchData(ctx context.Context, run *pipelineRun) error {
	if err := s.checkpoint(ctx, run.job, fetchProgress(len(run.plan)), stepFetchingData); err != nil {
		return err
	}

	corpus, _ := s.aggregator.Aggregate(ctx, run.doc)
	run.corpus = corpus
	return nil
}

// stageGenerateSections walks the plan in order, checkpointing before each
// section, generating its content and persisting the section row. Prior
// sections are cleared first when re-runs replace.
func (s *Service) stageGenerateSections(ctx context.Context, run *pipelineRun) error {
	if s.config.Generation.ReplaceOnRerun {
		deleted, err := s.storage.SectionStorage().DeleteSectionsByDocument(ctx, run.doc.ID)
		if err != nil {
			return err
		}
		if deleted > 0 {
			s.logger.Info().
				Str("document_id", run.doc.ID).
				Int("deleted", deleted).
				Msg("Cleared prior sections before regeneration")
		}
	}

	total := len(run.plan)
	for i, plan := range run.plan {
		step := fmt.Sprintf("%s (%d/%d)", stepGeneratingContent, i+1, total)
		if err := s.checkpoint(ctx, run.job, sectionProgress(i, total), step); err != nil {
			return err
		}

		content, err := s.generateSectionContent(ctx, plan, run.corpus)
		if err != nil {
			return err
		}

		section := models.NewDocumentSection(run.doc.ID, plan.Order, plan.Title)
		section.Content = content
		section.SourceTags = sectionSourceTags(plan, run.doc)
		section.IsAIGenerated = true

		if err := s.storage.SectionStorage().SaveSection(ctx, section); err != nil {
			return err
		}
	}

	return nil
}

// checkpoint persists (progress, current_step) and publishes the snapshot
// to status subscribers
func (s *Service) checkpoint(ctx context.Context, job *models.GenerationJob, progress int, step string) error {
	job.Checkpoint(progress, step)
	return s.saveAndPublish(ctx, job)
}

func (s *Service) saveAndPublish(ctx context.Context, job *models.GenerationJob) error {
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return err
	}
	s.publishStatus(ctx, job)
	return nil
}

func (s *Service) publishStatus(ctx context.Context, job *models.GenerationJob) {
	if err := s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobStatusChanged,
		Payload: job.Snapshot(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job status")
	}
}

// finishCompleted marks document and job completed and publishes both the
// final status and the document completion event
func (s *Service) finishCompleted(ctx context.Context, run *pipelineRun) error {
	run.doc.Status = models.DocumentStatusCompleted
	run.doc.UpdatedAt = time.Now()
	if err := s.storage.DocumentStorage().SaveDocument(ctx, run.doc); err != nil {
		s.finishFailed(ctx, run, err)
		return err
	}

	run.job.CurrentStep = stepDone
	run.job.MarkCompleted()
	if err := s.storage.JobStorage().SaveJob(ctx, run.job); err != nil {
		return err
	}
	s.publishStatus(ctx, run.job)

	if err := s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventDocumentCompleted,
		Payload: run.doc,
	}); err != nil {
		s.logger.Warn().Err(err).Str("document_id", run.doc.ID).Msg("Failed to publish document completion")
	}

	s.logger.Info().
		Str("job_id", run.job.ID).
		Str("document_id", run.doc.ID).
		Int("sections", len(run.plan)).
		Msg("Generation completed")

	return nil
}

// finishFailed best-effort marks the job failed and the document errored.
// Persistence failures here are logged, not propagated; the run error is
// what the caller sees.
func (s *Service) finishFailed(ctx context.Context, run *pipelineRun, cause error) {
	run.job.MarkFailed(cause.Error())
	if err := s.storage.JobStorage().SaveJob(ctx, run.job); err != nil {
		s.logger.Error().Err(err).Str("job_id", run.job.ID).Msg("Failed to persist failed job state")
	}
	s.publishStatus(ctx, run.job)

	if run.doc != nil {
		run.doc.Status = models.DocumentStatusError
		run.doc.UpdatedAt = time.Now()
		if err := s.storage.DocumentStorage().SaveDocument(ctx, run.doc); err != nil {
			s.logger.Error().Err(err).Str("document_id", run.doc.ID).Msg("Failed to persist document error state")
		}
	}
}

// IsRunning reports whether a run is currently active for the job id
func (s *Service) IsRunning(jobID string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	_, active := s.activeRuns[jobID]
	return active
}

func (s *Service) acquireRun(jobID string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, active := s.activeRuns[jobID]; active {
		return false
	}
	s.activeRuns[jobID] = struct{}{}
	return true
}

func (s *Service) releaseRun(jobID string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	delete(s.activeRuns, jobID)
}

// fetchProgress is the checkpoint value before data aggregation: one of
// N+1 total units, where N is the planned section count
func fetchProgress(sectionCount int) int {
	return 100 / (sectionCount + 1)
}

// sectionProgress is the checkpoint value before generating section i
// (0-based) of total. Capped below 100: full progress is reserved for the
// completed state.
func sectionProgress(i, total int) int {
	progress := (2 + i) * 100 / (total + 1)
	if progress >= 100 {
		progress = 99
	}
	return progress
}
