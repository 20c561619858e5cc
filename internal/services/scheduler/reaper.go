package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// Sweep bookkeeping keys, persisted so a restart can tell when the reaper
// last ran and how many jobs it has failed over the store's lifetime.
const (
	kvLastSweepKey   = "reaper:last_sweep"
	kvTotalReapedKey = "reaper:total_reaped"
)

// Reaper periodically fails generation jobs stuck in processing. A crashed
// run can leave a job without a terminal write; the reaper is the backstop
// that keeps the "never silently stuck" guarantee.
type Reaper struct {
	storage    interfaces.StorageManager
	events     interfaces.EventService
	logger     arbor.ILogger
	cron       *cron.Cron
	staleAfter time.Duration
	schedule   string
}

// NewReaper creates the stale-job reaper
func NewReaper(config *common.Config, storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger) (*Reaper, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage manager cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event service cannot be nil")
	}

	staleAfter, err := time.ParseDuration(config.Jobs.StaleAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid stale_after '%s': %w", config.Jobs.StaleAfter, err)
	}

	return &Reaper{
		storage:    storage,
		events:     events,
		logger:     logger,
		cron:       cron.New(),
		staleAfter: staleAfter,
		schedule:   config.Jobs.ReaperSchedule,
	}, nil
}

// Start begins the periodic sweep
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.sweep); err != nil {
		return fmt.Errorf("invalid reaper schedule '%s': %w", r.schedule, err)
	}

	r.cron.Start()
	r.logger.Info().
		Str("schedule", r.schedule).
		Str("stale_after", r.staleAfter.String()).
		Msg("Stale job reaper started")

	return nil
}

// Stop halts the sweep schedule
func (r *Reaper) Stop() {
	r.cron.Stop()
	r.logger.Info().Msg("Stale job reaper stopped")
}

// RunNow triggers one immediate sweep, used at startup to clean up jobs
// orphaned by a previous process
func (r *Reaper) RunNow() {
	r.sweep()
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stale, err := r.storage.JobStorage().GetStaleJobs(ctx, int64(r.staleAfter.Seconds()))
	if err != nil {
		r.logger.Error().Err(err).Msg("Stale job query failed")
		return
	}

	reaped := 0
	for _, job := range stale {
		if err := r.reapJob(ctx, job); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to reap stale job")
			continue
		}
		reaped++
	}

	if len(stale) > 0 {
		r.logger.Warn().
			Int("stale", len(stale)).
			Int("reaped", reaped).
			Msg("Stale jobs failed by reaper")
	}

	r.recordSweep(ctx, reaped)
}

// recordSweep persists the sweep time and the cumulative reap counter.
// Bookkeeping failures are logged, never fatal to the sweep.
func (r *Reaper) recordSweep(ctx context.Context, reaped int) {
	kv := r.storage.KVStorage()
	if kv == nil {
		return
	}

	if err := kv.Set(ctx, kvLastSweepKey, []byte(time.Now().Format(time.RFC3339))); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record reaper sweep time")
	}
	if reaped == 0 {
		return
	}

	total := int64(reaped)
	if raw, err := kv.Get(ctx, kvTotalReapedKey); err == nil {
		if prev, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			total += prev
		}
	}
	if err := kv.Set(ctx, kvTotalReapedKey, []byte(strconv.FormatInt(total, 10))); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record reaper counter")
	}
}

// reapJob fails the job, errors its document and notifies subscribers, the
// same terminal shape a pipeline failure produces
func (r *Reaper) reapJob(ctx context.Context, job *models.GenerationJob) error {
	job.MarkFailed(fmt.Sprintf("job timed out after %s without progress", r.staleAfter))
	if err := r.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return err
	}

	if err := r.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobStatusChanged,
		Payload: job.Snapshot(),
	}); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish reaped job status")
	}

	doc, err := r.storage.DocumentStorage().GetDocument(ctx, job.DocumentID)
	if err != nil {
		// The job is already terminal; a missing document is not worth
		// failing the sweep over.
		r.logger.Warn().Err(err).Str("document_id", job.DocumentID).Msg("Reaped job's document unavailable")
		return nil
	}

	doc.Status = models.DocumentStatusError
	doc.UpdatedAt = time.Now()
	return r.storage.DocumentStorage().SaveDocument(ctx, doc)
}
