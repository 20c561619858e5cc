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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job ID is required", models.ErrPersistence)
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("%w: failed to save job: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", id)
		}
		return nil, fmt.Errorf("%w: failed to get job: %v", models.ErrPersistence, err)
	}
	return &job, nil
}

func (s *JobStorage) GetJobsByDocument(ctx context.Context, documentID string) ([]*models.GenerationJob, error) {
	var jobs []models.GenerationJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
		return nil, fmt.Errorf("%w: failed to find jobs: %v", models.ErrPersistence, err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	out := make([]*models.GenerationJob, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

func (s *JobStorage) GetStaleJobs(ctx context.Context, olderThanSeconds int64) ([]*models.GenerationJob, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	var jobs []models.GenerationJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find processing jobs: %v", models.ErrPersistence, err)
	}

	var stale []*models.GenerationJob
	for i := range jobs {
		if jobs[i].UpdatedAt.Before(cutoff) {
			stale = append(stale, &jobs[i])
		}
	}
	return stale, nil
}

// DeleteJobsByDocument removes all of a document's jobs, part of the
// document delete cascade
func (s *JobStorage) DeleteJobsByDocument(ctx context.Context, documentID string) error {
	err := s.db.Store().DeleteMatching(&models.GenerationJob{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("%w: failed to delete jobs: %v", models.ErrPersistence, err)
	}
	return nil
}
