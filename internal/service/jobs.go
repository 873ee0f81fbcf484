// Package service provides business logic for modeldash operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/models"
)

// JobManager starts, stops and tracks background training jobs. Job state
// is persisted in the database; the in-memory map only tracks cancellation
// handles for runs owned by this process.
type JobManager struct {
	db      *db.Client
	trainer *Trainer
	logger  *slog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

// NewJobManager creates a job manager.
func NewJobManager(dbClient *db.Client, trainer *Trainer, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		db:      dbClient,
		trainer: trainer,
		logger:  logger,
		running: make(map[int64]context.CancelFunc),
	}
}

// Start launches a training job in the background. Fails if the job is
// already running in this process or has already finished.
func (m *JobManager) Start(ctx context.Context, jobID int64) error {
	job, err := m.db.GetTrainingJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %d already finished with status %s", jobID, job.Status)
	}

	m.mu.Lock()
	if _, ok := m.running[jobID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("job %d is already running", jobID)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.running[jobID] = cancel
	m.mu.Unlock()

	now := time.Now().UTC()
	status := models.JobStatusRunning
	if err := m.db.UpdateTrainingJob(ctx, jobID, models.TrainingJobUpdate{
		Status:    &status,
		StartedAt: &now,
	}); err != nil {
		m.release(jobID)
		return fmt.Errorf("mark job running: %w", err)
	}

	// Correlates log lines from this run; a restarted job gets a new id.
	runID := uuid.NewString()
	m.logger.Info("training job started",
		"job_id", jobID, "run_id", runID, "name", job.Name, "type", job.TrainingType)

	go func() {
		defer m.release(jobID)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("training goroutine panicked", "job_id", jobID, "run_id", runID, "panic", r)
				m.fail(jobID, fmt.Errorf("internal panic: %v", r))
			}
		}()

		modelName, err := m.trainer.Run(runCtx, job, func(p float64) {
			if uerr := m.db.UpdateTrainingJob(context.Background(), jobID, models.TrainingJobUpdate{Progress: &p}); uerr != nil {
				m.logger.Warn("failed to persist job progress", "job_id", jobID, "error", uerr)
			}
		})
		if err != nil {
			if runCtx.Err() != nil {
				m.stop(jobID)
				return
			}
			m.fail(jobID, err)
			return
		}
		m.complete(jobID, modelName)
	}()

	return nil
}

// Stop cancels a running job. The job is marked STOPPED once the run
// goroutine observes the cancellation.
func (m *JobManager) Stop(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	cancel, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %d is not running", jobID)
	}
	cancel()
	m.logger.Info("training job stop requested", "job_id", jobID)
	return nil
}

// Running returns the ids of jobs currently executing in this process.
func (m *JobManager) Running() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

func (m *JobManager) release(jobID int64) {
	m.mu.Lock()
	if cancel, ok := m.running[jobID]; ok {
		cancel()
		delete(m.running, jobID)
	}
	m.mu.Unlock()
}

func (m *JobManager) complete(jobID int64, modelName string) {
	now := time.Now().UTC()
	status := models.JobStatusCompleted
	progress := 1.0
	err := m.db.UpdateTrainingJob(context.Background(), jobID, models.TrainingJobUpdate{
		Status:      &status,
		Progress:    &progress,
		ModelName:   &modelName,
		CompletedAt: &now,
	})
	if err != nil {
		m.logger.Warn("failed to persist job completion", "job_id", jobID, "error", err)
	}
	m.logger.Info("training job completed", "job_id", jobID, "model", modelName)
}

func (m *JobManager) fail(jobID int64, jobErr error) {
	now := time.Now().UTC()
	status := models.JobStatusFailed
	msg := jobErr.Error()
	err := m.db.UpdateTrainingJob(context.Background(), jobID, models.TrainingJobUpdate{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	})
	if err != nil {
		m.logger.Warn("failed to persist job failure", "job_id", jobID, "error", err)
	}
	m.logger.Error("training job failed", "job_id", jobID, "error", jobErr)
}

func (m *JobManager) stop(jobID int64) {
	now := time.Now().UTC()
	status := models.JobStatusStopped
	err := m.db.UpdateTrainingJob(context.Background(), jobID, models.TrainingJobUpdate{
		Status:      &status,
		CompletedAt: &now,
	})
	if err != nil {
		m.logger.Warn("failed to persist job stop", "job_id", jobID, "error", err)
	}
	m.logger.Info("training job stopped", "job_id", jobID)
}
