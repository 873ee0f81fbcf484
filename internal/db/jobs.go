package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/refinelab/modeldash/internal/models"
)

const jobColumns = `id, name, description, job_type, base_model, model_name,
	status, training_type, progress, temperature, top_p, context_length,
	config, error_message, created_at, started_at, completed_at`

// CreateTrainingJob inserts a new job in PENDING state.
func (c *Client) CreateTrainingJob(ctx context.Context, input models.TrainingJobInput) (*models.TrainingJob, error) {
	cfg, err := json.Marshal(input.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	temperature := 0.7
	if input.Temperature != nil {
		temperature = *input.Temperature
	}
	topP := 0.9
	if input.TopP != nil {
		topP = *input.TopP
	}
	contextLength := 4096
	if input.ContextLength != nil {
		contextLength = *input.ContextLength
	}
	jobType := input.JobType
	if jobType == "" {
		jobType = "experimental"
	}
	trainingType := input.TrainingType
	if trainingType == "" {
		trainingType = models.TrainingTypeLoRA
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO training_jobs (name, description, job_type, base_model,
			status, training_type, temperature, top_p, context_length, config,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.Name, input.Description, jobType, input.BaseModel,
		models.JobStatusPending, trainingType, temperature, topP,
		contextLength, string(cfg), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert training job: %w", wrapSQLiteError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job insert id: %w", err)
	}
	return c.GetTrainingJob(ctx, id)
}

// GetTrainingJob returns a job by id.
func (c *Client) GetTrainingJob(ctx context.Context, id int64) (*models.TrainingJob, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM training_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get training job: %w", err)
	}
	return job, nil
}

// ListTrainingJobs returns all jobs, newest first.
func (c *Client) ListTrainingJobs(ctx context.Context) ([]models.TrainingJob, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM training_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list training jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateTrainingJob applies a partial update. Nil fields are untouched.
func (c *Client) UpdateTrainingJob(ctx context.Context, id int64, update models.TrainingJobUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*update.Status))
	}
	if update.Progress != nil {
		sets, args = append(sets, "progress = ?"), append(args, *update.Progress)
	}
	if update.ModelName != nil {
		sets, args = append(sets, "model_name = ?"), append(args, *update.ModelName)
	}
	if update.ErrorMessage != nil {
		sets, args = append(sets, "error_message = ?"), append(args, *update.ErrorMessage)
	}
	if update.StartedAt != nil {
		sets, args = append(sets, "started_at = ?"), append(args, update.StartedAt.UTC())
	}
	if update.CompletedAt != nil {
		sets, args = append(sets, "completed_at = ?"), append(args, update.CompletedAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := c.db.ExecContext(ctx,
		`UPDATE training_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update training job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("training job %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTrainingJob removes a job row. Fails with ErrNotFound if absent.
func (c *Client) DeleteTrainingJob(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM training_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete training job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("training job %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanJob(row rowScanner) (*models.TrainingJob, error) {
	var (
		job         models.TrainingJob
		cfg         string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.Name, &job.Description, &job.JobType,
		&job.BaseModel, &job.ModelName, &job.Status, &job.TrainingType,
		&job.Progress, &job.Temperature, &job.TopP, &job.ContextLength,
		&cfg, &job.ErrorMessage, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &job.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
