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

const evalColumns = `id, model_name, dataset_id, evaluation_type, status,
	before_metrics, after_metrics, improvement, notes, error_message,
	created_at, completed_at`

// CreateEvaluation inserts a new evaluation in PENDING state.
func (c *Client) CreateEvaluation(ctx context.Context, input models.EvaluationInput) (*models.Evaluation, error) {
	evalType := input.EvaluationType
	if evalType == "" {
		evalType = "accuracy"
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO evaluations (model_name, dataset_id, evaluation_type,
			status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		input.ModelName, input.DatasetID, evalType, models.JobStatusPending,
		input.Notes, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert evaluation: %w", wrapSQLiteError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("evaluation insert id: %w", err)
	}
	return c.GetEvaluation(ctx, id)
}

// GetEvaluation returns an evaluation by id.
func (c *Client) GetEvaluation(ctx context.Context, id int64) (*models.Evaluation, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+evalColumns+` FROM evaluations WHERE id = ?`, id)

	eval, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return eval, nil
}

// ListEvaluations returns all evaluations, newest first.
func (c *Client) ListEvaluations(ctx context.Context) ([]models.Evaluation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+evalColumns+` FROM evaluations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []models.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		evals = append(evals, *eval)
	}
	return evals, rows.Err()
}

// UpdateEvaluation applies a partial update. Nil fields are untouched.
func (c *Client) UpdateEvaluation(ctx context.Context, id int64, update models.EvaluationUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*update.Status))
	}
	if update.BeforeMetrics != nil {
		data, err := json.Marshal(update.BeforeMetrics)
		if err != nil {
			return fmt.Errorf("marshal before metrics: %w", err)
		}
		sets, args = append(sets, "before_metrics = ?"), append(args, string(data))
	}
	if update.AfterMetrics != nil {
		data, err := json.Marshal(update.AfterMetrics)
		if err != nil {
			return fmt.Errorf("marshal after metrics: %w", err)
		}
		sets, args = append(sets, "after_metrics = ?"), append(args, string(data))
	}
	if update.Improvement != nil {
		sets, args = append(sets, "improvement = ?"), append(args, *update.Improvement)
	}
	if update.Notes != nil {
		sets, args = append(sets, "notes = ?"), append(args, *update.Notes)
	}
	if update.ErrorMessage != nil {
		sets, args = append(sets, "error_message = ?"), append(args, *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		sets, args = append(sets, "completed_at = ?"), append(args, update.CompletedAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := c.db.ExecContext(ctx,
		`UPDATE evaluations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteEvaluation removes an evaluation row. Fails with ErrNotFound if absent.
func (c *Client) DeleteEvaluation(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM evaluations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanEvaluation(row rowScanner) (*models.Evaluation, error) {
	var (
		eval        models.Evaluation
		before      sql.NullString
		after       sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&eval.ID, &eval.ModelName, &eval.DatasetID,
		&eval.EvaluationType, &eval.Status, &before, &after,
		&eval.Improvement, &eval.Notes, &eval.ErrorMessage,
		&eval.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if before.Valid {
		eval.BeforeMetrics = &models.EvalMetrics{}
		if err := json.Unmarshal([]byte(before.String), eval.BeforeMetrics); err != nil {
			return nil, fmt.Errorf("unmarshal before metrics: %w", err)
		}
	}
	if after.Valid {
		eval.AfterMetrics = &models.EvalMetrics{}
		if err := json.Unmarshal([]byte(after.String), eval.AfterMetrics); err != nil {
			return nil, fmt.Errorf("unmarshal after metrics: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		eval.CompletedAt = &t
	}
	return &eval, nil
}
