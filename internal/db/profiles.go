package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/refinelab/modeldash/internal/models"
)

// UpsertModelProfile creates or updates the profile row for a model.
func (c *Client) UpsertModelProfile(ctx context.Context, modelName string, trainingJobID *int64, avatarURL string) (*models.ModelProfile, error) {
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO model_profiles (model_name, training_job_id, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (model_name) DO UPDATE SET
			training_job_id = excluded.training_job_id,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		modelName, trainingJobID, avatarURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert model profile: %w", err)
	}
	return c.GetModelProfile(ctx, modelName)
}

// GetModelProfile returns the profile for a model name.
func (c *Client) GetModelProfile(ctx context.Context, modelName string) (*models.ModelProfile, error) {
	var (
		p     models.ModelProfile
		jobID sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, model_name, training_job_id, avatar_url, created_at, updated_at
		FROM model_profiles WHERE model_name = ?`, modelName).
		Scan(&p.ID, &p.ModelName, &jobID, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model profile %q: %w", modelName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get model profile: %w", err)
	}
	if jobID.Valid {
		p.TrainingJobID = &jobID.Int64
	}
	return &p, nil
}
