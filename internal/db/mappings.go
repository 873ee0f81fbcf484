package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/refinelab/modeldash/internal/models"
)

// AddMapping records that a dataset's vectors live in the named collection.
// Fails with ErrDuplicate if the (jobID, datasetID) pair is already mapped;
// the unique constraint is what serializes concurrent inserts.
func (c *Client) AddMapping(ctx context.Context, jobID, datasetID int64, collectionName string) (*models.DatasetMapping, error) {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO rag_dataset_mapping (job_id, dataset_id, collection_name, created_at)
		VALUES (?, ?, ?, ?)`,
		jobID, datasetID, collectionName, now)
	if err != nil {
		return nil, fmt.Errorf("insert mapping job=%d dataset=%d: %w",
			jobID, datasetID, wrapSQLiteError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("mapping insert id: %w", err)
	}
	return &models.DatasetMapping{
		ID:             id,
		JobID:          jobID,
		DatasetID:      datasetID,
		CollectionName: collectionName,
		CreatedAt:      now,
	}, nil
}

// ListMappings returns all mappings for a job in insertion order.
func (c *Client) ListMappings(ctx context.Context, jobID int64) ([]models.DatasetMapping, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, job_id, dataset_id, collection_name, created_at
		FROM rag_dataset_mapping WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.DatasetMapping
	for rows.Next() {
		var m models.DatasetMapping
		if err := rows.Scan(&m.ID, &m.JobID, &m.DatasetID, &m.CollectionName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// GetMapping returns the mapping for a (job, dataset) pair.
func (c *Client) GetMapping(ctx context.Context, jobID, datasetID int64) (*models.DatasetMapping, error) {
	var m models.DatasetMapping
	err := c.db.QueryRowContext(ctx, `
		SELECT id, job_id, dataset_id, collection_name, created_at
		FROM rag_dataset_mapping WHERE job_id = ? AND dataset_id = ?`,
		jobID, datasetID).
		Scan(&m.ID, &m.JobID, &m.DatasetID, &m.CollectionName, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping job=%d dataset=%d: %w", jobID, datasetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return &m, nil
}

// RemoveMapping deletes the mapping for a (job, dataset) pair.
// Removal is NOT idempotent: a missing row fails with ErrNotFound so caller
// bugs surface instead of being silently absorbed.
func (c *Client) RemoveMapping(ctx context.Context, jobID, datasetID int64) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM rag_dataset_mapping WHERE job_id = ? AND dataset_id = ?`,
		jobID, datasetID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping job=%d dataset=%d: %w", jobID, datasetID, ErrNotFound)
	}
	return nil
}
