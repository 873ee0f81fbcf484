package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/refinelab/modeldash/internal/models"
)

const datasetColumns = `id, name, description, external_id, type, sample_count,
	loaded_samples, size, format, license, tags, is_favorite, is_public,
	source, samples, created_at, last_modified`

// CreateDataset inserts a new dataset with its samples.
// Fails with ErrDuplicate if external_id is already registered.
func (c *Client) CreateDataset(ctx context.Context, input models.DatasetInput) (*models.Dataset, error) {
	tags, err := json.Marshal(emptySlice(input.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	samples, err := json.Marshal(emptySamples(input.Samples))
	if err != nil {
		return nil, fmt.Errorf("marshal samples: %w", err)
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	dsType := input.Type
	if dsType == "" {
		dsType = "Text"
	}

	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO datasets (name, description, external_id, type, sample_count,
			loaded_samples, size, format, license, tags, is_public, source,
			samples, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.Name, input.Description, nullString(input.ExternalID), dsType,
		len(input.Samples), len(input.Samples), input.Size, input.Format,
		input.License, string(tags), isPublic, input.Source, string(samples),
		now, now)
	if err != nil {
		return nil, fmt.Errorf("insert dataset: %w", wrapSQLiteError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("dataset insert id: %w", err)
	}
	return c.GetDataset(ctx, id)
}

// GetDataset returns a dataset by id, including its samples.
func (c *Client) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)

	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return ds, nil
}

// ListDatasets returns all datasets, newest first.
func (c *Client) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, *ds)
	}
	return datasets, rows.Err()
}

// DeleteDataset removes a dataset row. Fails with ErrNotFound if absent.
func (c *Client) DeleteDataset(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	return nil
}

// ToggleDatasetFavorite flips the favorite flag and returns the new value.
func (c *Client) ToggleDatasetFavorite(ctx context.Context, id int64) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE datasets SET is_favorite = NOT is_favorite, last_modified = ?
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}

	var favorite bool
	if err := c.db.QueryRowContext(ctx,
		`SELECT is_favorite FROM datasets WHERE id = ?`, id).Scan(&favorite); err != nil {
		return false, fmt.Errorf("read favorite: %w", err)
	}
	return favorite, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*models.Dataset, error) {
	var (
		ds         models.Dataset
		externalID sql.NullString
		tagsJSON   string
		samples    string
	)
	err := row.Scan(&ds.ID, &ds.Name, &ds.Description, &externalID, &ds.Type,
		&ds.SampleCount, &ds.LoadedSamples, &ds.Size, &ds.Format, &ds.License,
		&tagsJSON, &ds.IsFavorite, &ds.IsPublic, &ds.Source, &samples,
		&ds.CreatedAt, &ds.LastModified)
	if err != nil {
		return nil, err
	}
	ds.ExternalID = externalID.String
	if err := json.Unmarshal([]byte(tagsJSON), &ds.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(samples), &ds.Samples); err != nil {
		return nil, fmt.Errorf("unmarshal samples: %w", err)
	}
	return &ds, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptySamples(s []models.Sample) []models.Sample {
	if s == nil {
		return []models.Sample{}
	}
	return s
}
