// Package db error types for metadata store operations.
package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint was violated on insert.
	// For rag_dataset_mapping this is the only serialization point between
	// concurrent inserts of the same (job_id, dataset_id) pair.
	ErrDuplicate = errors.New("already exists")
)

// wrapSQLiteError maps driver constraint errors onto sentinel errors.
// Returns the original error for anything unrecognized.
func wrapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrDuplicate, sqliteErr.Error())
	}

	return err
}
