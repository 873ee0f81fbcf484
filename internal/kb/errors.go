// Package kb error taxonomy. All knowledge-base failures are scoped to a
// single request; none are retried automatically and none are fatal.
package kb

import (
	"errors"
	"fmt"
)

// Sentinel errors for knowledge-base operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidArgument indicates a non-positive job or dataset id.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateMapping indicates the (job, dataset) pair is already
	// ingested. Raised by the mapping table's unique constraint, which is
	// the only serialization point between concurrent ingests.
	ErrDuplicateMapping = errors.New("dataset already ingested for job")

	// ErrNotFound indicates no mapping exists for the (job, dataset) pair.
	ErrNotFound = errors.New("dataset mapping not found")
)

// PartialIngestError reports an ingestion that failed after some samples
// were already written to the vector store. Written vectors are NOT rolled
// back automatically; the caller decides whether to retry or delete.
type PartialIngestError struct {
	JobID     int64
	DatasetID int64
	Written   int
	Total     int
	Err       error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("partial ingest for job %d dataset %d: %d/%d samples written: %v",
		e.JobID, e.DatasetID, e.Written, e.Total, e.Err)
}

func (e *PartialIngestError) Unwrap() error {
	return e.Err
}
