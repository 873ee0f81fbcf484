// Package vectorstore defines the vector store abstraction used for RAG
// knowledge bases, with ChromaDB as the production backend.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrCollectionNotFound indicates the named collection does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// Metadata is the fixed metadata shape attached to every vector record.
// Loose metadata maps are deliberately not supported; the shape is validated
// at the ingestion boundary.
type Metadata struct {
	SourceDatasetID int64 `json:"source_dataset_id"`
	JobID           int64 `json:"job_id"`
	OriginalIndex   int   `json:"original_index"`
}

// Validate rejects metadata that would break the mapping invariant: every
// record must be attributable to a (job, dataset) pair.
func (m Metadata) Validate() error {
	if m.JobID <= 0 {
		return fmt.Errorf("metadata job id must be positive, got %d", m.JobID)
	}
	if m.SourceDatasetID <= 0 {
		return fmt.Errorf("metadata source dataset id must be positive, got %d", m.SourceDatasetID)
	}
	if m.OriginalIndex < 0 {
		return fmt.Errorf("metadata original index must be non-negative, got %d", m.OriginalIndex)
	}
	return nil
}

// Record is a single document plus its embedding and provenance metadata.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  Metadata
}

// QueryResult is a record returned from a similarity query with its score.
// Higher scores are better matches.
type QueryResult struct {
	Record
	Score float64
}

// Store persists vector records in named collections and supports
// similarity search. Implementations: chroma (production), memory (tests).
type Store interface {
	// EnsureCollection creates the collection if missing.
	EnsureCollection(ctx context.Context, name string) error

	// DeleteCollection drops a collection and all its records.
	// Fails with ErrCollectionNotFound if absent.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Count returns the number of records in a collection.
	Count(ctx context.Context, name string) (int, error)

	// Add writes records into a collection. A record whose ID already
	// exists replaces the stored record, so retried writes are idempotent.
	Add(ctx context.Context, name string, records []Record) error

	// Query returns the topK closest records to the embedding.
	Query(ctx context.Context, name string, embedding []float32, topK int) ([]QueryResult, error)
}
