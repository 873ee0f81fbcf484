package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/embedding"
	"github.com/refinelab/modeldash/internal/metrics"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/vectorstore"
)

// embedBatchSize bounds the number of samples embedded and written per
// vector-store request.
const embedBatchSize = 32

// Manager orchestrates knowledge-base ingestion and deletion against the
// vector store, keeping the dataset mapping table as the source of truth.
//
// Strategy: one collection per (job, dataset) pair. Deleting a dataset drops
// its collection; job-wide queries fan out over the job's collections and
// merge by score.
type Manager struct {
	db       *db.Client
	store    vectorstore.Store
	embedder embedding.Embedder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewManager creates a knowledge-base manager.
func NewManager(dbClient *db.Client, store vectorstore.Store, embedder embedding.Embedder, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Manager{
		db:       dbClient,
		store:    store,
		embedder: embedder,
		metrics:  collector,
		logger:   logger,
	}
}

// Ingest writes a dataset's samples into the job's knowledge base and
// records the mapping. Each record carries the fixed metadata shape
// {source_dataset_id, job_id, original_index}.
//
// If writes fail partway the already-written vectors are NOT rolled back;
// the failure is reported as a *PartialIngestError naming the written count.
func (m *Manager) Ingest(ctx context.Context, jobID, datasetID int64, samples []models.Sample) (int, error) {
	collection, err := CollectionName(jobID, datasetID)
	if err != nil {
		return 0, err
	}

	// Fail fast on a pair that is already ingested. The unique constraint
	// on the mapping table still guards the concurrent case below.
	if _, err := m.db.GetMapping(ctx, jobID, datasetID); err == nil {
		return 0, fmt.Errorf("job %d dataset %d: %w", jobID, datasetID, ErrDuplicateMapping)
	} else if !errors.Is(err, db.ErrNotFound) {
		return 0, fmt.Errorf("check mapping: %w", err)
	}

	if err := m.store.EnsureCollection(ctx, collection); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	written := 0
	for start := 0; start < len(samples); start += embedBatchSize {
		end := min(start+embedBatchSize, len(samples))
		batch := samples[start:end]

		records, err := m.buildRecords(ctx, jobID, datasetID, start, batch)
		if err != nil {
			return written, &PartialIngestError{
				JobID: jobID, DatasetID: datasetID,
				Written: written, Total: len(samples), Err: err,
			}
		}

		addStart := time.Now()
		err = m.store.Add(ctx, collection, records)
		m.metrics.RecordTiming(metrics.OpVectorAdd, time.Since(addStart))
		if err != nil {
			return written, &PartialIngestError{
				JobID: jobID, DatasetID: datasetID,
				Written: written, Total: len(samples), Err: err,
			}
		}
		written += len(records)
	}

	if _, err := m.db.AddMapping(ctx, jobID, datasetID, collection); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Lost the race with a concurrent ingest of the same pair.
			return written, fmt.Errorf("job %d dataset %d: %w", jobID, datasetID, ErrDuplicateMapping)
		}
		return written, fmt.Errorf("record mapping: %w", err)
	}

	m.logger.Info("dataset ingested into knowledge base",
		"job_id", jobID, "dataset_id", datasetID,
		"collection", collection, "samples", written)
	return written, nil
}

// buildRecords embeds a batch of samples and assembles vector records with
// validated metadata. offset is the index of the first sample in the dataset.
func (m *Manager) buildRecords(ctx context.Context, jobID, datasetID int64, offset int, samples []models.Sample) ([]vectorstore.Record, error) {
	texts := make([]string, len(samples))
	for i, s := range samples {
		texts[i] = s.Text()
	}

	embedStart := time.Now()
	embeddings, err := m.embedder.EmbedBatch(ctx, texts)
	m.metrics.RecordTiming(metrics.OpEmbedding, time.Since(embedStart))
	if err != nil {
		return nil, fmt.Errorf("embed samples: %w", err)
	}

	records := make([]vectorstore.Record, len(samples))
	for i := range samples {
		meta := vectorstore.Metadata{
			SourceDatasetID: datasetID,
			JobID:           jobID,
			OriginalIndex:   offset + i,
		}
		if err := meta.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		records[i] = vectorstore.Record{
			ID:        fmt.Sprintf("job_%d_ds_%d_%d", jobID, datasetID, offset+i),
			Document:  texts[i],
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}
	return records, nil
}

// DeleteDataset removes a dataset from a job's knowledge base: drops the
// collection holding its vectors and removes the mapping. Fails with
// ErrNotFound if the dataset was never ingested. Other datasets in the same
// job live in their own collections and are untouched.
func (m *Manager) DeleteDataset(ctx context.Context, jobID, datasetID int64) error {
	if _, err := CollectionName(jobID, datasetID); err != nil {
		return err
	}

	mapping, err := m.db.GetMapping(ctx, jobID, datasetID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("job %d dataset %d: %w", jobID, datasetID, ErrNotFound)
		}
		return fmt.Errorf("lookup mapping: %w", err)
	}

	deleteStart := time.Now()
	err = m.store.DeleteCollection(ctx, mapping.CollectionName)
	m.metrics.RecordTiming(metrics.OpVectorDelete, time.Since(deleteStart))
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return fmt.Errorf("drop collection %q: %w", mapping.CollectionName, err)
	}
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		// Vectors already gone; still remove the stale mapping.
		m.logger.Warn("collection missing during delete",
			"collection", mapping.CollectionName, "job_id", jobID, "dataset_id", datasetID)
	}

	if err := m.db.RemoveMapping(ctx, jobID, datasetID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("job %d dataset %d: %w", jobID, datasetID, ErrNotFound)
		}
		return fmt.Errorf("remove mapping: %w", err)
	}

	m.logger.Info("dataset removed from knowledge base",
		"job_id", jobID, "dataset_id", datasetID, "collection", mapping.CollectionName)
	return nil
}

// ListDatasets returns the dataset ids currently present in a job's
// knowledge base, in ingestion order.
func (m *Manager) ListDatasets(ctx context.Context, jobID int64) ([]int64, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive, got %d", ErrInvalidArgument, jobID)
	}
	mappings, err := m.db.ListMappings(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	ids := make([]int64, len(mappings))
	for i, mp := range mappings {
		ids[i] = mp.DatasetID
	}
	return ids, nil
}

// ListCollections returns the collection names backing a job's knowledge
// base, in ingestion order.
func (m *Manager) ListCollections(ctx context.Context, jobID int64) ([]string, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive, got %d", ErrInvalidArgument, jobID)
	}
	mappings, err := m.db.ListMappings(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	names := make([]string, len(mappings))
	for i, mp := range mappings {
		names[i] = mp.CollectionName
	}
	return names, nil
}

// QueryResult is a knowledge-base match with its source dataset.
type QueryResult struct {
	Document  string  `json:"document"`
	Score     float64 `json:"score"`
	DatasetID int64   `json:"dataset_id"`
	Index     int     `json:"original_index"`
}

// QueryJob runs a semantic query over every collection in a job's knowledge
// base and merges the results by score. Fails with ErrNotFound when the job
// has no ingested datasets.
func (m *Manager) QueryJob(ctx context.Context, jobID int64, query string, topK int) ([]QueryResult, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("%w: job id must be positive, got %d", ErrInvalidArgument, jobID)
	}
	if topK <= 0 {
		topK = 3
	}

	mappings, err := m.db.ListMappings(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("job %d has no knowledge base: %w", jobID, ErrNotFound)
	}

	embedStart := time.Now()
	vector, err := m.embedder.Embed(ctx, query)
	m.metrics.RecordTiming(metrics.OpEmbedding, time.Since(embedStart))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var merged []QueryResult
	for _, mp := range mappings {
		queryStart := time.Now()
		results, err := m.store.Query(ctx, mp.CollectionName, vector, topK)
		m.metrics.RecordTiming(metrics.OpVectorQuery, time.Since(queryStart))
		if err != nil {
			return nil, fmt.Errorf("query collection %q: %w", mp.CollectionName, err)
		}
		for _, r := range results {
			merged = append(merged, QueryResult{
				Document:  r.Document,
				Score:     r.Score,
				DatasetID: r.Metadata.SourceDatasetID,
				Index:     r.Metadata.OriginalIndex,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}
