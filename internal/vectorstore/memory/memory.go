// Package memory provides an in-memory vector store for tests and local
// development without a running ChromaDB.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/refinelab/modeldash/internal/vectorstore"
)

// Store keeps collections in process memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]vectorstore.Record
}

// Compile-time check that Store implements vectorstore.Store.
var _ vectorstore.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]vectorstore.Record)}
}

func (s *Store) EnsureCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = []vectorstore.Record{}
	}
	return nil
}

func (s *Store) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
	}
	delete(s.collections, name)
	return nil
}

func (s *Store) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
	}
	return len(records), nil
}

func (s *Store) Add(_ context.Context, name string, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
	}

	// Records with a known id replace the stored record, so a retried
	// ingest does not duplicate the vectors it already wrote.
	index := make(map[string]int, len(existing))
	for i, r := range existing {
		index[r.ID] = i
	}
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			existing[i] = r
			continue
		}
		index[r.ID] = len(existing)
		existing = append(existing, r)
	}
	s.collections[name] = existing
	return nil
}

func (s *Store) Query(_ context.Context, name string, embedding []float32, topK int) ([]vectorstore.QueryResult, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
	}

	results := make([]vectorstore.QueryResult, 0, len(records))
	for _, r := range records {
		results = append(results, vectorstore.QueryResult{
			Record: r,
			Score:  cosineSimilarity(embedding, r.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
