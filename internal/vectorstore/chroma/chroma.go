// Package chroma provides a minimal REST client to ChromaDB.
// ChromaDB is treated as a black box; only the collection and record
// operations the knowledge-base manager needs are implemented.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/refinelab/modeldash/internal/vectorstore"
)

// Store is a REST client to a ChromaDB server (v1 API).
// Collections are addressed by name externally and by server-assigned id on
// the record endpoints; resolved ids are cached.
type Store struct {
	url    string
	client *http.Client

	mu  sync.Mutex
	ids map[string]string // collection name -> server id
}

// Compile-time check that Store implements vectorstore.Store.
var _ vectorstore.Store = (*Store)(nil)

// Config holds ChromaDB connection configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// NewStore creates a ChromaDB client.
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		ids:    make(map[string]string),
	}
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	var info collectionInfo
	body := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	if err := s.doJSON(ctx, http.MethodPost, s.url+"/api/v1/collections", body, &info); err != nil {
		return fmt.Errorf("ensure collection %q: %w", name, err)
	}
	s.cacheID(name, info.ID)
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	err := s.doJSON(ctx, http.MethodDelete, s.url+"/api/v1/collections/"+name, nil, nil)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
		}
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	s.mu.Lock()
	delete(s.ids, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var infos []collectionInfo
	if err := s.doJSON(ctx, http.MethodGet, s.url+"/api/v1/collections", nil, &infos); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		s.cacheID(info.Name, info.ID)
		names = append(names, info.Name)
	}
	return names, nil
}

func (s *Store) Count(ctx context.Context, name string) (int, error) {
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.doJSON(ctx, http.MethodGet, s.url+"/api/v1/collections/"+id+"/count", nil, &count); err != nil {
		return 0, fmt.Errorf("count collection %q: %w", name, err)
	}
	return count, nil
}

func (s *Store) Add(ctx context.Context, name string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return err
	}

	ids := make([]string, len(records))
	documents := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	metadatas := make([]vectorstore.Metadata, len(records))
	for i, r := range records {
		ids[i] = r.ID
		documents[i] = r.Document
		embeddings[i] = r.Embedding
		metadatas[i] = r.Metadata
	}

	body := map[string]any{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	// Upsert rather than add: record ids are deterministic, and a retried
	// ingest must replace what it already wrote instead of duplicating it.
	if err := s.doJSON(ctx, http.MethodPost, s.url+"/api/v1/collections/"+id+"/upsert", body, nil); err != nil {
		return fmt.Errorf("add to collection %q: %w", name, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, name string, embedding []float32, topK int) ([]vectorstore.QueryResult, error) {
	if topK <= 0 {
		topK = 5
	}
	id, err := s.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp struct {
		IDs       [][]string               `json:"ids"`
		Documents [][]string               `json:"documents"`
		Metadatas [][]vectorstore.Metadata `json:"metadatas"`
		Distances [][]float64              `json:"distances"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.url+"/api/v1/collections/"+id+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query collection %q: %w", name, err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vectorstore.QueryResult, 0, len(resp.IDs[0]))
	for i := range resp.IDs[0] {
		r := vectorstore.QueryResult{}
		r.ID = resp.IDs[0][i]
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Cosine distance -> similarity score
			r.Score = 1 - resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// collectionID resolves a collection name to its server id, consulting the
// cache first.
func (s *Store) collectionID(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var info collectionInfo
	err := s.doJSON(ctx, http.MethodGet, s.url+"/api/v1/collections/"+name, nil, &info)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return "", fmt.Errorf("%q: %w", name, vectorstore.ErrCollectionNotFound)
		}
		return "", fmt.Errorf("resolve collection %q: %w", name, err)
	}
	s.cacheID(name, info.ID)
	return info.ID, nil
}

func (s *Store) cacheID(name, id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.ids[name] = id
	s.mu.Unlock()
}

// statusError carries a non-2xx HTTP response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chroma: status %d: %s", e.code, e.body)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: string(data)}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
