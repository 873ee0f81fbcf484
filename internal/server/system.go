package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/vectorstore"
)

// healthResponse reports reachability of each backing service.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Chroma   string `json:"chroma"`
	Ollama   string `json:"ollama"`
}

// handleHealth pings the metadata store, the vector store and Ollama.
// Returns 503 when any dependency is down.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	resp := healthResponse{Status: "ok", Database: "ok", Chroma: "ok", Ollama: "ok"}
	status := http.StatusOK

	if err := s.db.Ping(ctx); err != nil {
		resp.Database = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if _, err := s.store.ListCollections(ctx); err != nil {
		resp.Chroma = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if err := s.ollama.Heartbeat(ctx); err != nil {
		resp.Ollama = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}

// handleStats returns in-memory operation timings since process start.
func (s *Server) handleStats(c *gin.Context) {
	respondOK(c, s.metrics.Snapshot())
}

// handleChromaListCollections lists every collection in the vector store,
// not just those owned by a single job.
func (s *Server) handleChromaListCollections(c *gin.Context) {
	names, err := s.store.ListCollections(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondOK(c, names)
}

func (s *Server) handleChromaCount(c *gin.Context) {
	name := c.Param("name")
	count, err := s.store.Count(c.Request.Context(), name)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"collection": name, "count": count})
}

type collectionQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type collectionQueryResult struct {
	ID       string               `json:"id"`
	Document string               `json:"document"`
	Score    float64              `json:"score"`
	Metadata vectorstore.Metadata `json:"metadata"`
}

// handleChromaQuery runs a similarity search against a single collection,
// bypassing the job mapping layer.
func (s *Server) handleChromaQuery(c *gin.Context) {
	name := c.Param("name")

	var req collectionQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Query == "" {
		respondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("query is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = 3
	}

	vector, err := s.embedder.Embed(c.Request.Context(), req.Query)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	results, err := s.store.Query(c.Request.Context(), name, vector, req.TopK)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	out := make([]collectionQueryResult, len(results))
	for i, r := range results {
		out[i] = collectionQueryResult{
			ID:       r.ID,
			Document: r.Document,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	respondOK(c, out)
}

// handleChromaDeleteCollection drops a collection directly. Intended for
// cleaning up orphans; normal deletion goes through the RAG endpoints so
// the mapping table stays consistent.
func (s *Server) handleChromaDeleteCollection(c *gin.Context) {
	name := c.Param("name")
	if err := s.store.DeleteCollection(c.Request.Context(), name); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "collection": name})
}
