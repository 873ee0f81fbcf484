package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/dataset"
	"github.com/refinelab/modeldash/internal/models"
)

func (s *Server) handleListDatasets(c *gin.Context) {
	datasets, err := s.db.ListDatasets(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	respondOK(c, datasets)
}

// createDatasetRequest accepts samples either pre-parsed in the standard
// shape or as a raw JSON/JSONL document to be format-converted.
type createDatasetRequest struct {
	models.DatasetInput
	RawSamples json.RawMessage `json:"raw_samples,omitempty"`
}

func (s *Server) handleCreateDataset(c *gin.Context) {
	var req createDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Name == "" {
		respondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("name is required"))
		return
	}

	if len(req.RawSamples) > 0 {
		parsed, err := dataset.Parse(req.RawSamples)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_samples", err)
			return
		}
		req.Samples = parsed.Samples
		if req.Format == "" {
			req.Format = string(parsed.Format)
		}
		s.logger.Info("dataset samples converted",
			"name", req.Name, "format", parsed.Format,
			"converted", parsed.Converted, "skipped", parsed.Skipped)
	}

	ds, err := s.db.CreateDataset(c.Request.Context(), req.DatasetInput)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

func (s *Server) handleGetDataset(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	ds, err := s.db.GetDataset(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, ds)
}

func (s *Server) handleDeleteDataset(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.db.DeleteDataset(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "id": id})
}

func (s *Server) handleToggleFavorite(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	favorite, err := s.db.ToggleDatasetFavorite(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"id": id, "is_favorite": favorite})
}
