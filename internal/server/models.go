package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/ollama"
)

// modelName extracts the model name from the wildcard route match, which
// keeps a leading slash that is not part of the name.
func modelName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

func (s *Server) handleListModels(c *gin.Context) {
	list, err := s.ollama.List(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if list == nil {
		list = []ollama.Model{}
	}
	respondOK(c, list)
}

// modelResponse joins Ollama metadata with the stored dashboard profile.
type modelResponse struct {
	*ollama.ModelDetails
	Profile *models.ModelProfile `json:"profile,omitempty"`
}

func (s *Server) handleGetModel(c *gin.Context) {
	name := modelName(c)

	details, err := s.ollama.Show(c.Request.Context(), name)
	if err != nil {
		respondError(c, 404, "not_found", err)
		return
	}

	profile, err := s.db.GetModelProfile(c.Request.Context(), name)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		respondDomainError(c, err)
		return
	}

	respondOK(c, modelResponse{ModelDetails: details, Profile: profile})
}

// modelUpdateRequest carries the edits applied when rebuilding a model.
// Nil parameters fall back to the defaults baked into trained models.
type modelUpdateRequest struct {
	System        string   `json:"system"`
	NewName       string   `json:"new_name"`
	NumCtx        *int     `json:"num_ctx"`
	Temperature   *float64 `json:"temperature"`
	TopP          *float64 `json:"top_p"`
	TopK          *int     `json:"top_k"`
	RepeatPenalty *float64 `json:"repeat_penalty"`
}

// handleUpdateModel rebuilds a model from itself with a new system prompt or
// generation parameters. With new_name set the original is left untouched and
// a new version is created under that name.
func (s *Server) handleUpdateModel(c *gin.Context) {
	name := modelName(c)

	var req modelUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "invalid_body", err)
		return
	}

	details, err := s.ollama.Show(c.Request.Context(), name)
	if err != nil {
		respondError(c, 404, "not_found", err)
		return
	}

	system := req.System
	if system == "" {
		system = details.System
	}

	params := ollama.DefaultModelfileParams()
	if req.NumCtx != nil {
		params.NumCtx = *req.NumCtx
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.RepeatPenalty != nil {
		params.RepeatPenalty = *req.RepeatPenalty
	}

	target := req.NewName
	if target == "" {
		target = name
	}

	if err := s.ollama.Create(c.Request.Context(), target, name, system, params); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"name": target, "from": name, "updated": true})
}

func (s *Server) handleDeleteModel(c *gin.Context) {
	name := modelName(c)

	if err := s.ollama.Delete(c.Request.Context(), name); err != nil {
		respondError(c, 404, "not_found", err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "name": name})
}
