package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/models"
)

func (s *Server) handleListEvaluations(c *gin.Context) {
	evals, err := s.db.ListEvaluations(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if evals == nil {
		evals = []models.Evaluation{}
	}
	respondOK(c, evals)
}

func (s *Server) handleCreateEvaluation(c *gin.Context) {
	var input models.EvaluationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if input.ModelName == "" || input.DatasetID <= 0 {
		respondError(c, http.StatusBadRequest, "invalid_body",
			fmt.Errorf("model_name and dataset_id are required"))
		return
	}

	eval, err := s.db.CreateEvaluation(c.Request.Context(), input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, eval)
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	eval, err := s.db.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, eval)
}

func (s *Server) handleUpdateEvaluation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var update models.EvaluationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	if err := s.db.UpdateEvaluation(c.Request.Context(), id, update); err != nil {
		respondDomainError(c, err)
		return
	}

	eval, err := s.db.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, eval)
}

func (s *Server) handleDeleteEvaluation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.db.DeleteEvaluation(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "id": id})
}

func (s *Server) handleStartEvaluation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.evaluator.Start(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"id": id, "status": models.JobStatusRunning})
}

func (s *Server) handleStopEvaluation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.evaluator.Stop(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusConflict, "not_running", err)
		return
	}
	respondOK(c, gin.H{"id": id, "status": models.JobStatusStopped})
}

func (s *Server) handleEvaluationStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	eval, err := s.db.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{
		"id":            eval.ID,
		"status":        eval.Status,
		"improvement":   eval.Improvement,
		"error_message": eval.ErrorMessage,
	})
}
