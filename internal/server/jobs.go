package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/models"
)

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.db.ListTrainingJobs(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.TrainingJob{}
	}
	respondOK(c, jobs)
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var input models.TrainingJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if input.Name == "" || input.BaseModel == "" {
		respondError(c, http.StatusBadRequest, "invalid_body",
			fmt.Errorf("name and base_model are required"))
		return
	}

	job, err := s.db.CreateTrainingJob(c.Request.Context(), input)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	job, err := s.db.GetTrainingJob(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, job)
}

func (s *Server) handleUpdateJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var update models.TrainingJobUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	if err := s.db.UpdateTrainingJob(c.Request.Context(), id, update); err != nil {
		respondDomainError(c, err)
		return
	}

	job, err := s.db.GetTrainingJob(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.db.DeleteTrainingJob(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "id": id})
}

func (s *Server) handleStartJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.jobs.Start(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"id": id, "status": models.JobStatusRunning})
}

func (s *Server) handleStopJob(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.jobs.Stop(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusConflict, "not_running", err)
		return
	}
	respondOK(c, gin.H{"id": id, "status": models.JobStatusStopped})
}

// handleTrainingHistory returns finished jobs, newest first.
func (s *Server) handleTrainingHistory(c *gin.Context) {
	jobs, err := s.db.ListTrainingJobs(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}

	history := make([]models.TrainingJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.Terminal() {
			history = append(history, job)
		}
	}
	respondOK(c, history)
}

// handleDetectStuckTraining fails RUNNING jobs that no live run in this
// process owns. Such rows are left behind when the server crashes or
// restarts mid-training.
func (s *Server) handleDetectStuckTraining(c *gin.Context) {
	jobs, err := s.db.ListTrainingJobs(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}

	live := make(map[int64]bool)
	for _, id := range s.jobs.Running() {
		live[id] = true
	}

	stuck := []int64{}
	for _, job := range jobs {
		if job.Status != models.JobStatusRunning || live[job.ID] {
			continue
		}
		status := models.JobStatusFailed
		msg := "training process lost, marked as stuck"
		now := time.Now().UTC()
		err := s.db.UpdateTrainingJob(c.Request.Context(), job.ID, models.TrainingJobUpdate{
			Status:       &status,
			ErrorMessage: &msg,
			CompletedAt:  &now,
		})
		if err != nil {
			respondDomainError(c, err)
			return
		}
		s.logger.Warn("stuck training job failed", "job_id", job.ID, "name", job.Name)
		stuck = append(stuck, job.ID)
	}
	respondOK(c, gin.H{"stuck_jobs": stuck, "count": len(stuck)})
}

// handleJobStatus returns the lightweight status view polled by progress
// watchers. The database row is kept current by the job manager.
func (s *Server) handleJobStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	job, err := s.db.GetTrainingJob(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{
		"id":            job.ID,
		"status":        job.Status,
		"progress":      job.Progress,
		"model_name":    job.ModelName,
		"error_message": job.ErrorMessage,
	})
}
