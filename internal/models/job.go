package models

import "time"

// JobStatus is the lifecycle state of a training job.
// Jobs are terminal once COMPLETED, FAILED or STOPPED.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusStopped   JobStatus = "STOPPED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

// TrainingType selects the training strategy for a job.
type TrainingType string

const (
	TrainingTypeRAG  TrainingType = "rag"
	TrainingTypeLoRA TrainingType = "lora"
)

// JobConfig holds the per-job training configuration supplied at creation.
type JobConfig struct {
	SelectedDatasets []int64 `json:"selected_datasets,omitempty"`
	RoleDefinition   string  `json:"role_definition,omitempty"`
	Epochs           int     `json:"epochs,omitempty"`
	LearningRate     float64 `json:"learning_rate,omitempty"`
	BatchSize        int     `json:"batch_size,omitempty"`
}

// TrainingJob is a RAG knowledge-base build or LoRA fine-tune run.
type TrainingJob struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	JobType       string       `json:"job_type"`
	BaseModel     string       `json:"base_model"`
	ModelName     string       `json:"model_name,omitempty"`
	Status        JobStatus    `json:"status"`
	TrainingType  TrainingType `json:"training_type"`
	Progress      float64      `json:"progress"`
	Temperature   float64      `json:"temperature"`
	TopP          float64      `json:"top_p"`
	ContextLength int          `json:"context_length"`
	Config        JobConfig    `json:"config"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// TrainingJobInput carries the fields a caller supplies when creating a job.
type TrainingJobInput struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	JobType       string       `json:"job_type"`
	BaseModel     string       `json:"base_model"`
	TrainingType  TrainingType `json:"training_type"`
	Temperature   *float64     `json:"temperature"`
	TopP          *float64     `json:"top_p"`
	ContextLength *int         `json:"context_length"`
	Config        JobConfig    `json:"config"`
}

// TrainingJobUpdate carries mutable job fields for partial updates.
// Nil fields are left unchanged.
type TrainingJobUpdate struct {
	Status       *JobStatus `json:"status,omitempty"`
	Progress     *float64   `json:"progress,omitempty"`
	ModelName    *string    `json:"model_name,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
