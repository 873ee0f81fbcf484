package models

import "time"

// DatasetMapping associates a dataset ingested into a job's knowledge base
// with the vector-store collection holding its records.
// Unique per (JobID, DatasetID) pair.
type DatasetMapping struct {
	ID             int64     `json:"id"`
	JobID          int64     `json:"job_id"`
	DatasetID      int64     `json:"dataset_id"`
	CollectionName string    `json:"collection_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// ModelProfile carries presentation metadata for a created model.
type ModelProfile struct {
	ID            int64     `json:"id"`
	ModelName     string    `json:"model_name"`
	TrainingJobID *int64    `json:"training_job_id,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
