package models

import "time"

// EvalMetrics is the fixed metric set produced by an evaluation run.
type EvalMetrics struct {
	Accuracy      float64 `json:"accuracy"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
	InferenceTime float64 `json:"inference_time"`
}

// Evaluation records a before/after comparison of a model against a dataset.
type Evaluation struct {
	ID             int64        `json:"id"`
	ModelName      string       `json:"model_name"`
	DatasetID      int64        `json:"dataset_id"`
	EvaluationType string       `json:"evaluation_type"`
	Status         JobStatus    `json:"status"`
	BeforeMetrics  *EvalMetrics `json:"before_metrics,omitempty"`
	AfterMetrics   *EvalMetrics `json:"after_metrics,omitempty"`
	Improvement    float64      `json:"improvement"`
	Notes          string       `json:"notes,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// EvaluationInput carries the fields a caller supplies when creating an evaluation.
type EvaluationInput struct {
	ModelName      string `json:"model_name"`
	DatasetID      int64  `json:"dataset_id"`
	EvaluationType string `json:"evaluation_type"`
	Notes          string `json:"notes"`
}

// EvaluationUpdate carries mutable evaluation fields for partial updates.
type EvaluationUpdate struct {
	Status        *JobStatus   `json:"status,omitempty"`
	BeforeMetrics *EvalMetrics `json:"before_metrics,omitempty"`
	AfterMetrics  *EvalMetrics `json:"after_metrics,omitempty"`
	Improvement   *float64     `json:"improvement,omitempty"`
	Notes         *string      `json:"notes,omitempty"`
	ErrorMessage  *string      `json:"error_message,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}
