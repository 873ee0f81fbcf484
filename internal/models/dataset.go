// Package models defines data structures for the modeldash metadata store.
package models

import "time"

// Sample is a single training example in the alpaca instruction format.
// This is the fixed shape every ingested record must satisfy.
type Sample struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input,omitempty"`
	Output      string `json:"output"`
	System      string `json:"system,omitempty"`
}

// Text renders the retrievable document for a sample: the context the model
// should match on followed by the expected response.
func (s Sample) Text() string {
	text := ""
	if s.System != "" {
		text += "System: " + s.System + "\n"
	}
	if s.Instruction != "" {
		text += "Instruction: " + s.Instruction + "\n"
	}
	if s.Input != "" {
		text += "Input: " + s.Input + "\n"
	}
	text += "Response: " + s.Output
	return text
}

// Empty reports whether the sample carries no usable content.
func (s Sample) Empty() bool {
	return s.Instruction == "" && s.Output == ""
}

// Dataset is an uploaded or loaded set of training samples.
// Immutable once ingested into a knowledge base.
type Dataset struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ExternalID    string    `json:"dataset_id,omitempty"`
	Type          string    `json:"type"`
	SampleCount   int       `json:"sample_count"`
	LoadedSamples int       `json:"loaded_samples"`
	Size          string    `json:"size,omitempty"`
	Format        string    `json:"format,omitempty"`
	License       string    `json:"license,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	IsFavorite    bool      `json:"is_favorite"`
	IsPublic      bool      `json:"is_public"`
	Source        string    `json:"source,omitempty"`
	Samples       []Sample  `json:"samples,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastModified  time.Time `json:"last_modified"`
}

// DatasetInput carries the fields a caller supplies when registering a dataset.
type DatasetInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ExternalID  string   `json:"dataset_id"`
	Type        string   `json:"type"`
	Size        string   `json:"size"`
	Format      string   `json:"format"`
	License     string   `json:"license"`
	Tags        []string `json:"tags"`
	IsPublic    *bool    `json:"is_public"`
	Source      string   `json:"source"`
	Samples     []Sample `json:"samples"`
}
