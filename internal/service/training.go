package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/ollama"
)

// LoraRunner executes a LoRA fine-tune and returns the produced model name.
// The default build ships no runner; external training is out of scope here
// and callers get ErrLoraUnavailable.
type LoraRunner interface {
	Run(ctx context.Context, job *models.TrainingJob, samples []models.Sample, progress func(float64)) (string, error)
}

// ErrLoraUnavailable is returned when no LoRA runner is configured.
var ErrLoraUnavailable = errors.New("lora training is not available in this build")

type unavailableLoraRunner struct{}

func (unavailableLoraRunner) Run(context.Context, *models.TrainingJob, []models.Sample, func(float64)) (string, error) {
	return "", ErrLoraUnavailable
}

// Trainer executes training jobs. RAG jobs build a knowledge base and a
// derived Ollama model; LoRA jobs are delegated to the configured runner.
type Trainer struct {
	db           *db.Client
	kb           *kb.Manager
	ollama       *ollama.Client
	lora         LoraRunner
	modelfileDir string
	logger       *slog.Logger
}

// NewTrainer creates a trainer. A nil lora runner falls back to a stub that
// rejects LoRA jobs.
func NewTrainer(dbClient *db.Client, kbManager *kb.Manager, ollamaClient *ollama.Client, lora LoraRunner, modelfileDir string, logger *slog.Logger) *Trainer {
	if lora == nil {
		lora = unavailableLoraRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		db:           dbClient,
		kb:           kbManager,
		ollama:       ollamaClient,
		lora:         lora,
		modelfileDir: modelfileDir,
		logger:       logger,
	}
}

// Run executes a job to completion and returns the produced model name.
// progress is invoked with coarse fractions as stages finish.
func (t *Trainer) Run(ctx context.Context, job *models.TrainingJob, progress func(float64)) (string, error) {
	switch job.TrainingType {
	case models.TrainingTypeRAG:
		return t.runRAG(ctx, job, progress)
	case models.TrainingTypeLoRA:
		return t.runLoRA(ctx, job, progress)
	default:
		return "", fmt.Errorf("unknown training type %q", job.TrainingType)
	}
}

// runRAG builds the job's knowledge base and creates the derived model:
// write the Modelfile, ingest the selected datasets, create the Ollama
// model, record its profile.
func (t *Trainer) runRAG(ctx context.Context, job *models.TrainingJob, progress func(float64)) (string, error) {
	progress(0.1)

	params := ollama.DefaultModelfileParams()
	if job.Temperature > 0 {
		params.Temperature = job.Temperature
	}
	if job.TopP > 0 {
		params.TopP = job.TopP
	}
	if job.ContextLength > 0 {
		params.NumCtx = job.ContextLength
	}

	content := ollama.BuildModelfile(job.Name, job.BaseModel, job.Config.RoleDefinition, params)
	path, err := ollama.WriteModelfile(t.modelfileDir, job.Name, content)
	if err != nil {
		return "", err
	}
	t.logger.Info("modelfile written", "job_id", job.ID, "path", path)
	progress(0.3)

	if err := t.ingestDatasets(ctx, job); err != nil {
		return "", err
	}
	progress(0.6)

	modelName := ollama.SanitizeModelName(job.Name)
	system := systemPrompt(content)
	if err := t.ollama.Create(ctx, modelName, job.BaseModel, system, params); err != nil {
		return "", err
	}
	progress(0.9)

	if _, err := t.db.UpsertModelProfile(ctx, modelName, &job.ID, ""); err != nil {
		t.logger.Warn("failed to record model profile", "job_id", job.ID, "model", modelName, "error", err)
	}
	return modelName, nil
}

// ingestDatasets loads each selected dataset and ingests it into the job's
// knowledge base. Datasets already ingested for this job are skipped so a
// restarted job does not fail on its own earlier progress.
func (t *Trainer) ingestDatasets(ctx context.Context, job *models.TrainingJob) error {
	if len(job.Config.SelectedDatasets) == 0 {
		t.logger.Warn("no datasets selected for knowledge base", "job_id", job.ID)
		return nil
	}

	for _, datasetID := range job.Config.SelectedDatasets {
		ds, err := t.db.GetDataset(ctx, datasetID)
		if err != nil {
			return fmt.Errorf("load dataset %d: %w", datasetID, err)
		}

		written, err := t.kb.Ingest(ctx, job.ID, datasetID, ds.Samples)
		if errors.Is(err, kb.ErrDuplicateMapping) {
			t.logger.Info("dataset already in knowledge base, skipping",
				"job_id", job.ID, "dataset_id", datasetID)
			continue
		}
		if err != nil {
			return fmt.Errorf("ingest dataset %d: %w", datasetID, err)
		}
		t.logger.Info("dataset ingested", "job_id", job.ID, "dataset_id", datasetID, "samples", written)
	}
	return nil
}

func (t *Trainer) runLoRA(ctx context.Context, job *models.TrainingJob, progress func(float64)) (string, error) {
	var samples []models.Sample
	for _, datasetID := range job.Config.SelectedDatasets {
		ds, err := t.db.GetDataset(ctx, datasetID)
		if err != nil {
			return "", fmt.Errorf("load dataset %d: %w", datasetID, err)
		}
		samples = append(samples, ds.Samples...)
	}
	return t.lora.Run(ctx, job, samples, progress)
}

// systemPrompt extracts the SYSTEM block from a rendered Modelfile so the
// same prompt goes to the Ollama create call.
func systemPrompt(modelfile string) string {
	const marker = `SYSTEM "`
	start := strings.Index(modelfile, marker)
	if start < 0 {
		return ""
	}
	rest := modelfile[start+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
