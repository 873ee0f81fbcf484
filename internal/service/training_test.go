package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/ollama"
	"github.com/refinelab/modeldash/internal/vectorstore/memory"
)

// flatEmbedder returns a constant vector for every text.
type flatEmbedder struct{}

func (flatEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (flatEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (flatEmbedder) Model() string  { return "flat" }
func (flatEmbedder) Dimension() int { return 4 }

// blockingRunner blocks until its context is cancelled.
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, _ *models.TrainingJob, _ []models.Sample, _ func(float64)) (string, error) {
	close(r.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func waitForJob(t *testing.T, client *db.Client, ctx context.Context, id int64) *models.TrainingJob {
	t.Helper()
	var job *models.TrainingJob
	require.Eventually(t, func() bool {
		var err error
		job, err = client.GetTrainingJob(ctx, id)
		require.NoError(t, err)
		return job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestJobManagerLoRAUnavailable(t *testing.T) {
	client, ctx := testDB(t)

	ds, err := client.CreateDataset(ctx, models.DatasetInput{
		Name:    "train-set",
		Samples: []models.Sample{{Instruction: "q", Output: "a"}},
	})
	require.NoError(t, err)

	job, err := client.CreateTrainingJob(ctx, models.TrainingJobInput{
		Name:         "tuner",
		BaseModel:    "llama3.2",
		TrainingType: models.TrainingTypeLoRA,
		Config:       models.JobConfig{SelectedDatasets: []int64{ds.ID}},
	})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	trainer := NewTrainer(client, nil, nil, nil, t.TempDir(), logger)
	manager := NewJobManager(client, trainer, logger)

	require.NoError(t, manager.Start(ctx, job.ID))

	done := waitForJob(t, client, ctx, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "lora training is not available")
	require.NotNil(t, done.CompletedAt)
	assert.Empty(t, manager.Running())
}

func TestJobManagerStop(t *testing.T) {
	client, ctx := testDB(t)

	job, err := client.CreateTrainingJob(ctx, models.TrainingJobInput{
		Name:         "long-run",
		BaseModel:    "llama3.2",
		TrainingType: models.TrainingTypeLoRA,
	})
	require.NoError(t, err)

	runner := &blockingRunner{started: make(chan struct{})}
	logger := slog.New(slog.DiscardHandler)
	trainer := NewTrainer(client, nil, nil, runner, t.TempDir(), logger)
	manager := NewJobManager(client, trainer, logger)

	require.NoError(t, manager.Start(ctx, job.ID))
	<-runner.started

	// A second start of the same job is rejected while it runs.
	err = manager.Start(ctx, job.ID)
	assert.ErrorContains(t, err, "already running")
	assert.Equal(t, []int64{job.ID}, manager.Running())

	require.NoError(t, manager.Stop(ctx, job.ID))

	done := waitForJob(t, client, ctx, job.ID)
	assert.Equal(t, models.JobStatusStopped, done.Status)

	// Stopping again is an error once the run has been released.
	require.Eventually(t, func() bool {
		return manager.Stop(ctx, job.ID) != nil
	}, time.Second, 10*time.Millisecond)
}

func TestJobManagerRejectsFinishedJob(t *testing.T) {
	client, ctx := testDB(t)

	job, err := client.CreateTrainingJob(ctx, models.TrainingJobInput{
		Name:         "done",
		BaseModel:    "llama3.2",
		TrainingType: models.TrainingTypeRAG,
	})
	require.NoError(t, err)

	status := models.JobStatusCompleted
	require.NoError(t, client.UpdateTrainingJob(ctx, job.ID, models.TrainingJobUpdate{Status: &status}))

	manager := NewJobManager(client, NewTrainer(client, nil, nil, nil, t.TempDir(), nil), slog.New(slog.DiscardHandler))
	err = manager.Start(ctx, job.ID)
	assert.ErrorContains(t, err, "already finished")
}

func TestTrainerIngestDatasetsSkipsDuplicates(t *testing.T) {
	client, ctx := testDB(t)
	logger := slog.New(slog.DiscardHandler)

	ds, err := client.CreateDataset(ctx, models.DatasetInput{
		Name:    "kb-set",
		Samples: []models.Sample{{Instruction: "q1", Output: "a1"}, {Instruction: "q2", Output: "a2"}},
	})
	require.NoError(t, err)

	store := memory.NewStore()
	manager := kb.NewManager(client, store, flatEmbedder{}, nil, logger)
	trainer := NewTrainer(client, manager, nil, nil, t.TempDir(), logger)

	job := &models.TrainingJob{
		ID:     42,
		Config: models.JobConfig{SelectedDatasets: []int64{ds.ID}},
	}

	require.NoError(t, trainer.ingestDatasets(ctx, job))

	// A restarted job re-ingests without failing on its earlier progress.
	require.NoError(t, trainer.ingestDatasets(ctx, job))

	ids, err := manager.ListDatasets(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{ds.ID}, ids)
}

func TestSystemPrompt(t *testing.T) {
	content := ollama.BuildModelfile("helper", "llama3.2", "You are a reviewer.", ollama.DefaultModelfileParams())

	prompt := systemPrompt(content)
	assert.True(t, len(prompt) > 0)
	assert.Contains(t, prompt, "You are a reviewer.")
	assert.Contains(t, prompt, "vector-based knowledge base")
	assert.NotContains(t, prompt, "PARAMETER")

	assert.Equal(t, "", systemPrompt("FROM llama3.2\n"))
}
