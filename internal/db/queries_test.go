package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/models"
)

func TestDatasetCRUD(t *testing.T) {
	client, ctx := testClient(t)

	ds, err := client.CreateDataset(ctx, models.DatasetInput{
		Name: "go-snippets",
		Type: "local",
		Tags: []string{"code", "go"},
		Samples: []models.Sample{
			{Instruction: "reverse a string", Output: "use a rune slice"},
			{Instruction: "read a file", Output: "os.ReadFile"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.SampleCount)
	assert.Equal(t, []string{"code", "go"}, ds.Tags)

	got, err := client.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "go-snippets", got.Name)
	require.Len(t, got.Samples, 2)
	assert.Equal(t, "reverse a string", got.Samples[0].Instruction)

	list, err := client.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	favorite, err := client.ToggleDatasetFavorite(ctx, ds.ID)
	require.NoError(t, err)
	assert.True(t, favorite)

	require.NoError(t, client.DeleteDataset(ctx, ds.ID))
	_, err = client.GetDataset(ctx, ds.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	err = client.DeleteDataset(ctx, ds.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestTrainingJobLifecycle(t *testing.T) {
	client, ctx := testClient(t)

	job, err := client.CreateTrainingJob(ctx, models.TrainingJobInput{
		Name:         "support-bot",
		BaseModel:    "llama3.2",
		TrainingType: models.TrainingTypeRAG,
		Config: models.JobConfig{
			SelectedDatasets: []int64{1, 2},
			RoleDefinition:   "You are a support assistant.",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.TrainingTypeRAG, job.TrainingType)
	assert.Equal(t, []int64{1, 2}, job.Config.SelectedDatasets)

	// Defaults applied on create.
	assert.InDelta(t, 0.7, job.Temperature, 0.001)
	assert.Equal(t, 4096, job.ContextLength)

	status := models.JobStatusRunning
	progress := 0.3
	require.NoError(t, client.UpdateTrainingJob(ctx, job.ID, models.TrainingJobUpdate{
		Status:   &status,
		Progress: &progress,
	}))

	got, err := client.GetTrainingJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.InDelta(t, 0.3, got.Progress, 0.001)

	modelName := "support-bot:latest"
	done := models.JobStatusCompleted
	require.NoError(t, client.UpdateTrainingJob(ctx, job.ID, models.TrainingJobUpdate{
		Status:    &done,
		ModelName: &modelName,
	}))

	got, err = client.GetTrainingJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "support-bot:latest", got.ModelName)
	assert.True(t, got.Status.Terminal())
}

func TestEvaluationLifecycle(t *testing.T) {
	client, ctx := testClient(t)

	eval, err := client.CreateEvaluation(ctx, models.EvaluationInput{
		ModelName: "support-bot:latest",
		DatasetID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "accuracy", eval.EvaluationType)
	assert.Equal(t, models.JobStatusPending, eval.Status)

	status := models.JobStatusCompleted
	after := models.EvalMetrics{Accuracy: 85.0, Precision: 0.85, Recall: 0.85, F1: 0.85, InferenceTime: 120}
	improvement := 12.5
	require.NoError(t, client.UpdateEvaluation(ctx, eval.ID, models.EvaluationUpdate{
		Status:       &status,
		AfterMetrics: &after,
		Improvement:  &improvement,
	}))

	got, err := client.GetEvaluation(ctx, eval.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AfterMetrics)
	assert.InDelta(t, 85.0, got.AfterMetrics.Accuracy, 0.001)
	assert.InDelta(t, 12.5, got.Improvement, 0.001)
}

func TestModelProfileUpsert(t *testing.T) {
	client, ctx := testClient(t)

	jobID := int64(7)
	profile, err := client.UpsertModelProfile(ctx, "support-bot:latest", &jobID, "")
	require.NoError(t, err)
	require.NotNil(t, profile.TrainingJobID)
	assert.Equal(t, int64(7), *profile.TrainingJobID)

	// Second upsert updates in place.
	profile, err = client.UpsertModelProfile(ctx, "support-bot:latest", &jobID, "/avatars/bot.png")
	require.NoError(t, err)
	assert.Equal(t, "/avatars/bot.png", profile.AvatarURL)
}
