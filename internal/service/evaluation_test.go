package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/models"
)

func testDB(t *testing.T) (*db.Client, context.Context) {
	t.Helper()
	ctx := context.Background()

	logger := slog.New(slog.DiscardHandler)
	client, err := db.NewClient(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema(ctx))
	return client, ctx
}

// fixedGenerator always answers the same text, regardless of prompt.
type fixedGenerator struct {
	response string
}

func (g fixedGenerator) Generate(context.Context, string) (string, error) {
	return g.response, nil
}

func waitForEvaluation(t *testing.T, client *db.Client, ctx context.Context, id int64) *models.Evaluation {
	t.Helper()
	var eval *models.Evaluation
	require.Eventually(t, func() bool {
		var err error
		eval, err = client.GetEvaluation(ctx, id)
		require.NoError(t, err)
		return eval.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return eval
}

func TestEvaluatorRun(t *testing.T) {
	client, ctx := testDB(t)

	ds, err := client.CreateDataset(ctx, models.DatasetInput{
		Name: "eval-set",
		Samples: []models.Sample{
			// Matches the fixed response by key-term overlap.
			{Instruction: "explain goroutines", Output: "goroutines are lightweight threads"},
			// Shares no terms with the response.
			{Instruction: "explain channels", Output: "typed conduits between senders"},
		},
	})
	require.NoError(t, err)

	eval, err := client.CreateEvaluation(ctx, models.EvaluationInput{
		ModelName: "tuned:latest",
		DatasetID: ds.ID,
	})
	require.NoError(t, err)

	evaluator := NewEvaluator(client, "http://localhost:11434", 0, nil, slog.New(slog.DiscardHandler))
	evaluator.newGenerator = func(serverURL, modelName string) (Generator, error) {
		assert.Equal(t, "tuned:latest", modelName)
		return fixedGenerator{response: "goroutines are lightweight threads managed by the runtime"}, nil
	}

	require.NoError(t, evaluator.Start(ctx, eval.ID))

	done := waitForEvaluation(t, client, ctx, eval.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)

	// One of two samples matched.
	require.NotNil(t, done.AfterMetrics)
	assert.InDelta(t, 50.0, done.AfterMetrics.Accuracy, 0.001)
	assert.InDelta(t, 0.5, done.AfterMetrics.Precision, 0.001)

	// Simulated baseline sits 10 + accuracy*0.1 points below.
	require.NotNil(t, done.BeforeMetrics)
	assert.InDelta(t, 35.0, done.BeforeMetrics.Accuracy, 0.001)
	assert.InDelta(t, 15.0, done.Improvement, 0.001)

	assert.Contains(t, done.Notes, "Evaluated 2 samples")
	require.NotNil(t, done.CompletedAt)
}

func TestEvaluatorSampleLimit(t *testing.T) {
	client, ctx := testDB(t)

	samples := make([]models.Sample, 10)
	for i := range samples {
		samples[i] = models.Sample{Instruction: "ask", Output: "expected answer text"}
	}
	ds, err := client.CreateDataset(ctx, models.DatasetInput{Name: "big", Samples: samples})
	require.NoError(t, err)

	eval, err := client.CreateEvaluation(ctx, models.EvaluationInput{
		ModelName: "tuned:latest",
		DatasetID: ds.ID,
	})
	require.NoError(t, err)

	var calls int
	evaluator := NewEvaluator(client, "", 3, nil, slog.New(slog.DiscardHandler))
	evaluator.newGenerator = func(string, string) (Generator, error) {
		return generatorFunc(func(context.Context, string) (string, error) {
			calls++
			return "expected answer text", nil
		}), nil
	}

	require.NoError(t, evaluator.Start(ctx, eval.ID))
	done := waitForEvaluation(t, client, ctx, eval.ID)

	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 3, calls)
	assert.Contains(t, done.Notes, "Evaluated 3 samples")
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestEvaluatorStartGuards(t *testing.T) {
	client, ctx := testDB(t)

	evaluator := NewEvaluator(client, "", 0, nil, slog.New(slog.DiscardHandler))

	// Unknown evaluation.
	err := evaluator.Start(ctx, 999)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Finished evaluation cannot be restarted.
	eval, err := client.CreateEvaluation(ctx, models.EvaluationInput{ModelName: "m", DatasetID: 1})
	require.NoError(t, err)
	status := models.JobStatusCompleted
	require.NoError(t, client.UpdateEvaluation(ctx, eval.ID, models.EvaluationUpdate{Status: &status}))

	err = evaluator.Start(ctx, eval.ID)
	assert.ErrorContains(t, err, "already finished")

	// Stopping something that is not running is an error.
	err = evaluator.Stop(ctx, eval.ID)
	assert.ErrorContains(t, err, "not running")
}

func TestEvaluatorFailsOnEmptyDataset(t *testing.T) {
	client, ctx := testDB(t)

	ds, err := client.CreateDataset(ctx, models.DatasetInput{Name: "empty"})
	require.NoError(t, err)

	eval, err := client.CreateEvaluation(ctx, models.EvaluationInput{
		ModelName: "tuned:latest",
		DatasetID: ds.ID,
	})
	require.NoError(t, err)

	evaluator := NewEvaluator(client, "", 0, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, evaluator.Start(ctx, eval.ID))

	done := waitForEvaluation(t, client, ctx, eval.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "no samples")
}

func TestResponseMatches(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		actual   string
		want     bool
	}{
		{"exact", "use a rune slice", "use a rune slice", true},
		{"majority overlap", "goroutines are lightweight threads", "goroutines are threads", true},
		{"case insensitive", "Rune Slice", "convert to a rune slice first", true},
		{"no overlap", "typed conduits", "completely unrelated words", false},
		{"empty expected", "", "anything", false},
		{"short terms ignored", "a an of", "a an of", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, responseMatches(tc.expected, tc.actual))
		})
	}
}

func TestTestPrompt(t *testing.T) {
	withInput := testPrompt(models.Sample{Instruction: "fix the bug", Input: "func main() {}"})
	assert.Contains(t, withInput, "### Instruction:\nfix the bug")
	assert.Contains(t, withInput, "### Input:\nfunc main() {}")
	assert.Contains(t, withInput, "### Response:")

	withoutInput := testPrompt(models.Sample{Instruction: "fix the bug"})
	assert.NotContains(t, withoutInput, "### Input:")
}
