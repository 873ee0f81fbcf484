package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinelab/modeldash/internal/config"
	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/models"
	"github.com/refinelab/modeldash/internal/ollama"
	"github.com/refinelab/modeldash/internal/server"
	"github.com/refinelab/modeldash/internal/vectorstore/memory"
)

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return vector(text), nil
}

func (staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vector(text)
	}
	return out, nil
}

func (staticEmbedder) Model() string  { return "static" }
func (staticEmbedder) Dimension() int { return 4 }

func vector(text string) []float32 {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v
}

// fakeModelManager stands in for the Ollama client.
type fakeModelManager struct {
	models  map[string]*ollama.ModelDetails
	created []string
}

func newFakeModelManager(names ...string) *fakeModelManager {
	f := &fakeModelManager{models: make(map[string]*ollama.ModelDetails)}
	for _, name := range names {
		f.models[name] = &ollama.ModelDetails{Name: name, System: "base prompt"}
	}
	return f
}

func (f *fakeModelManager) List(_ context.Context) ([]ollama.Model, error) {
	out := make([]ollama.Model, 0, len(f.models))
	for name := range f.models {
		out = append(out, ollama.Model{Name: name})
	}
	return out, nil
}

func (f *fakeModelManager) Show(_ context.Context, name string) (*ollama.ModelDetails, error) {
	details, ok := f.models[name]
	if !ok {
		return nil, fmt.Errorf("model %q not found", name)
	}
	return details, nil
}

func (f *fakeModelManager) Create(_ context.Context, name, from, system string, _ ollama.ModelfileParams) error {
	f.models[name] = &ollama.ModelDetails{Name: name, System: system}
	f.created = append(f.created, name+"<-"+from)
	return nil
}

func (f *fakeModelManager) Delete(_ context.Context, name string) error {
	if _, ok := f.models[name]; !ok {
		return fmt.Errorf("model %q not found", name)
	}
	delete(f.models, name)
	return nil
}

func (f *fakeModelManager) Heartbeat(_ context.Context) error { return nil }

// fakeJobRunner stands in for the job manager.
type fakeJobRunner struct {
	startErr error
	stopErr  error
	started  []int64
	running  []int64
}

func (f *fakeJobRunner) Start(_ context.Context, id int64) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeJobRunner) Stop(_ context.Context, _ int64) error { return f.stopErr }
func (f *fakeJobRunner) Running() []int64                      { return f.running }

// fakeEvalRunner stands in for the evaluator.
type fakeEvalRunner struct {
	stopErr error
	started []int64
}

func (f *fakeEvalRunner) Start(_ context.Context, id int64) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeEvalRunner) Stop(_ context.Context, _ int64) error { return f.stopErr }

type testEnv struct {
	handler http.Handler
	db      *db.Client
	ollama  *fakeModelManager
	jobs    *fakeJobRunner
	evals   *fakeEvalRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	logger := slog.New(slog.DiscardHandler)
	dbClient, err := db.NewClient(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { dbClient.Close() })
	require.NoError(t, dbClient.InitSchema(ctx))

	store := memory.NewStore()
	manager := kb.NewManager(dbClient, store, staticEmbedder{}, nil, logger)

	env := &testEnv{
		db:     dbClient,
		ollama: newFakeModelManager(),
		jobs:   &fakeJobRunner{},
		evals:  &fakeEvalRunner{},
	}
	srv := server.New(config.Config{ListenAddr: ":0"}, server.Deps{
		DB:        dbClient,
		KB:        manager,
		Store:     store,
		Embedder:  staticEmbedder{},
		Ollama:    env.ollama,
		Jobs:      env.jobs,
		Evaluator: env.evals,
		Logger:    logger,
	})
	env.handler = srv.Handler()
	return env
}

func testHandler(t *testing.T) (http.Handler, *db.Client) {
	t.Helper()
	env := newTestEnv(t)
	return env.handler, env.db
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func ingestBody(n int) map[string]any {
	samples := make([]models.Sample, n)
	for i := range samples {
		samples[i] = models.Sample{
			Instruction: fmt.Sprintf("question %d", i),
			Output:      fmt.Sprintf("answer %d", i),
		}
	}
	return map[string]any{"samples": samples}
}

func TestRAGKnowledgeBaseLifecycle(t *testing.T) {
	handler, _ := testHandler(t)

	// Ingest three datasets into job 4.
	for _, ds := range []int{5, 7, 12} {
		rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/rag/jobs/4/datasets/%d", ds), ingestBody(2))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// Dataset ids come back as strings, in ingestion order.
	rec := doJSON(t, handler, http.MethodGet, "/api/rag/jobs/4/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"5", "7", "12"}, decodeJSON[[]string](t, rec))

	// Collections follow the same order.
	rec = doJSON(t, handler, http.MethodGet, "/api/rag/jobs/4/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"kb_job_4_ds_5", "kb_job_4_ds_7", "kb_job_4_ds_12"},
		decodeJSON[[]string](t, rec))

	// Remove dataset 5.
	rec = doJSON(t, handler, http.MethodDelete, "/api/rag/jobs/4/datasets/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/rag/jobs/4/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"7", "12"}, decodeJSON[[]string](t, rec))

	// Deleting it again is 404, not a silent success.
	rec = doJSON(t, handler, http.MethodDelete, "/api/rag/jobs/4/datasets/5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRAGIngestDuplicate(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/rag/jobs/4/datasets/5", ingestBody(1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/rag/jobs/4/datasets/5", ingestBody(1))
	assert.Equal(t, http.StatusConflict, rec.Code)

	envelope := decodeJSON[server.ErrorEnvelope](t, rec)
	assert.Equal(t, "duplicate_mapping", envelope.Error.Code)
}

func TestRAGIngestFromStoredDataset(t *testing.T) {
	handler, dbClient := testHandler(t)

	ds, err := dbClient.CreateDataset(context.Background(), models.DatasetInput{
		Name: "stored",
		Samples: []models.Sample{
			{Instruction: "what is a slice", Output: "a view over an array"},
		},
	})
	require.NoError(t, err)

	// No inline samples: the handler loads the dataset's stored samples.
	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/rag/jobs/4/datasets/%d", ds.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, float64(1), resp["written"])
}

func TestRAGInvalidIDs(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/rag/jobs/abc/datasets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/rag/jobs/0/datasets/5", ingestBody(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/rag/jobs/4/datasets/-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRAGQuery(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/rag/jobs/4/datasets/5", map[string]any{
		"samples": []models.Sample{
			{Instruction: "how do goroutines work", Output: "they are lightweight threads"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/rag/jobs/4/query", map[string]any{
		"query": "how do goroutines work",
		"top_k": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	results := decodeJSON[[]kb.QueryResult](t, rec)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(5), results[0].DatasetID)

	// Query against a job with no knowledge base is 404.
	rec = doJSON(t, handler, http.MethodPost, "/api/rag/jobs/99/query", map[string]any{"query": "anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetEndpoints(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/datasets", map[string]any{
		"name": "uploads",
		"type": "local",
		"raw_samples": []map[string]any{
			{"question": "what is a map", "answer": "a hash table"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeJSON[models.Dataset](t, rec)
	assert.Equal(t, 1, created.SampleCount)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/datasets/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeJSON[models.Dataset](t, rec)
	assert.Equal(t, "what is a map", got.Samples[0].Instruction)

	rec = doJSON(t, handler, http.MethodDelete, "/api/datasets/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainingJobEndpoints(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/training-jobs", map[string]any{
		"name":          "support-bot",
		"base_model":    "llama3:8b",
		"training_type": "rag",
		"config":        map[string]any{"selected_datasets": []int64{5, 7}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeJSON[models.TrainingJob](t, rec)
	assert.Equal(t, models.JobStatusPending, created.Status)
	assert.Equal(t, []int64{5, 7}, created.Config.SelectedDatasets)

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/training-jobs/%d", created.ID),
		map[string]any{"progress": 0.4, "model_name": "support-bot:latest"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodeJSON[models.TrainingJob](t, rec)
	assert.InDelta(t, 0.4, updated.Progress, 1e-9)
	assert.Equal(t, "support-bot:latest", updated.ModelName)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/training-jobs/%d/status", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, string(models.JobStatusPending), status["status"])
	assert.Equal(t, 0.4, status["progress"])

	rec = doJSON(t, handler, http.MethodGet, "/api/training-jobs/999/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluationEndpoints(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/evaluations", map[string]any{
		"model_name": "support-bot:latest",
		"dataset_id": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeJSON[models.Evaluation](t, rec)
	assert.Equal(t, "accuracy", created.EvaluationType)

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/evaluations/%d", created.ID),
		map[string]any{"improvement": 12.5, "notes": "manual re-score"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodeJSON[models.Evaluation](t, rec)
	assert.InDelta(t, 12.5, updated.Improvement, 1e-9)
	assert.Equal(t, "manual re-score", updated.Notes)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/evaluations/%d/status", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, string(models.JobStatusPending), status["status"])
	assert.Equal(t, 12.5, status["improvement"])
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "ok", resp["status"])
}

func TestModelEndpointsNamespacedNames(t *testing.T) {
	env := newTestEnv(t)
	env.ollama.models["acme/support:v1"] = &ollama.ModelDetails{Name: "acme/support:v1", System: "base prompt"}

	rec := doJSON(t, env.handler, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeJSON[[]ollama.Model](t, rec), 1)

	// Names with a namespace segment contain a slash and must still route.
	rec = doJSON(t, env.handler, http.MethodGet, "/api/models/acme/support:v1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "acme/support:v1", decodeJSON[map[string]any](t, rec)["name"])

	rec = doJSON(t, env.handler, http.MethodPut, "/api/models/acme/support:v1",
		map[string]any{"system": "be terse", "new_name": "acme/support:v2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, env.ollama.models, "acme/support:v2")
	assert.Equal(t, "be terse", env.ollama.models["acme/support:v2"].System)
	assert.Equal(t, []string{"acme/support:v2<-acme/support:v1"}, env.ollama.created)

	rec = doJSON(t, env.handler, http.MethodDelete, "/api/models/acme/support:v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.handler, http.MethodGet, "/api/models/acme/support:v1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobStartStopEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/training-jobs",
		map[string]any{"name": "support-bot", "base_model": "llama3:8b"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[models.TrainingJob](t, rec)

	rec = doJSON(t, env.handler, http.MethodPost, fmt.Sprintf("/api/training-jobs/%d/start", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{created.ID}, env.jobs.started)

	env.jobs.stopErr = fmt.Errorf("job %d is not running", created.ID)
	rec = doJSON(t, env.handler, http.MethodPost, fmt.Sprintf("/api/training-jobs/%d/stop", created.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEvaluationStartStopEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handler, http.MethodPost, "/api/evaluations/7/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{7}, env.evals.started)

	env.evals.stopErr = fmt.Errorf("evaluation 7 is not running")
	rec = doJSON(t, env.handler, http.MethodPost, "/api/evaluations/7/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrainingMaintenanceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	running := models.JobStatusRunning

	orphan, err := env.db.CreateTrainingJob(ctx, models.TrainingJobInput{Name: "orphan", BaseModel: "m"})
	require.NoError(t, err)
	require.NoError(t, env.db.UpdateTrainingJob(ctx, orphan.ID, models.TrainingJobUpdate{Status: &running}))

	owned, err := env.db.CreateTrainingJob(ctx, models.TrainingJobInput{Name: "owned", BaseModel: "m"})
	require.NoError(t, err)
	require.NoError(t, env.db.UpdateTrainingJob(ctx, owned.ID, models.TrainingJobUpdate{Status: &running}))
	env.jobs.running = []int64{owned.ID}

	// Only the RUNNING row with no live run in this process is failed.
	rec := doJSON(t, env.handler, http.MethodPost, "/api/detect-stuck-training", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decodeJSON[map[string]any](t, rec)["count"])

	job, err := env.db.GetTrainingJob(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "stuck")

	job, err = env.db.GetTrainingJob(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	// History lists only finished jobs.
	rec = doJSON(t, env.handler, http.MethodGet, "/api/training-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	history := decodeJSON[[]models.TrainingJob](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "orphan", history[0].Name)
}

func TestChromaAdminEndpoints(t *testing.T) {
	handler, _ := testHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/rag/jobs/4/datasets/5", ingestBody(3))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/chromadb/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeJSON[[]string](t, rec), "kb_job_4_ds_5")

	rec = doJSON(t, handler, http.MethodGet, "/api/chromadb/collections/kb_job_4_ds_5/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	count := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, float64(3), count["count"])

	rec = doJSON(t, handler, http.MethodPost, "/api/chromadb/collections/kb_job_4_ds_5/query",
		map[string]any{"query": "question 1", "top_k": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	hits := decodeJSON[[]map[string]any](t, rec)
	require.Len(t, hits, 2)

	// Missing query text is rejected before touching the store.
	rec = doJSON(t, handler, http.MethodPost, "/api/chromadb/collections/kb_job_4_ds_5/query",
		map[string]any{"top_k": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/chromadb/collections/kb_job_4_ds_5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/chromadb/collections/kb_job_4_ds_5/count", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
