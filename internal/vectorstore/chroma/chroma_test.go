// Integration tests against a real ChromaDB container. Skipped in short mode.
package chroma

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/refinelab/modeldash/internal/vectorstore"
)

// startChroma launches a ChromaDB container and returns a Store pointed at it.
func startChroma(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "chromadb/chroma:0.5.23",
			ExposedPorts: []string{"8000/tcp"},
			WaitingFor: wait.ForHTTP("/api/v1/heartbeat").
				WithPort("8000/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start chroma container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	require.NoError(t, err)

	return NewStore(Config{URL: fmt.Sprintf("http://%s:%s", host, port.Port())})
}

func testRecords(n int) []vectorstore.Record {
	records := make([]vectorstore.Record, n)
	for i := range records {
		embedding := make([]float32, 4)
		embedding[i%4] = 1
		records[i] = vectorstore.Record{
			ID:        fmt.Sprintf("rec_%d", i),
			Document:  fmt.Sprintf("document %d", i),
			Embedding: embedding,
			Metadata:  vectorstore.Metadata{SourceDatasetID: 5, JobID: 4, OriginalIndex: i},
		}
	}
	return records
}

func TestChromaStore(t *testing.T) {
	store := startChroma(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "kb_job_4_ds_5"))
	// Idempotent.
	require.NoError(t, store.EnsureCollection(ctx, "kb_job_4_ds_5"))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "kb_job_4_ds_5")

	require.NoError(t, store.Add(ctx, "kb_job_4_ds_5", testRecords(3)))

	count, err := store.Count(ctx, "kb_job_4_ds_5")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Re-adding the same ids replaces the records instead of duplicating.
	require.NoError(t, store.Add(ctx, "kb_job_4_ds_5", testRecords(3)))

	count, err = store.Count(ctx, "kb_job_4_ds_5")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Query(ctx, "kb_job_4_ds_5", []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "rec_0", results[0].ID)
	assert.Equal(t, int64(5), results[0].Metadata.SourceDatasetID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	require.NoError(t, store.DeleteCollection(ctx, "kb_job_4_ds_5"))

	_, err = store.Count(ctx, "kb_job_4_ds_5")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	err = store.DeleteCollection(ctx, "kb_job_4_ds_5")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}
