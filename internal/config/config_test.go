package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Neutralize ambient environment so defaults are observable.
	for _, key := range []string{
		"MODELDASH_LISTEN_ADDR", "MODELDASH_DB_PATH", "CHROMA_URL", "OLLAMA_HOST",
		"MODELDASH_EMBEDDING_MODEL", "MODELDASH_EMBEDDING_DIM",
		"MODELDASH_EVAL_SAMPLE_LIMIT", "MODELDASH_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8430", cfg.ListenAddr)
	assert.Equal(t, "modeldash.db", cfg.DatabasePath)
	assert.Equal(t, "http://localhost:8000", cfg.ChromaURL)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, 100, cfg.EvalSampleLimit)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MODELDASH_LISTEN_ADDR", ":9000")
	t.Setenv("MODELDASH_EVAL_SAMPLE_LIMIT", "25")
	t.Setenv("MODELDASH_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 25, cfg.EvalSampleLimit)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":7777\"\nchroma_url: http://chroma:8000\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "http://chroma:8000", cfg.ChromaURL)
	// Unset keys keep their env/default values.
	assert.Equal(t, "modeldash.db", cfg.DatabasePath)
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8430", cfg.ListenAddr)
}

func TestNewFanoutLogger(t *testing.T) {
	var text, json bytes.Buffer

	logger := NewFanoutLogger(&text, &json, slog.LevelInfo)
	logger.Info("dataset ingested", "dataset_id", 5)

	assert.Contains(t, text.String(), "dataset ingested")
	assert.Contains(t, json.String(), `"dataset_id":5`)

	// Below the configured level, neither sink records.
	text.Reset()
	json.Reset()
	logger.Debug("noisy detail")
	assert.Empty(t, text.String())
	assert.Empty(t, json.String())
}
