package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// SQLite metadata store
	DatabasePath string `yaml:"database_path"`

	// ChromaDB vector store
	ChromaURL string `yaml:"chroma_url"`

	// Ollama
	OllamaHost     string `yaml:"ollama_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDim   int    `yaml:"embedding_dim"`

	// Training artifacts
	ModelfileDir    string `yaml:"modelfile_dir"`
	TrainingDataDir string `yaml:"training_data_dir"`

	// Evaluation
	EvalSampleLimit int `yaml:"eval_sample_limit"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ListenAddr: getEnv("MODELDASH_LISTEN_ADDR", ":8430"),

		DatabasePath: getEnv("MODELDASH_DB_PATH", "modeldash.db"),

		ChromaURL: getEnv("CHROMA_URL", "http://localhost:8000"),

		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		EmbeddingModel: getEnv("MODELDASH_EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:   getEnvInt("MODELDASH_EMBEDDING_DIM", 768),

		ModelfileDir:    getEnv("MODELDASH_MODELFILE_DIR", "models"),
		TrainingDataDir: getEnv("MODELDASH_TRAINING_DATA_DIR", "training_data"),

		EvalSampleLimit: getEnvInt("MODELDASH_EVAL_SAMPLE_LIMIT", 100),

		LogFile:  getEnv("MODELDASH_LOG_FILE", "/tmp/modeldash.log"),
		LogLevel: parseLogLevel(getEnv("MODELDASH_LOG_LEVEL", "INFO")),
	}
}

// LoadFile overlays values from a YAML config file onto an env-loaded Config.
// A missing file is not an error; env values stay in effect.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
