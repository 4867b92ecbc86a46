package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	LLMMaxTokens       int
	EmbeddingBaseURL   string
	EmbeddingModelName string
	TTSModelName       string
	TTSVoice           string
	DBPath             string
	DialogsPath        string
	KnowledgePath      string // Optional knowledge manifest loaded at startup
	QdrantURL          string
	QdrantCollection   string
	QdrantVectorSize   int
	StorageVisitPoint  string
	StorageSecure      bool
	APIPort            string
	LogLevel           slog.Level
	LogFormat          string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		TTSModelName:       getEnv("TTS_MODEL", ""),
		TTSVoice:           getEnv("TTS_VOICE", "alloy"),
		DBPath:             getEnv("DB_PATH", "./data/ragflow.db"),
		DialogsPath:        getEnv("DIALOGS_PATH", "./dialogs.yaml"),
		KnowledgePath:      getEnv("KNOWLEDGE_PATH", ""),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "chunks"),
		StorageVisitPoint:  getEnv("STORAGE_VISIT_POINT", "localhost:9000/images"),
		APIPort:            getEnv("API_PORT", "9380"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	maxTokens, err := strconv.Atoi(getEnv("LLM_MAX_TOKENS", "8192"))
	if err != nil {
		return nil, fmt.Errorf("LLM_MAX_TOKENS must be a valid integer: %w", err)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("LLM_MAX_TOKENS must be greater than 0")
	}
	cfg.LLMMaxTokens = maxTokens

	// QDRANT_VECTOR_SIZE must match the output vector size of the embeddings model.
	// If it changes, the Qdrant collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	secure, err := strconv.ParseBool(getEnv("STORAGE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("STORAGE_SECURE must be a boolean: %w", err)
	}
	cfg.StorageSecure = secure

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	// Create the data directory for the SQLite file
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
