package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OpenAIConfig configures the embedding and chat backend.
type OpenAIConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Temperature    *float64      `yaml:"temperature"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SplitterConfig sizes document fragments, in runes.
type SplitterConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	PDFChunkSize int `yaml:"pdf_chunk_size"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig selects where OpenTelemetry metrics go. Exporter is
// "none" or "otlp" (gRPC).
type MetricsConfig struct {
	Exporter string        `yaml:"exporter"`
	Endpoint string        `yaml:"endpoint"`
	Interval time.Duration `yaml:"interval"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Load reads a config from path, applies environment overrides and
// defaults, then validates it. An empty path or a missing file means
// defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects sizing that the splitter or retriever cannot honor.
func (c *AppConfig) Validate() error {
	if c.Splitter.ChunkOverlap < 0 {
		return fmt.Errorf("splitter.chunk_overlap must not be negative")
	}
	if c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Splitter.ChunkOverlap, c.Splitter.ChunkSize)
	}
	if c.Splitter.ChunkOverlap >= c.Splitter.PDFChunkSize {
		return fmt.Errorf("splitter.chunk_overlap (%d) must be smaller than pdf_chunk_size (%d)", c.Splitter.ChunkOverlap, c.Splitter.PDFChunkSize)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	switch c.Metrics.Exporter {
	case "none", "otlp":
	default:
		return fmt.Errorf("metrics.exporter must be none or otlp, got %q", c.Metrics.Exporter)
	}
	return nil
}

// MaxUploadBytes is the multipart body limit.
func (c *AppConfig) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Addr = getEnv("ASSIST_ADDR", cfg.Server.Addr)
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.ChatModel = getEnv("OPENAI_CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.OpenAI.EmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)
	cfg.Retrieval.TopK = getEnvAsInt("RETRIEVAL_TOP_K", cfg.Retrieval.TopK)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Exporter = getEnv("METRICS_EXPORTER", cfg.Metrics.Exporter)
	cfg.Metrics.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Metrics.Endpoint)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-ada-002"
	}
	if cfg.OpenAI.Temperature == nil {
		t := 0.7
		cfg.OpenAI.Temperature = &t
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 2
	}
	if cfg.OpenAI.RequestTimeout <= 0 {
		cfg.OpenAI.RequestTimeout = 60 * time.Second
	}
	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 4000
	}
	if cfg.Splitter.ChunkOverlap == 0 {
		cfg.Splitter.ChunkOverlap = 200
	}
	if cfg.Splitter.PDFChunkSize == 0 {
		cfg.Splitter.PDFChunkSize = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Metrics.Exporter == "" {
		cfg.Metrics.Exporter = "none"
	}
	if cfg.Metrics.Endpoint == "" {
		cfg.Metrics.Endpoint = "localhost:4317"
	}
	if cfg.Metrics.Interval <= 0 {
		cfg.Metrics.Interval = 30 * time.Second
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
