// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.answerdeck/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data (passwords, tokens) is never logged; Config masks those
// fields in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunking indicates chunk size/overlap values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates retrieval tuning values are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidCrawl indicates crawler settings are out of range.
	ErrInvalidCrawl = errors.New("invalid crawl configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidOllamaHost indicates the Ollama host is missing or invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default embedding model.
	// text-embedding-004 outputs 768 dimensions, matching the pgvector schema.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is the character overlap between consecutive chunks.
	DefaultChunkOverlap = 100

	// DefaultIndexBatchSize is the number of chunks indexed per batch.
	DefaultIndexBatchSize = 100

	// DefaultTopK is the default number of passages retrieved per question.
	DefaultTopK = 5

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// retrieved passage to count as relevant.
	DefaultSimilarityThreshold = 0.3

	// DefaultMaxCrawlPages bounds the number of pages fetched per crawl seed.
	DefaultMaxCrawlPages = 25

	// DefaultCrawlTimeoutSeconds is the soft time budget for a whole crawl.
	DefaultCrawlTimeoutSeconds = 120
)

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Chunking configuration
	ChunkSize      int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	IndexBatchSize int `mapstructure:"index_batch_size" json:"index_batch_size"`

	// Retrieval configuration
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	SimilarityThreshold float32 `mapstructure:"similarity_threshold" json:"similarity_threshold"`

	// Source configuration
	DriveFolderID       string   `mapstructure:"drive_folder_id" json:"drive_folder_id"`
	DriveAccessToken    string   `mapstructure:"drive_access_token" json:"drive_access_token"` // SENSITIVE: masked in MarshalJSON
	DropboxFolder       string   `mapstructure:"dropbox_folder" json:"dropbox_folder"`
	DropboxToken        string   `mapstructure:"dropbox_token" json:"dropbox_token"` // SENSITIVE: masked in MarshalJSON
	CrawlSeeds          []string `mapstructure:"crawl_seeds" json:"crawl_seeds"`
	MaxCrawlPages       int      `mapstructure:"max_crawl_pages" json:"max_crawl_pages"`
	CrawlTimeoutSeconds int      `mapstructure:"crawl_timeout_seconds" json:"crawl_timeout_seconds"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".answerdeck")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* keys when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("index_batch_size", DefaultIndexBatchSize)

	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)

	viper.SetDefault("max_crawl_pages", DefaultMaxCrawlPages)
	viper.SetDefault("crawl_timeout_seconds", DefaultCrawlTimeoutSeconds)
	viper.SetDefault("dropbox_folder", "")

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "answerdeck")
	viper.SetDefault("postgres_password", "answerdeck_dev_password")
	viper.SetDefault("postgres_db_name", "answerdeck")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("rate_burst", 60)
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read directly by Genkit, not via
// Viper; GOOGLE_APPLICATION_CREDENTIALS is read by the Drive client.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ANSWERDECK_PROVIDER")
	mustBind("model_name", "ANSWERDECK_MODEL_NAME")
	mustBind("embedder_model", "ANSWERDECK_EMBEDDER_MODEL")
	mustBind("ollama_host", "ANSWERDECK_OLLAMA_HOST")
	mustBind("listen_addr", "ANSWERDECK_LISTEN_ADDR")
	mustBind("drive_folder_id", "ANSWERDECK_DRIVE_FOLDER_ID")
	mustBind("drive_access_token", "DRIVE_ACCESS_TOKEN")
	mustBind("dropbox_folder", "ANSWERDECK_DROPBOX_FOLDER")
	mustBind("dropbox_token", "DROPBOX_ACCESS_TOKEN")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.DropboxToken = maskSecret(a.DropboxToken)
	a.DriveAccessToken = maskSecret(a.DriveAccessToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
