package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Provider:            ProviderGemini,
		ModelName:           "gemini-2.5-flash",
		EmbedderModel:       DefaultEmbedderModel,
		Temperature:         0.2,
		ChunkSize:           DefaultChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
		IndexBatchSize:      DefaultIndexBatchSize,
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxCrawlPages:       DefaultMaxCrawlPages,
		CrawlTimeoutSeconds: DefaultCrawlTimeoutSeconds,
		PostgresHost:        "localhost",
		PostgresPort:        5432,
		PostgresUser:        "answerdeck",
		PostgresPassword:    "secret-password",
		PostgresDBName:      "answerdeck",
		PostgresSSLMode:     "disable",
		ListenAddr:          ":8080",
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name: "ollama requires host",
			mutate: func(c *Config) {
				c.Provider = ProviderOllama
				c.OllamaHost = ""
			},
			wantErr: ErrInvalidOllamaHost,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "overlap not smaller than chunk size",
			mutate:  func(c *Config) { c.ChunkOverlap = c.ChunkSize },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.ChunkSize = 0 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "top_k out of range",
			mutate:  func(c *Config) { c.TopK = 0 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "similarity threshold above one",
			mutate:  func(c *Config) { c.SimilarityThreshold = 1.5 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "zero crawl pages",
			mutate:  func(c *Config) { c.MaxCrawlPages = 0 },
			wantErr: ErrInvalidCrawl,
		},
		{
			name:    "invalid postgres port",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "deprecated ssl mode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "prefer" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := validConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("maskSecret(\"\") = %q, want empty", got)
	}
	if got := maskSecret("short"); got != maskedValue {
		t.Errorf("maskSecret short = %q, want fully masked", got)
	}
	got := maskSecret("my_long_secret_key_123")
	if !strings.HasPrefix(got, "my") || !strings.HasSuffix(got, "23") {
		t.Errorf("maskSecret long = %q, want my<...>23", got)
	}
	if strings.Contains(got, "long_secret") {
		t.Errorf("maskSecret leaked secret body: %q", got)
	}
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super-secret-password"
	cfg.DropboxToken = "sl.very-secret-token"

	s := cfg.String()
	if strings.Contains(s, "super-secret-password") {
		t.Error("String() leaked postgres password")
	}
	if strings.Contains(s, "sl.very-secret-token") {
		t.Error("String() leaked dropbox token")
	}
}
