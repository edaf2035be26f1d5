package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	googledrive "google.golang.org/api/drive/v3"

	"github.com/answerdeck/answerdeck/db"
	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/chunk"
	"github.com/answerdeck/answerdeck/internal/config"
	"github.com/answerdeck/answerdeck/internal/history"
	"github.com/answerdeck/answerdeck/internal/knowledge"
	"github.com/answerdeck/answerdeck/internal/log"
	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
	"github.com/answerdeck/answerdeck/internal/source"
	"github.com/answerdeck/answerdeck/internal/source/drive"
	"github.com/answerdeck/answerdeck/internal/source/dropbox"
	"github.com/answerdeck/answerdeck/internal/source/web"
	"github.com/answerdeck/answerdeck/internal/sync"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(knowledge.NewPGQuerier(pool), embedder, logger)

	llm := answer.NewLLM(g, cfg.FullModelName(), float64(cfg.Temperature))
	a.Answer = answer.NewService(a.Knowledge, llm, cfg.TopK, cfg.SimilarityThreshold, logger)

	normalizer := normalize.New(nil, logger)

	extractor := questionnaire.NewExtractor(llm, normalizer, logger)
	a.Questionnaire = questionnaire.NewPipeline(extractor, a.Answer, logger)

	a.History = history.New(pool)

	orchestrator, err := provideSync(ctx, cfg, a.Knowledge, normalizer, pool, logger)
	if err != nil {
		return nil, err
	}
	a.Sync = orchestrator

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool. Each
// connection registers the pgvector types so embeddings scan natively.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
	default: // gemini / googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. OpenAI auto-registers embedders in Init(); Ollama embedders
// are keyed by server address; Google embedders are created explicitly.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideSync builds the connectors named by the configuration and the
// orchestrator over them. A config with no sources still yields an
// orchestrator; its runs are just empty.
func provideSync(ctx context.Context, cfg *config.Config, store *knowledge.Store, normalizer *normalize.Normalizer, pool *pgxpool.Pool, logger log.Logger) (*sync.Orchestrator, error) {
	var connectors []source.Connector

	if cfg.DriveFolderID != "" {
		var (
			svc *googledrive.Service
			err error
		)
		if cfg.DriveAccessToken != "" {
			svc, err = drive.NewServiceWithToken(ctx, cfg.DriveAccessToken)
		} else {
			svc, err = drive.NewService(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("creating drive connector: %w", err)
		}
		connectors = append(connectors, drive.New(svc, cfg.DriveFolderID, logger))
	}

	if cfg.DropboxToken != "" {
		connectors = append(connectors, dropbox.NewWithToken(cfg.DropboxToken, cfg.DropboxFolder, logger))
	}

	if len(cfg.CrawlSeeds) > 0 {
		connectors = append(connectors, web.New(web.Config{
			Seeds:    cfg.CrawlSeeds,
			MaxPages: cfg.MaxCrawlPages,
			Budget:   time.Duration(cfg.CrawlTimeoutSeconds) * time.Second,
		}, logger))
	}

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring chunker: %w", err)
	}

	return sync.New(connectors, normalizer, splitter, store, sync.NewPGLog(pool), cfg.IndexBatchSize, logger), nil
}
