// Package app wires configuration, storage, AI providers, and services
// into a running application.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/config"
	"github.com/answerdeck/answerdeck/internal/history"
	"github.com/answerdeck/answerdeck/internal/knowledge"
	"github.com/answerdeck/answerdeck/internal/log"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
	"github.com/answerdeck/answerdeck/internal/sync"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge     *knowledge.Store
	Answer        *answer.Service
	Questionnaire *questionnaire.Pipeline
	Sync          *sync.Orchestrator
	History       *history.Store
}

// Close releases all resources held by the application.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
