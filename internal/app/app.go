// Package app wires configuration, storage, clients and the analysis
// pipeline into one application object shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reqlens/reqlens/db"
	"github.com/reqlens/reqlens/internal/analyze"
	"github.com/reqlens/reqlens/internal/config"
	"github.com/reqlens/reqlens/internal/confluence"
	"github.com/reqlens/reqlens/internal/jira"
	"github.com/reqlens/reqlens/internal/knowledge"
	"github.com/reqlens/reqlens/internal/llm"
	"github.com/reqlens/reqlens/internal/loader"
	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/markup"
	"github.com/reqlens/reqlens/internal/registry"
	"github.com/reqlens/reqlens/internal/retrieval"
	"github.com/reqlens/reqlens/internal/structure"
	"github.com/reqlens/reqlens/internal/template"
)

// ErrConfluenceNotConfigured is returned when an operation needs page
// access but no Confluence base URL is set.
var ErrConfluenceNotConfigured = errors.New("app: confluence base URL is not configured")

// App holds every initialized component.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Knowledge *knowledge.Store
	Services  *registry.Registry
	Rules     *template.Rules
	Schemas   *template.Registry

	Confluence *confluence.Client
	Jira       *jira.Client

	Source       *analyze.Source
	Retrieval    *retrieval.Builder
	Orchestrator *analyze.Orchestrator
	Loader       *loader.Loader

	otelCleanup func()
	dbCleanup   func()
}

// Setup initializes the application. On failure everything already
// initialized is torn down.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := llm.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing genkit: %w", err)
	}
	a.Genkit = g

	embedder := llm.Embedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(knowledge.NewPgxQuerier(pool), embedder, logger)

	a.Services, err = registry.Load(cfg.ServicesPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading service registry: %w", err)
	}

	a.Rules, err = template.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading template rules: %w", err)
	}
	a.Schemas = provideSchemas(a.Rules, logger)

	generator := llm.New(g, cfg.ModelName, time.Duration(cfg.LLMTimeoutSec)*time.Second, logger)

	if cfg.ConfluenceBaseURL != "" {
		a.Confluence = confluence.New(cfg.ConfluenceBaseURL, cfg.ConfluenceToken, logger)
		a.Source = analyze.NewSource(a.Confluence, markup.DefaultPolicy{}, logger)
		a.Loader = loader.New(a.Confluence, markup.DefaultPolicy{}, a.Knowledge, logger)
	}
	if cfg.JiraBaseURL != "" {
		a.Jira = jira.New(cfg.JiraBaseURL, cfg.JiraToken, logger)
	}

	var pages retrieval.PageSource
	if a.Source != nil {
		pages = a.Source
	}
	a.Retrieval = retrieval.New(a.Knowledge, a.Services, generator, pages, cfg.TopK, cfg.ContextBudget, logger)

	if a.Source != nil {
		a.Orchestrator = analyze.NewOrchestrator(a.Source, a.Schemas, a.Retrieval,
			a.Rules, generator, time.Duration(cfg.LLMTimeoutSec)*time.Second, logger)
	}

	return a, nil
}

// RequirePages returns an error when page-dependent components are
// missing because Confluence was not configured.
func (a *App) RequirePages() error {
	if a.Orchestrator == nil || a.Loader == nil {
		return ErrConfluenceNotConfigured
	}
	return nil
}

// Close releases resources in reverse initialization order.
func (a *App) Close() {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideSchemas bootstraps one schema per rule type from the static
// rules. Reference pages refine them later via ReloadSchema.
func provideSchemas(rules *template.Rules, logger log.Logger) *template.Registry {
	schemas := template.NewRegistry()
	builder := template.NewBuilder(rules, logger)
	for _, reqType := range rules.Types() {
		schemas.Load(reqType, builder.Build(reqType))
	}
	return schemas
}

// ReloadSchema rebuilds the schema of reqType from reference pages and
// swaps it into the registry.
func (a *App) ReloadSchema(ctx context.Context, reqType string, referencePageIDs []string) error {
	if a.Source == nil {
		return ErrConfluenceNotConfigured
	}

	builder := template.NewBuilder(a.Rules, a.Logger)
	structures := make([]structure.Document, 0, len(referencePageIDs))
	for _, id := range referencePageIDs {
		doc, err := a.Source.Document(ctx, id)
		if err != nil {
			return fmt.Errorf("loading reference page %s: %w", id, err)
		}
		structures = append(structures, doc.Structure)
	}

	a.Schemas.Load(reqType, builder.Build(reqType, structures...))
	a.Logger.Info("template schema reloaded", "requirement_type", reqType,
		"reference_pages", len(referencePageIDs))
	return nil
}
