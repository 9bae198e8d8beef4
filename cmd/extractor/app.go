package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/catalog-extractor/internal/batch"
	"github.com/joseph-ayodele/catalog-extractor/internal/catalog"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/evaluation"
	"github.com/joseph-ayodele/catalog-extractor/internal/export"
	"github.com/joseph-ayodele/catalog-extractor/internal/extract"
	"github.com/joseph-ayodele/catalog-extractor/internal/jobs"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm"
	"github.com/joseph-ayodele/catalog-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/catalog-extractor/internal/pipeline"
	"github.com/joseph-ayodele/catalog-extractor/internal/prompt"
	"github.com/joseph-ayodele/catalog-extractor/internal/repository"
	"github.com/joseph-ayodele/catalog-extractor/internal/sources"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *common.Config
	db        *repository.DB
	audit     repository.AuditRepository
	machine   *jobs.Machine
	processor *pipeline.Processor
	batch     *pipeline.BatchRunner
	export    *export.Service
	logger    *slog.Logger
}

// openStore loads the configuration and opens the audit store. It is all
// the export command needs.
func openStore(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	audit := repository.NewAuditRepository(db)
	return &app{
		cfg:    cfg,
		db:     db,
		audit:  audit,
		export: export.NewService(audit, logger),
		logger: logger,
	}, nil
}

// newApp wires the full pipeline on top of the audit store and restores the
// persisted job history into the state machine.
func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	a, err := openStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := catalog.Default()
	var store prompt.Store = prompt.DefaultStore()
	if cfg.Prompts.Dir != "" {
		store = prompt.ChainStore{prompt.NewDirStore(cfg.Prompts.Dir), prompt.DefaultStore()}
	}
	loader := prompt.NewLoader(store, registry, logger)

	router := llm.NewRouter(logger)
	openai.RegisterFromConfig(router, cfg.LLM, logger)

	orch, err := extract.NewOrchestrator(router, loader, registry, extract.Config{
		Classifier: entity.ModelParams{
			Provider:    cfg.Classification.Provider,
			Model:       cfg.Classification.Model,
			Temperature: cfg.Classification.Temperature,
		},
		ParseRetries: 1,
	}, logger)
	if err != nil {
		return err
	}

	var evalOpts []evaluation.Option
	if cfg.Evaluation.Enabled {
		jc := evaluation.JudgeConfig{
			MaxInputChars:  cfg.Evaluation.MaxInputChars,
			ForceHeuristic: cfg.Evaluation.HeuristicFallback,
		}
		if router.Has(cfg.Evaluation.Provider) {
			jc.Params = entity.ModelParams{
				Provider:    cfg.Evaluation.Provider,
				Model:       cfg.Evaluation.Model,
				Temperature: cfg.Evaluation.Temperature,
			}
		} else {
			logger.Warn("evaluation judge provider has no API key, content is scored heuristically", "provider", cfg.Evaluation.Provider)
		}
		judge, err := evaluation.NewJudge(router, loader, jc, logger)
		if err != nil {
			return err
		}
		evalOpts = append(evalOpts, evaluation.WithContentScorer(judge))
	}
	engine := evaluation.NewEngine(registry, logger, evalOpts...)

	sheets := sources.NewSpreadsheetReader(logger)
	consolidator := sources.NewConsolidator(
		sources.NewDocumentReader(logger),
		sheets,
		sources.NewHTTPFetcher(cfg.Sources.FetchTimeout, cfg.Sources.UserAgent, logger),
		sources.NewPacer(cfg.Sources.WebDelay),
		logger,
	)

	a.machine = jobs.NewMachine(registry, logger, jobs.WithRecorder(a.audit))
	history, err := a.audit.ListJobs(ctx, repository.JobFilter{})
	if err != nil {
		return fmt.Errorf("load job history: %w", err)
	}
	a.machine.Load(history)
	logger.Info("jobs.history.loaded", "jobs", len(history))

	a.processor = pipeline.NewProcessor(a.machine, consolidator, orch, engine, cfg.LLM.AttemptTimeout, logger)
	a.batch = pipeline.NewBatchRunner(batch.NewExpander(sheets, cfg.Batch.MaxRows, cfg.Batch.WarnRows, logger), a.processor, logger)
	return nil
}

// defaultParams are the extraction params used when a command gives none.
func (a *app) defaultParams() entity.ModelParams {
	return entity.ModelParams{
		Provider:    a.cfg.LLM.Provider,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
	}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
