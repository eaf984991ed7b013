package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bracketworks/standings-cli/internal/classify"
	"github.com/bracketworks/standings-cli/internal/fetcher"
	"github.com/bracketworks/standings-cli/internal/match"
	"github.com/bracketworks/standings-cli/internal/pipeline"
	"github.com/bracketworks/standings-cli/internal/roster"
	"github.com/bracketworks/standings-cli/internal/store"
	"github.com/bracketworks/standings-cli/pkg/vision"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// pipelineEnv holds the initialized store, clients, and pipeline needed by
// the process and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Roster   *roster.File
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, loads the roster, builds the clients, and
// wires the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rosterFile, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("roster loaded",
		zap.String("path", cfg.Roster.Path),
		zap.Int("players", len(rosterFile.Players)),
	)

	matcher := match.New(rosterFile.Players, cfg.Match.FuzzyThreshold)
	classifier := classify.New(cfg.Classify)
	imageFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		MaxBytes:   cfg.Fetch.MaxBytes,
	})
	visionClient := vision.NewClient(cfg.Vision.Key,
		vision.WithBaseURL(cfg.Vision.BaseURL),
		vision.WithMaxAttempts(cfg.Vision.MaxRetries),
	)

	p := pipeline.New(cfg, st, imageFetcher, classifier, matcher, visionClient)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Roster:   rosterFile,
	}, nil
}
