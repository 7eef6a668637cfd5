package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/assign"
	"github.com/sells-group/tripmatch/internal/config"
	"github.com/sells-group/tripmatch/internal/extract"
	"github.com/sells-group/tripmatch/internal/location"
	"github.com/sells-group/tripmatch/internal/pipeline"
	"github.com/sells-group/tripmatch/internal/resilience"
	"github.com/sells-group/tripmatch/internal/store"
	"github.com/sells-group/tripmatch/internal/trips"
	anthropicpkg "github.com/sells-group/tripmatch/pkg/anthropic"
)

// pipelineEnv holds the store and pipeline needed by the assign, batch and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tripmatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initResolver builds the airport resolver, applying the optional override file.
func initResolver(c config.LocationConfig) (*location.AirportResolver, error) {
	if c.AirportsFile == "" {
		return location.NewAirportResolver(nil), nil
	}
	overrides, err := location.LoadAirports(c.AirportsFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded airport overrides", zap.Int("count", len(overrides)))
	return location.NewAirportResolver(overrides), nil
}

// newOrchestrator builds the assignment orchestrator from engine settings.
// Trips are supplied later by the pipeline.
func newOrchestrator(c config.EngineConfig, resolver location.Resolver) (*assign.Orchestrator, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	routing, err := assign.ParseRoutingPolicy(c.Routing)
	if err != nil {
		return nil, err
	}
	return &assign.Orchestrator{
		Normalizer: newNormalizer(c),
		Own:        trips.GapMatcher{ToleranceDays: c.ToleranceDays},
		Group:      trips.NewGroupMatcher(resolver, c.ToleranceDays),
		Routing:    routing,
		Location:   loc,
	}, nil
}

func newNormalizer(c config.EngineConfig) extract.Normalizer {
	return extract.Normalizer{
		ReviewThreshold: c.ReviewThreshold,
		YearHorizon:     c.YearSearchHorizon,
	}
}

// initPipeline validates config for mode, opens and migrates the store, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	resolver, err := initResolver(cfg.Location)
	if err != nil {
		return nil, err
	}
	orch, err := newOrchestrator(cfg.Engine, resolver)
	if err != nil {
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

	client := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
	retry := resilience.FromConfig(
		cfg.Anthropic.Retry.MaxAttempts,
		cfg.Anthropic.Retry.InitialBackoffMs,
		cfg.Anthropic.Retry.MaxBackoffMs,
	)
	extractor := extract.NewExtractor(client, cfg.Anthropic.SonnetModel, cfg.Anthropic.MaxTokens, retry)

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(st, extractor, orch, cfg.Anthropic.ExampleLimit),
	}, nil
}
