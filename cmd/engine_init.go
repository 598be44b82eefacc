package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/ingest"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/reconcile"
	"github.com/sells-group/mdm-cli/internal/resilience"
	"github.com/sells-group/mdm-cli/internal/store"
	anthropicpkg "github.com/sells-group/mdm-cli/pkg/anthropic"
	"github.com/sells-group/mdm-cli/pkg/gemini"
	"github.com/sells-group/mdm-cli/pkg/llm"
)

// engineEnv holds the initialized store and reconciliation engine shared by
// the run and serve commands. Meta carries the provider and model every job
// started through this process is stamped with.
type engineEnv struct {
	Store  store.Store
	Engine *reconcile.Engine
	Meta   model.JobRun
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "mdm.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initInspectStore opens and migrates the store for read-only inspection
// commands. No LLM keys are required in this mode.
func initInspectStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("inspect"); err != nil {
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
	return st, nil
}

// initProviders builds the LLM registry from whichever API keys are
// configured. A key that is set but fails client construction is an error;
// a missing key just leaves that backend unregistered.
func initProviders(ctx context.Context) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	if cfg.Anthropic.Key != "" {
		p, err := anthropicpkg.New(cfg.Anthropic.Key, anthropicpkg.WithModel(cfg.Anthropic.Model))
		if err != nil {
			return nil, eris.Wrap(err, "init anthropic provider")
		}
		registry.Register(p)
	}

	if cfg.Gemini.Key != "" {
		p, err := gemini.New(ctx, cfg.Gemini.Key, gemini.WithModel(cfg.Gemini.Model))
		if err != nil {
			return nil, eris.Wrap(err, "init gemini provider")
		}
		registry.Register(p)
	}

	return registry, nil
}

// providerModel returns the configured model name for a provider.
func providerModel(name string) string {
	switch name {
	case "anthropic":
		return cfg.Anthropic.Model
	case "gemini":
		return cfg.Gemini.Model
	default:
		return ""
	}
}

// initEngine sets up the store, the LLM provider, and the batch engine.
// Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
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

	registry, err := initProviders(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	provider := registry.Get(cfg.Resolver.Provider)
	if provider == nil {
		_ = st.Close()
		return nil, eris.Errorf("llm provider %q not configured (available: %v)", cfg.Resolver.Provider, registry.List())
	}

	modelName := providerModel(provider.Name())
	resolver := reconcile.NewResolver(provider, reconcile.ResolverConfig{
		Model:             modelName,
		Timeout:           time.Duration(cfg.Resolver.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Resolver.RequestsPerSecond,
		Burst:             cfg.Resolver.Burst,
		DefaultConfidence: cfg.Resolver.DefaultConfidence,
		MaxTokens:         cfg.Resolver.MaxTokens,
		Retry:             resilience.RetryFromSettings(cfg.Resolver.MaxAttempts, cfg.Resolver.InitialBackoffMs, cfg.Resolver.MaxBackoffMs),
		Breaker:           resilience.BreakerFromSettings(cfg.Resolver.BreakerThreshold, cfg.Resolver.BreakerResetSecs),
	})

	engine := reconcile.NewEngine(st, resolver, reconcile.EngineConfig{
		Concurrency:   cfg.Batch.Concurrency,
		FlushInterval: time.Duration(cfg.Batch.FlushIntervalSecs) * time.Second,
	})

	zap.L().Info("engine initialized",
		zap.String("provider", provider.Name()),
		zap.String("model", modelName),
		zap.Int("concurrency", cfg.Batch.Concurrency),
	)

	return &engineEnv{
		Store:  st,
		Engine: engine,
		Meta:   model.JobRun{Provider: provider.Name(), Model: modelName},
	}, nil
}

// ingestOptions builds reader options from config plus an optional mapping
// file override from a command flag.
func ingestOptions(mappingPath string) (ingest.Options, error) {
	if mappingPath == "" {
		mappingPath = cfg.Ingest.MappingFile
	}

	var opts ingest.Options
	if mappingPath != "" {
		m, err := ingest.LoadMapping(mappingPath)
		if err != nil {
			return opts, eris.Wrap(err, "load header mapping")
		}
		opts.Mapping = m
	}
	return opts, nil
}
