package cli

import (
	"context"
	"log/slog"

	"github.com/hearthside/scullery/internal/concept"
	"github.com/hearthside/scullery/internal/concepts/recipe"
	"github.com/hearthside/scullery/internal/concepts/requesting"
	"github.com/hearthside/scullery/internal/concepts/scaler"
	"github.com/hearthside/scullery/internal/concepts/tips"
	"github.com/hearthside/scullery/internal/concepts/userauth"
	"github.com/hearthside/scullery/internal/config"
	"github.com/hearthside/scullery/internal/docstore"
	"github.com/hearthside/scullery/internal/engine"
	"github.com/hearthside/scullery/internal/llm"
	"github.com/hearthside/scullery/internal/store"
	"github.com/hearthside/scullery/internal/syncs"
)

// app bundles the wired application: both stores, the concept registry,
// and the engine with the full rule set. serve and invoke share it.
type app struct {
	cfg      *config.Config
	logStore *store.Store
	docs     *docstore.Store
	registry *concept.Registry
	eng      *engine.Engine
	req      *requesting.Concept
}

// buildApp opens the databases named in the config and wires every
// concept behind the registry and engine. The clock resumes past the
// highest sequence already in the log.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logStore, err := store.Open(cfg.Store.LogPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open action log", err)
	}

	docs, err := docstore.Open(cfg.Store.DocsPath)
	if err != nil {
		logStore.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open document store", err)
	}

	var client llm.Client
	if openaiClient, err := llm.NewOpenAIClient(cfg.LLM.Model); err != nil {
		slog.Warn("language model unavailable, AI scaling will fail", "error", err)
		client = llm.Disabled{}
	} else {
		client = openaiClient
	}

	req := requesting.New().WithTimeout(cfg.RequestTimeout())
	recipes := recipe.New(docs)
	registry, err := concept.NewRegistry(
		req,
		userauth.New(docs),
		recipes,
		scaler.New(docs, recipes, client),
		tips.New(docs, client),
	)
	if err != nil {
		docs.Close()
		logStore.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build registry", err)
	}

	maxSeq, err := logStore.MaxSeq(ctx)
	if err != nil {
		docs.Close()
		logStore.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read log position", err)
	}

	eng, err := engine.New(logStore, registry, syncs.All(), engine.UUIDv7Generator{},
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithMaxRepeats(cfg.Engine.MaxRepeats),
		engine.WithClock(engine.NewClockAt(maxSeq)),
	)
	if err != nil {
		docs.Close()
		logStore.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	return &app{
		cfg:      cfg,
		logStore: logStore,
		docs:     docs,
		registry: registry,
		eng:      eng,
		req:      req,
	}, nil
}

func (a *app) Close() {
	a.docs.Close()
	a.logStore.Close()
}

// loadConfig reads the config file, or the defaults when no path given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}
