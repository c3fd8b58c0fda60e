package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabulark/tabulark/pkg/config"
	"github.com/tabulark/tabulark/pkg/engine"
	"github.com/tabulark/tabulark/pkg/history"
	"github.com/tabulark/tabulark/pkg/policy"
	"github.com/tabulark/tabulark/pkg/script"
	"github.com/tabulark/tabulark/pkg/table"
)

// loadConfig resolves the configuration from the --config flags, falling
// back to defaults when none are given.
func loadConfig(ctx context.Context) (*config.Config, error) {
	parser := config.NewCUEParser()
	return parser.Load(ctx, configPaths)
}

// componentLogger returns the logger the engine components share.
func componentLogger() zerolog.Logger {
	logger := log.Logger
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return logger
}

// buildValidator assembles the policy surface and the static validator
// from the configuration.
func buildValidator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*script.Validator, *policy.Engine, error) {
	patterns, err := policy.NewEngine(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build pattern engine: %w", err)
	}

	if len(cfg.Policy.Paths) > 0 {
		if err := patterns.LoadRules(ctx, cfg.Policy.Paths); err != nil {
			return nil, nil, fmt.Errorf("failed to load rules: %w", err)
		}
	}

	if cfg.Policy.WatchRules && len(cfg.Policy.Paths) > 0 {
		loader := policy.NewLoader(logger)
		err := loader.Watch(ctx, cfg.Policy.Paths, func(_ []policy.Rule) error {
			if err := patterns.ReloadRules(ctx); err != nil {
				return err
			}
			return patterns.LoadRules(ctx, cfg.Policy.Paths)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Rule watching unavailable")
		}
	}

	registry := policy.NewRegistry(cfg.Policy.AllowedCalls, cfg.Policy.ForbiddenTokens)
	return script.NewValidator(registry, patterns, logger), patterns, nil
}

// buildOrchestrator assembles the full execution pipeline.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*engine.Orchestrator, error) {
	validator, _, err := buildValidator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	executor := script.NewExecutor(cfg.Engine.MaxSteps, logger)
	normalizer := engine.NewNormalizer(cfg.Engine.MaxRows)

	orch := engine.NewOrchestrator(validator, executor, normalizer, logger).
		WithWorkers(cfg.Engine.Workers).
		WithTableName(cfg.Engine.TableName)

	return orch, nil
}

// openHistoryStore opens and migrates the attempt store when history is
// enabled. The returned cleanup closes the store; it is a no-op when
// history is off.
func openHistoryStore(ctx context.Context, cfg *config.Config) (*history.SQLiteStore, func(), error) {
	if !cfg.History.Enabled {
		return nil, func() {}, nil
	}

	store, err := history.NewSQLiteStore(history.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate history store: %w", err)
	}

	return store, func() { _ = store.Close() }, nil
}

// historySink wraps the store in the configured writer.
func historySink(store *history.SQLiteStore, cfg *config.Config, logger zerolog.Logger) (engine.HistorySink, func()) {
	if store == nil {
		return nil, func() {}
	}
	if cfg.History.Sync {
		return history.NewSyncWriter(store), func() {}
	}
	w := history.NewWriter(store, cfg.History.BufferSize, logger)
	return w, func() { _ = w.Close() }
}

// loadDataset resolves a dataset reference. A path to an existing CSV
// file wins; otherwise the reference is looked up among the configured
// named datasets.
func loadDataset(cfg *config.Config, ref string) (*table.Table, error) {
	if ref == "" {
		return nil, fmt.Errorf("no dataset given")
	}

	path := ref
	if _, err := os.Stat(path); err != nil {
		found := false
		for _, ds := range cfg.Datasets {
			if ds.Name == ref {
				path = ds.Path
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("dataset %q is neither a file nor a configured dataset", ref)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	tbl, err := table.FromCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return tbl, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
