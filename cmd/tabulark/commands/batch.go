package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tabulark/tabulark/pkg/engine"
	"github.com/tabulark/tabulark/pkg/history"
	"github.com/tabulark/tabulark/pkg/telemetry"
)

// batchFile is the on-disk batch description.
type batchFile struct {
	ID          string          `yaml:"id" json:"id"`
	Dataset     string          `yaml:"dataset" json:"dataset"`
	Chained     bool            `yaml:"chained" json:"chained"`
	StopOnError bool            `yaml:"stop_on_error" json:"stop_on_error"`
	Budget      string          `yaml:"budget" json:"budget"`
	Steps       []batchFileStep `yaml:"steps" json:"steps"`
}

type batchFileStep struct {
	Query    string `yaml:"query" json:"query"`
	Code     string `yaml:"code" json:"code"`
	CodeFile string `yaml:"code_file" json:"code_file"`
}

func newBatchCommand(version string) *cobra.Command {
	var (
		dataset     string
		chained     bool
		stopOnError bool
		budget      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run a batch of snippets against a dataset",
		Long: `Run a batch described in a YAML file. Each step is validated and,
when accepted, executed in the sandbox.

Chained batches thread each tabular result into the next step's input;
a non-tabular intermediate result aborts the remainder. Non-chained
batches run every step against the original table, in parallel when the
configured worker count allows.

With history enabled in the configuration, every attempt is recorded in
the SQLite attempt log.`,
		Example: `  # Run a batch file
  tabulark batch queries.yaml --dataset sales.csv

  # Chain results step to step
  tabulark batch pipeline.yaml --dataset sales.csv --chained

  # Stop at the first failure
  tabulark batch queries.yaml --dataset sales.csv --stop-on-error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			req, fileDataset, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}

			// Flags override the file which overrides the config.
			if cmd.Flags().Changed("chained") {
				req.Chained = chained
			}
			if cmd.Flags().Changed("stop-on-error") {
				req.StopOnError = stopOnError
			}
			if budget > 0 {
				req.Budget = budget
			}
			if req.Budget == 0 {
				req.Budget = cfg.Engine.Budget
			}
			if dataset == "" {
				dataset = fileDataset
			}

			if req.ID == "" {
				req.ID = uuid.New().String()
			}

			tbl, err := loadDataset(cfg, dataset)
			if err != nil {
				return err
			}

			return runBatch(req, dataset, tbl.NumRows(), func() (*engine.BatchResult, error) {
				logger := componentLogger()

				tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(version))
				if err != nil {
					return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = tel.Shutdown(shutdownCtx)
				}()
				if cfg.Telemetry.MetricsEnabled {
					if err := tel.StartMetricsServer(); err != nil {
						logger.Warn().Err(err).Msg("Metrics server unavailable")
					}
				}

				orch, err := buildOrchestrator(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				orch.WithMetrics(tel.Metrics).WithTracer(tel.Tracer).WithEvents(tel.Events)

				store, closeStore, err := openHistoryStore(ctx, cfg)
				if err != nil {
					return nil, err
				}
				defer closeStore()

				sink, closeSink := historySink(store, cfg, logger)
				defer closeSink()
				if sink != nil {
					orch.WithHistory(sink)
					if w, ok := sink.(*history.Writer); ok {
						w.WithMetrics(tel.Metrics)
					}
				}

				if store != nil {
					batch := &history.Batch{
						ID:          req.ID,
						Status:      history.BatchStatusRunning,
						Chained:     req.Chained,
						StopOnError: req.StopOnError,
						StepCount:   len(req.Steps),
						StartedAt:   time.Now().UTC(),
					}
					if err := store.CreateBatch(ctx, batch); err != nil {
						logger.Warn().Err(err).Msg("Failed to record batch")
					}
				}

				_ = tel.Events.PublishBatchStarted(req.ID, len(req.Steps), req.Chained)

				result, err := orch.RunBatch(ctx, req, tbl)
				if err != nil {
					_ = tel.Events.PublishBatchAborted(req.ID, err.Error())
					return nil, err
				}

				_ = tel.Events.PublishBatchCompleted(result.ID, string(result.Status), result.Elapsed)

				if store != nil {
					if err := store.UpdateBatchStatus(ctx, result.ID, history.BatchStatus(result.Status)); err != nil {
						logger.Warn().Err(err).Msg("Failed to update batch status")
					}
				}

				return result, nil
			})
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "CSV file or configured dataset name")
	cmd.Flags().BoolVar(&chained, "chained", false, "thread tabular results into the next step")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "end the batch at the first failed step")
	cmd.Flags().DurationVar(&budget, "budget", 0, "per-step execution budget (default from config)")

	return cmd
}

// runBatch executes fn and renders its result.
func runBatch(req engine.BatchRequest, dataset string, rows int, fn func() (*engine.BatchResult, error)) error {
	log.Info().
		Str("dataset", dataset).
		Int("rows", rows).
		Int("steps", len(req.Steps)).
		Bool("chained", req.Chained).
		Bool("stop_on_error", req.StopOnError).
		Msg("Running batch")

	result, err := fn()
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("batch %s: %s (%s)\n", result.ID, result.Status, result.Elapsed.Round(time.Millisecond))
		for i := range result.Steps {
			step := result.Steps[i]
			fmt.Printf("--- step %d: %s\n", step.Index, step.Status)
			if err := printStep(&step); err != nil {
				return err
			}
		}
	}

	if result.Status != engine.BatchAllSucceeded {
		return fmt.Errorf("batch finished with status %s", result.Status)
	}
	return nil
}

// loadBatchFile parses the YAML batch description into a request.
func loadBatchFile(path string) (engine.BatchRequest, string, error) {
	var req engine.BatchRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, "", fmt.Errorf("failed to read batch file: %w", err)
	}

	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return req, "", fmt.Errorf("failed to parse batch file: %w", err)
	}

	if len(bf.Steps) == 0 {
		return req, "", fmt.Errorf("batch file has no steps")
	}

	req.ID = bf.ID
	req.Chained = bf.Chained
	req.StopOnError = bf.StopOnError
	if bf.Budget != "" {
		d, err := time.ParseDuration(bf.Budget)
		if err != nil {
			return req, "", fmt.Errorf("invalid budget %q: %w", bf.Budget, err)
		}
		req.Budget = d
	}

	for i, fs := range bf.Steps {
		step := engine.StepRequest{Query: fs.Query, Code: fs.Code}
		if step.Code == "" && fs.CodeFile != "" {
			code, err := os.ReadFile(fs.CodeFile)
			if err != nil {
				return req, "", fmt.Errorf("step %d: failed to read code file: %w", i, err)
			}
			step.Code = string(code)
		}
		if step.Code == "" && step.Query == "" {
			return req, "", fmt.Errorf("step %d has neither query nor code", i)
		}
		req.Steps = append(req.Steps, step)
	}

	return req, bf.Dataset, nil
}
