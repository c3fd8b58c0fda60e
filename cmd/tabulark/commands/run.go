package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tabulark/tabulark/pkg/engine"
	"github.com/tabulark/tabulark/pkg/table"
)

func newRunCommand() *cobra.Command {
	var (
		dataset string
		code    string
		query   string
		budget  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Validate and run one snippet against a dataset",
		Long: `Validate a candidate snippet and, when accepted, run it in the
sandbox against a CSV dataset. The result is normalized into one of the
closed shapes (Scalar, Series, Table, Mapping) before printing.

The dataset is bound under the configured table name (default "df").`,
		Example: `  # Run a snippet file against a CSV
  tabulark run query.star --dataset sales.csv

  # Run inline code against a configured dataset
  tabulark run --dataset sales --code 'result = df.num_rows()'

  # Tighten the execution budget
  tabulark run query.star --dataset sales.csv --budget 500ms`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			snippet, err := resolveSnippet(code, args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if budget == 0 {
				budget = cfg.Engine.Budget
			}

			logger := componentLogger()
			orch, err := buildOrchestrator(ctx, cfg, logger)
			if err != nil {
				return err
			}

			tbl, err := loadDataset(cfg, dataset)
			if err != nil {
				return err
			}

			log.Info().
				Str("dataset", dataset).
				Int("rows", tbl.NumRows()).
				Dur("budget", budget).
				Msg("Running snippet")

			step := orch.Run(ctx, query, snippet, tbl, budget)

			if err := printStep(step); err != nil {
				return err
			}
			if !step.Success {
				return fmt.Errorf("step %s", step.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "CSV file or configured dataset name (required)")
	cmd.Flags().StringVar(&code, "code", "", "inline snippet instead of a file")
	cmd.Flags().StringVarP(&query, "query", "q", "", "natural-language query the snippet answers")
	cmd.Flags().DurationVar(&budget, "budget", 0, "execution time budget (default from config)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

// printStep renders one step result to stdout.
func printStep(step *engine.BatchStep) error {
	if jsonOutput {
		return printJSON(step)
	}

	for _, v := range step.Violations {
		fmt.Println(v.String())
	}

	if step.Outcome == nil {
		fmt.Printf("[%d] %s (%s)\n", step.Index, step.Status, step.Elapsed.Round(time.Millisecond))
		return nil
	}

	o := step.Outcome
	switch o.Shape {
	case engine.ShapeTable:
		printTable(o.Table)
		if o.Truncated {
			fmt.Printf("(truncated to %d of %d rows)\n", o.Table.NumRows(), o.TotalRows)
		}
	case engine.ShapeSeries:
		keys := o.Series.Keys()
		vals := o.Series.Values()
		fmt.Printf("%s:\n", o.Series.Name())
		for i := range keys {
			fmt.Printf("  %s\t%v\n", keys[i], vals[i])
		}
	case engine.ShapeScalar:
		fmt.Printf("%v\n", o.Scalar)
	case engine.ShapeMapping:
		if err := printJSON(o.Mapping); err != nil {
			return err
		}
	case engine.ShapeError:
		fmt.Printf("error [%s]: %s\n", o.ErrClass, o.ErrMessage)
	}
	return nil
}

// printTable renders every cell of a table, header first.
func printTable(tbl *table.Table) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(tbl.Columns(), "\t"))
	for i := 0; i < tbl.NumRows(); i++ {
		row, err := tbl.Row(i)
		if err != nil {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}
