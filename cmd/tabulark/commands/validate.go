package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a candidate snippet without running it",
		Long: `Validate a candidate snippet against the policy surface.

This command checks:
  - Syntax validity
  - The closed call surface (allow-list minus deny-list)
  - Forbidden imports, attributes, and constructs
  - Suspicious literals (paths, endpoints)
  - OPA/rego pattern rules

Nothing is executed; a rejected snippet exits non-zero with the full
violation list.`,
		Example: `  # Validate a snippet file
  tabulark validate query.star

  # Validate inline code
  tabulark validate --code 'result = df.num_rows()'

  # Validate from stdin
  cat query.star | tabulark validate -`,
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

			logger := componentLogger()
			validator, _, err := buildValidator(ctx, cfg, logger)
			if err != nil {
				return err
			}

			accepted, violations, err := validator.Validate(ctx, snippet)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			if len(violations) > 0 {
				if jsonOutput {
					if err := printJSON(map[string]interface{}{
						"accepted":   false,
						"violations": violations,
					}); err != nil {
						return err
					}
				} else {
					for _, v := range violations {
						fmt.Println(v.String())
					}
				}
				return fmt.Errorf("snippet rejected with %d violation(s)", len(violations))
			}

			log.Info().Int("bytes", len(accepted)).Msg("Snippet accepted")
			if jsonOutput {
				return printJSON(map[string]interface{}{
					"accepted": true,
					"code":     accepted,
				})
			}
			fmt.Println("accepted")
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "inline snippet instead of a file")

	return cmd
}

// resolveSnippet picks the snippet source: --code, a file argument, or
// stdin when the argument is "-".
func resolveSnippet(code string, args []string) (string, error) {
	if code != "" {
		return code, nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("no snippet given: pass a file, '-', or --code")
	}
	if args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read snippet: %w", err)
	}
	return string(data), nil
}
