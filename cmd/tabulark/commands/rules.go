package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the loaded policy rules",
		Long: `List the policy rules the validator enforces: the built-in rules
plus anything loaded from the configured rule paths (rego, JSON, YAML).`,
		Example: `  # List rules with the default policy surface
  tabulark rules

  # List rules including a custom rule directory
  tabulark rules -c tabulark.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			_, patterns, err := buildValidator(ctx, cfg, componentLogger())
			if err != nil {
				return err
			}

			rules := patterns.ListRules()
			if jsonOutput {
				return printJSON(rules)
			}

			for _, r := range rules {
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-32s %-8s %s\n", r.Name, state, r.Description)
			}
			fmt.Printf("%d rule(s)\n", len(rules))
			return nil
		},
	}

	return cmd
}
