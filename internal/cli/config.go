package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgov/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage riskgov configuration files.

Examples:
  riskgov config init -o riskgov.yaml
  riskgov config validate -f riskgov.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out(cmd), "✓ Created default configuration: %s\n", output)
			fmt.Fprintf(out(cmd), "  run with: riskgov --config %s cycle\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "riskgov.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(out(cmd), "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out(cmd), "  Inputs:   %s\n", cfg.Paths.Inputs)
			fmt.Fprintf(out(cmd), "  State:    %s\n", cfg.Paths.State)
			fmt.Fprintf(out(cmd), "  Risk-off: %v\n", cfg.RiskOffModes)
			fmt.Fprintf(out(cmd), "  Journal:  %s\n", cfg.Journal.Type)
			fmt.Fprintf(out(cmd), "  Schedule: %s\n", cfg.Schedule.Cron)
			if cfg.GlobalMode.PinnedMode != "" {
				fmt.Fprintf(out(cmd), "  Pinned:   %s\n", cfg.GlobalMode.PinnedMode)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
