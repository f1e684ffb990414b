package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgov/config"
	"github.com/rustyeddy/riskgov/internal/logger"
	"github.com/rustyeddy/riskgov/pipeline"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

// RootConfig holds the persistent flags shared by every command.
type RootConfig struct {
	ConfigPath string
	EnvFile    string
	DataDir    string
	LogLevel   string
	Pretty     bool

	// Now overrides the clock; tests pin it.
	Now func() time.Time
}

// load resolves the effective config: file (or defaults), then .env and
// RISKGOV_* overrides, then command-line flags.
func (rc *RootConfig) load() (*config.Config, error) {
	cfg := config.Default()
	if rc.ConfigPath != "" {
		c, err := config.LoadFromFile(rc.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(rc.EnvFile); err != nil {
		return nil, err
	}
	if rc.DataDir != "" {
		cfg.SetDataDir(rc.DataDir)
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.Pretty {
		cfg.Log.Pretty = true
	}
	return cfg, cfg.Validate()
}

func (rc *RootConfig) logger(cfg *config.Config) zerolog.Logger {
	return logger.New(cfg.Log).With().Str("app", "riskgov").Logger()
}

// runner builds a pipeline runner without journal or metrics.
func (rc *RootConfig) runner() (*pipeline.Runner, error) {
	cfg, err := rc.load()
	if err != nil {
		return nil, err
	}
	return &pipeline.Runner{Config: cfg, Log: rc.logger(cfg), Now: rc.Now}, nil
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&RootConfig{})
}

func newRootCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "riskgov",
		Short: "Risk and capital governance for the trading loop",
		Long: `riskgov derives the global risk mode, quarantines loss contributors,
gates the recovery lane, walks demoted symbols up the earn-back ladder and
writes the per-symbol lane policy the trading loop obeys.

Diagnostic commands (mode, quarantine, ramp, earnback, policy) evaluate
against current inputs and persisted state without writing anything.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.EnvFile, "env-file", ".env", "Optional .env file with RISKGOV_* overrides")
	cmd.PersistentFlags().StringVar(&rc.DataDir, "data-dir", "", "Data directory holding inputs/ and state/")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&rc.Pretty, "pretty", false, "Human-readable console logs")

	cmd.AddCommand(
		newModeCmd(rc),
		newQuarantineCmd(rc),
		newRampCmd(rc),
		newEarnBackCmd(rc),
		newPolicyCmd(rc),
		newCycleCmd(rc),
		newDaemonCmd(rc),
		newJournalCmd(rc),
		newConfigCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "riskgov %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
