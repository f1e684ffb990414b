package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgov/config"
	"github.com/rustyeddy/riskgov/internal/metrics"
	"github.com/rustyeddy/riskgov/internal/scheduler"
	"github.com/rustyeddy/riskgov/internal/server"
	"github.com/rustyeddy/riskgov/journal"
	"github.com/rustyeddy/riskgov/pipeline"
)

// fullRunner wires journal and metrics into a runner. The returned close
// func releases the journal.
func (rc *RootConfig) fullRunner() (*pipeline.Runner, func(), error) {
	cfg, err := rc.load()
	if err != nil {
		return nil, nil, err
	}
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	log := rc.logger(cfg)
	r := &pipeline.Runner{
		Config:  cfg,
		Log:     log,
		Journal: j,
		Metrics: metrics.New(),
		Now:     rc.Now,
	}
	closer := func() {
		if err := j.Close(); err != nil {
			log.Warn().Err(err).Msg("close journal")
		}
	}
	return r, closer, nil
}

func printReport(cmd *cobra.Command, rep *pipeline.Report) {
	blocked := "none"
	if len(rep.Blocked) > 0 {
		blocked = strings.Join(rep.Blocked, ", ")
	}
	fmt.Fprintf(out(cmd), "cycle %s\n", rep.CycleID)
	fmt.Fprintf(out(cmd), "  mode:          %s (changed: %s)\n", rep.Mode, yn(rep.Changed))
	fmt.Fprintf(out(cmd), "  quarantined:   %s\n", blocked)
	fmt.Fprintf(out(cmd), "  recovery:      %s (ok ticks %d)\n", rep.RecoveryMode, rep.OKTicks)
	fmt.Fprintf(out(cmd), "  symbols:       %d\n", rep.Symbols)
	if rep.SkippedRecords > 0 {
		fmt.Fprintf(out(cmd), "  skipped:       %d malformed records\n", rep.SkippedRecords)
	}
	if len(rep.FailedStages) > 0 {
		fmt.Fprintf(out(cmd), "  FAILED:        %s\n", strings.Join(rep.FailedStages, ", "))
	}
	if rep.PersistErrors > 0 {
		fmt.Fprintf(out(cmd), "  persist errors: %d\n", rep.PersistErrors)
	}
}

// reportErr turns a degraded cycle into a non-zero exit.
func reportErr(rep *pipeline.Report) error {
	if len(rep.FailedStages) > 0 {
		return fmt.Errorf("cycle %s: stages failed: %s", rep.CycleID, strings.Join(rep.FailedStages, ", "))
	}
	if rep.PersistErrors > 0 {
		return fmt.Errorf("cycle %s: %d documents not persisted", rep.CycleID, rep.PersistErrors)
	}
	return nil
}

func newCycleCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one governance cycle and persist every document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeJournal, err := rc.fullRunner()
			if err != nil {
				return err
			}
			defer closeJournal()

			rep, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd, rep)
			return reportErr(rep)
		},
	}
}

// cycleJob adapts the runner to the scheduler.
type cycleJob struct {
	ctx    context.Context
	runner *pipeline.Runner
}

func (j *cycleJob) Name() string { return "governance_cycle" }

func (j *cycleJob) Run() error {
	rep, err := j.runner.Run(j.ctx)
	if err != nil {
		return err
	}
	return reportErr(rep)
}

func newDaemonCmd(rc *RootConfig) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run cycles on the configured schedule, optionally serving the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeJournal, err := rc.fullRunner()
			if err != nil {
				return err
			}
			defer closeJournal()
			if cmd.Flags().Changed("port") {
				r.Config.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, r, r.Config, r.Log)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port for the read-only API (0 disables)")
	return cmd
}

func runDaemon(ctx context.Context, r *pipeline.Runner, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	job := &cycleJob{ctx: ctx, runner: r}
	if err := sched.AddJob(cfg.Schedule.Cron, job); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule.Cron, err)
	}

	var srv *server.Server
	errc := make(chan error, 1)
	if cfg.Server.Port > 0 {
		srv = server.New(server.Config{
			Port:     cfg.Server.Port,
			Log:      log,
			StateDir: cfg.Paths.State,
			Gatherer: r.Metrics.Registry,
		})
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	// first cycle right away, then on schedule
	if err := sched.RunNow(job); err != nil {
		log.Error().Err(err).Msg("initial cycle degraded")
	}
	sched.Start()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case runErr = <-errc:
		log.Error().Err(runErr).Msg("HTTP server failed")
	}

	sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown")
		}
	}
	return runErr
}
