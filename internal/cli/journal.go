package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgov/journal"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite audit journal",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "Number of rows, newest first")

	open := func() (*journal.SQLite, error) {
		cfg, err := rc.load()
		if err != nil {
			return nil, err
		}
		if cfg.Journal.Type != "sqlite" {
			return nil, fmt.Errorf("journal queries need journal.type sqlite (configured: %q)", cfg.Journal.Type)
		}
		return journal.NewSQLite(cfg.Journal.DBPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cycles",
		Short: "List recent cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			rows, err := j.ListCycles(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CYCLE\tSTARTED\tMODE\tSUGGESTED\tRECOVERY\tTICKS\tQUAR\tSYMBOLS\tBLOCKED\tFAILED")
			for _, c := range rows {
				failed := c.FailedStages
				if failed == "" {
					failed = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n", c.CycleID, c.StartedAt.Format(time.RFC3339),
					c.Mode, c.SuggestedMode, c.RecoveryMode, c.OKTicks, c.Quarantined, c.Symbols, c.Blocked, failed)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "modes",
		Short: "List applied global mode changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			rows, err := j.ListModeChanges(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TS\tFROM\tTO\tREASONS")
			for _, m := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.TS.Format(time.RFC3339), m.From, m.To, m.Reasons)
			}
			return w.Flush()
		},
	})

	return cmd
}
