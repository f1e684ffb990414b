package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgov/pipeline"
	"github.com/rustyeddy/riskgov/policy"
	"github.com/rustyeddy/riskgov/recovery"
)

// evaluate runs a read-only cycle and fails when the named stage did.
func evaluate(cmd *cobra.Command, rc *RootConfig, stage string) (*pipeline.Outcome, error) {
	r, err := rc.runner()
	if err != nil {
		return nil, err
	}
	o, err := r.Evaluate(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := o.Failed[stage]; err != nil {
		return o, fmt.Errorf("stage %s failed: %w", stage, err)
	}
	return o, nil
}

func yn(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newModeCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Show the global risk mode the next cycle would apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := evaluate(cmd, rc, pipeline.StageGlobalMode)
			if err != nil {
				return err
			}
			g := o.Global
			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "mode:\t%s\n", g.Mode)
			fmt.Fprintf(w, "suggested:\t%s\n", g.SuggestedMode)
			fmt.Fprintf(w, "changed:\t%s\n", yn(g.Changed))
			fmt.Fprintf(w, "pinned:\t%s\n", yn(g.Pinned))
			fmt.Fprintf(w, "pf 1d/7d/30d/90d/mtd:\t%.2f / %.2f / %.2f / %.2f / %.2f\n", g.PF1D, g.PF7D, g.PF30D, g.PF90D, g.PFMTD)
			fmt.Fprintf(w, "trades 7d/30d:\t%d / %d\n", g.Trades7D, g.Trades30D)
			fmt.Fprintf(w, "loss streak:\t%d\n", g.LossStreak)
			fmt.Fprintf(w, "clean closes 24h:\t%d\n", g.CleanCloses24h)
			fmt.Fprintf(w, "last change:\t%s\n", g.LastModeChangeTS.Format("2006-01-02 15:04:05Z07:00"))
			if err := w.Flush(); err != nil {
				return err
			}
			if len(g.Reasons) > 0 {
				fmt.Fprintln(out(cmd), "reasons:")
				for _, r := range g.Reasons {
					fmt.Fprintf(out(cmd), "  - %s\n", r)
				}
			}
			return nil
		},
	}
}

func newQuarantineCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "quarantine",
		Short: "Show quarantined symbols and window loss attribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := evaluate(cmd, rc, pipeline.StageQuarantine)
			if err != nil {
				return err
			}
			q := o.Quarantine
			state := "disabled"
			if q.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(out(cmd), "mode %s, quarantine %s, window losses $%.2f\n", q.Mode, state, q.WindowLossUSD)

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tPNL_USD\tCONTRIB_%\tQUARANTINED\tCOOLDOWN_UNTIL")
			for _, r := range q.Records {
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\n", r.Symbol, r.PnLUSD, r.ContributionPct,
					r.QuarantinedAt.Format("2006-01-02 15:04"), r.CooldownUntil.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(q.Records) == 0 {
				fmt.Fprintln(out(cmd), "(no quarantined symbols)")
			}

			if len(q.Contributors) > 0 {
				fmt.Fprintln(out(cmd), "\ncontributors:")
				w = tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
				for _, c := range q.Contributors {
					fmt.Fprintf(w, "  %s\t%.2f\t%.2f%%\n", c.Symbol, c.PnLUSD, c.ContributionPct)
				}
				return w.Flush()
			}
			return nil
		},
	}
}

func newRampCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "ramp",
		Short: "Show recovery ramp gates, score and hysteresis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := evaluate(cmd, rc, pipeline.StageRecovery)
			if err != nil {
				return err
			}
			s := o.Recovery
			fmt.Fprintf(out(cmd), "capital mode %s, recovery %s, score %.2f, ok ticks %d/%d\n",
				s.CapitalMode, s.RecoveryMode, s.RecoveryScore, s.Hysteresis.OKTicks, s.Hysteresis.NeededOKTicks)

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GATE\tPASS\tDETAIL")
			for _, g := range recovery.Gates() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g, yn(s.Gates[g]), s.GateDetails[g])
			}
			if err := w.Flush(); err != nil {
				return err
			}

			a := s.Allowances
			if a.AllowRecoveryTrading {
				fmt.Fprintf(out(cmd), "recovery lane open: %s (max positions %d, risk mult cap %.2f)\n",
					strings.Join(a.AllowedSymbols, ", "), a.MaxPositions, a.RiskMultCap)
			} else {
				fmt.Fprintln(out(cmd), "recovery lane closed")
			}
			return nil
		},
	}
}

func newEarnBackCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "earnback",
		Short: "Show earn-back ladder stages for demoted symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := evaluate(cmd, rc, pipeline.StageEarnBack)
			if err != nil {
				return err
			}
			if len(o.EarnBack.Symbols) == 0 {
				fmt.Fprintln(out(cmd), "(no symbols on the earn-back ladder)")
				return nil
			}

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tSTAGE\tCLOSES\tPF\tWIN\tMAX_DD\tCORE\tEXPL\tREC\tNOTE")
			syms := make([]string, 0, len(o.EarnBack.Symbols))
			for s := range o.EarnBack.Symbols {
				syms = append(syms, s)
			}
			sort.Strings(syms)
			for _, sym := range syms {
				st := o.EarnBack.Symbols[sym]
				note := st.RejectedTransition
				if st.Amnesty {
					note = "amnesty"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%s\t%s\t%s\t%s\n", sym, st.RecoveryStage,
					st.Window.N, st.Window.PF, st.Window.WinRate, st.Window.MaxDrawdown,
					yn(st.AllowCore), yn(st.AllowExploration), yn(st.AllowRecovery), note)
			}
			return w.Flush()
		},
	}
}

func newPolicyCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "policy [SYMBOL]",
		Short: "Show the per-symbol lane policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := evaluate(cmd, rc, pipeline.StagePolicy)
			if err != nil {
				return err
			}
			doc := o.Policy

			if len(args) == 1 {
				p, ok := doc.Lookup(args[0])
				if !ok {
					return fmt.Errorf("no policy for symbol %s", args[0])
				}
				return printPolicy(cmd, p)
			}

			fmt.Fprintf(out(cmd), "global mode %s, %d symbols\n", doc.GlobalMode, len(doc.Symbols))
			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tSTATE\tSTANCE\tSAMPLE\tCORE\tEXPL\tREC\tWEIGHT")
			syms := make([]string, 0, len(doc.Symbols))
			for s := range doc.Symbols {
				syms = append(syms, s)
			}
			sort.Strings(syms)
			for _, sym := range syms {
				p := doc.Symbols[sym]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.4f\n", sym, p.State, p.Stance, p.SampleStage,
					lane(p.AllowCore, p.CapsByLane.Core.RiskMultCap, p.CapsByLane.Core.MaxPositions),
					lane(p.AllowExploration, p.CapsByLane.Exploration.RiskMultCap, p.CapsByLane.Exploration.MaxPositions),
					lane(p.AllowRecovery, p.CapsByLane.Recovery.RiskMultCap, p.CapsByLane.Recovery.MaxPositions),
					p.Weight)
			}
			return w.Flush()
		},
	}
}

func lane(allowed bool, risk float64, positions int) string {
	if !allowed {
		return "-"
	}
	return fmt.Sprintf("%.2fx%d", risk, positions)
}

func printPolicy(cmd *cobra.Command, p policy.Policy) error {
	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "symbol:\t%s\n", p.Symbol)
	fmt.Fprintf(w, "state:\t%s\n", p.State)
	fmt.Fprintf(w, "stance:\t%s\n", p.Stance)
	fmt.Fprintf(w, "sample stage:\t%s\n", p.SampleStage)
	fmt.Fprintf(w, "quarantined:\t%s\n", yn(p.Quarantined))
	promo := yn(p.PromotionActive)
	if p.PromotionExpiry != nil {
		promo += " until " + p.PromotionExpiry.Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "promotion:\t%s\n", promo)
	fmt.Fprintf(w, "core:\t%s\n", lane(p.AllowCore, p.CapsByLane.Core.RiskMultCap, p.CapsByLane.Core.MaxPositions))
	fmt.Fprintf(w, "exploration:\t%s\n", lane(p.AllowExploration, p.CapsByLane.Exploration.RiskMultCap, p.CapsByLane.Exploration.MaxPositions))
	fmt.Fprintf(w, "recovery:\t%s\n", lane(p.AllowRecovery, p.CapsByLane.Recovery.RiskMultCap, p.CapsByLane.Recovery.MaxPositions))
	fmt.Fprintf(w, "weight:\t%.4f\n", p.Weight)
	if err := w.Flush(); err != nil {
		return err
	}

	keys := make([]string, 0, len(p.Reasons))
	for k := range p.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out(cmd), "reasons:")
	for _, k := range keys {
		fmt.Fprintf(out(cmd), "  %s: %s\n", k, p.Reasons[k])
	}
	return nil
}
