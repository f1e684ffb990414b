//go:build blackbox

package blackbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeDeRiskInputs seeds a world where PF 7d sits in the de_risk band and
// DOGE carries most of the window losses.
func writeDeRiskInputs(t *testing.T, inputs string) {
	t.Helper()
	now := time.Now().UTC()
	ago := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }

	writeFile(t, inputs, "pf_timeseries.json", fmt.Sprintf(`{
  "generated_at": %q,
  "global": {"pf_1d": 0.8, "pf_7d": 0.93, "pf_30d": 1.02, "pf_90d": 1.1, "pf_mtd": 0.97,
             "trades_7d": 40, "trades_30d": 150, "loss_streak": 2},
  "symbols": {
    "BTC":  {"pf_7d": 1.3, "pf_30d": 1.25, "trades_7d": 12, "trades_30d": 60, "trades_total": 400},
    "DOGE": {"pf_7d": 0.4, "pf_30d": 0.6, "trades_7d": 9, "trades_30d": 30, "trades_total": 90}
  }
}`, ago(time.Minute)))

	var lines []string
	add := func(d time.Duration, sym string, pnl float64) {
		lines = append(lines, fmt.Sprintf(`{"ts": %q, "symbol": %q, "lane": "core", "pnl_usd": %g}`, ago(d), sym, pnl))
	}
	add(5*24*time.Hour, "DOGE", -300)
	add(4*24*time.Hour, "BTC", 120)
	add(3*24*time.Hour, "BTC", -20)
	writeFile(t, inputs, "closes.jsonl", strings.Join(lines, "\n")+"\n")
}
