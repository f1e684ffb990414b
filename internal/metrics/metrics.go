// Package metrics exposes governance state as Prometheus series:
//
//   - riskgov_global_mode{mode}              1 for the active mode, 0 otherwise
//   - riskgov_recovery_ok_ticks              hysteresis counter
//   - riskgov_recovery_score                 weighted gate score
//   - riskgov_quarantined_symbols            active quarantine records
//   - riskgov_policy_symbols{state}          symbols per policy state
//   - riskgov_stage_failures_total{stage}    isolated stage failures
//   - riskgov_skipped_records_total          malformed close records skipped
//   - riskgov_cycle_duration_seconds         cycle wall time
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/riskgov/risk"
)

type Config struct {
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"` // node_exporter textfile path
}

// Metrics owns its registry so tests and multiple runners never collide.
type Metrics struct {
	Registry *prometheus.Registry

	globalMode     *prometheus.GaugeVec
	okTicks        prometheus.Gauge
	recoveryScore  prometheus.Gauge
	quarantined    prometheus.Gauge
	policySymbols  *prometheus.GaugeVec
	stageFailures  *prometheus.CounterVec
	skippedRecords prometheus.Counter
	cycleDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		globalMode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskgov_global_mode",
				Help: "Global risk mode indicator, one labeled series per mode.",
			},
			[]string{"mode"},
		),
		okTicks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskgov_recovery_ok_ticks",
			Help: "Consecutive cycles with every recovery gate passing.",
		}),
		recoveryScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskgov_recovery_score",
			Help: "Weighted recovery gate score in [0,1].",
		}),
		quarantined: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskgov_quarantined_symbols",
			Help: "Symbols currently quarantined.",
		}),
		policySymbols: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskgov_policy_symbols",
				Help: "Symbols per policy state (active|restricted|blocked).",
			},
			[]string{"state"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgov_stage_failures_total",
				Help: "Pipeline stage failures isolated by the cycle driver.",
			},
			[]string{"stage"},
		),
		skippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskgov_skipped_records_total",
			Help: "Malformed close records skipped.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskgov_cycle_duration_seconds",
			Help:    "Wall time of one governance cycle.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	m.Registry.MustRegister(
		m.globalMode, m.okTicks, m.recoveryScore, m.quarantined,
		m.policySymbols, m.stageFailures, m.skippedRecords, m.cycleDuration,
	)
	return m
}

// SetMode flips the mode series so exactly one reads 1.
func (m *Metrics) SetMode(mode risk.Mode) {
	for _, md := range risk.Modes() {
		v := 0.0
		if md == mode {
			v = 1
		}
		m.globalMode.WithLabelValues(string(md)).Set(v)
	}
}

func (m *Metrics) SetRecovery(okTicks int, score float64) {
	m.okTicks.Set(float64(okTicks))
	m.recoveryScore.Set(score)
}

func (m *Metrics) SetQuarantined(n int) { m.quarantined.Set(float64(n)) }

// SetPolicyCounts replaces the per-state symbol counts.
func (m *Metrics) SetPolicyCounts(counts map[string]int) {
	m.policySymbols.Reset()
	for state, n := range counts {
		m.policySymbols.WithLabelValues(state).Set(float64(n))
	}
}

func (m *Metrics) StageFailed(stage string) { m.stageFailures.WithLabelValues(stage).Inc() }

func (m *Metrics) SkippedRecords(n int) {
	if n > 0 {
		m.skippedRecords.Add(float64(n))
	}
}

func (m *Metrics) ObserveCycle(seconds float64) { m.cycleDuration.Observe(seconds) }

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
