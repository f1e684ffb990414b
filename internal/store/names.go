package store

import "sort"

// Document file names inside the state directory.
const (
	GlobalStateFile       = "global_risk_state.json"
	GlobalMemoryFile      = "global_mode_memory.json"
	QuarantineStateFile   = "quarantine_state.json"
	QuarantineHistoryFile = "quarantine_history.jsonl"
	RecoveryStateFile     = "recovery_ramp_state.json"
	EarnBackStateFile     = "earnback_state.json"
	SymbolPolicyFile      = "symbol_policy.json"
)

// Input file names inside the inputs directory.
const (
	PFTimeSeriesFile = "pf_timeseries.json"
	ExecQualityFile  = "exec_quality.json"
	DriftFile        = "drift.json"
	PromotionsFile   = "promotions.json"
	DemotionsFile    = "demotions.json"
	PortfolioFile    = "portfolio.json"
	ClosesFile       = "closes.jsonl"
)

// StateDocuments maps the short names used by the CLI and HTTP API to the
// persisted JSON documents.
var StateDocuments = map[string]string{
	"global":     GlobalStateFile,
	"memory":     GlobalMemoryFile,
	"quarantine": QuarantineStateFile,
	"recovery":   RecoveryStateFile,
	"earnback":   EarnBackStateFile,
	"policy":     SymbolPolicyFile,
}

// StateNames lists the keys of StateDocuments in sorted order.
func StateNames() []string {
	names := make([]string, 0, len(StateDocuments))
	for n := range StateDocuments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
