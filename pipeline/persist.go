package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/quarantine"
)

// persist writes the documents of every stage that completed. A failed
// stage leaves its previous document in place. It returns the number of
// writes that failed.
func (r *Runner) persist(out *Outcome, log zerolog.Logger) int {
	p := r.Config.Paths
	failed := 0
	write := func(name string, v any) {
		path := p.StateFile(name)
		if err := store.WriteJSON(path, v); err != nil {
			failed++
			log.Error().Err(err).Str("path", path).Msg("persist failed")
		}
	}

	if out.Succeeded(StageGlobalMode) {
		write(store.GlobalStateFile, out.Global)
		if out.Memory != nil {
			write(store.GlobalMemoryFile, out.Memory)
		}
	}

	if out.Succeeded(StageQuarantine) {
		// history first: the state document is derived from it
		h := quarantine.History{Path: p.StateFile(store.QuarantineHistoryFile)}
		if err := h.Append(out.QuarantineEvents...); err != nil {
			failed++
			log.Error().Err(err).Str("path", h.Path).Msg("persist failed")
		}
		write(store.QuarantineStateFile, out.Quarantine)
	}

	if out.Succeeded(StageRecovery) {
		write(store.RecoveryStateFile, out.Recovery)
	}
	if out.Succeeded(StageEarnBack) {
		write(store.EarnBackStateFile, out.EarnBack)
	}
	if out.Succeeded(StagePolicy) {
		write(store.SymbolPolicyFile, out.Policy)
	}
	return failed
}
