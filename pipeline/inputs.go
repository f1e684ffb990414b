package pipeline

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/riskgov/config"
	"github.com/rustyeddy/riskgov/earnback"
	"github.com/rustyeddy/riskgov/globalmode"
	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/recovery"
	"github.com/rustyeddy/riskgov/snapshot"
)

// Inputs are the upstream documents read at the start of a cycle.
type Inputs struct {
	PF         snapshot.Result[snapshot.PFTimeSeries]
	Exec       snapshot.Result[snapshot.ExecQuality]
	Drift      snapshot.Result[snapshot.Drift]
	Promotions snapshot.Result[snapshot.Promotions]
	Demotions  snapshot.Result[snapshot.Demotions]
	Portfolio  snapshot.Result[snapshot.Portfolio]
	Closes     snapshot.Result[snapshot.CloseLog]
}

// LoadInputs reads every input. Absent or broken documents are reported on
// their Result and never abort the load.
func LoadInputs(cfg *config.Config, now time.Time) Inputs {
	p := cfg.Paths
	age := p.MaxInputAge.Duration
	return Inputs{
		PF:         snapshot.Load[snapshot.PFTimeSeries](p.Input(store.PFTimeSeriesFile), cfg.Recovery.MaxSnapshotAge.Duration, now),
		Exec:       snapshot.Load[snapshot.ExecQuality](p.Input(store.ExecQualityFile), age, now),
		Drift:      snapshot.Load[snapshot.Drift](p.Input(store.DriftFile), age, now),
		Promotions: snapshot.Load[snapshot.Promotions](p.Input(store.PromotionsFile), age, now),
		Demotions:  snapshot.Load[snapshot.Demotions](p.Input(store.DemotionsFile), age, now),
		Portfolio:  snapshot.Load[snapshot.Portfolio](p.Input(store.PortfolioFile), age, now),
		Closes:     snapshot.LoadCloses(p.Input(store.ClosesFile)),
	}
}

func (in Inputs) pf() snapshot.PFTimeSeries { return in.PF.Or(snapshot.PFTimeSeries{}) }
func (in Inputs) exec() snapshot.ExecQuality { return in.Exec.Or(snapshot.ExecQuality{}) }
func (in Inputs) drift() snapshot.Drift { return in.Drift.Or(snapshot.Drift{}) }
func (in Inputs) promotions() snapshot.Promotions { return in.Promotions.Or(snapshot.Promotions{}) }
func (in Inputs) demotions() snapshot.Demotions { return in.Demotions.Or(snapshot.Demotions{}) }
func (in Inputs) portfolio() snapshot.Portfolio { return in.Portfolio.Or(snapshot.Portfolio{}) }
func (in Inputs) closes() snapshot.CloseLog { return in.Closes.Or(snapshot.CloseLog{}) }

// logStatus reports non-ok inputs once per cycle.
func (in Inputs) logStatus(log zerolog.Logger) {
	type entry struct {
		status snapshot.Status
		path   string
		err    error
	}
	for _, e := range []entry{
		{in.PF.Status, in.PF.Path, in.PF.Err},
		{in.Exec.Status, in.Exec.Path, in.Exec.Err},
		{in.Drift.Status, in.Drift.Path, in.Drift.Err},
		{in.Promotions.Status, in.Promotions.Path, in.Promotions.Err},
		{in.Demotions.Status, in.Demotions.Path, in.Demotions.Err},
		{in.Portfolio.Status, in.Portfolio.Path, in.Portfolio.Err},
		{in.Closes.Status, in.Closes.Path, in.Closes.Err},
	} {
		if e.status == snapshot.StatusOK {
			continue
		}
		log.Warn().Str("path", e.path).Str("status", string(e.status)).Err(e.err).Msg("input degraded, using conservative default")
	}

	for _, ee := range append(in.exec().Skipped, in.drift().Skipped...) {
		log.Warn().Str("symbol", ee.Symbol).Err(ee.Err).Msg("classifier entry skipped")
	}

	cl := in.closes()
	for _, re := range cl.Errors {
		log.Debug().Int("line", re.Line).Err(re.Err).Msg("close record skipped")
	}
	if cl.Skipped > 0 {
		log.Info().Int("skipped", cl.Skipped).Msg("malformed close records skipped")
	}
}

// Previous is the state persisted by earlier cycles.
type Previous struct {
	Global         snapshot.Result[globalmode.State]
	Memory         *globalmode.Memory
	MemoryErr      error
	Quarantine     snapshot.Result[quarantine.State]
	History        []quarantine.Event
	HistorySkipped int
	HistoryErr     error
	Recovery       snapshot.Result[recovery.State]
	EarnBack       snapshot.Result[earnback.Document]
}

// LoadPrevious reads the persisted state. A missing document is the
// first-run case and is not an error.
func LoadPrevious(cfg *config.Config, now time.Time) Previous {
	p := cfg.Paths
	prev := Previous{
		Global:     snapshot.Load[globalmode.State](p.StateFile(store.GlobalStateFile), 0, now),
		Quarantine: snapshot.Load[quarantine.State](p.StateFile(store.QuarantineStateFile), 0, now),
		Recovery:   snapshot.Load[recovery.State](p.StateFile(store.RecoveryStateFile), 0, now),
		EarnBack:   snapshot.Load[earnback.Document](p.StateFile(store.EarnBackStateFile), 0, now),
	}

	var mem globalmode.Memory
	switch err := store.ReadJSON(p.StateFile(store.GlobalMemoryFile), &mem); {
	case err == nil:
		prev.Memory = &mem
	case !errors.Is(err, os.ErrNotExist):
		prev.MemoryErr = err
	}

	h := quarantine.History{Path: p.StateFile(store.QuarantineHistoryFile)}
	prev.History, prev.HistorySkipped, prev.HistoryErr = h.Load()
	return prev
}
