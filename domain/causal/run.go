package causal

import (
	"transitcausal/domain/core"
)

// AnalysisRun is the full record of one pipeline execution: the
// identification verdicts, the effect estimates, the refutation evidence,
// the counterfactual projections, and their uncertainty intervals.
// Persisted as a unit so every downstream number can be traced back to a
// run ID and panel fingerprint.
type AnalysisRun struct {
	ID        core.RunID       `json:"run_id" db:"run_id"`
	CreatedAt core.Timestamp   `json:"created_at" db:"created_at"`
	Treatment core.VariableKey `json:"treatment" db:"treatment"`
	PanelHash core.PanelHash   `json:"panel_hash" db:"panel_hash"`
	Seed      int64            `json:"seed" db:"seed"`

	Estimands       []IdentifiedEstimand    `json:"estimands"`
	Estimates       []EffectEstimate        `json:"estimates"`
	Refutations     []RefutationResult      `json:"refutations"`
	Counterfactuals []CounterfactualOutcome `json:"counterfactuals"`
	Intervals       []ScenarioInterval      `json:"intervals"`

	// Warnings carries non-fatal run diagnostics: outcomes skipped as not
	// identifiable, implausible implied elasticities, and an unavailable
	// uncertainty step.
	Warnings []string `json:"warnings,omitempty"`
}

// NewAnalysisRun stamps a fresh run record.
func NewAnalysisRun(treatment core.VariableKey, hash core.PanelHash, seed int64) *AnalysisRun {
	return &AnalysisRun{
		ID:        core.RunID(core.NewID()),
		CreatedAt: core.Now(),
		Treatment: treatment,
		PanelHash: hash,
		Seed:      seed,
	}
}

// EstimateFor returns the estimate for one outcome and method.
func (r *AnalysisRun) EstimateFor(outcome core.VariableKey, method EstimatorMethod) (EffectEstimate, bool) {
	for _, e := range r.Estimates {
		if e.Outcome == outcome && e.Method == method {
			return e, true
		}
	}
	return EffectEstimate{}, false
}

// RefutationsPassed counts passing tests out of the total run.
func (r *AnalysisRun) RefutationsPassed() (passed, total int) {
	for _, res := range r.Refutations {
		total++
		if res.Passed {
			passed++
		}
	}
	return passed, total
}

// RunSummary is the listing projection of an AnalysisRun.
type RunSummary struct {
	ID        core.RunID       `json:"run_id" db:"run_id"`
	CreatedAt core.Timestamp   `json:"created_at" db:"created_at"`
	Treatment core.VariableKey `json:"treatment" db:"treatment"`
	PanelHash core.PanelHash   `json:"panel_hash" db:"panel_hash"`
	Outcomes  int              `json:"outcomes" db:"outcomes"`
}
