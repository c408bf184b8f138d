package refuter

import (
	"fmt"
	"math/rand"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
)

// DataSubset re-runs the estimation on a random fraction of rows. A
// robust estimate keeps its sign and stays inside the deviation tolerance
// on the reduced sample.
type DataSubset struct {
	cfg config.RunConfig
}

func (r *DataSubset) Name() causal.RefutationTest { return causal.TestDataSubset }

func (r *DataSubset) Refute(p *panel.Panel, treatment core.VariableKey,
	estimand causal.IdentifiedEstimand, original causal.EffectEstimate,
	rng *rand.Rand) (causal.RefutationResult, error) {

	n := p.NumRows()
	keep := int(float64(n) * r.cfg.SubsetFraction)
	if keep < 2 {
		keep = n
	}
	perm := rng.Perm(n)[:keep]
	subset := p.SelectRows(perm)

	refuted, err := reEstimate(r.cfg, subset, treatment, estimand)
	if err != nil {
		return causal.RefutationResult{}, err
	}

	dev := relativeDeviation(original.Point, refuted.Point)
	sameSign := (original.Point >= 0) == (refuted.Point >= 0)
	return causal.RefutationResult{
		Test:              causal.TestDataSubset,
		Outcome:           estimand.Outcome,
		Method:            original.Method,
		OriginalEstimate:  original.Point,
		RefutedEstimate:   refuted.Point,
		RelativeDeviation: dev,
		Passed:            sameSign && dev <= r.cfg.RefutationTolerance,
		Detail: fmt.Sprintf("estimate on %.0f%% of rows moved %.1f%% (sign preserved: %t)",
			r.cfg.SubsetFraction*100, dev*100, sameSign),
	}, nil
}
