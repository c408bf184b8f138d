package refuter

import (
	"fmt"
	"math/rand"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
)

const randomCauseColumn core.VariableKey = "__random_common_cause"

// RandomCommonCause injects a synthetic standard-normal confounder into
// the adjustment set. A stable estimand barely moves when conditioning on
// pure noise.
type RandomCommonCause struct {
	cfg config.RunConfig
}

func (r *RandomCommonCause) Name() causal.RefutationTest { return causal.TestRandomCommonCause }

func (r *RandomCommonCause) Refute(p *panel.Panel, treatment core.VariableKey,
	estimand causal.IdentifiedEstimand, original causal.EffectEstimate,
	rng *rand.Rand) (causal.RefutationResult, error) {

	noise := make([]float64, p.NumRows())
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	perturbed, err := p.WithColumn(randomCauseColumn, noise)
	if err != nil {
		return causal.RefutationResult{}, err
	}

	augmented := estimand
	augmented.AdjustmentSet = append(append([]core.VariableKey{}, estimand.AdjustmentSet...), randomCauseColumn)

	refuted, err := reEstimate(r.cfg, perturbed, treatment, augmented)
	if err != nil {
		return causal.RefutationResult{}, err
	}

	dev := relativeDeviation(original.Point, refuted.Point)
	return causal.RefutationResult{
		Test:              causal.TestRandomCommonCause,
		Outcome:           estimand.Outcome,
		Method:            original.Method,
		OriginalEstimate:  original.Point,
		RefutedEstimate:   refuted.Point,
		RelativeDeviation: dev,
		Passed:            dev <= r.cfg.RefutationTolerance,
		Detail: fmt.Sprintf("estimate moved %.1f%% after conditioning on a synthetic noise confounder",
			dev*100),
	}, nil
}
