package refuter

import (
	"fmt"
	"math/rand"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
)

// placeboAlpha is the significance threshold a permuted treatment must
// fail to clear.
const placeboAlpha = 0.05

// placeboMagnitudeRatio bounds how large a placebo effect may be relative
// to the original before the test fails on magnitude alone.
const placeboMagnitudeRatio = 0.1

// PlaceboTreatment replaces the treatment column with a random permutation
// of itself. The true effect of a shuffled treatment is zero, so a genuine
// estimand should collapse toward insignificance.
type PlaceboTreatment struct {
	cfg config.RunConfig
}

func (r *PlaceboTreatment) Name() causal.RefutationTest { return causal.TestPlaceboTreatment }

func (r *PlaceboTreatment) Refute(p *panel.Panel, treatment core.VariableKey,
	estimand causal.IdentifiedEstimand, original causal.EffectEstimate,
	rng *rand.Rand) (causal.RefutationResult, error) {

	col, err := p.Column(treatment)
	if err != nil {
		return causal.RefutationResult{}, err
	}
	shuffled := append([]float64{}, col...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	perturbed, err := p.WithColumn(treatment, shuffled)
	if err != nil {
		return causal.RefutationResult{}, err
	}

	refuted, err := reEstimate(r.cfg, perturbed, treatment, estimand)
	if err != nil {
		return causal.RefutationResult{}, err
	}

	passed := refuted.PValue > placeboAlpha || magnitudeWithin(refuted.Point, original.Point, placeboMagnitudeRatio)
	return causal.RefutationResult{
		Test:              causal.TestPlaceboTreatment,
		Outcome:           estimand.Outcome,
		Method:            original.Method,
		OriginalEstimate:  original.Point,
		RefutedEstimate:   refuted.Point,
		RelativeDeviation: relativeDeviation(original.Point, refuted.Point),
		Passed:            passed,
		Detail: fmt.Sprintf("shuffled treatment produced effect %.4f (p=%.3f); original %.4f",
			refuted.Point, refuted.PValue, original.Point),
	}, nil
}

func magnitudeWithin(placebo, original, ratio float64) bool {
	if placebo < 0 {
		placebo = -placebo
	}
	if original < 0 {
		original = -original
	}
	return placebo <= ratio*original
}
