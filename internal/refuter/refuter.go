// Package refuter stress-tests effect estimates against perturbations.
// Each test is independent and order-insensitive; results are additive
// evidence for human judgment, and the original estimate is never
// mutated.
package refuter

import (
	"math/rand"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
	"transitcausal/internal/estimator"
	"transitcausal/ports"
)

// Refuter is the contract every refutation test satisfies.
type Refuter interface {
	Name() causal.RefutationTest
	Refute(p *panel.Panel, treatment core.VariableKey, estimand causal.IdentifiedEstimand,
		original causal.EffectEstimate, rng *rand.Rand) (causal.RefutationResult, error)
}

// ByName acts as the factory for the refutation battery.
func ByName(name causal.RefutationTest, cfg config.RunConfig) Refuter {
	switch name {
	case causal.TestRandomCommonCause:
		return &RandomCommonCause{cfg: cfg}
	case causal.TestPlaceboTreatment:
		return &PlaceboTreatment{cfg: cfg}
	case causal.TestDataSubset:
		return &DataSubset{cfg: cfg}
	default:
		return nil
	}
}

// DefaultBattery lists every required test.
func DefaultBattery() []causal.RefutationTest {
	return []causal.RefutationTest{
		causal.TestRandomCommonCause,
		causal.TestPlaceboTreatment,
		causal.TestDataSubset,
	}
}

// Battery runs the full set of refutation tests against one estimate.
type Battery struct {
	cfg config.RunConfig
	rng ports.RNGPort
}

// NewBattery creates a battery with deterministic, per-test RNG streams.
func NewBattery(cfg config.RunConfig, rng ports.RNGPort) *Battery {
	return &Battery{cfg: cfg, rng: rng}
}

// Run executes every test. Each test draws its own seeded stream keyed by
// (test, outcome) so results do not depend on execution order.
func (b *Battery) Run(p *panel.Panel, treatment core.VariableKey, estimand causal.IdentifiedEstimand,
	original causal.EffectEstimate) ([]causal.RefutationResult, error) {

	results := make([]causal.RefutationResult, 0, 3)
	for _, name := range DefaultBattery() {
		test := ByName(name, b.cfg)
		stream := b.rng.SeededStream(string(name)+"/"+estimand.Outcome.String(), b.cfg.BootstrapSeed)
		res, err := test.Refute(p, treatment, estimand, original, stream)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// reEstimate reruns the adjusted regression under a perturbed panel or
// estimand. Refutation compares like with like, so the regression method
// is used throughout.
func reEstimate(cfg config.RunConfig, p *panel.Panel, treatment core.VariableKey,
	estimand causal.IdentifiedEstimand) (causal.EffectEstimate, error) {
	return estimator.New(cfg).AdjustedRegression(p, treatment, estimand)
}

// relativeDeviation computes |refuted-original| / |original| with a guard
// for zero originals.
func relativeDeviation(original, refuted float64) float64 {
	if original == 0 {
		if refuted == 0 {
			return 0
		}
		return 1
	}
	d := refuted - original
	if d < 0 {
		d = -d
	}
	mag := original
	if mag < 0 {
		mag = -mag
	}
	return d / mag
}
