// Package testkit provides synthetic panels with a known injected
// treatment effect, so estimator accuracy can be asserted against ground
// truth.
package testkit

import (
	"fmt"
	"math/rand"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
)

// Canonical column names used across the test suite.
const (
	ColInvestment core.VariableKey = "transit_investment"
	ColRidership  core.VariableKey = "ridership"
	ColCongestion core.VariableKey = "congestion_index"
	ColPopulation core.VariableKey = "population"
	ColDensity    core.VariableKey = "urban_density"
)

// PanelSpec controls the synthetic data-generating process. The true
// effect of treatment on ridership is Effect per unit; population
// confounds both treatment and outcome.
type PanelSpec struct {
	Entities int
	Periods  int
	Effect   float64
	Noise    float64
	Seed     int64
}

// DefaultSpec is large enough for stable regression estimates.
func DefaultSpec() PanelSpec {
	return PanelSpec{Entities: 12, Periods: 10, Effect: 2.5, Noise: 0.5, Seed: 42}
}

// BuildPanel generates the panel described by the spec. The process is
//
//	population ~ U(50, 150)
//	investment = 0.05*population + noise
//	ridership  = Effect*investment + 0.2*population + noise
//
// so population is a genuine backdoor confounder.
func BuildPanel(spec PanelSpec) (*panel.Panel, error) {
	rng := rand.New(rand.NewSource(spec.Seed))
	b, err := panel.NewBuilder(ColInvestment, ColRidership, ColPopulation)
	if err != nil {
		return nil, err
	}
	for e := 0; e < spec.Entities; e++ {
		entity := core.EntityID(fmt.Sprintf("city-%02d", e))
		pop := 50 + rng.Float64()*100
		for t := 0; t < spec.Periods; t++ {
			inv := 0.05*pop + rng.NormFloat64()*spec.Noise
			rid := spec.Effect*inv + 0.2*pop + rng.NormFloat64()*spec.Noise
			if err := b.AddRow(entity, 2015+t, map[core.VariableKey]float64{
				ColInvestment: inv,
				ColRidership:  rid,
				ColPopulation: pop,
			}); err != nil {
				return nil, err
			}
		}
	}
	return b.Build()
}

// Graph returns a graph matching BuildPanel's generating process.
func Graph() (*causal.Graph, error) {
	return causal.NewGraphBuilder().
		Treatment(ColInvestment).
		Outcome(ColRidership).
		Confounder(ColPopulation).
		Build()
}

// Scenarios returns a small scenario set usable against any panel.
func Scenarios() []causal.Scenario {
	return []causal.Scenario{
		{Name: "baseline", Kind: causal.ScenarioMultiplier, Value: 1.0},
		{Name: "moderate_increase", Kind: causal.ScenarioMultiplier, Value: 1.5},
		{Name: "high_investment", Kind: causal.ScenarioMultiplier, Value: 2.0},
	}
}
