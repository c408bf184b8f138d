package simulate

import (
	"math"
	"testing"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
	"transitcausal/internal/testkit"
)

const (
	treatment  core.VariableKey = "transit_investment"
	congestion core.VariableKey = "congestion_index"
)

// twoCityPanel has city A at treatment 1.0 / congestion 50 and city B at
// treatment 2.0 / congestion 80 in their most recent period.
func twoCityPanel(t *testing.T) *panel.Panel {
	t.Helper()
	b, err := panel.NewBuilder(treatment, congestion)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	rows := []struct {
		entity core.EntityID
		period int
		values map[core.VariableKey]float64
	}{
		{"A", 2020, map[core.VariableKey]float64{treatment: 0.8, congestion: 55}},
		{"A", 2021, map[core.VariableKey]float64{treatment: 1.0, congestion: 50}},
		{"B", 2020, map[core.VariableKey]float64{treatment: 1.5, congestion: 85}},
		{"B", 2021, map[core.VariableKey]float64{treatment: 2.0, congestion: 80}},
	}
	for _, r := range rows {
		if err := b.AddRow(r.entity, r.period, r.values); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func elasticityConfig(elast float64) config.RunConfig {
	cfg := config.Default()
	cfg.SecondaryElasticities = map[core.VariableKey]float64{congestion: elast}
	return cfg
}

func findOutcome(t *testing.T, recs []causal.CounterfactualOutcome, entity core.EntityID, scenario string) causal.CounterfactualOutcome {
	t.Helper()
	for _, r := range recs {
		if r.Entity == entity && r.Scenario == scenario && r.Outcome == congestion {
			return r
		}
	}
	t.Fatalf("no record for %s in %s", entity, scenario)
	return causal.CounterfactualOutcome{}
}

func TestElasticityTransformOnDoubledTreatment(t *testing.T) {
	p := twoCityPanel(t)
	scenario := causal.Scenario{
		Name:     "double_for_A",
		Kind:     causal.ScenarioMultiplier,
		Value:    2.0,
		Entities: []core.EntityID{"A"},
	}

	res, err := New(elasticityConfig(-0.3)).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	// A: relChange = (2.0-1.0)/1.0 = 1, cf = 50*(1-0.3) = 35
	a := findOutcome(t, res.Outcomes, "A", "double_for_A")
	if math.Abs(a.CounterfactualValue-35) > 1e-9 {
		t.Errorf("A counterfactual = %v, want 35", a.CounterfactualValue)
	}
	if math.Abs(a.RelativeImpact-(-0.3)) > 1e-9 {
		t.Errorf("A relative impact = %v, want -0.3", a.RelativeImpact)
	}

	// B is outside the scenario subset and keeps its baseline.
	b := findOutcome(t, res.Outcomes, "B", "double_for_A")
	if b.AbsoluteImpact != 0 || b.CounterfactualValue != 80 {
		t.Errorf("B should be untouched, got %+v", b)
	}
}

func TestBaselineScenarioIsIdempotent(t *testing.T) {
	p := twoCityPanel(t)
	scenario := causal.Scenario{Name: "baseline", Kind: causal.ScenarioMultiplier, Value: 1.0}

	res, err := New(elasticityConfig(-0.3)).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	for _, rec := range res.Outcomes {
		if rec.AbsoluteImpact != 0 || rec.CounterfactualValue != rec.BaselineValue {
			t.Errorf("baseline scenario must not move %s: %+v", rec.Entity, rec)
		}
	}
}

func TestClampingFlagsBoundedOutcomes(t *testing.T) {
	cfg := elasticityConfig(0.9)
	cfg.OutcomeBounds = map[core.VariableKey]causal.OutcomeBound{
		congestion: {Min: 0, Max: 100},
	}
	p := twoCityPanel(t)
	// B: relChange = 1, cf = 80 * 1.9 = 152 -> clamped to 100
	scenario := causal.Scenario{Name: "double_all", Kind: causal.ScenarioMultiplier, Value: 2.0}

	res, err := New(cfg).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	b := findOutcome(t, res.Outcomes, "B", "double_all")
	if !b.Clamped || b.CounterfactualValue != 100 {
		t.Errorf("expected clamp to 100 with flag, got %+v", b)
	}
	a := findOutcome(t, res.Outcomes, "A", "double_all")
	if a.Clamped {
		t.Errorf("A within bounds should not be clamped: %+v", a)
	}
}

func TestMissingBaselineOutcomeIsExcluded(t *testing.T) {
	b, _ := panel.NewBuilder(treatment, congestion)
	_ = b.AddRow("A", 2021, map[core.VariableKey]float64{treatment: 1.0, congestion: 50})
	_ = b.AddRow("C", 2021, map[core.VariableKey]float64{treatment: 1.0}) // no outcome
	p, _ := b.Build()

	scenario := causal.Scenario{Name: "double_all", Kind: causal.ScenarioMultiplier, Value: 2.0}
	res, err := New(elasticityConfig(-0.3)).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	for _, rec := range res.Outcomes {
		if rec.Entity == "C" {
			t.Errorf("entity without baseline outcome must be excluded, got %+v", rec)
		}
	}
}

func TestTargetLevelScenario(t *testing.T) {
	p := twoCityPanel(t)
	scenario := causal.Scenario{Name: "to_three", Kind: causal.ScenarioTargetLevel, Value: 3.0}

	res, err := New(elasticityConfig(-0.3)).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	// A: relChange = (3-1)/1 = 2, cf = 50*(1-0.6) = 20
	a := findOutcome(t, res.Outcomes, "A", "to_three")
	if math.Abs(a.CounterfactualValue-20) > 1e-9 {
		t.Errorf("A counterfactual = %v, want 20", a.CounterfactualValue)
	}
}

func TestDerivedElasticityFlagsImplausibleMagnitude(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	cfg := config.Default()
	cfg.MaxPlausibleElasticity = 0.01 // force the warning

	estimates := []causal.EffectEstimate{{
		Outcome: testkit.ColRidership,
		Method:  causal.MethodAdjustedRegression,
		Point:   2.5,
	}}
	scenario := causal.Scenario{Name: "double", Kind: causal.ScenarioMultiplier, Value: 2.0}

	res, err := New(cfg).Simulate(p, testkit.ColInvestment, estimates, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected an implausible elasticity warning")
	}
	if _, ok := res.Elasticities[testkit.ColRidership]; !ok {
		t.Error("derived elasticity should still be reported")
	}
}

func TestPerEntityHeterogeneityPreserved(t *testing.T) {
	p := twoCityPanel(t)
	scenario := causal.Scenario{Name: "double_all", Kind: causal.ScenarioMultiplier, Value: 2.0}

	res, err := New(elasticityConfig(-0.3)).Simulate(p, treatment, nil, []causal.Scenario{scenario})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	a := findOutcome(t, res.Outcomes, "A", "double_all")
	b := findOutcome(t, res.Outcomes, "B", "double_all")
	if a.AbsoluteImpact == b.AbsoluteImpact {
		t.Error("entities with different baselines must not be pooled")
	}
}
