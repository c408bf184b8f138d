// Package simulate projects counterfactual outcomes under hypothetical
// treatment scenarios via an elasticity transform. Projections are
// derived values, recomputed from the panel and validated effects on
// every run.
package simulate

import (
	"fmt"
	"math"
	"sort"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
)

// baselineEpsilon guards the relative-change denominator for entities
// whose baseline treatment sits at zero.
const baselineEpsilon = 0.001

// Simulator applies scenario interventions entity by entity. Each entity
// keeps its own baseline, so heterogeneity across entities is preserved
// rather than pooled away.
type Simulator struct {
	cfg config.RunConfig
}

func New(cfg config.RunConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Result bundles the projected records with the plausibility warnings
// raised while deriving elasticities.
type Result struct {
	Outcomes     []causal.CounterfactualOutcome
	Elasticities map[core.VariableKey]float64
	Warnings     []string
}

// Simulate projects every (entity, scenario, outcome) combination.
// Entities outside a scenario's subset are carried through at their
// baseline with zero impact. Entities with a missing baseline outcome are
// excluded for that outcome; no placeholder is emitted.
func (s *Simulator) Simulate(p *panel.Panel, treatment core.VariableKey,
	estimates []causal.EffectEstimate, scenarios []causal.Scenario) (*Result, error) {

	if len(scenarios) == 0 {
		scenarios = s.cfg.Scenarios
	}
	if !p.HasColumn(treatment) {
		return nil, fmt.Errorf("panel: %w: %s", core.ErrUnknownColumn, treatment)
	}

	elasticities, warnings, err := s.deriveElasticities(p, treatment, estimates)
	if err != nil {
		return nil, err
	}

	baselines := latestBaselines(p, treatment)
	res := &Result{Elasticities: elasticities, Warnings: warnings}

	for _, entity := range p.EntityIDs() {
		base, ok := baselines[entity]
		if !ok {
			continue
		}
		for _, sc := range scenarios {
			target := base.treatment
			if sc.AppliesTo(entity) {
				target = sc.TargetTreatment(base.treatment)
			}
			denom := math.Abs(base.treatment)
			if denom < baselineEpsilon {
				denom = baselineEpsilon
			}
			relChange := (target - base.treatment) / denom

			for outcome, elast := range elasticities {
				baselineY, ok := base.outcomes[outcome]
				if !ok {
					continue
				}
				cf := baselineY * (1 + elast*relChange)
				clamped := false
				if bound, has := s.cfg.OutcomeBounds[outcome]; has {
					if cf < bound.Min {
						cf, clamped = bound.Min, true
					} else if cf > bound.Max {
						cf, clamped = bound.Max, true
					}
				}
				rec := causal.CounterfactualOutcome{
					Entity:              entity,
					Scenario:            sc.Name,
					Outcome:             outcome,
					BaselineValue:       baselineY,
					CounterfactualValue: cf,
					AbsoluteImpact:      cf - baselineY,
					Clamped:             clamped,
				}
				if baselineY != 0 {
					rec.RelativeImpact = (cf - baselineY) / math.Abs(baselineY)
				}
				res.Outcomes = append(res.Outcomes, rec)
			}
		}
	}

	sortOutcomes(res.Outcomes)
	return res, nil
}

// deriveElasticities turns validated point estimates into elasticities at
// the sample means. Outcomes with a configured elasticity use it as is;
// the derivation only runs for outcomes the estimator covered.
func (s *Simulator) deriveElasticities(p *panel.Panel, treatment core.VariableKey,
	estimates []causal.EffectEstimate) (map[core.VariableKey]float64, []string, error) {

	elasticities := make(map[core.VariableKey]float64)
	var warnings []string

	for _, est := range estimates {
		if est.Method != causal.MethodAdjustedRegression {
			continue
		}
		if fixed, ok := s.cfg.SecondaryElasticities[est.Outcome]; ok {
			elasticities[est.Outcome] = fixed
			continue
		}
		elast, err := impliedElasticity(p, treatment, est.Outcome, est.Point)
		if err != nil {
			return nil, nil, err
		}
		if math.Abs(elast) > s.cfg.MaxPlausibleElasticity {
			warnings = append(warnings, fmt.Sprintf(
				"implied elasticity %.3f for %s exceeds plausible magnitude %.2f",
				elast, est.Outcome, s.cfg.MaxPlausibleElasticity))
		}
		elasticities[est.Outcome] = elast
	}

	// Configured secondaries apply even without an estimate of their own.
	for outcome, fixed := range s.cfg.SecondaryElasticities {
		if _, seen := elasticities[outcome]; !seen && p.HasColumn(outcome) {
			elasticities[outcome] = fixed
		}
	}
	return elasticities, warnings, nil
}

// impliedElasticity translates a unit-scale effect into a percentage
// elasticity at the means: beta * mean(treatment) / mean(outcome).
func impliedElasticity(p *panel.Panel, treatment, outcome core.VariableKey, beta float64) (float64, error) {
	cases, err := p.CompleteCases(treatment, outcome)
	if err != nil {
		return 0, err
	}
	if cases.NumRows() == 0 {
		return 0, fmt.Errorf("elasticity for %s: %w", outcome, core.ErrInsufficientData)
	}
	var sumT, sumY float64
	for i := 0; i < cases.NumRows(); i++ {
		t, _ := cases.Value(i, treatment)
		y, _ := cases.Value(i, outcome)
		sumT += t
		sumY += y
	}
	meanT := sumT / float64(cases.NumRows())
	meanY := sumY / float64(cases.NumRows())
	if meanY == 0 {
		return 0, fmt.Errorf("elasticity for %s: zero mean outcome", outcome)
	}
	return beta * meanT / meanY, nil
}

// entityBaseline is the most recent observed state of one entity.
type entityBaseline struct {
	period    int
	treatment float64
	outcomes  map[core.VariableKey]float64
}

// latestBaselines picks, per entity, the most recent row with an observed
// treatment value, then records every observed outcome on that row.
func latestBaselines(p *panel.Panel, treatment core.VariableKey) map[core.EntityID]entityBaseline {
	out := make(map[core.EntityID]entityBaseline)
	cols := p.Columns()
	for i := 0; i < p.NumRows(); i++ {
		t, ok := p.Value(i, treatment)
		if !ok {
			continue
		}
		entity := p.Entity(i)
		prev, seen := out[entity]
		if seen && prev.period >= p.Period(i) {
			continue
		}
		base := entityBaseline{
			period:    p.Period(i),
			treatment: t,
			outcomes:  make(map[core.VariableKey]float64),
		}
		for _, key := range cols {
			if key == treatment {
				continue
			}
			if v, ok := p.Value(i, key); ok {
				base.outcomes[key] = v
			}
		}
		out[entity] = base
	}
	return out
}

func sortOutcomes(recs []causal.CounterfactualOutcome) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Scenario != recs[j].Scenario {
			return recs[i].Scenario < recs[j].Scenario
		}
		if recs[i].Entity != recs[j].Entity {
			return recs[i].Entity < recs[j].Entity
		}
		return recs[i].Outcome < recs[j].Outcome
	})
}
