package causal

import (
	"sort"

	"transitcausal/domain/core"
)

// IdentifiedEstimand is the identification verdict for one outcome:
// which confounders must be adjusted for, and whether a valid backdoor
// set exists at all. Immutable after creation.
type IdentifiedEstimand struct {
	Outcome       core.VariableKey   `json:"outcome"`
	AdjustmentSet []core.VariableKey `json:"adjustment_set"`
	Identifiable  bool               `json:"identifiable"`
	Overridden    bool               `json:"overridden"` // adjustment set forced by config
	Rationale     string             `json:"rationale"`
}

// SortedAdjustmentSet returns the adjustment set in deterministic order.
func (e IdentifiedEstimand) SortedAdjustmentSet() []core.VariableKey {
	out := append([]core.VariableKey(nil), e.AdjustmentSet...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EstimatorMethod names one of the independent estimation strategies.
type EstimatorMethod string

const (
	MethodAdjustedRegression EstimatorMethod = "adjusted_regression"
	MethodPropensityMatching EstimatorMethod = "propensity_matching"
)

// EffectEstimate is one method's estimate of the treatment effect on one
// outcome. Estimates from different methods are reported side by side,
// never merged, so discrepancies stay visible.
type EffectEstimate struct {
	Outcome    core.VariableKey `json:"outcome" db:"outcome"`
	Method     EstimatorMethod  `json:"method" db:"method"`
	Point      float64          `json:"point_estimate" db:"point_estimate"`
	StdErr     float64          `json:"std_error" db:"std_error"`
	CILower    float64          `json:"ci_lower" db:"ci_lower"`
	CIUpper    float64          `json:"ci_upper" db:"ci_upper"`
	PValue     float64          `json:"p_value" db:"p_value"`
	SampleSize int              `json:"sample_size" db:"sample_size"`
	// LowPower flags estimates below the configured minimum sample; the
	// estimate is still reported - callers decide whether to act on it.
	LowPower bool `json:"low_power" db:"low_power"`
}

// Significant reports whether the estimate is distinguishable from zero
// at the given alpha.
func (e EffectEstimate) Significant(alpha float64) bool {
	return e.PValue < alpha
}

// RefutationTest names one robustness check.
type RefutationTest string

const (
	TestRandomCommonCause RefutationTest = "random_common_cause"
	TestPlaceboTreatment  RefutationTest = "placebo_treatment"
	TestDataSubset        RefutationTest = "data_subset"
)

// RefutationResult records one stress test of one estimate. Created per
// (estimate, test) pair, never mutated; a failed test is evidence for
// human judgment, not an error.
type RefutationResult struct {
	Test              RefutationTest   `json:"test" db:"test"`
	Outcome           core.VariableKey `json:"outcome" db:"outcome"`
	Method            EstimatorMethod  `json:"method" db:"method"`
	OriginalEstimate  float64          `json:"original_estimate" db:"original_estimate"`
	RefutedEstimate   float64          `json:"refuted_estimate" db:"refuted_estimate"`
	RelativeDeviation float64          `json:"relative_deviation" db:"relative_deviation"`
	Passed            bool             `json:"passed" db:"passed"`
	Detail            string           `json:"detail,omitempty" db:"detail"`
}

// ScenarioKind distinguishes multiplicative interventions from absolute
// target levels.
type ScenarioKind string

const (
	ScenarioMultiplier  ScenarioKind = "multiplier"
	ScenarioTargetLevel ScenarioKind = "target_level"
)

// Scenario is a named hypothetical policy level. Entities nil means the
// scenario applies to every entity; otherwise only to the listed subset.
// Scenarios are caller-defined and immutable.
type Scenario struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Kind        ScenarioKind    `json:"kind"`
	Value       float64         `json:"value"`
	Entities    []core.EntityID `json:"entities,omitempty"`
}

// TargetTreatment resolves the scenario's treatment level for an entity
// with the given baseline.
func (s Scenario) TargetTreatment(baseline float64) float64 {
	if s.Kind == ScenarioTargetLevel {
		return s.Value
	}
	return baseline * s.Value
}

// AppliesTo reports whether the scenario intervenes on the entity.
func (s Scenario) AppliesTo(e core.EntityID) bool {
	if len(s.Entities) == 0 {
		return true
	}
	for _, id := range s.Entities {
		if id == e {
			return true
		}
	}
	return false
}

// CounterfactualOutcome is one projected record: one entity, one
// scenario, one outcome. Derived and recomputed on every simulation run,
// never a source of truth.
type CounterfactualOutcome struct {
	Entity              core.EntityID    `json:"entity_id" db:"entity_id"`
	Scenario            string           `json:"scenario_name" db:"scenario_name"`
	Outcome             core.VariableKey `json:"outcome_name" db:"outcome_name"`
	BaselineValue       float64          `json:"baseline_value" db:"baseline_value"`
	CounterfactualValue float64          `json:"counterfactual_value" db:"counterfactual_value"`
	AbsoluteImpact      float64          `json:"absolute_impact" db:"absolute_impact"`
	RelativeImpact      float64          `json:"relative_impact" db:"relative_impact"`
	// Clamped flags values pulled back into a bounded outcome's valid
	// range; the caveat always travels with the number.
	Clamped bool `json:"clamped" db:"clamped"`
}

// ScenarioInterval is the bootstrap percentile interval for one
// scenario's aggregate impact on one outcome.
type ScenarioInterval struct {
	Scenario  string           `json:"scenario_name" db:"scenario_name"`
	Outcome   core.VariableKey `json:"outcome_name" db:"outcome_name"`
	Point     float64          `json:"point" db:"point"`
	Lower     float64          `json:"lower" db:"lower"`
	Upper     float64          `json:"upper" db:"upper"`
	Level     float64          `json:"level" db:"level"` // e.g. 0.95
	Resamples int              `json:"resamples" db:"resamples"`
}

// OutcomeBound declares the valid range of a percentage-bounded outcome
// (e.g. a congestion index on [0,100]).
type OutcomeBound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
