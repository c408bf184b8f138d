// Package identify applies the backdoor criterion to a causal graph and
// produces one identified estimand per outcome.
package identify

import (
	"fmt"
	"strings"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
)

// Identifier derives adjustment sets from the graph. It is a pure
// function of the graph - no panel access, no side effects.
type Identifier struct{}

// New creates an Identifier.
func New() *Identifier {
	return &Identifier{}
}

// Identify returns the minimal backdoor adjustment set for the treatment
// effect on the given outcome: every confounder with a directed edge into
// both the treatment and the outcome. A confounder that is itself a
// descendant of the treatment (a mediator, declared via an explicit
// treatment -> confounder edge) sits on the causal path, not a backdoor
// path; adjusting for it would absorb part of the effect, so it is
// excluded. When every confounder reaching the outcome is such a
// descendant, no backdoor set exists and the outcome is not identifiable.
func (id *Identifier) Identify(g *causal.Graph, outcome core.VariableKey) (causal.IdentifiedEstimand, error) {
	role, ok := g.Role(outcome)
	if !ok {
		return causal.IdentifiedEstimand{}, core.NewNotIdentifiableError(outcome.String(), "variable not declared in graph")
	}
	if role != causal.RoleOutcome {
		return causal.IdentifiedEstimand{}, core.NewNotIdentifiableError(outcome.String(),
			fmt.Sprintf("variable has role %s, not outcome", role))
	}

	treatment := g.Treatment()
	descendants := g.Descendants(treatment)

	var adjustment []core.VariableKey
	var excluded []string
	sharedPaths := 0
	for _, c := range g.Confounders() {
		if !g.HasEdge(c, outcome) {
			continue
		}
		if descendants[c] {
			// causally connected through treatment -> c -> outcome
			sharedPaths++
			excluded = append(excluded, c.String())
			continue
		}
		if !g.HasEdge(c, treatment) {
			continue
		}
		sharedPaths++
		adjustment = append(adjustment, c)
	}

	if sharedPaths == 0 {
		return causal.IdentifiedEstimand{}, core.NewNotIdentifiableError(outcome.String(),
			"no confounder reaches both treatment and outcome")
	}
	if len(adjustment) == 0 {
		return causal.IdentifiedEstimand{}, core.NewNotIdentifiableError(outcome.String(),
			fmt.Sprintf("every shared confounder is a descendant of treatment (%s)", strings.Join(excluded, ", ")))
	}

	rationale := fmt.Sprintf("backdoor adjustment for {%s}", joinKeys(adjustment))
	if len(excluded) > 0 {
		rationale += fmt.Sprintf("; excluded treatment descendants: %s", strings.Join(excluded, ", "))
	}

	est := causal.IdentifiedEstimand{
		Outcome:       outcome,
		AdjustmentSet: adjustment,
		Identifiable:  true,
		Rationale:     rationale,
	}
	est.AdjustmentSet = est.SortedAdjustmentSet()
	return est, nil
}

// Override builds an estimand from a manually forced confounder set,
// bypassing identification. The set still has to name declared variables.
func (id *Identifier) Override(g *causal.Graph, outcome core.VariableKey, adjustment []core.VariableKey) (causal.IdentifiedEstimand, error) {
	for _, v := range adjustment {
		if _, ok := g.Role(v); !ok {
			return causal.IdentifiedEstimand{}, fmt.Errorf("%w: %q in adjustment override", core.ErrVariableUnknown, v)
		}
	}
	est := causal.IdentifiedEstimand{
		Outcome:       outcome,
		AdjustmentSet: append([]core.VariableKey(nil), adjustment...),
		Identifiable:  true,
		Overridden:    true,
		Rationale:     "adjustment set forced by configuration",
	}
	est.AdjustmentSet = est.SortedAdjustmentSet()
	return est, nil
}

func joinKeys(keys []core.VariableKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
