package causal

import (
	"testing"

	"transitcausal/domain/core"
)

func TestBuildRejectsRoleConflict(t *testing.T) {
	_, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("investment").
		Build()
	if !core.IsGraphSpecError(err) {
		t.Fatalf("expected graph spec error, got %v", err)
	}
}

func TestRepeatedDeclarationIsNoOp(t *testing.T) {
	g, err := NewGraphBuilder().
		Treatment("investment").
		Treatment("investment").
		Outcome("ridership").
		Outcome("ridership").
		Confounder("population").
		Confounder("population", "ridership").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := g.Outcomes(); len(got) != 1 {
		t.Errorf("outcomes = %v, want one ridership entry", got)
	}
	if got := g.Confounders(); len(got) != 1 {
		t.Errorf("confounders = %v, want one population entry", got)
	}
	// first declaration's default targets win
	if !g.HasEdge("population", "investment") {
		t.Error("expected edge population -> investment")
	}
}

func TestBuildRejectsMissingTreatment(t *testing.T) {
	_, err := NewGraphBuilder().Outcome("ridership").Build()
	if !core.IsGraphSpecError(err) {
		t.Fatalf("expected graph spec error, got %v", err)
	}
}

func TestBuildRejectsOutcomeAsCause(t *testing.T) {
	_, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Confounder("population").
		Edge("ridership", "population").
		Build()
	if !core.IsGraphSpecError(err) {
		t.Fatalf("expected graph spec error, got %v", err)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	_, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Confounder("population", "investment").
		Edge("investment", "population").
		Build()
	if !core.IsGraphSpecError(err) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestConfounderDefaultTargets(t *testing.T) {
	g, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Outcome("congestion").
		Confounder("population").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, to := range []core.VariableKey{"investment", "ridership", "congestion"} {
		if !g.HasEdge("population", to) {
			t.Errorf("expected edge population -> %s", to)
		}
	}
}

func TestConfounderExplicitTargets(t *testing.T) {
	g, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Outcome("congestion").
		Confounder("population", "investment", "ridership").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.HasEdge("population", "congestion") {
		t.Error("explicit targets should not include congestion")
	}
}

func TestWarningForUnconfoundedOutcome(t *testing.T) {
	g, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Outcome("congestion").
		Confounder("population", "investment", "ridership").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", g.Warnings())
	}
}

func TestDescendantsFollowDirectedEdges(t *testing.T) {
	g, err := NewGraphBuilder().
		Treatment("investment").
		Outcome("ridership").
		Confounder("service_level", "ridership").
		Edge("investment", "service_level").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	desc := g.Descendants("investment")
	if !desc["service_level"] || !desc["ridership"] {
		t.Errorf("descendants incomplete: %v", desc)
	}
	if desc["investment"] {
		t.Error("a node is not its own descendant")
	}
}
