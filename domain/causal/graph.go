package causal

import (
	"fmt"
	"sort"

	"transitcausal/domain/core"
)

// Role classifies a variable's position in the causal graph
type Role string

const (
	RoleTreatment  Role = "treatment"
	RoleOutcome    Role = "outcome"
	RoleConfounder Role = "confounder"
)

// Node is one variable in the graph with its adjacency
type Node struct {
	Key      core.VariableKey
	Role     Role
	Parents  []core.VariableKey
	Children []core.VariableKey
}

// Graph is the directed acyclic structure over treatment, outcomes and
// confounders. It is immutable once built; identification reads it as a
// pure function.
type Graph struct {
	treatment core.VariableKey
	outcomes  []core.VariableKey
	nodes     map[core.VariableKey]*Node
	warnings  []string
}

// GraphBuilder declares variables and edges, then validates the whole
// structure in Build.
type GraphBuilder struct {
	treatment   core.VariableKey
	outcomes    []core.VariableKey
	confounders []core.VariableKey
	roles       map[core.VariableKey]Role
	// explicit confounder targets; a confounder with no entry points at
	// the treatment and every outcome
	affects map[core.VariableKey][]core.VariableKey
	edges   [][2]core.VariableKey
	errs    []error
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		roles:   make(map[core.VariableKey]Role),
		affects: make(map[core.VariableKey][]core.VariableKey),
	}
}

// declare records a variable's role and reports whether the declaration
// is new. Redeclaring a variable with the same role is a no-op; a
// different role is a conflict.
func (b *GraphBuilder) declare(key core.VariableKey, role Role) bool {
	if key == "" {
		b.errs = append(b.errs, core.NewGraphSpecError("", "empty variable name"))
		return false
	}
	if existing, ok := b.roles[key]; ok {
		if existing != role {
			b.errs = append(b.errs, core.NewGraphSpecError(key.String(),
				fmt.Sprintf("already declared as %s, cannot also be %s", existing, role)))
		}
		return false
	}
	b.roles[key] = role
	return true
}

// Treatment declares the single treatment variable.
func (b *GraphBuilder) Treatment(key core.VariableKey) *GraphBuilder {
	if b.treatment != "" && b.treatment != key {
		b.errs = append(b.errs, core.NewGraphSpecError(key.String(),
			fmt.Sprintf("treatment already declared as %q", b.treatment)))
		return b
	}
	b.declare(key, RoleTreatment)
	b.treatment = key
	return b
}

// Outcome declares an outcome variable. Repeating a declaration is a
// no-op.
func (b *GraphBuilder) Outcome(key core.VariableKey) *GraphBuilder {
	if b.declare(key, RoleOutcome) {
		b.outcomes = append(b.outcomes, key)
	}
	return b
}

// Confounder declares a confounder. With no explicit targets it points at
// the treatment and every outcome; otherwise only at the listed variables.
// On a repeated declaration the first target list wins.
func (b *GraphBuilder) Confounder(key core.VariableKey, affects ...core.VariableKey) *GraphBuilder {
	if b.declare(key, RoleConfounder) {
		b.confounders = append(b.confounders, key)
		b.affects[key] = affects
	}
	return b
}

// Edge declares an additional directed edge between already-declared
// variables, e.g. treatment -> downstream confounder to model a mediator.
func (b *GraphBuilder) Edge(from, to core.VariableKey) *GraphBuilder {
	b.edges = append(b.edges, [2]core.VariableKey{from, to})
	return b
}

// Build validates the declaration and constructs the graph. A malformed
// declaration is fatal; an outcome reached by zero confounders is allowed
// but recorded as a warning.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.treatment == "" {
		return nil, core.NewGraphSpecError("", "no treatment variable declared")
	}
	if len(b.outcomes) == 0 {
		return nil, core.NewGraphSpecError("", "no outcome variable declared")
	}

	g := &Graph{
		treatment: b.treatment,
		outcomes:  append([]core.VariableKey(nil), b.outcomes...),
		nodes:     make(map[core.VariableKey]*Node, len(b.roles)),
	}
	for key, role := range b.roles {
		g.nodes[key] = &Node{Key: key, Role: role}
	}

	// treatment -> each outcome
	for _, o := range b.outcomes {
		g.addEdge(b.treatment, o)
	}
	// confounder -> treatment / outcomes
	for _, c := range b.confounders {
		targets := b.affects[c]
		if len(targets) == 0 {
			targets = append([]core.VariableKey{b.treatment}, b.outcomes...)
		}
		for _, t := range targets {
			if _, ok := g.nodes[t]; !ok {
				return nil, core.NewGraphSpecError(c.String(),
					fmt.Sprintf("affects undeclared variable %q", t))
			}
			g.addEdge(c, t)
		}
	}
	// explicit extra edges
	for _, e := range b.edges {
		from, to := e[0], e[1]
		if _, ok := g.nodes[from]; !ok {
			return nil, core.NewGraphSpecError(from.String(), "edge from undeclared variable")
		}
		if _, ok := g.nodes[to]; !ok {
			return nil, core.NewGraphSpecError(to.String(), "edge to undeclared variable")
		}
		if g.nodes[from].Role == RoleOutcome {
			return nil, core.NewGraphSpecError(from.String(),
				"outcomes cannot cause treatment or confounders")
		}
		g.addEdge(from, to)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	// warning-level condition: outcome with no incoming confounder
	for _, o := range b.outcomes {
		hasConf := false
		for _, p := range g.nodes[o].Parents {
			if g.nodes[p].Role == RoleConfounder {
				hasConf = true
				break
			}
		}
		if !hasConf {
			g.warnings = append(g.warnings,
				fmt.Sprintf("outcome %q has no declared confounders; estimates may be confounded", o))
		}
	}

	return g, nil
}

func (g *Graph) addEdge(from, to core.VariableKey) {
	for _, c := range g.nodes[from].Children {
		if c == to {
			return
		}
	}
	g.nodes[from].Children = append(g.nodes[from].Children, to)
	g.nodes[to].Parents = append(g.nodes[to].Parents, from)
}

// checkAcyclic runs a Kahn topological traversal; leftover nodes mean a
// cycle.
func (g *Graph) checkAcyclic() error {
	indeg := make(map[core.VariableKey]int, len(g.nodes))
	for key, n := range g.nodes {
		indeg[key] = len(n.Parents)
	}
	var queue []core.VariableKey
	for key, d := range indeg {
		if d == 0 {
			queue = append(queue, key)
		}
	}
	visited := 0
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range g.nodes[key].Children {
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if visited != len(g.nodes) {
		return core.NewGraphSpecError("", "cycle detected in causal graph")
	}
	return nil
}

// Treatment returns the treatment variable.
func (g *Graph) Treatment() core.VariableKey { return g.treatment }

// Outcomes returns the outcome variables in declaration order.
func (g *Graph) Outcomes() []core.VariableKey {
	return append([]core.VariableKey(nil), g.outcomes...)
}

// Confounders returns every declared confounder, sorted for determinism.
func (g *Graph) Confounders() []core.VariableKey {
	var out []core.VariableKey
	for key, n := range g.nodes {
		if n.Role == RoleConfounder {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Role returns the declared role of a variable.
func (g *Graph) Role(key core.VariableKey) (Role, bool) {
	n, ok := g.nodes[key]
	if !ok {
		return "", false
	}
	return n.Role, true
}

// HasEdge reports whether a directed edge from -> to exists.
func (g *Graph) HasEdge(from, to core.VariableKey) bool {
	n, ok := g.nodes[from]
	if !ok {
		return false
	}
	for _, c := range n.Children {
		if c == to {
			return true
		}
	}
	return false
}

// Descendants returns every variable reachable from key via directed edges.
func (g *Graph) Descendants(key core.VariableKey) map[core.VariableKey]bool {
	out := make(map[core.VariableKey]bool)
	var walk func(k core.VariableKey)
	walk = func(k core.VariableKey) {
		n, ok := g.nodes[k]
		if !ok {
			return
		}
		for _, c := range n.Children {
			if !out[c] {
				out[c] = true
				walk(c)
			}
		}
	}
	walk(key)
	return out
}

// Warnings returns warning-level conditions recorded during Build.
func (g *Graph) Warnings() []string {
	return append([]string(nil), g.warnings...)
}
