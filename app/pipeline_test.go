package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"transitcausal/adapters/rng"
	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/internal/config"
	"transitcausal/internal/testkit"
)

func pipelineConfig(t *testing.T) config.RunConfig {
	t.Helper()
	cfg := config.Default().WithSeed(42).WithScenarios(testkit.Scenarios()...)
	cfg.BootstrapResamples = 40 // keep the end-to-end test quick
	return cfg
}

func TestPipelineEndToEnd(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	require.NoError(t, err)
	g, err := testkit.Graph()
	require.NoError(t, err)

	pipeline, err := NewPipeline(pipelineConfig(t), rng.NewSeededSource())
	require.NoError(t, err)

	run, err := pipeline.Run(context.Background(), p, g)
	require.NoError(t, err)

	require.NotEmpty(t, run.ID)
	require.Equal(t, testkit.ColInvestment, run.Treatment)
	require.Equal(t, p.Fingerprint(), run.PanelHash)

	// one estimand, two estimation methods
	require.Len(t, run.Estimands, 1)
	require.Len(t, run.Estimates, 2)
	reg, ok := run.EstimateFor(testkit.ColRidership, causal.MethodAdjustedRegression)
	require.True(t, ok)
	require.InDelta(t, 2.5, reg.Point, 0.5)

	// full battery for the one regression estimate
	require.Len(t, run.Refutations, 3)

	// 12 entities x 3 scenarios for the one estimated outcome
	require.Len(t, run.Counterfactuals, 36)

	// intervals per (scenario, outcome)
	require.Len(t, run.Intervals, 3)
	for _, iv := range run.Intervals {
		require.LessOrEqual(t, iv.Lower, iv.Upper)
	}
}

func TestPipelineSkipsUnidentifiableOutcome(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	require.NoError(t, err)

	// congestion has no confounder reaching both treatment and outcome
	g, err := causal.NewGraphBuilder().
		Treatment(testkit.ColInvestment).
		Outcome(testkit.ColRidership).
		Outcome("congestion_index").
		Confounder(testkit.ColPopulation, testkit.ColInvestment, testkit.ColRidership).
		Build()
	require.NoError(t, err)

	pipeline, err := NewPipeline(pipelineConfig(t), rng.NewSeededSource())
	require.NoError(t, err)

	run, err := pipeline.Run(context.Background(), p, g)
	require.NoError(t, err)

	require.Len(t, run.Estimands, 2)
	var skipped *causal.IdentifiedEstimand
	for i := range run.Estimands {
		if run.Estimands[i].Outcome == "congestion_index" {
			skipped = &run.Estimands[i]
		}
	}
	require.NotNil(t, skipped)
	require.False(t, skipped.Identifiable)

	// estimated outcome still went through
	require.Len(t, run.Estimates, 2)
	found := false
	for _, w := range run.Warnings {
		if strings.Contains(w, "not identifiable") {
			found = true
		}
	}
	require.True(t, found, "warnings: %v", run.Warnings)
}

func TestPipelineWithoutSeedDegradesIntervals(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	require.NoError(t, err)
	g, err := testkit.Graph()
	require.NoError(t, err)

	cfg := config.Default().WithScenarios(testkit.Scenarios()...)
	pipeline, err := NewPipeline(cfg, rng.NewSeededSource())
	require.NoError(t, err)

	run, err := pipeline.Run(context.Background(), p, g)
	require.NoError(t, err)

	require.Empty(t, run.Intervals)
	require.NotEmpty(t, run.Counterfactuals)
	found := false
	for _, w := range run.Warnings {
		if strings.Contains(w, "interval unavailable") {
			found = true
		}
	}
	require.True(t, found, "warnings: %v", run.Warnings)
}

func TestPipelineHonorsAdjustmentOverride(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	require.NoError(t, err)
	g, err := testkit.Graph()
	require.NoError(t, err)

	cfg := pipelineConfig(t)
	cfg.AdjustmentOverride = map[core.VariableKey][]core.VariableKey{
		testkit.ColRidership: {testkit.ColPopulation},
	}
	pipeline, err := NewPipeline(cfg, rng.NewSeededSource())
	require.NoError(t, err)

	run, err := pipeline.Run(context.Background(), p, g)
	require.NoError(t, err)
	require.Len(t, run.Estimands, 1)
	require.True(t, run.Estimands[0].Overridden)
}

func TestPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SubsetFraction = 2.0
	_, err := NewPipeline(cfg, rng.NewSeededSource())
	require.Error(t, err)
}

func TestPipelineIsReproduciblePerSeed(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	require.NoError(t, err)
	g, err := testkit.Graph()
	require.NoError(t, err)

	runOnce := func() *causal.AnalysisRun {
		pipeline, err := NewPipeline(pipelineConfig(t), rng.NewSeededSource())
		require.NoError(t, err)
		run, err := pipeline.Run(context.Background(), p, g)
		require.NoError(t, err)
		return run
	}

	first, second := runOnce(), runOnce()
	require.Equal(t, first.Estimates, second.Estimates)
	require.Equal(t, first.Refutations, second.Refutations)
	require.Equal(t, first.Counterfactuals, second.Counterfactuals)
	require.Equal(t, first.Intervals, second.Intervals)
}
