package bootstrap

import (
	"context"
	"testing"

	"transitcausal/adapters/rng"
	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/internal/config"
	"transitcausal/internal/testkit"
)

func bootstrapConfig(resamples int) config.RunConfig {
	cfg := config.Default().WithSeed(42)
	cfg.BootstrapResamples = resamples
	return cfg.WithScenarios(testkit.Scenarios()...)
}

func testEstimands() []causal.IdentifiedEstimand {
	return []causal.IdentifiedEstimand{{
		Outcome:       testkit.ColRidership,
		AdjustmentSet: []core.VariableKey{testkit.ColPopulation},
		Identifiable:  true,
	}}
}

func TestQuantifyRequiresExplicitSeed(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	cfg := config.Default().WithScenarios(testkit.Scenarios()...)

	q := New(cfg, rng.NewSeededSource())
	_, err = q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
	if err == nil {
		t.Fatal("expected seed required error")
	}
}

func TestQuantifyRejectsTooFewEntities(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.PanelSpec{
		Entities: 3, Periods: 10, Effect: 2.5, Noise: 0.5, Seed: 1,
	})
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}

	q := New(bootstrapConfig(20), rng.NewSeededSource())
	_, err = q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
	if !core.IsInsufficientSampleError(err) {
		t.Fatalf("expected insufficient sample error, got %v", err)
	}
}

func TestQuantifyProducesOrderedIntervals(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}

	q := New(bootstrapConfig(50), rng.NewSeededSource())
	intervals, err := q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
	if err != nil {
		t.Fatalf("Quantify: %v", err)
	}
	if len(intervals) == 0 {
		t.Fatal("expected intervals")
	}
	for _, iv := range intervals {
		if iv.Lower > iv.Upper {
			t.Errorf("interval inverted for %s/%s: [%v, %v]", iv.Scenario, iv.Outcome, iv.Lower, iv.Upper)
		}
		if iv.Level != config.DefaultIntervalLevel {
			t.Errorf("level = %v", iv.Level)
		}
		if iv.Resamples != 50 {
			t.Errorf("resamples = %d", iv.Resamples)
		}
	}
}

func TestQuantifyIsReproduciblePerSeed(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	cfg := bootstrapConfig(30)

	run := func() []causal.ScenarioInterval {
		q := New(cfg, rng.NewSeededSource())
		intervals, err := q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
		if err != nil {
			t.Fatalf("Quantify: %v", err)
		}
		return intervals
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("interval counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("interval %d differs between identical seeds:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

// Resample counts small enough that the 2.5 percentile rank falls below
// the first draw must still yield an interval, clamped to the extremes.
func TestQuantifySupportsSmallResampleCounts(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}

	q := New(bootstrapConfig(8), rng.NewSeededSource())
	intervals, err := q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
	if err != nil {
		t.Fatalf("Quantify: %v", err)
	}
	if len(intervals) == 0 {
		t.Fatal("expected intervals")
	}
	for _, iv := range intervals {
		if iv.Lower > iv.Upper {
			t.Errorf("interval inverted for %s/%s: [%v, %v]", iv.Scenario, iv.Outcome, iv.Lower, iv.Upper)
		}
		if iv.Resamples != 8 {
			t.Errorf("resamples = %d", iv.Resamples)
		}
	}
}

func TestPercentileClampsToExtremes(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 2.5); got != 1 {
		t.Errorf("percentile(2.5) = %v, want 1", got)
	}
	if got := percentile(sorted, 97.5); got != 10 {
		t.Errorf("percentile(97.5) = %v, want 10", got)
	}
	if got := percentile(sorted, 50); got != 5 {
		t.Errorf("percentile(50) = %v, want 5", got)
	}
	if got := percentile([]float64{3.5}, 2.5); got != 3.5 {
		t.Errorf("single-draw percentile = %v, want 3.5", got)
	}
}

// With a known injected effect, the reported interval should contain the
// implied true scenario impact in the large majority of seeded runs.
func TestIntervalCoversInjectedEffect(t *testing.T) {
	spec := testkit.PanelSpec{Entities: 30, Periods: 10, Effect: 2.5, Noise: 0.5, Seed: 5}
	p, err := testkit.BuildPanel(spec)
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}

	inv, err := p.Column(testkit.ColInvestment)
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	rid, err := p.Column(testkit.ColRidership)
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	trueElast := spec.Effect * mean(inv) / mean(rid)
	multipliers := map[string]float64{}
	for _, sc := range testkit.Scenarios() {
		multipliers[sc.Name] = sc.Value
	}

	const runs = 20
	covered := 0
	for s := int64(0); s < runs; s++ {
		cfg := config.Default().WithSeed(100 + s).WithScenarios(testkit.Scenarios()...)
		cfg.BootstrapResamples = 60

		q := New(cfg, rng.NewSeededSource())
		intervals, err := q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil)
		if err != nil {
			t.Fatalf("Quantify (seed %d): %v", 100+s, err)
		}
		ok := len(intervals) > 0
		for _, iv := range intervals {
			truth := trueElast * (multipliers[iv.Scenario] - 1)
			if truth < iv.Lower || truth > iv.Upper {
				ok = false
			}
		}
		if ok {
			covered++
		}
	}
	if covered < 17 {
		t.Errorf("interval covered the injected effect in %d of %d runs, want at least 17", covered, runs)
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func TestQuantifyHonorsCancellation(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := New(bootstrapConfig(500), rng.NewSeededSource())
	if _, err := q.Quantify(ctx, p, testkit.ColInvestment, testEstimands(), nil); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestProgressCallbackReachesTotal(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	var last int
	q := New(bootstrapConfig(10), rng.NewSeededSource()).WithProgress(func(done, total int) {
		if done > last {
			last = done
		}
		if total != 10 {
			t.Errorf("total = %d", total)
		}
	})
	if _, err := q.Quantify(context.Background(), p, testkit.ColInvestment, testEstimands(), nil); err != nil {
		t.Fatalf("Quantify: %v", err)
	}
	if last != 10 {
		t.Errorf("progress peaked at %d, want 10", last)
	}
}

// A replica may repeat (entity, period) keys; that is accepted for
// ephemeral bootstrap panels.
func TestReplicaAllowsRepeatedEntities(t *testing.T) {
	p, err := testkit.BuildPanel(testkit.DefaultSpec())
	if err != nil {
		t.Fatalf("BuildPanel: %v", err)
	}
	stream := rng.NewSeededSource().SeededStream("bootstrap/0", 42)
	replica := p.ResampleEntities(stream)
	if replica.NumRows() == 0 {
		t.Fatal("empty replica")
	}
	if got := replica.Fingerprint(); got == "" {
		t.Error("replica should still fingerprint")
	}
}
