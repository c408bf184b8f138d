// Package bootstrap constructs percentile intervals around scenario
// impacts by resampling entities with replacement and rerunning the
// estimate-then-simulate pipeline on each replica.
package bootstrap

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal"
	"transitcausal/internal/config"
	"transitcausal/internal/estimator"
	"transitcausal/internal/simulate"
	"transitcausal/ports"
)

// ProgressFunc receives completed and total resample counts. Called from
// worker goroutines under a lock, so implementations may be plain.
type ProgressFunc func(done, total int)

// Quantifier runs the entity bootstrap. Resamples draw independent seeded
// streams keyed by resample index, so results are identical for a given
// seed regardless of worker scheduling.
type Quantifier struct {
	cfg      config.RunConfig
	rng      ports.RNGPort
	logger   *internal.Logger
	progress ProgressFunc
}

func New(cfg config.RunConfig, rng ports.RNGPort) *Quantifier {
	return &Quantifier{cfg: cfg, rng: rng, logger: internal.DefaultLogger}
}

// WithProgress registers a completion callback for long runs.
func (q *Quantifier) WithProgress(fn ProgressFunc) *Quantifier {
	q.progress = fn
	return q
}

// scenarioKey addresses one (scenario, outcome) cell of the aggregate.
type scenarioKey struct {
	scenario string
	outcome  core.VariableKey
}

// replicaStats is one resample's aggregate impact per cell.
type replicaStats map[scenarioKey]float64

// Quantify builds one interval per (scenario, outcome). The point value
// comes from the full panel; lower and upper come from the resample
// distribution's percentiles. A cancelled context discards all partial
// results.
func (q *Quantifier) Quantify(ctx context.Context, p *panel.Panel, treatment core.VariableKey,
	estimands []causal.IdentifiedEstimand, scenarios []causal.Scenario) ([]causal.ScenarioInterval, error) {

	if err := q.cfg.RequireSeed(); err != nil {
		return nil, err
	}
	entities := p.EntityIDs()
	if len(entities) < q.cfg.BootstrapMinEntities {
		return nil, core.NewInsufficientSampleError(len(entities), q.cfg.BootstrapMinEntities)
	}
	if len(scenarios) == 0 {
		scenarios = q.cfg.Scenarios
	}

	point, err := q.replicaImpacts(p, treatment, estimands, scenarios)
	if err != nil {
		return nil, err
	}

	n := q.cfg.BootstrapResamples
	samples := make([]replicaStats, n)
	failures := 0

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for r := 0; r < n; r++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(r int) {
			defer sem.Release(1)
			defer wg.Done()

			stream := q.rng.SeededStream(fmt.Sprintf("bootstrap/%d", r), q.cfg.BootstrapSeed)
			replica := p.ResampleEntities(stream)
			rep, err := q.replicaImpacts(replica, treatment, estimands, scenarios)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				q.logger.Debug("bootstrap resample %d skipped: %v", r, err)
			} else {
				samples[r] = rep
			}
			done++
			if q.progress != nil {
				q.progress(done, n)
			}
		}(r)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == n {
		return nil, fmt.Errorf("bootstrap: all %d resamples failed estimation", n)
	}
	if failures > 0 {
		q.logger.Warn("bootstrap: %d of %d resamples failed and were excluded", failures, n)
	}

	return q.assemble(point, samples, n-failures), nil
}

// replicaImpacts estimates effects on one panel and aggregates simulated
// impacts to the mean relative impact per cell.
func (q *Quantifier) replicaImpacts(p *panel.Panel, treatment core.VariableKey,
	estimands []causal.IdentifiedEstimand, scenarios []causal.Scenario) (replicaStats, error) {

	est := estimator.New(q.cfg)
	var estimates []causal.EffectEstimate
	for _, e := range estimands {
		if !e.Identifiable {
			continue
		}
		eff, err := est.AdjustedRegression(p, treatment, e)
		if err != nil {
			return nil, err
		}
		estimates = append(estimates, eff)
	}
	if len(estimates) == 0 {
		return nil, fmt.Errorf("bootstrap: no identifiable outcome to estimate")
	}

	sim, err := simulate.New(q.cfg).Simulate(p, treatment, estimates, scenarios)
	if err != nil {
		return nil, err
	}

	sums := make(map[scenarioKey]float64)
	counts := make(map[scenarioKey]int)
	for _, rec := range sim.Outcomes {
		k := scenarioKey{scenario: rec.Scenario, outcome: rec.Outcome}
		sums[k] += rec.RelativeImpact
		counts[k]++
	}
	out := make(replicaStats, len(sums))
	for k, s := range sums {
		out[k] = s / float64(counts[k])
	}
	return out, nil
}

// assemble turns per-replica aggregates into sorted percentile intervals.
func (q *Quantifier) assemble(point replicaStats, samples []replicaStats, resamples int) []causal.ScenarioInterval {
	keys := make([]scenarioKey, 0, len(point))
	for k := range point {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].scenario != keys[j].scenario {
			return keys[i].scenario < keys[j].scenario
		}
		return keys[i].outcome < keys[j].outcome
	})

	tail := (1 - q.cfg.IntervalLevel) / 2 * 100
	intervals := make([]causal.ScenarioInterval, 0, len(keys))
	for _, k := range keys {
		draws := make([]float64, 0, len(samples))
		for _, s := range samples {
			if s == nil {
				continue
			}
			if v, ok := s[k]; ok {
				draws = append(draws, v)
			}
		}
		if len(draws) == 0 {
			continue
		}
		sort.Float64s(draws)
		intervals = append(intervals, causal.ScenarioInterval{
			Scenario:  k.scenario,
			Outcome:   k.outcome,
			Point:     point[k],
			Lower:     percentile(draws, tail),
			Upper:     percentile(draws, 100-tail),
			Level:     q.cfg.IntervalLevel,
			Resamples: resamples,
		})
	}
	return intervals
}

// percentile is the nearest-rank empirical percentile over ascending
// draws. Ranks past either end clamp to the extreme observation, so a
// small resample count still yields an interval instead of an error.
func percentile(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
