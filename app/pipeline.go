// Package app orchestrates the full analysis pipeline: identification,
// estimation, refutation, counterfactual simulation and uncertainty
// quantification, producing one persistent AnalysisRun.
package app

import (
	"context"
	"fmt"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal"
	"transitcausal/internal/bootstrap"
	"transitcausal/internal/config"
	"transitcausal/internal/estimator"
	"transitcausal/internal/identify"
	"transitcausal/internal/refuter"
	"transitcausal/internal/simulate"
	"transitcausal/ports"
)

// Pipeline runs the analysis stages in order. A malformed graph or
// config is fatal; a single outcome failing identification is recorded
// and skipped; an unavailable uncertainty step degrades to a warning.
type Pipeline struct {
	cfg      config.RunConfig
	rng      ports.RNGPort
	logger   *internal.Logger
	progress bootstrap.ProgressFunc
}

// NewPipeline validates the configuration and wires the stages.
func NewPipeline(cfg config.RunConfig, rng ports.RNGPort) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, rng: rng, logger: internal.DefaultLogger}, nil
}

// WithProgress registers a bootstrap progress callback.
func (pl *Pipeline) WithProgress(fn bootstrap.ProgressFunc) *Pipeline {
	pl.progress = fn
	return pl
}

// Run executes every stage against the panel and graph.
func (pl *Pipeline) Run(ctx context.Context, p *panel.Panel, g *causal.Graph) (*causal.AnalysisRun, error) {
	run := causal.NewAnalysisRun(g.Treatment(), p.Fingerprint(), pl.cfg.BootstrapSeed)
	run.Warnings = append(run.Warnings, g.Warnings()...)

	pl.identifyOutcomes(run, g)

	regressionEstimates, err := pl.estimateEffects(run, p)
	if err != nil {
		return nil, err
	}
	if len(regressionEstimates) == 0 {
		pl.logger.Warn("run %s: no outcome was identifiable; skipping downstream stages", run.ID)
		return run, nil
	}

	if err := pl.refuteEstimates(run, p, regressionEstimates); err != nil {
		return nil, err
	}
	if err := pl.simulateScenarios(run, p, regressionEstimates); err != nil {
		return nil, err
	}
	if err := pl.quantifyUncertainty(ctx, run, p); err != nil {
		return nil, err
	}

	pl.logger.Info("run %s complete: %d estimates, %d refutations, %d projections, %d intervals",
		run.ID, len(run.Estimates), len(run.Refutations), len(run.Counterfactuals), len(run.Intervals))
	return run, nil
}

// identifyOutcomes resolves the adjustment set per outcome. Failure to
// identify one outcome never aborts the run; the outcome is recorded as
// not identifiable and skipped downstream.
func (pl *Pipeline) identifyOutcomes(run *causal.AnalysisRun, g *causal.Graph) {
	identifier := identify.New()
	for _, outcome := range g.Outcomes() {
		var estimand causal.IdentifiedEstimand
		var err error
		if override, ok := pl.cfg.AdjustmentOverride[outcome]; ok {
			estimand, err = identifier.Override(g, outcome, override)
		} else {
			estimand, err = identifier.Identify(g, outcome)
		}
		if err != nil {
			if core.IsNotIdentifiableError(err) {
				pl.logger.Warn("outcome %s skipped: %v", outcome, err)
				run.Warnings = append(run.Warnings,
					fmt.Sprintf("outcome %s is not identifiable: %v", outcome, err))
				run.Estimands = append(run.Estimands, causal.IdentifiedEstimand{
					Outcome:      outcome,
					Identifiable: false,
					Rationale:    err.Error(),
				})
				continue
			}
			// Override validation failures land here and are recorded the
			// same way; the declared variable set is the caller's claim.
			pl.logger.Warn("outcome %s override rejected: %v", outcome, err)
			run.Warnings = append(run.Warnings,
				fmt.Sprintf("outcome %s adjustment override rejected: %v", outcome, err))
			continue
		}
		run.Estimands = append(run.Estimands, estimand)
	}
}

// estimateEffects runs both estimation methods per identifiable outcome
// and returns the regression estimates that feed the later stages.
func (pl *Pipeline) estimateEffects(run *causal.AnalysisRun, p *panel.Panel) ([]causal.EffectEstimate, error) {
	est := estimator.New(pl.cfg)
	var regressionEstimates []causal.EffectEstimate
	for _, estimand := range run.Estimands {
		if !estimand.Identifiable {
			continue
		}
		estimates, err := est.Estimate(p, run.Treatment, estimand)
		if err != nil {
			return nil, err
		}
		run.Estimates = append(run.Estimates, estimates...)
		for _, e := range estimates {
			if e.LowPower {
				run.Warnings = append(run.Warnings, fmt.Sprintf(
					"estimate for %s via %s is low power (n=%d)", e.Outcome, e.Method, e.SampleSize))
			}
			if e.Method == causal.MethodAdjustedRegression {
				regressionEstimates = append(regressionEstimates, e)
			}
		}
	}
	return regressionEstimates, nil
}

func (pl *Pipeline) refuteEstimates(run *causal.AnalysisRun, p *panel.Panel,
	estimates []causal.EffectEstimate) error {

	battery := refuter.NewBattery(pl.cfg, pl.rng)
	for _, e := range estimates {
		estimand, ok := findEstimand(run.Estimands, e.Outcome)
		if !ok {
			continue
		}
		results, err := battery.Run(p, run.Treatment, estimand, e)
		if err != nil {
			return err
		}
		run.Refutations = append(run.Refutations, results...)
	}
	passed, total := run.RefutationsPassed()
	if total > 0 && passed < total {
		run.Warnings = append(run.Warnings,
			fmt.Sprintf("%d of %d refutation tests failed", total-passed, total))
	}
	return nil
}

func (pl *Pipeline) simulateScenarios(run *causal.AnalysisRun, p *panel.Panel,
	estimates []causal.EffectEstimate) error {

	if len(pl.cfg.Scenarios) == 0 {
		pl.logger.Info("run %s: no scenarios configured, skipping simulation", run.ID)
		return nil
	}
	res, err := simulate.New(pl.cfg).Simulate(p, run.Treatment, estimates, pl.cfg.Scenarios)
	if err != nil {
		return err
	}
	run.Counterfactuals = res.Outcomes
	run.Warnings = append(run.Warnings, res.Warnings...)
	return nil
}

// quantifyUncertainty runs the entity bootstrap. A missing seed or too
// few entities makes the intervals unavailable without failing the run.
func (pl *Pipeline) quantifyUncertainty(ctx context.Context, run *causal.AnalysisRun, p *panel.Panel) error {
	if len(run.Counterfactuals) == 0 {
		return nil
	}
	if err := pl.cfg.RequireSeed(); err != nil {
		run.Warnings = append(run.Warnings, "interval unavailable: no bootstrap seed supplied")
		return nil
	}
	q := bootstrap.New(pl.cfg, pl.rng).WithProgress(pl.progress)
	intervals, err := q.Quantify(ctx, p, run.Treatment, run.Estimands, pl.cfg.Scenarios)
	if err != nil {
		if core.IsInsufficientSampleError(err) {
			pl.logger.Warn("run %s: %v", run.ID, err)
			run.Warnings = append(run.Warnings, fmt.Sprintf("interval unavailable: %v", err))
			return nil
		}
		return err
	}
	run.Intervals = intervals
	return nil
}

func findEstimand(estimands []causal.IdentifiedEstimand, outcome core.VariableKey) (causal.IdentifiedEstimand, bool) {
	for _, e := range estimands {
		if e.Outcome == outcome {
			return e, true
		}
	}
	return causal.IdentifiedEstimand{}, false
}
