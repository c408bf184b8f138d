// Package estimator computes treatment effect estimates from an
// identified estimand and a panel, using two independent strategies so
// callers can cross-check methods against each other.
package estimator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/domain/panel"
	"transitcausal/internal/config"
)

// Estimator reads the panel and produces effect estimates. It holds no
// mutable state; every call constructs fresh results.
type Estimator struct {
	cfg config.RunConfig
}

// New creates an estimator bound to an immutable configuration.
func New(cfg config.RunConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate runs both methods for the estimand's outcome and reports them
// side by side. Rows with any missing value among outcome, treatment or
// adjustment columns are excluded, never imputed. Estimates below the
// configured minimum sample are flagged low power rather than suppressed.
func (e *Estimator) Estimate(p *panel.Panel, treatment core.VariableKey, estimand causal.IdentifiedEstimand) ([]causal.EffectEstimate, error) {
	if !estimand.Identifiable {
		return nil, core.NewNotIdentifiableError(estimand.Outcome.String(), "estimand is not identifiable")
	}

	reg, err := e.AdjustedRegression(p, treatment, estimand)
	if err != nil {
		return nil, err
	}
	match, err := e.PropensityMatching(p, treatment, estimand)
	if err != nil {
		return nil, err
	}
	return []causal.EffectEstimate{reg, match}, nil
}

// AdjustedRegression fits outcome ~ treatment + adjustment set and reads
// the treatment coefficient as the effect.
func (e *Estimator) AdjustedRegression(p *panel.Panel, treatment core.VariableKey, estimand causal.IdentifiedEstimand) (causal.EffectEstimate, error) {
	cols := append([]core.VariableKey{estimand.Outcome, treatment}, estimand.AdjustmentSet...)
	complete, err := p.CompleteCases(cols...)
	if err != nil {
		return causal.EffectEstimate{}, err
	}

	y, _ := complete.Column(estimand.Outcome)
	t, _ := complete.Column(treatment)

	predictors := [][]float64{t}
	for _, z := range estimand.AdjustmentSet {
		col, _ := complete.Column(z)
		predictors = append(predictors, col)
	}

	fit, err := fitOLS(y, predictors)
	if err != nil {
		return causal.EffectEstimate{}, fmt.Errorf("adjusted regression for %s: %w", estimand.Outcome, err)
	}

	// treatment coefficient sits after the intercept
	point := fit.coefs[1]
	se := fit.stdErrs[1]
	tc := tCritical(e.cfg.IntervalLevel, fit.df)

	est := causal.EffectEstimate{
		Outcome:    estimand.Outcome,
		Method:     causal.MethodAdjustedRegression,
		Point:      point,
		StdErr:     se,
		CILower:    point - tc*se,
		CIUpper:    point + tc*se,
		PValue:     tPValue(point/se, fit.df),
		SampleSize: fit.n,
		LowPower:   fit.n < e.cfg.MinSampleForEstimate,
	}
	return est, nil
}

// PropensityMatching binarizes the treatment at its median, fits a
// logistic propensity score on the adjustment set, matches each unit to
// its nearest neighbor in the opposite group, and reads the matched-pair
// outcome difference scaled per treatment unit so the result is
// comparable with the regression coefficient.
func (e *Estimator) PropensityMatching(p *panel.Panel, treatment core.VariableKey, estimand causal.IdentifiedEstimand) (causal.EffectEstimate, error) {
	cols := append([]core.VariableKey{estimand.Outcome, treatment}, estimand.AdjustmentSet...)
	complete, err := p.CompleteCases(cols...)
	if err != nil {
		return causal.EffectEstimate{}, err
	}

	y, _ := complete.Column(estimand.Outcome)
	t, _ := complete.Column(treatment)
	covariates := make([][]float64, 0, len(estimand.AdjustmentSet))
	for _, z := range estimand.AdjustmentSet {
		col, _ := complete.Column(z)
		covariates = append(covariates, col)
	}

	treated, _ := splitByMedian(t)
	nTreated, nControl := 0, 0
	for _, b := range treated {
		if b {
			nTreated++
		} else {
			nControl++
		}
	}
	if nTreated < 2 || nControl < 2 {
		return causal.EffectEstimate{}, fmt.Errorf("%w: %d treated vs %d control units after median split",
			core.ErrInsufficientData, nTreated, nControl)
	}

	scores, err := fitPropensity(treated, covariates)
	if err != nil {
		return causal.EffectEstimate{}, fmt.Errorf("propensity matching for %s: %w", estimand.Outcome, err)
	}

	// 1:1 nearest-neighbor matching with replacement, both directions,
	// so the contrast approximates an ATE rather than an ATT.
	outcomeDiffs, treatDiffs := matchPairs(y, t, scores, treated)
	if len(outcomeDiffs) < 2 {
		return causal.EffectEstimate{}, fmt.Errorf("%w: no matched pairs formed", core.ErrInsufficientData)
	}

	meanDY, _ := stats.Mean(outcomeDiffs)
	meanDT, _ := stats.Mean(treatDiffs)
	if meanDT == 0 {
		return causal.EffectEstimate{}, fmt.Errorf("%w: matched groups have identical treatment levels",
			core.ErrInsufficientData)
	}
	point := meanDY / meanDT

	sdDY, _ := stats.StandardDeviationSample(outcomeDiffs)
	se := sdDY / (math.Abs(meanDT) * math.Sqrt(float64(len(outcomeDiffs))))
	df := len(outcomeDiffs) - 1
	tc := tCritical(e.cfg.IntervalLevel, df)

	est := causal.EffectEstimate{
		Outcome:    estimand.Outcome,
		Method:     causal.MethodPropensityMatching,
		Point:      point,
		StdErr:     se,
		CILower:    point - tc*se,
		CIUpper:    point + tc*se,
		PValue:     tPValue(point/se, df),
		SampleSize: complete.NumRows(),
		LowPower:   complete.NumRows() < e.cfg.MinSampleForEstimate,
	}
	return est, nil
}

// matchPairs pairs each unit with the nearest opposite-group unit by
// propensity score and returns the per-pair (high minus low) outcome and
// treatment differences.
func matchPairs(y, t, scores []float64, treated []bool) (outcomeDiffs, treatDiffs []float64) {
	var treatedIdx, controlIdx []int
	for i, b := range treated {
		if b {
			treatedIdx = append(treatedIdx, i)
		} else {
			controlIdx = append(controlIdx, i)
		}
	}

	nearest := func(i int, pool []int) int {
		best, bestDist := -1, math.Inf(1)
		for _, j := range pool {
			d := math.Abs(scores[i] - scores[j])
			if d < bestDist {
				best, bestDist = j, d
			}
		}
		return best
	}

	for _, i := range treatedIdx {
		j := nearest(i, controlIdx)
		outcomeDiffs = append(outcomeDiffs, y[i]-y[j])
		treatDiffs = append(treatDiffs, t[i]-t[j])
	}
	for _, j := range controlIdx {
		i := nearest(j, treatedIdx)
		outcomeDiffs = append(outcomeDiffs, y[i]-y[j])
		treatDiffs = append(treatDiffs, t[i]-t[j])
	}
	return outcomeDiffs, treatDiffs
}
