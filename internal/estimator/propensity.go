package estimator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"transitcausal/domain/core"
)

const (
	irlsMaxIter = 50
	irlsTol     = 1e-8
	probFloor   = 1e-6
)

// fitPropensity fits a logistic regression of a binary treatment
// indicator on the adjustment covariates via iteratively reweighted
// least squares, and returns the fitted propensity score per row.
func fitPropensity(treated []bool, covariates [][]float64) ([]float64, error) {
	n := len(treated)
	k := len(covariates) + 1
	if n <= k {
		return nil, fmt.Errorf("%w: %d rows for %d propensity coefficients", core.ErrInsufficientData, n, k)
	}

	X := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1.0)
		for j, c := range covariates {
			X.Set(i, j+1, c[i])
		}
	}
	y := make([]float64, n)
	for i, t := range treated {
		if t {
			y[i] = 1.0
		}
	}

	beta := make([]float64, k)
	scores := make([]float64, n)

	for iter := 0; iter < irlsMaxIter; iter++ {
		// p_i = sigmoid(x_i . beta), W = diag(p(1-p))
		w := make([]float64, n)
		z := make([]float64, n)
		for i := 0; i < n; i++ {
			eta := 0.0
			for j := 0; j < k; j++ {
				eta += X.At(i, j) * beta[j]
			}
			p := 1.0 / (1.0 + math.Exp(-eta))
			p = clampProb(p)
			scores[i] = p
			wi := p * (1 - p)
			w[i] = wi
			z[i] = eta + (y[i]-p)/wi
		}

		// Solve (X' W X) beta = X' W z
		xtwx := mat.NewDense(k, k, nil)
		xtwz := make([]float64, k)
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				s := 0.0
				for i := 0; i < n; i++ {
					s += X.At(i, a) * w[i] * X.At(i, b)
				}
				xtwx.Set(a, b, s)
			}
			s := 0.0
			for i := 0; i < n; i++ {
				s += X.At(i, a) * w[i] * z[i]
			}
			xtwz[a] = s
		}

		var inv mat.Dense
		if err := inv.Inverse(xtwx); err != nil {
			return nil, fmt.Errorf("propensity design matrix is singular: %w", err)
		}
		next := make([]float64, k)
		maxDelta := 0.0
		for a := 0; a < k; a++ {
			v := 0.0
			for b := 0; b < k; b++ {
				v += inv.At(a, b) * xtwz[b]
			}
			next[a] = v
			if d := math.Abs(v - beta[a]); d > maxDelta {
				maxDelta = d
			}
		}
		beta = next
		if maxDelta < irlsTol {
			break
		}
	}

	for i := 0; i < n; i++ {
		eta := 0.0
		for j := 0; j < k; j++ {
			eta += X.At(i, j) * beta[j]
		}
		scores[i] = clampProb(1.0 / (1.0 + math.Exp(-eta)))
	}
	return scores, nil
}

func clampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > 1-probFloor {
		return 1 - probFloor
	}
	return p
}

// splitByMedian converts a continuous treatment into a high/low indicator
// at the median level.
func splitByMedian(treatment []float64) ([]bool, float64) {
	sorted := append([]float64(nil), treatment...)
	sort.Float64s(sorted)
	var median float64
	n := len(sorted)
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	treated := make([]bool, len(treatment))
	for i, v := range treatment {
		treated[i] = v > median
	}
	return treated, median
}
