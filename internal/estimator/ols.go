package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"transitcausal/domain/core"
)

// olsFit holds the output of an ordinary least squares fit.
type olsFit struct {
	coefs   []float64 // intercept first
	stdErrs []float64
	df      int // residual degrees of freedom
	n       int
}

// fitOLS solves y ~ [1, X...] via the normal equations and returns
// coefficients with their classical standard errors. Rows must already be
// complete cases.
func fitOLS(y []float64, predictors [][]float64) (*olsFit, error) {
	n := len(y)
	k := len(predictors) + 1 // plus intercept
	if n <= k {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", core.ErrInsufficientData, n, k)
	}
	for _, p := range predictors {
		if len(p) != n {
			return nil, fmt.Errorf("%w: predictor length %d does not match outcome length %d",
				core.ErrColumnContract, len(p), n)
		}
	}

	X := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1.0)
		for j, p := range predictors {
			X.Set(i, j+1, p[i])
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	// (X'X) beta = X'y
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("design matrix is singular (collinear adjustment set): %w", err)
	}
	var beta mat.VecDense
	beta.MulVec(&xtxInv, &xty)

	// residual variance
	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}
	df := n - k
	sigma2 := rss / float64(df)

	coefs := make([]float64, k)
	stdErrs := make([]float64, k)
	for j := 0; j < k; j++ {
		coefs[j] = beta.AtVec(j)
		stdErrs[j] = math.Sqrt(sigma2 * xtxInv.At(j, j))
	}

	return &olsFit{coefs: coefs, stdErrs: stdErrs, df: df, n: n}, nil
}

// tPValue returns the two-sided p-value for a t statistic with df degrees
// of freedom.
func tPValue(t float64, df int) float64 {
	if df <= 0 {
		return 1.0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	p := 2 * (1 - dist.CDF(math.Abs(t)))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// tCritical returns the two-sided critical value for the given interval
// level (e.g. 0.95 -> ~1.96 for large df).
func tCritical(level float64, df int) float64 {
	if df <= 0 {
		return math.NaN()
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return dist.Quantile(1 - (1-level)/2)
}
