package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Ridge is a multi-output linear estimator solved by normal equations with
// L2 regularization. It has no internal parallelism knob.
type Ridge struct {
	lambda float64
	beta   *mat.Dense
}

// NewRidge constructs a ridge estimator; params: lambda (default 1).
func NewRidge(p Params) Estimator {
	return &Ridge{lambda: p.Get("lambda", 1)}
}

// Fit solves (Xb^T Xb + lambda I) B = Xb^T Y for B, with a bias column.
func (r *Ridge) Fit(x, y mat.Matrix) error {
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return fmt.Errorf("%d feature rows for %d target rows: %w", xr, yr, ErrShapeMismatch)
	}

	xb := withBias(x)
	_, d := xb.Dims()

	var a mat.Dense
	a.Mul(xb.T(), xb)
	for i := 0; i < d; i++ {
		a.Set(i, i, a.At(i, i)+r.lambda)
	}

	var b mat.Dense
	b.Mul(xb.T(), y)

	var beta mat.Dense
	if err := beta.Solve(&a, &b); err != nil {
		return fmt.Errorf("could not solve ridge system: %w", err)
	}
	r.beta = &beta
	return nil
}

// Predict applies the fitted coefficients.
func (r *Ridge) Predict(x mat.Matrix) (*mat.Dense, error) {
	if r.beta == nil {
		return nil, ErrNotFitted
	}
	br, _ := r.beta.Dims()
	xb := withBias(x)
	if _, xc := xb.Dims(); xc != br {
		return nil, fmt.Errorf("%d features for %d coefficients: %w", xc, br, ErrShapeMismatch)
	}
	var out mat.Dense
	out.Mul(xb, r.beta)
	return &out, nil
}

func withBias(x mat.Matrix) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			out.Set(i, j+1, x.At(i, j))
		}
	}
	return out
}
