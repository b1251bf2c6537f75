package math

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RMSE returns the root mean squared error between the two matrices,
// flattened across all columns. It is zero iff pred equals truth.
func RMSE(pred, truth mat.Matrix) (float64, error) {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()
	if pr != tr || pc != tc {
		return 0, fmt.Errorf("cannot score (%d,%d) against (%d,%d)", pr, pc, tr, tc)
	}
	if pr == 0 || pc == 0 {
		return 0, fmt.Errorf("cannot score empty matrix (%d,%d)", pr, pc)
	}
	var sum float64
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			d := pred.At(i, j) - truth.At(i, j)
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(pr*pc)), nil
}

// HStack returns the horizontal concatenation of a and b.
// A nil or zero-width b returns a copy of a.
func HStack(a, b mat.Matrix) *mat.Dense {
	if b == nil {
		return mat.DenseCopyOf(a)
	}
	if _, bc := b.Dims(); bc == 0 {
		return mat.DenseCopyOf(a)
	}
	var out mat.Dense
	out.Augment(a, b)
	return &out
}

// Rows returns a copy of the given rows of m, in the given order.
func Rows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		for j := 0; j < c; j++ {
			out.Set(k, j, m.At(i, j))
		}
	}
	return out
}

// Cols returns a copy of the given columns of m, in the given order.
func Cols(m mat.Matrix, idx []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for i := 0; i < r; i++ {
		for k, j := range idx {
			out.Set(i, k, m.At(i, j))
		}
	}
	return out
}
