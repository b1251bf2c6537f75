package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestRMSE(t *testing.T) {

	type test struct {
		pred  []float64
		truth []float64
		score float64
		err   bool
	}

	tests := map[string]test{
		"zero-iff-equal": {
			pred:  []float64{1, 2, 3, 4},
			truth: []float64{1, 2, 3, 4},
			score: 0,
		},
		"unit-offset": {
			pred:  []float64{1, 1, 1, 1},
			truth: []float64{0, 0, 0, 0},
			score: 1,
		},
		"mixed": {
			pred:  []float64{0, 0, 0, 0},
			truth: []float64{2, 0, 0, 0},
			score: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			pred := mat.NewDense(2, 2, tt.pred)
			truth := mat.NewDense(2, 2, tt.truth)

			score, err := RMSE(pred, truth)
			assert.NoError(t, err)
			assert.InDelta(t, tt.score, score, 1e-9)

			// symmetric in the sign of the difference
			flipped, err := RMSE(truth, pred)
			assert.NoError(t, err)
			assert.InDelta(t, score, flipped, 1e-9)
		})
	}
}

func TestRMSE_ShapeMismatch(t *testing.T) {
	_, err := RMSE(mat.NewDense(2, 2, nil), mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestHStack(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 1, []float64{5, 6})

	out := HStack(a, b)
	r, c := out.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 5.0, out.At(0, 2))
	assert.Equal(t, 6.0, out.At(1, 2))

	// nil right side returns a copy of the left
	same := HStack(a, nil)
	assert.True(t, mat.Equal(a, same))
}

func TestRowsCols(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		0, 1, 2,
		3, 4, 5,
		6, 7, 8,
	})

	rows := Rows(m, []int{2, 0})
	assert.Equal(t, 6.0, rows.At(0, 0))
	assert.Equal(t, 0.0, rows.At(1, 0))

	cols := Cols(m, []int{1})
	r, c := cols.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, 7.0, cols.At(2, 0))
}
