package model

import (
	"fmt"

	"github.com/astroml/galaxy/internal/concurrent"
	randomforest "github.com/malaschitz/randomForest"
	"gonum.org/v1/gonum/mat"
)

// Forest is a random forest regressor built from one classification forest
// per target column: each column is discretized into equal-width bins and
// the prediction is the vote-weighted bin center. It parallelizes across
// target columns, so it exposes the internal parallelism knob.
type Forest struct {
	trees int
	bins  int
	jobs  int
	cols  []forestColumn
	dim   int
}

type forestColumn struct {
	forest   *randomforest.Forest
	centers  []float64
	constant float64
	flat     bool
}

// NewForest constructs a forest estimator; params: trees (default 50),
// bins (default 10).
func NewForest(p Params) Estimator {
	return &Forest{
		trees: int(p.Get("trees", 50)),
		bins:  int(p.Get("bins", 10)),
		jobs:  1,
	}
}

// SetJobs sets the number of workers used across target columns.
func (f *Forest) SetJobs(jobs int) {
	if jobs < 1 {
		jobs = 1
	}
	f.jobs = jobs
}

// Jobs returns the internal worker count.
func (f *Forest) Jobs() int {
	return f.jobs
}

// Fit trains one forest per target column.
func (f *Forest) Fit(x, y mat.Matrix) error {
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if xr != yr {
		return fmt.Errorf("%d feature rows for %d target rows: %w", xr, yr, ErrShapeMismatch)
	}

	rows := toRows(x)
	f.dim = xc
	f.cols = make([]forestColumn, yc)

	return concurrent.Map(f.jobs, yc, func(j int) error {
		min, max := y.At(0, j), y.At(0, j)
		for i := 1; i < yr; i++ {
			v := y.At(i, j)
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if max == min {
			f.cols[j] = forestColumn{flat: true, constant: min}
			return nil
		}

		width := (max - min) / float64(f.bins)
		classes := make([]int, yr)
		for i := 0; i < yr; i++ {
			b := int((y.At(i, j) - min) / width)
			if b >= f.bins {
				b = f.bins - 1
			}
			classes[i] = b
		}
		centers := make([]float64, f.bins)
		for b := 0; b < f.bins; b++ {
			centers[b] = min + (float64(b)+0.5)*width
		}

		forest := &randomforest.Forest{}
		forest.Data = randomforest.ForestData{X: rows, Class: classes}
		forest.Train(f.trees)
		f.cols[j] = forestColumn{forest: forest, centers: centers}
		return nil
	})
}

// Predict returns the vote-weighted bin centers per column.
func (f *Forest) Predict(x mat.Matrix) (*mat.Dense, error) {
	if f.cols == nil {
		return nil, ErrNotFitted
	}
	xr, xc := x.Dims()
	if xc != f.dim {
		return nil, fmt.Errorf("%d features, trained with %d: %w", xc, f.dim, ErrShapeMismatch)
	}

	rows := toRows(x)
	out := mat.NewDense(xr, len(f.cols), nil)
	err := concurrent.Map(f.jobs, len(f.cols), func(j int) error {
		col := f.cols[j]
		for i := 0; i < xr; i++ {
			if col.flat {
				out.Set(i, j, col.constant)
				continue
			}
			votes := col.forest.Vote(rows[i])
			sum, weight := 0.0, 0.0
			for b, v := range votes {
				if b >= len(col.centers) {
					break
				}
				sum += v * col.centers[b]
				weight += v
			}
			if weight > 0 {
				out.Set(i, j, sum/weight)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toRows(x mat.Matrix) [][]float64 {
	r, c := x.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = x.At(i, j)
		}
		rows[i] = row
	}
	return rows
}
