package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// constEstimator predicts a constant value everywhere. No parallelism knob.
type constEstimator struct {
	value  float64
	cols   int
	fitted bool
}

func newConst(p Params) Estimator {
	return &constEstimator{value: p.Get("value", 0)}
}

func (c *constEstimator) Fit(x, y mat.Matrix) error {
	_, c.cols = y.Dims()
	c.fitted = true
	return nil
}

func (c *constEstimator) Predict(x mat.Matrix) (*mat.Dense, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}
	r, _ := x.Dims()
	out := mat.NewDense(r, c.cols, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c.cols; j++ {
			out.Set(i, j, c.value)
		}
	}
	return out, nil
}

// knobEstimator is a constEstimator with an internal parallelism knob.
type knobEstimator struct {
	constEstimator
	jobs int
}

func (k *knobEstimator) SetJobs(jobs int) {
	k.jobs = jobs
}

func (k *knobEstimator) Jobs() int {
	return k.jobs
}

func constMatrix(r, c int, v float64) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, v)
		}
	}
	return out
}

func TestWrapper_Placement(t *testing.T) {

	type test struct {
		factory           Factory
		parallelEstimator bool
		outer             int
		inner             int
	}

	tests := map[string]test{
		"knob-at-estimator": {
			factory:           func(p Params) Estimator { return &knobEstimator{jobs: 1} },
			parallelEstimator: true,
			outer:             1,
			inner:             4,
		},
		"knob-at-folds": {
			factory:           func(p Params) Estimator { return &knobEstimator{jobs: 1} },
			parallelEstimator: false,
			outer:             4,
			inner:             1,
		},
		"no-knob": {
			factory:           newConst,
			parallelEstimator: true,
			outer:             4,
			inner:             1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := NewWrapper(tt.factory, Params{}, 4)
			outer, inner := w.placement(tt.parallelEstimator)
			// workers go to exactly one of the two levels, never both
			assert.Equal(t, tt.outer, outer)
			assert.Equal(t, tt.inner, inner)
		})
	}
}

func TestWrapper_PlacementAppliedToEstimators(t *testing.T) {
	var mu sync.Mutex
	created := make([]*knobEstimator, 0, 4)
	factory := func(p Params) Estimator {
		est := &knobEstimator{jobs: 1}
		mu.Lock()
		created = append(created, est)
		mu.Unlock()
		return est
	}

	x := constMatrix(20, 3, 1)
	y := constMatrix(20, 2, 0.5)

	w := NewWrapper(factory, Params{"value": 0.5}, 4)
	_, err := w.CrossValidate(x, y, CVOptions{Folds: 2, ParallelEstimator: true})
	assert.NoError(t, err)

	// every fitted estimator got the full job count
	fitted := 0
	for _, est := range created {
		if est.fitted {
			assert.Equal(t, 4, est.Jobs())
			fitted++
		}
	}
	assert.Equal(t, 2, fitted)
}

func TestWrapper_CrossValidate(t *testing.T) {
	x := constMatrix(20, 3, 1)
	y := constMatrix(20, 2, 0.5)

	w := NewWrapper(newConst, Params{"value": 0.5}, 2)
	res, err := w.CrossValidate(x, y, CVOptions{Folds: 4})
	assert.NoError(t, err)

	assert.Equal(t, 4, len(res.Scores))
	// predicting the exact target everywhere scores zero
	assert.InDelta(t, 0.0, res.Mean, 1e-9)
	assert.InDelta(t, 0.0, res.StDev, 1e-9)
}

func TestWrapper_CrossValidate_Sampled(t *testing.T) {
	x := constMatrix(40, 3, 1)
	y := constMatrix(40, 2, 0.5)

	w := NewWrapper(newConst, Params{"value": 1}, 2)
	res, err := w.CrossValidate(x, y, CVOptions{Folds: 2, Sample: 0.5})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(res.Scores))
	// constant prediction 1 against constant truth 0.5
	assert.InDelta(t, 0.5, res.Mean, 1e-9)
}

func TestWrapper_CrossValidate_ShapeMismatch(t *testing.T) {
	w := NewWrapper(newConst, Params{}, 1)
	_, err := w.CrossValidate(constMatrix(10, 2, 1), constMatrix(8, 2, 1), CVOptions{Folds: 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestWrapper_GridSearch(t *testing.T) {
	x := constMatrix(20, 3, 1)
	y := constMatrix(20, 2, 0.5)

	w := NewWrapper(newConst, Params{}, 2)
	res, err := w.GridSearch(x, y, map[string][]float64{
		"value": {0, 0.5, 1},
	}, GridOptions{Folds: 2, Refit: true})
	assert.NoError(t, err)

	assert.Equal(t, 3, len(res.Scores))
	assert.Equal(t, 0.5, res.Best["value"])
	assert.InDelta(t, 0.0, res.Score, 1e-9)
	assert.InDelta(t, 0.0, res.Holdout, 1e-9)

	// refit left a usable estimator behind
	pred, err := w.Predict(constMatrix(5, 3, 1))
	assert.NoError(t, err)
	assert.Equal(t, 0.5, pred.At(0, 0))
}

func TestWrapper_GridSearch_Empty(t *testing.T) {
	w := NewWrapper(newConst, Params{}, 1)
	_, err := w.GridSearch(constMatrix(4, 2, 1), constMatrix(4, 2, 1), map[string][]float64{"value": {}}, GridOptions{Folds: 2})
	assert.Error(t, err)
}

func TestWrapper_PredictBeforeFit(t *testing.T) {
	w := NewWrapper(newConst, Params{}, 1)
	_, err := w.Predict(constMatrix(2, 2, 1))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestCartesian(t *testing.T) {
	combos := cartesian(map[string][]float64{
		"a": {1, 2},
		"b": {3, 4, 5},
	})
	assert.Equal(t, 6, len(combos))

	seen := make(map[string]bool)
	for _, c := range combos {
		seen[describe(c)] = true
	}
	assert.True(t, seen["a=1,b=3"])
	assert.True(t, seen["a=2,b=5"])
}

func TestKFold(t *testing.T) {
	folds, err := kfold(indices(10), 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(folds))

	covered := make(map[int]int)
	for _, f := range folds {
		assert.Equal(t, 10, len(f.train)+len(f.test))
		for _, i := range f.test {
			covered[i]++
		}
	}
	// every index lands in exactly one test block
	assert.Equal(t, 10, len(covered))
	for i, n := range covered {
		assert.Equal(t, 1, n, i)
	}

	_, err = kfold(indices(3), 5)
	assert.Error(t, err)
	_, err = kfold(indices(3), 1)
	assert.Error(t, err)
}

func TestSampleSplit(t *testing.T) {
	sampled, rest := sampleSplit(10, 0.3, 1)
	assert.Equal(t, 3, len(sampled))
	assert.Equal(t, 7, len(rest))

	// a fraction outside (0,1) keeps everything
	all, none := sampleSplit(10, 0, 1)
	assert.Equal(t, 10, len(all))
	assert.Nil(t, none)

	// same seed, same split
	again, _ := sampleSplit(10, 0.3, 1)
	assert.Equal(t, sampled, again)
}
