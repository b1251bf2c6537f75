package model

import (
	"fmt"
	"time"

	"github.com/astroml/galaxy/internal/buffer"
	"github.com/astroml/galaxy/internal/dataset"
	gmath "github.com/astroml/galaxy/internal/math"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Cascade trains one estimator per class group in the fixed group order,
// feeding the predictions of earlier groups into the features of later
// ones. Prediction columns grow monotonically wider as the stages run.
type Cascade struct {
	factory    Factory
	params     Params
	data       *dataset.Dataset
	jobs       int
	scaled     bool
	estimators map[int]Estimator
	features   int
}

// NewCascade creates a cascade trainer over the dataset's class groups.
func NewCascade(factory Factory, params Params, data *dataset.Dataset, jobs int) *Cascade {
	if jobs < 1 {
		jobs = 1
	}
	return &Cascade{
		factory: factory,
		params:  params,
		data:    data,
		jobs:    jobs,
	}
}

// Scaled rebases each class group's targets to sum to one per row before
// training. Scores are always computed against the unscaled targets, so
// predictions are multiplied back by the per-row group scale.
func (c *Cascade) Scaled(on bool) *Cascade {
	c.scaled = on
	return c
}

func (c *Cascade) newEstimator() Estimator {
	est := c.factory(c.params)
	if par, ok := est.(Parallelizable); ok {
		par.SetJobs(c.jobs)
	}
	return est
}

// targets returns the training targets, rebased per class group when scaled.
func (c *Cascade) targets() *mat.Dense {
	if c.scaled {
		return c.data.Rebase()
	}
	return c.data.Y
}

// Fit runs the cascade over the full training set. Each stage trains a
// fresh estimator on the base features plus all previously populated
// prediction columns, then fills its own columns with in-sample predictions.
func (c *Cascade) Fit(x mat.Matrix) error {
	start := time.Now()

	n, d := x.Dims()
	if n != c.data.Len() {
		return fmt.Errorf("%d feature rows for %d samples: %w", n, c.data.Len(), ErrShapeMismatch)
	}
	y := c.targets()

	c.features = d
	c.estimators = make(map[int]Estimator, len(dataset.Classes))

	preds := mat.NewDense(n, dataset.TotalColumns(), nil)
	populated := make([]int, 0, dataset.TotalColumns())
	for _, cls := range dataset.Classes {
		feat := stageFeatures(x, preds, populated)
		target := gmath.Cols(y, cls.Cols)

		est := c.newEstimator()
		if err := est.Fit(feat, target); err != nil {
			return fmt.Errorf("class %d fit failed: %w", cls.ID, err)
		}
		c.estimators[cls.ID] = est

		pred, err := est.Predict(feat)
		if err != nil {
			return fmt.Errorf("class %d predict failed: %w", cls.ID, err)
		}
		if err := fill(preds, cls.Cols, pred); err != nil {
			return fmt.Errorf("class %d: %w", cls.ID, err)
		}
		populated = append(populated, cls.Cols...)

		score, err := gmath.RMSE(pred, target)
		if err != nil {
			return err
		}
		log.Info().Int("class", cls.ID).Int("inputs", d+len(populated)-len(cls.Cols)).Float64("rmse", score).Msg("fitted cascade stage")
	}

	score, err := gmath.RMSE(preds, y)
	if err != nil {
		return err
	}
	log.Info().Float64("rmse", score).Float64("seconds", time.Since(start).Seconds()).Msg("fitted cascade")
	return nil
}

// Predict replays the stage order on new features, growing the prediction
// matrix forward exactly as during training. In scaled mode the output
// stays in the rebased per-group space.
func (c *Cascade) Predict(x mat.Matrix) (*mat.Dense, error) {
	if c.estimators == nil {
		return nil, ErrNotFitted
	}
	n, d := x.Dims()
	if d != c.features {
		return nil, fmt.Errorf("%d features, trained with %d: %w", d, c.features, ErrShapeMismatch)
	}

	preds := mat.NewDense(n, dataset.TotalColumns(), nil)
	populated := make([]int, 0, dataset.TotalColumns())
	for _, cls := range dataset.Classes {
		feat := stageFeatures(x, preds, populated)
		pred, err := c.estimators[cls.ID].Predict(feat)
		if err != nil {
			return nil, fmt.Errorf("class %d predict failed: %w", cls.ID, err)
		}
		if err := fill(preds, cls.Cols, pred); err != nil {
			return nil, fmt.Errorf("class %d: %w", cls.ID, err)
		}
		populated = append(populated, cls.Cols...)
	}
	return preds, nil
}

// CrossValidate scores the cascade with its own fold loop. The per-stage
// chaining runs independently inside every fold, so later stages only ever
// see predictions made from that fold's own training rows.
func (c *Cascade) CrossValidate(x mat.Matrix, folds int) (CVResult, error) {
	start := time.Now()

	n, _ := x.Dims()
	if n != c.data.Len() {
		return CVResult{}, fmt.Errorf("%d feature rows for %d samples: %w", n, c.data.Len(), ErrShapeMismatch)
	}
	y := c.targets()

	parts, err := kfold(indices(n), folds)
	if err != nil {
		return CVResult{}, err
	}

	scores := make([]float64, len(parts))
	for k, f := range parts {
		trainX, testX := gmath.Rows(x, f.train), gmath.Rows(x, f.test)
		trainY := gmath.Rows(y, f.train)

		trainPreds := mat.NewDense(len(f.train), dataset.TotalColumns(), nil)
		testPreds := mat.NewDense(len(f.test), dataset.TotalColumns(), nil)
		populated := make([]int, 0, dataset.TotalColumns())

		for _, cls := range dataset.Classes {
			trainFeat := stageFeatures(trainX, trainPreds, populated)
			testFeat := stageFeatures(testX, testPreds, populated)

			est := c.newEstimator()
			if err := est.Fit(trainFeat, gmath.Cols(trainY, cls.Cols)); err != nil {
				return CVResult{}, fmt.Errorf("fold %d class %d fit failed: %w", k, cls.ID, err)
			}
			trainPred, err := est.Predict(trainFeat)
			if err != nil {
				return CVResult{}, fmt.Errorf("fold %d class %d predict failed: %w", k, cls.ID, err)
			}
			testPred, err := est.Predict(testFeat)
			if err != nil {
				return CVResult{}, fmt.Errorf("fold %d class %d predict failed: %w", k, cls.ID, err)
			}

			if c.scaled {
				// Scale predictions back to the original target space,
				// indexing the per-row scales with the fold's own row order.
				scales := c.data.ScaleFor(cls)
				if len(scales) != n {
					return CVResult{}, fmt.Errorf("%d scales for %d samples: %w", len(scales), n, ErrShapeMismatch)
				}
				scaleRows(trainPred, scales, f.train)
				scaleRows(testPred, scales, f.test)
			}

			if err := fill(trainPreds, cls.Cols, trainPred); err != nil {
				return CVResult{}, fmt.Errorf("fold %d class %d: %w", k, cls.ID, err)
			}
			if err := fill(testPreds, cls.Cols, testPred); err != nil {
				return CVResult{}, fmt.Errorf("fold %d class %d: %w", k, cls.ID, err)
			}
			populated = append(populated, cls.Cols...)

			score, err := gmath.RMSE(testPred, gmath.Cols(gmath.Rows(c.data.Y, f.test), cls.Cols))
			if err != nil {
				return CVResult{}, err
			}
			log.Info().Int("fold", k).Int("class", cls.ID).Float64("rmse", score).Msg("scored cascade stage")
		}

		// Predictions are in the original target space at this point, also
		// in scaled mode, so the fold scores line up across both modes.
		score, err := gmath.RMSE(testPreds, gmath.Rows(c.data.Y, f.test))
		if err != nil {
			return CVResult{}, err
		}
		scores[k] = score
		log.Info().Int("fold", k).Float64("rmse", score).Msg("scored cascade fold")
	}

	stats := buffer.NewStats()
	for _, s := range scores {
		stats.Push(s)
	}
	log.Info().
		Int("folds", folds).
		Floats64("scores", scores).
		Float64("mean", stats.Avg()).
		Float64("seconds", time.Since(start).Seconds()).
		Msg("cascade cross validation completed")

	return CVResult{Scores: scores, Mean: stats.Avg(), StDev: stats.StDev()}, nil
}

// stageFeatures concatenates the base features with the populated
// prediction columns. Unpopulated columns are excluded, not zero-filled.
func stageFeatures(x mat.Matrix, preds *mat.Dense, populated []int) *mat.Dense {
	if len(populated) == 0 {
		return mat.DenseCopyOf(x)
	}
	return gmath.HStack(x, gmath.Cols(preds, populated))
}

// fill writes the stage predictions into the given columns of dst.
func fill(dst *mat.Dense, cols []int, pred *mat.Dense) error {
	dr, _ := dst.Dims()
	pr, pc := pred.Dims()
	if pr != dr || pc != len(cols) {
		return fmt.Errorf("(%d,%d) predictions for %d rows and %d columns: %w", pr, pc, dr, len(cols), ErrShapeMismatch)
	}
	for i := 0; i < pr; i++ {
		for j, col := range cols {
			dst.Set(i, col, pred.At(i, j))
		}
	}
	return nil
}

// scaleRows multiplies row i of m by scales[idx[i]].
func scaleRows(m *mat.Dense, scales []float64, idx []int) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		s := scales[idx[i]]
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)*s)
		}
	}
}
