package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/astroml/galaxy/internal/buffer"
	"github.com/astroml/galaxy/internal/concurrent"
	gmath "github.com/astroml/galaxy/internal/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Wrapper owns an estimator factory and a data-independent evaluation
// protocol: cross validation and grid search with a parallelism placement
// policy. Work runs either across folds/grid cells or inside the estimator,
// never both, to keep total workers bound to the configured job count.
type Wrapper struct {
	factory Factory
	params  Params
	jobs    int
	seed    uint64
	est     Estimator
}

// NewWrapper creates an evaluation wrapper around the factory.
func NewWrapper(factory Factory, params Params, jobs int) *Wrapper {
	if jobs < 1 {
		jobs = 1
	}
	return &Wrapper{factory: factory, params: params, jobs: jobs, seed: 42}
}

// WithSeed overrides the seed used for sampling splits.
func (w *Wrapper) WithSeed(seed uint64) *Wrapper {
	w.seed = seed
	return w
}

// CVOptions configures a cross validation run.
type CVOptions struct {
	Folds             int
	Sample            float64
	ParallelEstimator bool
}

// CVResult aggregates the per-fold scores.
type CVResult struct {
	Scores []float64
	Mean   float64
	StDev  float64
}

// placement decides where the configured jobs go: if the estimator exposes
// an internal parallelism knob and parallel-at-estimator is requested, the
// outer loop runs single file and the estimator gets all jobs; otherwise
// the estimator is forced to one worker and the outer loop takes them.
func (w *Wrapper) placement(parallelEstimator bool) (outer, inner int) {
	probe := w.factory(w.params)
	if _, ok := probe.(Parallelizable); ok && parallelEstimator {
		return 1, w.jobs
	}
	return w.jobs, 1
}

func (w *Wrapper) newEstimator(p Params, jobs int) Estimator {
	est := w.factory(p)
	if par, ok := est.(Parallelizable); ok {
		par.SetJobs(jobs)
	}
	return est
}

// CrossValidate scores the configured estimator with k-fold cross
// validation, optionally on a down-sampled subset.
func (w *Wrapper) CrossValidate(x, y mat.Matrix, opts CVOptions) (CVResult, error) {
	return w.crossValidate(w.params, x, y, opts)
}

func (w *Wrapper) crossValidate(params Params, x, y mat.Matrix, opts CVOptions) (CVResult, error) {
	start := time.Now()
	run := uuid.New().String()

	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return CVResult{}, fmt.Errorf("%d feature rows for %d target rows: %w", xr, yr, ErrShapeMismatch)
	}
	if opts.Folds == 0 {
		opts.Folds = 2
	}

	var idx []int
	if opts.Sample > 0 && opts.Sample < 1 {
		idx, _ = sampleSplit(xr, opts.Sample, w.seed)
		log.Info().Str("run", run).Float64("sample", opts.Sample).Int("rows", len(idx)).Msg("down-sampled for cross validation")
	} else {
		idx = indices(xr)
	}

	folds, err := kfold(idx, opts.Folds)
	if err != nil {
		return CVResult{}, err
	}
	outer, inner := w.placement(opts.ParallelEstimator)

	scores := make([]float64, len(folds))
	err = concurrent.Map(outer, len(folds), func(k int) error {
		est := w.newEstimator(params, inner)
		if err := est.Fit(gmath.Rows(x, folds[k].train), gmath.Rows(y, folds[k].train)); err != nil {
			return fmt.Errorf("fold %d fit failed: %w", k, err)
		}
		pred, err := est.Predict(gmath.Rows(x, folds[k].test))
		if err != nil {
			return fmt.Errorf("fold %d predict failed: %w", k, err)
		}
		score, err := gmath.RMSE(pred, gmath.Rows(y, folds[k].test))
		if err != nil {
			return fmt.Errorf("fold %d score failed: %w", k, err)
		}
		scores[k] = score
		return nil
	})
	if err != nil {
		return CVResult{}, err
	}

	stats := buffer.NewStats()
	for _, s := range scores {
		stats.Push(s)
	}
	log.Info().
		Str("run", run).
		Int("folds", opts.Folds).
		Floats64("scores", scores).
		Float64("mean", stats.Avg()).
		Float64("seconds", time.Since(start).Seconds()).
		Msg("cross validation completed")

	return CVResult{Scores: scores, Mean: stats.Avg(), StDev: stats.StDev()}, nil
}

// GridOptions configures a grid search.
type GridOptions struct {
	Folds             int
	Sample            float64
	Refit             bool
	ParallelEstimator bool
}

// GridResult is the outcome of an exhaustive grid search.
type GridResult struct {
	Best    Params
	Score   float64
	Holdout float64
	Scores  map[string]float64
}

// GridSearch evaluates the cartesian product of the parameter grid under
// cross validation and selects the combination with the lowest mean score.
// With refit, the winner is retrained on the full search set and scored on
// the holdout.
func (w *Wrapper) GridSearch(x, y mat.Matrix, grid map[string][]float64, opts GridOptions) (*GridResult, error) {
	start := time.Now()

	combos := cartesian(grid)
	if len(combos) == 0 {
		return nil, fmt.Errorf("empty parameter grid")
	}

	xr, _ := x.Dims()
	searchIdx, holdoutIdx := indices(xr), []int(nil)
	if opts.Sample > 0 && opts.Sample < 1 {
		searchIdx, holdoutIdx = sampleSplit(xr, opts.Sample, w.seed)
		log.Info().Float64("sample", opts.Sample).Int("search", len(searchIdx)).Int("holdout", len(holdoutIdx)).Msg("split train set for grid search")
	}
	searchX, searchY := gmath.Rows(x, searchIdx), gmath.Rows(y, searchIdx)

	result := &GridResult{Scores: make(map[string]float64, len(combos))}
	best := -1
	for i, combo := range combos {
		base := w.params.Clone()
		for k, v := range combo {
			base[k] = v
		}
		cv, err := w.crossValidate(base, searchX, searchY, CVOptions{
			Folds:             opts.Folds,
			ParallelEstimator: opts.ParallelEstimator,
		})
		if err != nil {
			return nil, fmt.Errorf("grid cell %s failed: %w", describe(combo), err)
		}
		result.Scores[describe(combo)] = cv.Mean
		log.Info().Str("params", describe(combo)).Float64("score", cv.Mean).Msg("evaluated grid cell")
		if best < 0 || cv.Mean < result.Score {
			best = i
			result.Score = cv.Mean
			result.Best = base
		}
	}

	log.Info().Str("params", describe(result.Best)).Float64("score", result.Score).Msg("found best parameters")

	if opts.Refit {
		est := w.newEstimator(result.Best, w.jobs)
		if err := est.Fit(searchX, searchY); err != nil {
			return nil, fmt.Errorf("refit failed: %w", err)
		}
		w.est = est

		houtX, houtY := searchX, searchY
		if len(holdoutIdx) > 0 {
			houtX, houtY = gmath.Rows(x, holdoutIdx), gmath.Rows(y, holdoutIdx)
		}
		pred, err := est.Predict(houtX)
		if err != nil {
			return nil, fmt.Errorf("holdout predict failed: %w", err)
		}
		score, err := gmath.RMSE(pred, houtY)
		if err != nil {
			return nil, err
		}
		result.Holdout = score
		log.Info().Float64("rmse", score).Msg("scored refit estimator on holdout set")
	}

	log.Info().Float64("seconds", time.Since(start).Seconds()).Msg("grid search completed")
	return result, nil
}

// Fit trains the estimator on the full set and logs the in-sample error.
func (w *Wrapper) Fit(x, y mat.Matrix) error {
	start := time.Now()
	est := w.newEstimator(w.params, w.jobs)
	if err := est.Fit(x, y); err != nil {
		return err
	}
	w.est = est

	pred, err := est.Predict(x)
	if err != nil {
		return err
	}
	score, err := gmath.RMSE(pred, y)
	if err != nil {
		return err
	}
	log.Info().Float64("rmse", score).Float64("seconds", time.Since(start).Seconds()).Msg("fitted estimator")
	return nil
}

// Predict applies the trained estimator.
func (w *Wrapper) Predict(x mat.Matrix) (*mat.Dense, error) {
	if w.est == nil {
		return nil, ErrNotFitted
	}
	return w.est.Predict(x)
}

// cartesian expands the grid into every parameter combination.
func cartesian(grid map[string][]float64) []Params {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []Params{{}}
	for _, k := range keys {
		next := make([]Params, 0, len(combos)*len(grid[k]))
		for _, combo := range combos {
			for _, v := range grid[k] {
				c := combo.Clone()
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func describe(p Params) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ",")
}
