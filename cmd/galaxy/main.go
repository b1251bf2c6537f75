package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/astroml/galaxy/internal/config"
	"github.com/astroml/galaxy/internal/dataset"
	"github.com/astroml/galaxy/internal/image"
	"github.com/astroml/galaxy/internal/metrics"
	"github.com/astroml/galaxy/internal/model"
	"github.com/astroml/galaxy/internal/pipeline"
	"github.com/astroml/galaxy/internal/storage/file/blob"
	jsonstore "github.com/astroml/galaxy/internal/storage/file/json"
	"github.com/astroml/galaxy/internal/vocab"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// settings is the json experiment configuration. Flags override the
// runtime knobs, the file owns the pipeline parameters.
type settings struct {
	TrainDir   string               `json:"train_dir"`
	TestDir    string               `json:"test_dir"`
	Solutions  string               `json:"solutions"`
	Submission string               `json:"submission"`
	Crop       int                  `json:"crop"`
	Scale      int                  `json:"scale"`
	Patches    int                  `json:"patches"`
	Stride     int                  `json:"stride"`
	Pool       int                  `json:"pool"`
	Estimator  string               `json:"estimator"`
	Params     model.Params         `json:"params"`
	Grid       map[string][]float64 `json:"grid"`
	Vocab      vocab.Config         `json:"vocab"`
	Seed       uint64               `json:"seed"`
}

func defaults() settings {
	return settings{
		TrainDir:   "data/images_training_rev1",
		TestDir:    "data/images_test_rev1",
		Solutions:  "data/training_solutions_rev1.csv",
		Submission: "submissions/submission.csv",
		Crop:       150,
		Scale:      15,
		Patches:    400000,
		Stride:     1,
		Pool:       vocab.PoolQuadrant,
		Estimator:  "ridge",
		Vocab: vocab.Config{
			PatchSize: 5,
			Clusters:  1000,
		},
		Seed: 42,
	}
}

type run struct {
	s     settings
	jobs  int
	force bool
	store *blob.Store
	src   image.Source
}

func main() {
	cmd := flag.String("cmd", "cv", "command to run: benchmark | cv | grid | train | predict | cascade")
	cfg := flag.String("config", "", "path to the json experiment config")
	jobs := flag.Int("jobs", 1, "number of parallel workers")
	folds := flag.Int("folds", 2, "number of cross validation folds")
	sample := flag.Float64("sample", 0, "fraction of the training set to use, 0 for all")
	scaled := flag.Bool("scaled", false, "rebase cascade class groups to sum to one")
	parallelEstimator := flag.Bool("parallel-estimator", false, "place workers inside the estimator instead of the fold loop")
	force := flag.Bool("force", false, "recompute cached transforms")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	s := defaults()
	if *cfg != "" {
		config.MustLoad(*cfg, &s)
	}

	r := &run{
		s:     s,
		jobs:  *jobs,
		force: *force,
		store: blob.NewStore("features"),
		src:   image.NewDir(s.TrainDir, s.TestDir),
	}

	var err error
	switch *cmd {
	case "benchmark":
		err = r.benchmark()
	case "cv":
		err = r.cv(*folds, *sample, *parallelEstimator)
	case "grid":
		err = r.grid(*folds, *sample, *parallelEstimator)
	case "train":
		err = r.train()
	case "predict":
		err = r.predict()
	case "cascade":
		err = r.cascade(*folds, *scaled)
	default:
		err = fmt.Errorf("'%s': %w", *cmd, model.ErrUnknownCommand)
	}
	if err != nil {
		log.Error().Err(err).Str("cmd", *cmd).Msg("command failed")
		os.Exit(1)
	}
	metrics.Pipeline.Report()
}

func (r *run) factory() (model.Factory, error) {
	switch r.s.Estimator {
	case "ridge":
		return model.NewRidge, nil
	case "forest":
		return model.NewForest, nil
	}
	return nil, fmt.Errorf("unknown estimator '%s'", r.s.Estimator)
}

// features runs the full feature pipeline for the split: crop+scale the
// images, fit or load the vocabulary, encode every image against it.
func (r *run) features(split string, files []string) (mat.Matrix, error) {
	grid, err := pipeline.NewCropScale(r.store, r.src, split, r.s.Crop, r.s.Scale, r.jobs).
		Force(r.force).
		Grid(files)
	if err != nil {
		return nil, fmt.Errorf("could not build image grid: %w", err)
	}

	store, err := jsonstore.BlobShard("models")("vocab")
	if err != nil {
		return nil, fmt.Errorf("could not open model storage: %w", err)
	}
	// the sampler only runs when no vocabulary with this signature is cached
	v, err := vocab.NewLearner(r.s.Vocab, store).Fit(func() (*mat.Dense, error) {
		return pipeline.NewPatchSampler(r.s.Patches, r.s.Vocab.PatchSize, r.jobs, r.s.Seed).Transform(grid)
	})
	if err != nil {
		return nil, fmt.Errorf("could not fit vocabulary: %w", err)
	}

	enc, err := vocab.NewEncoder(v, r.s.Stride, r.s.Pool)
	if err != nil {
		return nil, err
	}
	x, err := vocab.NewEncodingTransform(r.store, enc, split, r.jobs).
		Force(r.force).
		Transform(grid)
	if err != nil {
		return nil, fmt.Errorf("could not encode images: %w", err)
	}
	return x, nil
}

func (r *run) trainSet() (*dataset.Dataset, mat.Matrix, error) {
	d, err := dataset.Load(r.s.Solutions)
	if err != nil {
		return nil, nil, err
	}
	x, err := r.features(image.Train, d.Filenames())
	if err != nil {
		return nil, nil, err
	}
	return d, x, nil
}

func (r *run) benchmark() error {
	d, err := dataset.Load(r.s.Solutions)
	if err != nil {
		return err
	}
	files, err := r.src.List(image.Test)
	if err != nil {
		return err
	}
	return dataset.WriteSubmission(r.s.Submission, files, dataset.MeanBenchmark(d, len(files)))
}

func (r *run) cv(folds int, sample float64, parallelEstimator bool) error {
	d, x, err := r.trainSet()
	if err != nil {
		return err
	}
	factory, err := r.factory()
	if err != nil {
		return err
	}
	res, err := model.NewWrapper(factory, r.s.Params, r.jobs).
		WithSeed(r.s.Seed).
		CrossValidate(x, d.Y, model.CVOptions{
			Folds:             folds,
			Sample:            sample,
			ParallelEstimator: parallelEstimator,
		})
	if err != nil {
		return err
	}
	log.Info().Float64("mean", res.Mean).Float64("stdev", res.StDev).Msg("cross validation result")
	return nil
}

func (r *run) grid(folds int, sample float64, parallelEstimator bool) error {
	d, x, err := r.trainSet()
	if err != nil {
		return err
	}
	factory, err := r.factory()
	if err != nil {
		return err
	}
	res, err := model.NewWrapper(factory, r.s.Params, r.jobs).
		WithSeed(r.s.Seed).
		GridSearch(x, d.Y, r.s.Grid, model.GridOptions{
			Folds:             folds,
			Sample:            sample,
			Refit:             true,
			ParallelEstimator: parallelEstimator,
		})
	if err != nil {
		return err
	}
	log.Info().Float64("score", res.Score).Float64("holdout", res.Holdout).Msg("grid search result")
	return nil
}

func (r *run) train() error {
	d, x, err := r.trainSet()
	if err != nil {
		return err
	}
	factory, err := r.factory()
	if err != nil {
		return err
	}
	return model.NewWrapper(factory, r.s.Params, r.jobs).Fit(x, d.Y)
}

// predict fits on the training set and writes a submission for the test set.
func (r *run) predict() error {
	d, x, err := r.trainSet()
	if err != nil {
		return err
	}
	factory, err := r.factory()
	if err != nil {
		return err
	}
	w := model.NewWrapper(factory, r.s.Params, r.jobs)
	if err := w.Fit(x, d.Y); err != nil {
		return err
	}

	files, err := r.src.List(image.Test)
	if err != nil {
		return err
	}
	testX, err := r.features(image.Test, files)
	if err != nil {
		return err
	}
	pred, err := w.Predict(testX)
	if err != nil {
		return err
	}
	return dataset.WriteSubmission(r.s.Submission, files, pred)
}

func (r *run) cascade(folds int, scaled bool) error {
	d, x, err := r.trainSet()
	if err != nil {
		return err
	}
	factory, err := r.factory()
	if err != nil {
		return err
	}
	c := model.NewCascade(factory, r.s.Params, d, r.jobs).Scaled(scaled)
	if folds > 0 {
		res, err := c.CrossValidate(x, folds)
		if err != nil {
			return err
		}
		log.Info().Float64("mean", res.Mean).Float64("stdev", res.StDev).Msg("cascade cross validation result")
		return nil
	}

	if err := c.Fit(x); err != nil {
		return err
	}
	files, err := r.src.List(image.Test)
	if err != nil {
		return err
	}
	testX, err := r.features(image.Test, files)
	if err != nil {
		return err
	}
	pred, err := c.Predict(testX)
	if err != nil {
		return err
	}
	return dataset.WriteSubmission(r.s.Submission, files, pred)
}
