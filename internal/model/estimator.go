package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted      = errors.New("estimator has not been trained")
	ErrUnknownCommand = errors.New("unknown command")
	ErrShapeMismatch  = errors.New("shape mismatch")
)

// Estimator is the opaque regression capability: fit on a feature matrix
// and a target matrix, predict a target matrix for new features.
type Estimator interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) (*mat.Dense, error)
}

// Parallelizable is implemented by estimators that expose an internal
// parallelism knob. The orchestrator inspects this to decide where to
// place concurrency, never enabling both levels at once.
type Parallelizable interface {
	SetJobs(jobs int)
	Jobs() int
}

// Params is the mutable hyperparameter set of an estimator.
type Params map[string]float64

// Get returns the parameter value or the given default.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Clone returns an independent copy of the params.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Factory constructs a fresh estimator for the given hyperparameters.
// Every fit gets its own instance; estimators are never shared across folds.
type Factory func(p Params) Estimator
