package vocab

import (
	"fmt"
	"time"

	"github.com/astroml/galaxy/internal/storage"
	"github.com/cdipaolo/goml/cluster"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Learner fits a Vocabulary from a patch set: per-patch contrast
// normalization, ZCA whitening, then clustering. The fitted artifact is
// persisted by its configuration signature so repeated runs skip training.
type Learner struct {
	cfg   Config
	store storage.Persistence
}

// NewLearner creates a vocabulary learner backed by the given persistence.
func NewLearner(cfg Config, store storage.Persistence) *Learner {
	return &Learner{cfg: cfg.withDefaults(), store: store}
}

func (l *Learner) key() storage.Key {
	return storage.Key{Kind: "vocab", Signature: l.cfg.Signature()}
}

// Fit learns the vocabulary from the sampled patch set, or loads a
// previously persisted artifact with the same signature. The sampler runs
// only on a cache miss, drawing patches is not free.
func (l *Learner) Fit(sample func() (*mat.Dense, error)) (*Vocabulary, error) {
	var cached Vocabulary
	if err := l.store.Load(l.key(), &cached); err == nil {
		log.Info().Str("signature", l.cfg.Signature()).Msg("vocabulary already exists, loading")
		return &cached, nil
	}

	patches, err := sample()
	if err != nil {
		return nil, fmt.Errorf("could not sample patches: %w", err)
	}

	start := time.Now()
	n, d := patches.Dims()
	if d != l.cfg.Dim() {
		return nil, fmt.Errorf("patch dimension %d does not match patch size %d", d, l.cfg.PatchSize)
	}
	if n < l.cfg.Clusters {
		return nil, fmt.Errorf("cannot cluster %d patches into %d centroids", n, l.cfg.Clusters)
	}

	// contrast normalization, patch by patch
	norm := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		norm.SetRow(i, Normalize(patches.RawRowView(i), l.cfg.NormEps))
	}

	mean, vecs, vals, err := whitenFit(norm)
	if err != nil {
		return nil, err
	}

	v := &Vocabulary{
		Config:  l.cfg,
		Mean:    mean,
		EigVecs: toRows(vecs),
		EigVals: vals,
	}

	// whiten with the just-fitted parameters, then cluster
	white := make([][]float64, n)
	for i := 0; i < n; i++ {
		white[i] = v.Project(patches.RawRowView(i))
	}

	switch l.cfg.Method {
	case MethodKMeans:
		model := cluster.NewKMeans(l.cfg.Clusters, l.cfg.Iterations, white)
		if err := model.Learn(); err != nil {
			return nil, fmt.Errorf("could not cluster patches: %w", err)
		}
		v.Centroids = model.Centroids
	case MethodMiniBatch:
		v.Centroids = miniBatch(white, l.cfg.Clusters, l.cfg.Iterations, l.cfg.BatchSize, l.cfg.Seed)
	default:
		return nil, fmt.Errorf("unknown clustering method '%s'", l.cfg.Method)
	}

	if err := l.store.Store(l.key(), v); err != nil {
		return nil, fmt.Errorf("could not persist vocabulary '%s': %w", l.cfg.Signature(), err)
	}

	log.Info().
		Str("signature", l.cfg.Signature()).
		Int("patches", n).
		Int("centroids", l.cfg.Clusters).
		Float64("seconds", time.Since(start).Seconds()).
		Msg("fitted vocabulary")
	return v, nil
}

// whitenFit computes the column mean and the eigendecomposition of the
// patch covariance.
func whitenFit(x *mat.Dense) ([]float64, *mat.Dense, []float64, error) {
	n, d := x.Dims()

	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		mean[j] = sum / float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-mean[j])
		}
	}

	var cov mat.Dense
	cov.Mul(centered.T(), centered)
	denom := float64(n - 1)
	if n < 2 {
		denom = 1
	}
	cov.Scale(1/denom, &cov)

	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, nil, fmt.Errorf("could not decompose patch covariance")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	return mean, &vecs, vals, nil
}

func toRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		copy(row, m.RawRowView(i))
		rows[i] = row
	}
	return rows
}
