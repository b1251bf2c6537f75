package vocab

import (
	"fmt"
	"math"
	"sync"

	"github.com/astroml/galaxy/internal/image"
	"gonum.org/v1/gonum/mat"
)

// Clustering methods for the vocabulary learner.
const (
	MethodKMeans    = "kmeans"
	MethodMiniBatch = "minibatch"
)

// Config identifies a vocabulary. Two configs with the same signature map
// to the same persisted artifact.
type Config struct {
	PatchSize  int     `json:"patch_size"`
	Clusters   int     `json:"clusters"`
	Iterations int     `json:"iterations"`
	Method     string  `json:"method"`
	NormEps    float64 `json:"norm_eps"`
	WhitenEps  float64 `json:"whiten_eps"`
	BatchSize  int     `json:"batch_size"`
	Seed       uint64  `json:"seed"`
}

func (c Config) withDefaults() Config {
	if c.Iterations == 0 {
		c.Iterations = 30
	}
	if c.Method == "" {
		c.Method = MethodKMeans
	}
	if c.NormEps == 0 {
		// pixel values are on the 0..255 scale
		c.NormEps = 10
	}
	if c.WhitenEps == 0 {
		c.WhitenEps = 0.1
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	return c
}

// Signature returns the deterministic identity of the vocabulary.
func (c Config) Signature() string {
	return fmt.Sprintf("p%d_k%d_%s", c.PatchSize, c.Clusters, c.Method)
}

// Dim returns the flattened patch dimension.
func (c Config) Dim() int {
	return c.PatchSize * c.PatchSize * image.Channels
}

// Vocabulary is the learned centroid basis together with the normalization
// and whitening parameters it was trained with. Immutable once fit.
type Vocabulary struct {
	Config    Config      `json:"config"`
	Centroids [][]float64 `json:"centroids"`
	Mean      []float64   `json:"mean"`
	EigVecs   [][]float64 `json:"eigenvectors"`
	EigVals   []float64   `json:"eigenvalues"`

	once     sync.Once
	whitener *mat.Dense
}

// K returns the number of centroids.
func (v *Vocabulary) K() int {
	return len(v.Centroids)
}

// Whitener returns the ZCA map V diag(1/sqrt(eig+eps)) V^T, built once.
// Encoding runs chunk parallel over a shared vocabulary, so the lazy build
// has to be safe for concurrent callers.
func (v *Vocabulary) Whitener() *mat.Dense {
	v.once.Do(func() {
		d := len(v.Mean)
		vecs := mat.NewDense(d, d, nil)
		for i := range v.EigVecs {
			vecs.SetRow(i, v.EigVecs[i])
		}
		scale := mat.NewDiagDense(d, nil)
		for i, e := range v.EigVals {
			scale.SetDiag(i, 1/math.Sqrt(e+v.Config.WhitenEps))
		}
		w := mat.NewDense(d, d, nil)
		w.Product(vecs, scale, vecs.T())
		v.whitener = w
	})
	return v.whitener
}

// Project normalizes and whitens a raw patch with the stored parameters.
func (v *Vocabulary) Project(patch []float64) []float64 {
	x := Normalize(patch, v.Config.NormEps)
	w := v.Whitener()
	d := len(v.Mean)
	out := make([]float64, d)
	for i := 0; i < d; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			sum += w.At(i, j) * (x[j] - v.Mean[j])
		}
		out[i] = sum
	}
	return out
}

// Activate encodes a raw patch against the centroids with the soft
// triangle activation: max(0, mean distance - distance). Centroids closer
// than average get positive activation, farther ones get zero.
func (v *Vocabulary) Activate(patch []float64) []float64 {
	x := v.Project(patch)
	k := v.K()
	dists := make([]float64, k)
	mean := 0.0
	for c := 0; c < k; c++ {
		dists[c] = distance(x, v.Centroids[c])
		mean += dists[c]
	}
	mean /= float64(k)
	out := make([]float64, k)
	for c := 0; c < k; c++ {
		if a := mean - dists[c]; a > 0 {
			out[c] = a
		}
	}
	return out
}

// Normalize removes per-patch brightness and contrast: subtract the patch's
// own mean and divide by its own standard deviation plus eps.
func Normalize(patch []float64, eps float64) []float64 {
	n := float64(len(patch))
	mean := 0.0
	for _, v := range patch {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range patch {
		variance += (v - mean) * (v - mean)
	}
	variance /= n
	sd := math.Sqrt(variance + eps)
	out := make([]float64, len(patch))
	for i, v := range patch {
		out[i] = (v - mean) / sd
	}
	return out
}

func distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
