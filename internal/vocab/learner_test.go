package vocab

import (
	"fmt"
	"testing"

	"github.com/astroml/galaxy/internal/image"
	"github.com/astroml/galaxy/internal/pipeline"
	"github.com/astroml/galaxy/internal/storage"
	"github.com/astroml/galaxy/internal/storage/file/json"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// fourImages builds a grid of four 2x2 images with varied pixel values, so
// normalized patches are distinct and clustering is non-degenerate.
func fourImages() image.Grid {
	data := mat.NewDense(4, 2*2*image.Channels, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 2*2*image.Channels; j++ {
			data.Set(i, j, float64((i*67+j*j*13)%251))
		}
	}
	g, _ := image.NewGrid(data, 2, 2)
	return g
}

func supply(patches *mat.Dense) func() (*mat.Dense, error) {
	return func() (*mat.Dense, error) {
		return patches, nil
	}
}

func TestLearner_EndToEnd(t *testing.T) {
	g := fourImages()

	patches, err := pipeline.NewPatchSampler(8, 1, 2, 7).Transform(g)
	assert.NoError(t, err)
	rows, cols := patches.Dims()
	assert.Equal(t, 8, rows)
	assert.Equal(t, 3, cols)

	cfg := Config{PatchSize: 1, Clusters: 2, Seed: 7}
	v, err := NewLearner(cfg, storage.NewVoidStorage()).Fit(supply(patches))
	assert.NoError(t, err)

	// 2 centroids over flattened 1x1x3 patches
	assert.Equal(t, 2, v.K())
	for _, c := range v.Centroids {
		assert.Equal(t, 3, len(c))
	}
	assert.Equal(t, 3, len(v.Mean))
	assert.Equal(t, 3, len(v.EigVals))

	enc, err := NewEncoder(v, 1, PoolNone)
	assert.NoError(t, err)
	assert.Equal(t, 2, enc.Features())

	for i := 0; i < g.Len(); i++ {
		f, err := enc.Encode(g.Image(i))
		assert.NoError(t, err)
		assert.Equal(t, 2, len(f))
		// triangle activation is non-negative by construction
		for _, a := range f {
			assert.True(t, a >= 0, fmt.Sprintf("activation %f of image %d", a, i))
		}
	}
}

func TestLearner_Persisted(t *testing.T) {
	storage.DefaultDir = t.TempDir()
	store := json.NewJsonBlob("models", "vocab")
	g := fourImages()

	patches, err := pipeline.NewPatchSampler(8, 1, 1, 7).Transform(g)
	assert.NoError(t, err)

	cfg := Config{PatchSize: 1, Clusters: 2, Seed: 7}
	first, err := NewLearner(cfg, store).Fit(supply(patches))
	assert.NoError(t, err)

	// the second learner must load the artifact and never touch the sampler
	sampled := false
	second, err := NewLearner(cfg, store).Fit(func() (*mat.Dense, error) {
		sampled = true
		return patches, nil
	})
	assert.NoError(t, err)
	assert.False(t, sampled)
	assert.Equal(t, first.Centroids, second.Centroids)
	assert.Equal(t, first.Mean, second.Mean)
}

func TestLearner_SamplerError(t *testing.T) {
	cfg := Config{PatchSize: 1, Clusters: 2}
	_, err := NewLearner(cfg, storage.NewVoidStorage()).Fit(func() (*mat.Dense, error) {
		return nil, fmt.Errorf("no patches today")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no patches today")
}

func TestLearner_Validation(t *testing.T) {
	cfg := Config{PatchSize: 2, Clusters: 2}

	// wrong patch dimension
	_, err := NewLearner(cfg, storage.NewVoidStorage()).Fit(supply(mat.NewDense(4, 3, nil)))
	assert.Error(t, err)

	// fewer patches than centroids
	_, err = NewLearner(Config{PatchSize: 1, Clusters: 5}, storage.NewVoidStorage()).Fit(supply(mat.NewDense(2, 3, nil)))
	assert.Error(t, err)
}

func TestMiniBatch(t *testing.T) {
	// two well separated blobs in 2d
	data := make([][]float64, 0, 20)
	for i := 0; i < 10; i++ {
		data = append(data, []float64{float64(i) / 100, 0})
		data = append(data, []float64{10 + float64(i)/100, 10})
	}

	centroids := miniBatch(data, 2, 20, 10, 1)
	assert.Equal(t, 2, len(centroids))
	assert.Equal(t, 2, len(centroids[0]))

	// centroids are convex combinations of the data, so they stay in its box
	for _, c := range centroids {
		assert.True(t, c[0] >= 0 && c[0] <= 10.1, fmt.Sprintf("centroid out of range: %v", c))
		assert.True(t, c[1] >= 0 && c[1] <= 10, fmt.Sprintf("centroid out of range: %v", c))
	}
	assert.NotEqual(t, centroids[0], centroids[1])
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{10, 20, 30, 40}, 0.001)

	mean := 0.0
	for _, v := range out {
		mean += v
	}
	assert.InDelta(t, 0.0, mean/4, 1e-9)
	// symmetric input stays symmetric
	assert.InDelta(t, -out[3], out[0], 1e-9)
	assert.InDelta(t, -out[2], out[1], 1e-9)
}
