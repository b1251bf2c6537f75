package vocab

import (
	"fmt"

	"github.com/astroml/galaxy/internal/image"
	"github.com/astroml/galaxy/internal/pipeline"
	"github.com/astroml/galaxy/internal/storage"
	"github.com/astroml/galaxy/internal/storage/file/blob"
	"gonum.org/v1/gonum/mat"
)

// Pooling region counts supported by the encoder.
const (
	PoolNone     = 1
	PoolQuadrant = 4
)

// Encoder maps a full image into a pooled feature vector by sliding a
// window of the vocabulary's patch size across it at a fixed stride and
// activating every sub-patch against the centroids. Encoding is pure given
// the stored vocabulary: no refitting, no randomness.
type Encoder struct {
	vocab  *Vocabulary
	stride int
	pool   int
}

// NewEncoder creates an encoder over a fitted vocabulary.
func NewEncoder(v *Vocabulary, stride, pool int) (*Encoder, error) {
	if stride < 1 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}
	if pool != PoolNone && pool != PoolQuadrant {
		return nil, fmt.Errorf("pooling must be %d or %d regions, got %d", PoolNone, PoolQuadrant, pool)
	}
	return &Encoder{vocab: v, stride: stride, pool: pool}, nil
}

// Features returns the length of the encoded vector.
func (e *Encoder) Features() int {
	return e.pool * e.vocab.K()
}

// Signature returns the deterministic identity of the encoding.
func (e *Encoder) Signature() string {
	return fmt.Sprintf("%s_str%d_q%d", e.vocab.Config.Signature(), e.stride, e.pool)
}

// Encode maps one image into its pooled activation vector.
// Activations are summed per pooling region; with quadrant pooling the
// window grid is split down the middle in both directions.
func (e *Encoder) Encode(im image.Image) ([]float64, error) {
	size := e.vocab.Config.PatchSize
	if size > im.H || size > im.W {
		return nil, fmt.Errorf("patch size %d does not fit %dx%d image", size, im.H, im.W)
	}
	gh := (im.H-size)/e.stride + 1
	gw := (im.W-size)/e.stride + 1

	k := e.vocab.K()
	out := make([]float64, e.Features())
	for gy := 0; gy < gh; gy++ {
		for gx := 0; gx < gw; gx++ {
			f := e.vocab.Activate(im.Patch(gy*e.stride, gx*e.stride, size))
			q := 0
			if e.pool == PoolQuadrant {
				qy, qx := 0, 0
				if 2*gy >= gh {
					qy = 1
				}
				if 2*gx >= gw {
					qx = 1
				}
				q = qy*2 + qx
			}
			for c := 0; c < k; c++ {
				out[q*k+c] += f[c]
			}
		}
	}
	return out, nil
}

// EncodingTransform is the Encoder wrapped as a caching transform, keyed by
// the vocabulary identity, stride and pooling.
type EncodingTransform struct {
	enc *Encoder
	t   *pipeline.Transform
}

// NewEncodingTransform creates the caching feature transform for a split.
func NewEncodingTransform(store *blob.Store, enc *Encoder, split string, jobs int) *EncodingTransform {
	key := storage.Key{
		Kind:      "features",
		Split:     split,
		Signature: enc.Signature(),
	}
	return &EncodingTransform{
		enc: enc,
		t:   pipeline.NewTransform(store, key, jobs),
	}
}

// Force makes the next Transform recompute even if cached.
func (et *EncodingTransform) Force(force bool) *EncodingTransform {
	et.t.Force(force)
	return et
}

// Memmap makes Transform return a memory mapped view.
func (et *EncodingTransform) Memmap(memmap bool) *EncodingTransform {
	et.t.Memmap(memmap)
	return et
}

// Transform encodes every image of the grid into the feature matrix,
// chunk parallel, preserving row order.
func (et *EncodingTransform) Transform(g image.Grid) (mat.Matrix, error) {
	cols := et.enc.Features()
	return et.t.Run(g.Len(), func(lo, hi int) (*mat.Dense, error) {
		out := mat.NewDense(hi-lo, cols, nil)
		for i := lo; i < hi; i++ {
			f, err := et.enc.Encode(g.Image(i))
			if err != nil {
				return nil, fmt.Errorf("could not encode image %d: %w", i, err)
			}
			out.SetRow(i-lo, f)
		}
		return out, nil
	})
}
