package pipeline

import (
	"fmt"

	"github.com/astroml/galaxy/internal/concurrent"
	"github.com/astroml/galaxy/internal/image"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// PatchSampler draws a fixed number of random patches from an image grid.
// Patches may overlap or repeat by chance; this is statistical sampling for
// vocabulary training, not exhaustive coverage.
type PatchSampler struct {
	patches int
	size    int
	jobs    int
	seed    uint64
}

// NewPatchSampler creates a sampler for the given patch count and size.
func NewPatchSampler(patches, size, jobs int, seed uint64) *PatchSampler {
	if jobs < 1 {
		jobs = 1
	}
	return &PatchSampler{patches: patches, size: size, jobs: jobs, seed: seed}
}

// Transform draws exactly the configured number of patches, each flattened
// to a size*size*3 vector. Workers draw independent sub-samples into
// disjoint row ranges, with the division remainder assigned to the first
// workers; each worker owns a seeded stream so runs are reproducible.
func (s *PatchSampler) Transform(g image.Grid) (*mat.Dense, error) {
	n := g.Len()
	if n == 0 {
		return nil, fmt.Errorf("cannot sample patches from an empty grid")
	}
	if s.size > g.H || s.size > g.W {
		return nil, fmt.Errorf("patch size %d does not fit %dx%d images", s.size, g.H, g.W)
	}

	dim := s.size * s.size * image.Channels
	out := mat.NewDense(s.patches, dim, nil)

	chunks := concurrent.Chunks(s.patches, s.jobs)
	err := concurrent.Run(chunks, func(k int, c concurrent.Chunk) error {
		rng := rand.New(rand.NewSource(s.seed + uint64(k)))
		for i := c.Lo; i < c.Hi; i++ {
			im := g.Image(rng.Intn(n))
			y := rng.Intn(im.H - s.size + 1)
			x := rng.Intn(im.W - s.size + 1)
			out.SetRow(i, im.Patch(y, x, s.size))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("patches", s.patches).
		Int("size", s.size).
		Int("jobs", len(chunks)).
		Msg("sampled patches")
	return out, nil
}
