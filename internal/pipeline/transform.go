package pipeline

import (
	"fmt"
	"time"

	"github.com/astroml/galaxy/internal/concurrent"
	"github.com/astroml/galaxy/internal/metrics"
	"github.com/astroml/galaxy/internal/storage"
	"github.com/astroml/galaxy/internal/storage/file/blob"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Chunker computes the output rows for the input index range [lo,hi).
// Chunkers run concurrently and must not share mutable state.
type Chunker func(lo, hi int) (*mat.Dense, error)

// Transform is a compute-or-load wrapper around a chunk parallel
// row computation. The cache path is a deterministic function of the key
// only; the first run persists the result, later runs load it.
type Transform struct {
	store  *blob.Store
	key    storage.Key
	jobs   int
	force  bool
	memmap bool
}

// NewTransform creates a caching transform for the given key.
func NewTransform(store *blob.Store, key storage.Key, jobs int) *Transform {
	if jobs < 1 {
		jobs = 1
	}
	return &Transform{store: store, key: key, jobs: jobs}
}

// Force makes the next Run recompute even if a cached artifact exists.
func (t *Transform) Force(force bool) *Transform {
	t.force = force
	return t
}

// Memmap makes Run return a memory mapped view instead of a resident matrix.
func (t *Transform) Memmap(memmap bool) *Transform {
	t.memmap = memmap
	return t
}

// Key returns the cache key of the transform.
func (t *Transform) Key() storage.Key {
	return t.key
}

// Run produces the n-row output matrix, loading it from cache when present.
// Row order equals input order: chunk k's rows land at position k no matter
// which worker finishes first. Any chunk failure fails the whole run and
// nothing is cached.
func (t *Transform) Run(n int, chunk Chunker) (mat.Matrix, error) {
	if t.store.Exists(t.key) && !t.force {
		rows, _, err := t.store.Dims(t.key)
		if err != nil {
			return nil, err
		}
		// a stale artifact computed for a different file list must not be served
		if rows != n {
			return nil, fmt.Errorf("cached '%s' has %d rows for %d inputs: %w",
				t.key.Path(), rows, n, storage.UnrecoverableErr)
		}
		metrics.Pipeline.Hit(t.key.Kind)
		log.Info().Str("key", t.key.Path()).Int("rows", rows).Msg("loading cached transform")
		return t.load()
	}

	start := time.Now()
	metrics.Pipeline.Miss(t.key.Kind)

	chunks := concurrent.Chunks(n, t.jobs)
	results := make([]*mat.Dense, len(chunks))
	err := concurrent.Run(chunks, func(k int, c concurrent.Chunk) error {
		out, err := chunk(c.Lo, c.Hi)
		if err != nil {
			return fmt.Errorf("chunk [%d,%d) failed: %w", c.Lo, c.Hi, err)
		}
		if r, _ := out.Dims(); r != c.Len() {
			return fmt.Errorf("chunk [%d,%d) produced %d rows: %w", c.Lo, c.Hi, r, storage.UnrecoverableErr)
		}
		results[k] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vstack(results)
	if err != nil {
		return nil, err
	}
	if err := t.store.Save(t.key, out); err != nil {
		return nil, fmt.Errorf("could not persist '%s': %w", t.key.Path(), err)
	}

	metrics.Pipeline.Observe(t.key.Kind, time.Since(start).Seconds())
	log.Info().
		Str("key", t.key.Path()).
		Int("rows", n).
		Int("jobs", len(chunks)).
		Float64("seconds", time.Since(start).Seconds()).
		Msg("computed transform")

	if t.memmap {
		return t.store.LoadMapped(t.key)
	}
	return out, nil
}

func (t *Transform) load() (mat.Matrix, error) {
	if t.memmap {
		return t.store.LoadMapped(t.key)
	}
	return t.store.Load(t.key)
}

func vstack(parts []*mat.Dense) (*mat.Dense, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no chunk results to concatenate")
	}
	rows := 0
	_, cols := parts[0].Dims()
	for _, p := range parts {
		r, c := p.Dims()
		if c != cols {
			return nil, fmt.Errorf("chunk column mismatch: %d != %d", c, cols)
		}
		rows += r
	}
	out := mat.NewDense(rows, cols, nil)
	at := 0
	for _, p := range parts {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(at, p.RawRowView(i))
			at++
		}
	}
	return out, nil
}
