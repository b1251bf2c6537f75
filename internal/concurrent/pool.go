package concurrent

import (
	"golang.org/x/sync/errgroup"
)

// Chunk is a contiguous half-open index range [Lo,Hi).
type Chunk struct {
	Lo int
	Hi int
}

// Len returns the number of indices covered by the chunk.
func (c Chunk) Len() int {
	return c.Hi - c.Lo
}

// Chunks splits n indices into at most parts contiguous ranges.
// The remainder is spread one extra index at a time over the first chunks,
// so sizes differ by at most one and the concatenation preserves order.
func Chunks(n, parts int) []Chunk {
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	if n <= 0 {
		return nil
	}
	size := n / parts
	rem := n % parts
	chunks := make([]Chunk, parts)
	lo := 0
	for k := 0; k < parts; k++ {
		hi := lo + size
		if k < rem {
			hi++
		}
		chunks[k] = Chunk{Lo: lo, Hi: hi}
		lo = hi
	}
	return chunks
}

// Run executes one worker per chunk and joins before returning.
// Workers must not share mutable state; chunk k writes only its own slot.
// The first error cancels nothing mid-flight, it is returned after the join.
func Run(chunks []Chunk, fn func(k int, c Chunk) error) error {
	var g errgroup.Group
	for k, c := range chunks {
		k, c := k, c
		g.Go(func() error {
			return fn(k, c)
		})
	}
	return g.Wait()
}

// Map applies fn to every index in [0,n) using at most jobs workers.
// Each worker owns a contiguous range, so writes to per-index slots never race.
func Map(jobs, n int, fn func(i int) error) error {
	return Run(Chunks(n, jobs), func(_ int, c Chunk) error {
		for i := c.Lo; i < c.Hi; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	})
}
