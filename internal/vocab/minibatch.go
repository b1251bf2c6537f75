package vocab

import (
	"github.com/astroml/galaxy/internal/buffer"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

// miniBatch is the mini-batch k-means variant: each iteration assigns one
// random batch to the nearest centroids and moves those centroids with a
// per-centroid learning rate of 1/count.
func miniBatch(data [][]float64, k, iterations, batchSize int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	n := len(data)
	d := len(data[0])
	if batchSize > n {
		batchSize = n
	}

	// seed centroids from distinct random samples
	centroids := make([][]float64, k)
	for c, i := range rng.Perm(n)[:k] {
		centroids[c] = make([]float64, d)
		copy(centroids[c], data[i])
	}

	counts := make([]int, k)
	for it := 0; it < iterations; it++ {
		inertia := buffer.NewStats()
		for b := 0; b < batchSize; b++ {
			x := data[rng.Intn(n)]
			best, bestDist := 0, distance(x, centroids[0])
			for c := 1; c < k; c++ {
				if dist := distance(x, centroids[c]); dist < bestDist {
					best, bestDist = c, dist
				}
			}
			inertia.Push(bestDist)
			counts[best]++
			eta := 1 / float64(counts[best])
			for j := 0; j < d; j++ {
				centroids[best][j] += eta * (x[j] - centroids[best][j])
			}
		}
		if it%10 == 0 {
			log.Debug().
				Int("iteration", it).
				Float64("inertia", inertia.Avg()).
				Msg("mini-batch k-means")
		}
	}
	return centroids
}
