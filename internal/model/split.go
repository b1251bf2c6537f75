package model

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// fold is one train/test partition of k-fold cross validation.
type fold struct {
	train []int
	test  []int
}

// kfold partitions the given indices into k contiguous test blocks, each
// with the remaining indices as the training set.
func kfold(idx []int, k int) ([]fold, error) {
	n := len(idx)
	if k < 2 || k > n {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", n, k)
	}
	folds := make([]fold, k)
	size := n / k
	rem := n % k
	lo := 0
	for f := 0; f < k; f++ {
		hi := lo + size
		if f < rem {
			hi++
		}
		test := make([]int, 0, hi-lo)
		train := make([]int, 0, n-(hi-lo))
		for i, v := range idx {
			if i >= lo && i < hi {
				test = append(test, v)
			} else {
				train = append(train, v)
			}
		}
		folds[f] = fold{train: train, test: test}
		lo = hi
	}
	return folds, nil
}

// sampleSplit shuffles [0,n) and splits it into a sampled part of
// n*fraction indices and the remaining holdout.
func sampleSplit(n int, fraction float64, seed uint64) ([]int, []int) {
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	if fraction <= 0 || fraction >= 1 {
		return idx, nil
	}
	cut := int(float64(n) * fraction)
	if cut < 1 {
		cut = 1
	}
	return idx[:cut], idx[cut:]
}

// indices returns [0,n).
func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
