package pipeline

import (
	"fmt"
	"testing"

	"github.com/astroml/galaxy/internal/image"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func testGrid(n, size int) image.Grid {
	data := mat.NewDense(n, size*size*image.Channels, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < size*size*image.Channels; j++ {
			data.Set(i, j, float64(i))
		}
	}
	g, _ := image.NewGrid(data, size, size)
	return g
}

func TestPatchSampler_ExactCount(t *testing.T) {

	// 7 patches is not divisible by 2 or 5
	for _, jobs := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("jobs-%d", jobs), func(t *testing.T) {
			g := testGrid(4, 3)

			out, err := NewPatchSampler(7, 2, jobs, 11).Transform(g)
			assert.NoError(t, err)

			rows, cols := out.Dims()
			assert.Equal(t, 7, rows)
			assert.Equal(t, 2*2*image.Channels, cols)

			// every patch comes whole from one of the flat images
			for i := 0; i < rows; i++ {
				v := out.At(i, 0)
				assert.True(t, v >= 0 && v < 4)
				for j := 1; j < cols; j++ {
					assert.Equal(t, v, out.At(i, j))
				}
			}
		})
	}
}

func TestPatchSampler_Deterministic(t *testing.T) {
	g := testGrid(5, 4)

	first, err := NewPatchSampler(16, 2, 3, 42).Transform(g)
	assert.NoError(t, err)
	second, err := NewPatchSampler(16, 2, 3, 42).Transform(g)
	assert.NoError(t, err)
	assert.True(t, mat.Equal(first, second))

	other, err := NewPatchSampler(16, 2, 3, 43).Transform(g)
	assert.NoError(t, err)
	assert.False(t, mat.Equal(first, other))
}

func TestPatchSampler_PatchTooLarge(t *testing.T) {
	g := testGrid(2, 3)
	_, err := NewPatchSampler(4, 5, 1, 0).Transform(g)
	assert.Error(t, err)
}

func TestPatchSampler_EmptyGrid(t *testing.T) {
	data := mat.NewDense(1, 2*2*image.Channels, nil)
	g, err := image.NewGrid(data, 2, 2)
	assert.NoError(t, err)
	// one image is fine, patch size equal to image size has one position
	out, err := NewPatchSampler(3, 2, 2, 1).Transform(g)
	assert.NoError(t, err)
	rows, _ := out.Dims()
	assert.Equal(t, 3, rows)
}
