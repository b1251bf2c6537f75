package pipeline

import (
	"fmt"

	"github.com/astroml/galaxy/internal/image"
	"github.com/astroml/galaxy/internal/storage"
	"github.com/astroml/galaxy/internal/storage/file/blob"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// progressEvery controls how often chunk workers log progress.
const progressEvery = 1000

// CropScale converts a file list into a stacked image matrix by center
// cropping to crop pixels and rescaling to scale pixels. One row per file.
type CropScale struct {
	src   image.Source
	crop  int
	scale int
	t     *Transform
}

// NewCropScale creates the crop+scale transform for the given split.
func NewCropScale(store *blob.Store, src image.Source, split string, crop, scale, jobs int) *CropScale {
	key := storage.Key{
		Kind:      "img",
		Split:     split,
		Signature: fmt.Sprintf("c%d_s%d", crop, scale),
	}
	return &CropScale{
		src:   src,
		crop:  crop,
		scale: scale,
		t:     NewTransform(store, key, jobs),
	}
}

// Force makes the next Transform recompute even if cached.
func (cs *CropScale) Force(force bool) *CropScale {
	cs.t.Force(force)
	return cs
}

// Memmap makes Transform return a memory mapped view.
func (cs *CropScale) Memmap(memmap bool) *CropScale {
	cs.t.Memmap(memmap)
	return cs
}

// Transform maps the file list into the stacked image matrix.
func (cs *CropScale) Transform(files []string) (mat.Matrix, error) {
	return cs.t.Run(len(files), fileChunker(cs.src, files, cs.t.Key(), func(im image.Image) ([]float64, error) {
		return im.Crop(cs.crop).Rescale(cs.scale).Pix, nil
	}))
}

// Grid runs the transform and reshapes the resident result into an image grid.
func (cs *CropScale) Grid(files []string) (image.Grid, error) {
	out, err := cs.Transform(files)
	if err != nil {
		return image.Grid{}, err
	}
	dense, ok := out.(*mat.Dense)
	if !ok {
		dense = mat.DenseCopyOf(out)
	}
	return image.NewGrid(dense, cs.scale, cs.scale)
}

// PixelSample converts a file list into a matrix of grid sampled pixels.
type PixelSample struct {
	src      image.Source
	steps    int
	stepSize int
	t        *Transform
}

// NewPixelSample creates the pixel sampling transform for the given split.
func NewPixelSample(store *blob.Store, src image.Source, split string, steps, stepSize, jobs int) *PixelSample {
	key := storage.Key{
		Kind:      "pixels",
		Split:     split,
		Signature: fmt.Sprintf("steps%d_size%d", steps, stepSize),
	}
	return &PixelSample{
		src:      src,
		steps:    steps,
		stepSize: stepSize,
		t:        NewTransform(store, key, jobs),
	}
}

// Force makes the next Transform recompute even if cached.
func (ps *PixelSample) Force(force bool) *PixelSample {
	ps.t.Force(force)
	return ps
}

// Transform maps the file list into the sampled pixel matrix.
func (ps *PixelSample) Transform(files []string) (mat.Matrix, error) {
	return ps.t.Run(len(files), fileChunker(ps.src, files, ps.t.Key(), func(im image.Image) ([]float64, error) {
		return im.GridSample(ps.stepSize, ps.steps), nil
	}))
}

func fileChunker(src image.Source, files []string, key storage.Key, row func(im image.Image) ([]float64, error)) Chunker {
	return func(lo, hi int) (*mat.Dense, error) {
		var out *mat.Dense
		for i := lo; i < hi; i++ {
			im, err := src.Load(files[i])
			if err != nil {
				return nil, fmt.Errorf("could not process '%s': %w", files[i], err)
			}
			r, err := row(im)
			if err != nil {
				return nil, fmt.Errorf("could not process '%s': %w", files[i], err)
			}
			if out == nil {
				out = mat.NewDense(hi-lo, len(r), nil)
			}
			out.SetRow(i-lo, r)
			if (i-lo)%progressEvery == 0 && i > lo {
				log.Info().Str("key", key.Path()).Int("processed", i-lo).Msg("processing images")
			}
		}
		if out == nil {
			return &mat.Dense{}, nil
		}
		return out, nil
	}
}
