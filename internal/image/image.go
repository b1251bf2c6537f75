package image

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Channels is the number of color channels of every pixel tensor.
const Channels = 3

// Image is a H x W x 3 pixel tensor with values in [0,255].
type Image struct {
	H   int
	W   int
	Pix []float64
}

// New creates a zeroed image of the given dimensions.
func New(h, w int) Image {
	return Image{H: h, W: w, Pix: make([]float64, h*w*Channels)}
}

// At returns the value of channel c of pixel (y,x).
func (im Image) At(y, x, c int) float64 {
	return im.Pix[(y*im.W+x)*Channels+c]
}

// Set assigns the value of channel c of pixel (y,x).
func (im Image) Set(y, x, c int, v float64) {
	im.Pix[(y*im.W+x)*Channels+c] = v
}

// Crop returns the centered size x size crop of the image.
// An axis shorter than size is kept whole, so a non square input yields a
// non square crop instead of indexing out of bounds.
func (im Image) Crop(size int) Image {
	h, w := size, size
	if h > im.H {
		h = im.H
	}
	if w > im.W {
		w = im.W
	}
	if h == im.H && w == im.W {
		return im
	}
	y0 := (im.H - h) / 2
	x0 := (im.W - w) / 2
	out := New(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < Channels; c++ {
				out.Set(y, x, c, im.At(y0+y, x0+x, c))
			}
		}
	}
	return out
}

// Rescale resizes the image to size x size with nearest neighbour sampling.
func (im Image) Rescale(size int) Image {
	if size == im.H && size == im.W {
		return im
	}
	out := New(size, size)
	for y := 0; y < size; y++ {
		sy := y * im.H / size
		for x := 0; x < size; x++ {
			sx := x * im.W / size
			for c := 0; c < Channels; c++ {
				out.Set(y, x, c, im.At(sy, sx, c))
			}
		}
	}
	return out
}

// GridSample picks steps x steps pixels spaced stepSize apart around the
// image center and returns them flattened.
func (im Image) GridSample(stepSize, steps int) []float64 {
	out := make([]float64, 0, steps*steps*Channels)
	y0 := im.H/2 - (steps/2)*stepSize
	x0 := im.W/2 - (steps/2)*stepSize
	for i := 0; i < steps; i++ {
		for j := 0; j < steps; j++ {
			y := clamp(y0+i*stepSize, 0, im.H-1)
			x := clamp(x0+j*stepSize, 0, im.W-1)
			for c := 0; c < Channels; c++ {
				out = append(out, im.At(y, x, c))
			}
		}
	}
	return out
}

// Patch extracts the size x size patch with top-left corner (y,x), flattened.
func (im Image) Patch(y, x, size int) []float64 {
	out := make([]float64, 0, size*size*Channels)
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			for c := 0; c < Channels; c++ {
				out = append(out, im.At(y+dy, x+dx, c))
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Grid is an ordered stack of same-shape images, one flattened image per row.
type Grid struct {
	H    int
	W    int
	Data *mat.Dense
}

// NewGrid wraps a matrix whose rows are flattened H x W x 3 images.
func NewGrid(data *mat.Dense, h, w int) (Grid, error) {
	_, c := data.Dims()
	if c != h*w*Channels {
		return Grid{}, fmt.Errorf("row width %d does not match %dx%dx%d image", c, h, w, Channels)
	}
	return Grid{H: h, W: w, Data: data}, nil
}

// Len returns the number of images in the grid.
func (g Grid) Len() int {
	n, _ := g.Data.Dims()
	return n
}

// Image reshapes row i back into an image. The pixel data is shared.
func (g Grid) Image(i int) Image {
	return Image{H: g.H, W: g.W, Pix: g.Data.RawRowView(i)}
}
