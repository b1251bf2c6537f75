package image

import (
	"fmt"
	goimage "image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/astroml/galaxy/internal/storage"
)

// Splits of the dataset.
const (
	Train = "train"
	Test  = "test"
)

// Source enumerates the ordered file list of a split and materializes
// single images. Failures are hard errors, there is no partial output.
type Source interface {
	List(split string) ([]string, error)
	Load(id string) (Image, error)
}

// Dir is a Source reading decodable images from one directory per split.
type Dir struct {
	dirs map[string]string
}

// NewDir creates a directory backed source.
func NewDir(trainDir, testDir string) *Dir {
	return &Dir{dirs: map[string]string{
		Train: trainDir,
		Test:  testDir,
	}}
}

// List returns the sorted image file names of the split.
func (d *Dir) List(split string) ([]string, error) {
	dir, ok := d.dirs[split]
	if !ok {
		return nil, fmt.Errorf("unknown split '%s': %w", split, storage.NotFoundErr)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not list '%s': %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load decodes the image with the given file name, searching both splits.
func (d *Dir) Load(id string) (Image, error) {
	for _, dir := range d.dirs {
		p := filepath.Join(dir, id)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		return decode(p)
	}
	return Image{}, fmt.Errorf("could not locate image '%s': %w", id, storage.NotFoundErr)
}

func decode(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("could not open image '%s': %w", path, err)
	}
	defer f.Close()

	src, _, err := goimage.Decode(f)
	if err != nil {
		return Image{}, fmt.Errorf("could not decode image '%s': %w", path, err)
	}

	bounds := src.Bounds()
	im := New(bounds.Dy(), bounds.Dx())
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			im.Set(y, x, 0, float64(r>>8))
			im.Set(y, x, 1, float64(g>>8))
			im.Set(y, x, 2, float64(b>>8))
		}
	}
	return im, nil
}
