package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Class is one group of target columns of the decision tree.
type Class struct {
	ID   int
	Cols []int
}

// Classes is the fixed column partition of the 37 regression targets into
// 11 groups, processed by the cascade in this order.
// The tree does not actually progress 1 to 11; the ordering is a tunable.
var Classes = []Class{
	{ID: 1, Cols: span(0, 3)},
	{ID: 2, Cols: span(3, 2)},
	{ID: 3, Cols: span(5, 2)},
	{ID: 4, Cols: span(7, 2)},
	{ID: 5, Cols: span(9, 4)},
	{ID: 6, Cols: span(13, 2)},
	{ID: 7, Cols: span(15, 3)},
	{ID: 8, Cols: span(18, 7)},
	{ID: 9, Cols: span(25, 3)},
	{ID: 10, Cols: span(28, 3)},
	{ID: 11, Cols: span(31, 6)},
}

func span(lo, n int) []int {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = lo + i
	}
	return cols
}

// TotalColumns returns the full width of the target matrix.
func TotalColumns() int {
	n := 0
	for _, c := range Classes {
		n += len(c.Cols)
	}
	return n
}

// ColumnNames returns the target column headers, e.g. Class2.1.
func ColumnNames() []string {
	names := make([]string, 0, TotalColumns())
	for _, c := range Classes {
		for i := range c.Cols {
			names = append(names, fmt.Sprintf("Class%d.%d", c.ID, i+1))
		}
	}
	return names
}

// Dataset holds the ordered ground truth targets of the training split.
// It is passed explicitly to every consumer, row i of every derived
// feature matrix corresponds to IDs[i].
type Dataset struct {
	IDs []string
	Y   *mat.Dense
}

// Load reads the solutions csv (header, then id followed by the target columns).
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open solutions '%s': %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("could not parse solutions '%s': %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("solutions '%s' has no data rows", path)
	}
	cols := TotalColumns()
	if len(records[0]) != cols+1 {
		return nil, fmt.Errorf("solutions '%s' has %d columns, want %d", path, len(records[0]), cols+1)
	}

	rows := records[1:]
	ids := make([]string, len(rows))
	y := mat.NewDense(len(rows), cols, nil)
	for i, rec := range rows {
		ids[i] = rec[0]
		for j := 0; j < cols; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bad value at row %d col %d of '%s': %w", i+1, j+1, path, err)
			}
			y.Set(i, j, v)
		}
	}

	log.Info().Int("rows", len(ids)).Int("columns", cols).Str("path", path).Msg("loaded solutions")
	return &Dataset{IDs: ids, Y: y}, nil
}

// Filenames returns the ordered image file names of the training split.
func (d *Dataset) Filenames() []string {
	files := make([]string, len(d.IDs))
	for i, id := range d.IDs {
		files[i] = id + ".jpg"
	}
	return files
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.IDs)
}

// Rebase returns a copy of the targets where each class group of every row
// is scaled to sum to one. Rows with a zero group sum are left at zero.
func (d *Dataset) Rebase() *mat.Dense {
	n, cols := d.Y.Dims()
	out := mat.NewDense(n, cols, nil)
	out.Copy(d.Y)
	for _, cls := range Classes {
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, j := range cls.Cols {
				sum += d.Y.At(i, j)
			}
			if sum == 0 {
				continue
			}
			for _, j := range cls.Cols {
				out.Set(i, j, d.Y.At(i, j)/sum)
			}
		}
	}
	return out
}

// ScaleFor returns the per-row scale factor of the class group, the sum of
// its original target columns. Multiplying rebased predictions by this
// recovers the unscaled values.
func (d *Dataset) ScaleFor(cls Class) []float64 {
	n, _ := d.Y.Dims()
	scales := make([]float64, n)
	for i := 0; i < n; i++ {
		for _, j := range cls.Cols {
			scales[i] += d.Y.At(i, j)
		}
	}
	return scales
}

// Mean returns the column means of the targets.
func (d *Dataset) Mean() []float64 {
	n, cols := d.Y.Dims()
	mean := make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += d.Y.At(i, j)
		}
		mean[j] = sum / float64(n)
	}
	return mean
}
