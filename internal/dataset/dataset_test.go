package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestClasses(t *testing.T) {
	assert.Equal(t, 11, len(Classes))
	assert.Equal(t, 37, TotalColumns())

	// groups partition the columns contiguously and in order
	next := 0
	for _, cls := range Classes {
		for _, col := range cls.Cols {
			assert.Equal(t, next, col)
			next++
		}
	}
	assert.Equal(t, 37, next)

	names := ColumnNames()
	assert.Equal(t, 37, len(names))
	assert.Equal(t, "Class1.1", names[0])
	assert.Equal(t, "Class11.6", names[36])
}

func TestDataset_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solutions.csv")
	f, err := os.Create(path)
	assert.NoError(t, err)

	w := csv.NewWriter(f)
	assert.NoError(t, w.Write(append([]string{"GalaxyID"}, ColumnNames()...)))
	for i := 0; i < 3; i++ {
		rec := make([]string, TotalColumns()+1)
		rec[0] = fmt.Sprintf("10000%d", i)
		for j := 1; j < len(rec); j++ {
			rec[j] = strconv.FormatFloat(float64(i*j)/100, 'f', -1, 64)
		}
		assert.NoError(t, w.Write(rec))
	}
	w.Flush()
	assert.NoError(t, f.Close())

	d, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"100000", "100001", "100002"}, d.IDs)
	assert.Equal(t, 0.02, d.Y.At(2, 0))
	assert.Equal(t, []string{"100000.jpg", "100001.jpg", "100002.jpg"}, d.Filenames())
}

func TestDataset_RebaseRoundtrip(t *testing.T) {
	n := 4
	y := mat.NewDense(n, TotalColumns(), nil)
	for i := 0; i < n; i++ {
		for j := 0; j < TotalColumns(); j++ {
			y.Set(i, j, float64(i+1)*float64(j%5)/10)
		}
	}
	d := &Dataset{IDs: make([]string, n), Y: y}

	rebased := d.Rebase()
	for _, cls := range Classes {
		scales := d.ScaleFor(cls)
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, j := range cls.Cols {
				sum += rebased.At(i, j)
				// multiplying back by the recovered scale restores the original
				assert.InDelta(t, y.At(i, j), rebased.At(i, j)*scales[i], 1e-9)
			}
			if scales[i] > 0 {
				assert.InDelta(t, 1.0, sum, 1e-9)
			}
		}
	}
}

func TestDataset_RebaseZeroRows(t *testing.T) {
	y := mat.NewDense(1, TotalColumns(), nil)
	d := &Dataset{IDs: []string{"a"}, Y: y}

	rebased := d.Rebase()
	for j := 0; j < TotalColumns(); j++ {
		assert.Equal(t, 0.0, rebased.At(0, j))
	}
}

func TestWriteSubmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "submission.csv")
	ids := []string{"100.jpg", "200.jpg"}
	pred := mat.NewDense(2, TotalColumns(), nil)
	pred.Set(0, 0, 0.5)

	assert.NoError(t, WriteSubmission(path, ids, pred))

	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	assert.NoError(t, err)

	assert.Equal(t, 3, len(records))
	assert.Equal(t, "GalaxyID", records[0][0])
	// the file extension is stripped from the ids
	assert.Equal(t, "100", records[1][0])
	assert.Equal(t, "0.5", records[1][1])
	assert.Equal(t, "200", records[2][0])
}

func TestWriteSubmission_ShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submission.csv")
	assert.Error(t, WriteSubmission(path, []string{"a"}, mat.NewDense(2, TotalColumns(), nil)))
	assert.Error(t, WriteSubmission(path, []string{"a"}, mat.NewDense(1, 3, nil)))
}

func TestMeanBenchmark(t *testing.T) {
	y := mat.NewDense(2, TotalColumns(), nil)
	y.Set(0, 0, 1)
	y.Set(1, 0, 3)
	d := &Dataset{IDs: []string{"a", "b"}, Y: y}

	out := MeanBenchmark(d, 3)
	r, c := out.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, TotalColumns(), c)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 2.0, out.At(i, 0))
		assert.Equal(t, 0.0, out.At(i, 1))
	}
}
