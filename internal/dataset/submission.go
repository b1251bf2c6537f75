package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// WriteSubmission writes the predictions for the given ids as a csv file.
// Row order follows ids; predictions must be ids x TotalColumns.
func WriteSubmission(path string, ids []string, pred mat.Matrix) error {
	n, cols := pred.Dims()
	if n != len(ids) {
		return fmt.Errorf("have %d predictions for %d ids", n, len(ids))
	}
	if cols != TotalColumns() {
		return fmt.Errorf("have %d prediction columns, want %d", cols, TotalColumns())
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not make dir '%s': %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create submission '%s': %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"GalaxyID"}, ColumnNames()...)); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}
	rec := make([]string, cols+1)
	for i := 0; i < n; i++ {
		rec[0] = strings.TrimSuffix(ids[i], filepath.Ext(ids[i]))
		for j := 0; j < cols; j++ {
			rec[j+1] = strconv.FormatFloat(pred.At(i, j), 'f', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("could not write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("could not flush submission '%s': %w", path, err)
	}

	log.Info().Int("rows", n).Str("path", path).Msg("wrote submission")
	return nil
}

// MeanBenchmark tiles the training target means over n rows.
// This is the baseline every model run should beat.
func MeanBenchmark(d *Dataset, n int) *mat.Dense {
	mean := d.Mean()
	out := mat.NewDense(n, len(mean), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, mean)
	}
	return out
}
