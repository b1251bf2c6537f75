package blob

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/astroml/galaxy/internal/storage"
	"golang.org/x/exp/mmap"
	"gonum.org/v1/gonum/mat"
)

// file layout : magic | rows | cols | row-major float64 payload, all little endian.
const (
	magic      = uint32(0x47584231)
	headerSize = 4 + 8 + 8
)

// Store persists dense float64 matrices as one binary file per key
// under DefaultDir/table.
type Store struct {
	path  string
	table string
}

// NewStore creates a matrix store for the given table.
func NewStore(table string) *Store {
	return &Store{
		table: table,
		path:  storage.DefaultDir,
	}
}

func (s *Store) Path(k storage.Key) string {
	return filepath.Join(s.path, s.table, k.Path()+".bin")
}

// Exists reports whether an artifact has been persisted for the key.
func (s *Store) Exists(k storage.Key) bool {
	_, err := os.Stat(s.Path(k))
	return err == nil
}

// Save persists the matrix for the given key.
// There is exactly one producer per key; concurrent writers race last-writer-wins.
func (s *Store) Save(k storage.Key, m *mat.Dense) error {
	dir := filepath.Join(s.path, s.table)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not make dir: %s: %w", dir, err)
	}

	p := s.Path(k)
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("could not create file '%s': %w", p, err)
	}
	defer f.Close()

	rows, cols := m.Dims()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, magic); err != nil {
		return fmt.Errorf("could not write header to '%s': %w", p, err)
	}
	if err := binary.Write(w, binary.LittleEndian, int64(rows)); err != nil {
		return fmt.Errorf("could not write header to '%s': %w", p, err)
	}
	if err := binary.Write(w, binary.LittleEndian, int64(cols)); err != nil {
		return fmt.Errorf("could not write header to '%s': %w", p, err)
	}
	raw := m.RawMatrix()
	for i := 0; i < rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+cols]
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("could not write row %d to '%s': %w", i, p, err)
		}
	}
	return w.Flush()
}

// Dims reads only the header of the persisted artifact.
func (s *Store) Dims(k storage.Key) (int, int, error) {
	p := s.Path(k)
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, fmt.Errorf("could not read file '%s': %w", p, storage.NotFoundErr)
	}
	defer f.Close()
	return readHeader(f, p)
}

// Load reads the whole matrix into memory.
func (s *Store) Load(k storage.Key) (*mat.Dense, error) {
	p := s.Path(k)
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", p, storage.NotFoundErr)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	rows, cols, err := readHeader(r, p)
	if err != nil {
		return nil, err
	}
	data := make([]float64, rows*cols)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("could not read payload of '%s': %w", p, storage.CouldNotLoadErr)
	}
	return mat.NewDense(rows, cols, data), nil
}

// LoadMapped opens the artifact as a memory mapped read-only matrix view,
// for feature matrices too large for resident memory.
func (s *Store) LoadMapped(k storage.Key) (*Mapped, error) {
	p := s.Path(k)
	r, err := mmap.Open(p)
	if err != nil {
		return nil, fmt.Errorf("could not map file '%s': %w", p, storage.NotFoundErr)
	}
	hdr := make([]byte, headerSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		r.Close()
		return nil, fmt.Errorf("could not read header of '%s': %w", p, storage.CouldNotLoadErr)
	}
	if binary.LittleEndian.Uint32(hdr[:4]) != magic {
		r.Close()
		return nil, fmt.Errorf("'%s' is not a matrix blob: %w", p, storage.CouldNotLoadErr)
	}
	rows := int(int64(binary.LittleEndian.Uint64(hdr[4:12])))
	cols := int(int64(binary.LittleEndian.Uint64(hdr[12:20])))
	return &Mapped{r: r, rows: rows, cols: cols}, nil
}

func readHeader(r interface{ Read([]byte) (int, error) }, p string) (int, int, error) {
	var m uint32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return 0, 0, fmt.Errorf("could not read header of '%s': %w", p, storage.CouldNotLoadErr)
	}
	if m != magic {
		return 0, 0, fmt.Errorf("'%s' is not a matrix blob: %w", p, storage.CouldNotLoadErr)
	}
	var rows, cols int64
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return 0, 0, fmt.Errorf("could not read header of '%s': %w", p, storage.CouldNotLoadErr)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return 0, 0, fmt.Errorf("could not read header of '%s': %w", p, storage.CouldNotLoadErr)
	}
	return int(rows), int(cols), nil
}

// Mapped is a read-only mat.Matrix backed by a memory mapped file.
type Mapped struct {
	r    *mmap.ReaderAt
	rows int
	cols int
}

func (m *Mapped) Dims() (int, int) {
	return m.rows, m.cols
}

func (m *Mapped) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	var b [8]byte
	off := int64(headerSize) + 8*(int64(i)*int64(m.cols)+int64(j))
	if _, err := m.r.ReadAt(b[:], off); err != nil {
		panic(fmt.Errorf("could not read mapped value at (%d,%d): %w", i, j, err))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
}

func (m *Mapped) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

func (m *Mapped) Close() error {
	return m.r.Close()
}
