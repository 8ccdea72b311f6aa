// Package trajectory reads and writes the engine's flat binary position log.
//
// The file is a dense sequence of little-endian float64 values. For every
// time step the engine appends x, y, z of each ion in particle order, so the
// file is the column-major (3*nIons x numSteps) matrix of positions. Its
// transpose, the row-major (numSteps x 3*nIons) matrix, is the time series
// returned by Decode: row k holds all coordinates at t = k*dt.
//
// Files may be zstd compressed; Decode detects the frame magic and
// decompresses before checking the size.
package trajectory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"

	"github.com/ionmd/ionmd/internal/sim"
)

const valueSize = 8

// ErrSizeMismatch indicates a file whose length disagrees with the declared shape.
var ErrSizeMismatch = errors.New("trajectory: size mismatch")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type SizeError struct {
	Path     string
	NumIons  int
	NumSteps int
	Got      int
	Want     int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("trajectory: %s has %d bytes, want %d for %d ions x %d steps",
		e.Path, e.Got, e.Want, e.NumIons, e.NumSteps)
}

func (e *SizeError) Unwrap() error { return ErrSizeMismatch }

// ExpectedSize is the byte length of an uncompressed trajectory.
func ExpectedSize(nIons, numSteps int) int {
	return valueSize * 3 * nIons * numSteps
}

// Series is a decoded trajectory of shape (numSteps, 3*nIons).
type Series struct {
	NumIons  int
	NumSteps int
	data     *mat.Dense
}

func (s *Series) Shape() (rows, cols int) { return s.data.Dims() }

// Dense exposes the (numSteps, 3*nIons) matrix.
func (s *Series) Dense() *mat.Dense { return s.data }

// Columns is the transposed (3*nIons, numSteps) view, one row per coordinate.
func (s *Series) Columns() mat.Matrix { return s.data.T() }

// At returns coordinate axis (0=x, 1=y, 2=z) of ion at the given step.
func (s *Series) At(step, ion, axis int) float64 {
	return s.data.At(step, 3*ion+axis)
}

// Component returns one coordinate of one ion over all steps.
func (s *Series) Component(ion, axis int) []float64 {
	return mat.Col(nil, 3*ion+axis, s.data)
}

// Positions returns every ion's position at a step.
func (s *Series) Positions(step int) []sim.Vec3 {
	row := s.data.RawRowView(step)
	out := make([]sim.Vec3, s.NumIons)
	for i := range out {
		out[i] = sim.Vec3{X: row[3*i], Y: row[3*i+1], Z: row[3*i+2]}
	}
	return out
}

// Decode reads the whole trajectory at path. It fails with ErrSizeMismatch
// rather than truncating when the length disagrees with nIons and numSteps.
func Decode(path string, nIons, numSteps int) (*Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := DecodeBytes(raw, nIons, numSteps)
	if err != nil {
		var se *SizeError
		if errors.As(err, &se) {
			se.Path = path
		}
		return nil, err
	}
	return s, nil
}

// DecodeBytes decodes an in-memory trajectory, decompressing zstd framing
// first when present.
func DecodeBytes(raw []byte, nIons, numSteps int) (*Series, error) {
	if nIons <= 0 || numSteps <= 0 {
		return nil, fmt.Errorf("trajectory: shape must be positive, got %d ions x %d steps", nIons, numSteps)
	}
	// A raw file can start with the zstd magic by chance, so one that does
	// not decompress is still checked as raw doubles.
	if bytes.HasPrefix(raw, zstdMagic) {
		if out, err := decompress(raw); err == nil {
			raw = out
		}
	}

	want := ExpectedSize(nIons, numSteps)
	if len(raw) != want {
		return nil, &SizeError{Path: "<memory>", NumIons: nIons, NumSteps: numSteps, Got: len(raw), Want: want}
	}

	values := make([]float64, len(raw)/valueSize)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*valueSize:]))
	}

	return &Series{
		NumIons:  nIons,
		NumSteps: numSteps,
		data:     mat.NewDense(numSteps, 3*nIons, values),
	}, nil
}

func decompress(raw []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("trajectory: zstd: %w", err)
	}
	return out, nil
}

// Compress copies an uncompressed trajectory from src to a zstd stream at dst.
func Compress(dst io.Writer, src io.Reader) error {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// TimeAxis returns t[k] = k*dt for k in [0, numSteps).
func TimeAxis(dt float64, numSteps int) []float64 {
	if numSteps <= 0 {
		return []float64{}
	}
	t := make([]float64, numSteps)
	for k := range t {
		t[k] = float64(k) * dt
	}
	return t
}
