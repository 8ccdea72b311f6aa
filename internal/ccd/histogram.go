// Package ccd decodes per-detector histogram files and composites them into a
// synthetic RGB camera image.
//
// A histogram file holds little-endian float64 values: bins+1 edges for the
// row axis, bins+1 edges for the column axis, then bins*bins counts in
// row-major order.
package ccd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyFrame indicates a grid whose maximum is zero, so it cannot be normalized.
	ErrEmptyFrame = errors.New("ccd: empty frame")

	// ErrFrameSize indicates a file whose value count does not match the bin count.
	ErrFrameSize = errors.New("ccd: frame size mismatch")
)

// MetadataLen is the number of leading axis-range values in a histogram file.
func MetadataLen(bins int) int { return 2*bins + 2 }

type Histogram struct {
	Bins   int
	Ranges []float64
	Grid   *mat.Dense
}

// RowEdges returns the bins+1 edges of the row axis.
func (h *Histogram) RowEdges() []float64 { return h.Ranges[:h.Bins+1] }

// ColEdges returns the bins+1 edges of the column axis.
func (h *Histogram) ColEdges() []float64 { return h.Ranges[h.Bins+1:] }

// ReadHistogram loads a detector file with the given bin count.
func ReadHistogram(path string, bins int) (*Histogram, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("ccd: bins must be positive, got %d", bins)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: %s has %d bytes, not a whole number of float64", ErrFrameSize, path, len(raw))
	}

	values := make([]float64, len(raw)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	meta := MetadataLen(bins)
	if want := meta + bins*bins; len(values) != want {
		return nil, fmt.Errorf("%w: %s has %d values, want %d for %d bins", ErrFrameSize, path, len(values), want, bins)
	}

	return &Histogram{
		Bins:   bins,
		Ranges: values[:meta],
		Grid:   mat.NewDense(bins, bins, values[meta:]),
	}, nil
}

// WriteHistogram writes h in the detector file layout.
func WriteHistogram(path string, h *Histogram) error {
	if len(h.Ranges) != MetadataLen(h.Bins) {
		return fmt.Errorf("ccd: %d range values, want %d", len(h.Ranges), MetadataLen(h.Bins))
	}
	r, c := h.Grid.Dims()
	if r != h.Bins || c != h.Bins {
		return fmt.Errorf("ccd: grid is %dx%d, want %dx%d", r, c, h.Bins, h.Bins)
	}

	var buf bytes.Buffer
	buf.Grow(8 * (len(h.Ranges) + r*c))
	var word [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(word[:], math.Float64bits(v))
		buf.Write(word[:])
	}
	for _, v := range h.Ranges {
		put(v)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			put(h.Grid.At(i, j))
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Histogram2D bins the points (rows[i], cols[i]) on a square window of
// width extent centred on the origin. Points on the upper edge fall in the
// last bin; points outside the window are dropped.
func Histogram2D(rows, cols []float64, bins int, extent float64) (*Histogram, error) {
	if len(rows) != len(cols) {
		return nil, fmt.Errorf("ccd: %d row coordinates but %d column coordinates", len(rows), len(cols))
	}
	acc, err := NewAccumulator(bins, extent)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		acc.Add(rows[i], cols[i])
	}
	return acc.Histogram(), nil
}

// Accumulator bins points one at a time, for callers that cannot hold every
// sample in memory.
type Accumulator struct {
	bins   int
	extent float64
	grid   *mat.Dense
	n      int
}

func NewAccumulator(bins int, extent float64) (*Accumulator, error) {
	if bins <= 0 || extent <= 0 {
		return nil, fmt.Errorf("ccd: need positive bins and extent, got %d and %g", bins, extent)
	}
	return &Accumulator{bins: bins, extent: extent, grid: mat.NewDense(bins, bins, nil)}, nil
}

// Add counts one point, reporting whether it fell inside the window.
func (a *Accumulator) Add(row, col float64) bool {
	r, ok := binIndex(row, a.extent, a.bins)
	if !ok {
		return false
	}
	c, ok := binIndex(col, a.extent, a.bins)
	if !ok {
		return false
	}
	a.grid.Set(r, c, a.grid.At(r, c)+1)
	a.n++
	return true
}

// Count is the number of points binned so far.
func (a *Accumulator) Count() int { return a.n }

// Histogram returns the counts with matching edges. The grid is shared with
// the accumulator.
func (a *Accumulator) Histogram() *Histogram {
	edges := make([]float64, a.bins+1)
	floats.Span(edges, -a.extent/2, a.extent/2)
	ranges := make([]float64, 0, MetadataLen(a.bins))
	ranges = append(ranges, edges...)
	ranges = append(ranges, edges...)
	return &Histogram{Bins: a.bins, Ranges: ranges, Grid: a.grid}
}

func binIndex(v, extent float64, bins int) (int, bool) {
	lo, hi := -extent/2, extent/2
	if math.IsNaN(v) || v < lo || v > hi {
		return 0, false
	}
	i := int((v - lo) / extent * float64(bins))
	if i == bins {
		i--
	}
	return i, true
}

// Normalize returns a copy of grid divided by its maximum.
func Normalize(grid mat.Matrix) (*mat.Dense, error) {
	out := mat.DenseCopyOf(grid)
	data := out.RawMatrix().Data
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	peak := floats.Max(data)
	if !(peak > 0) {
		return nil, ErrEmptyFrame
	}
	floats.Scale(1/peak, data)
	return out, nil
}
