package trajectory

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Writer appends steps to a trajectory stream, holding up to bufferSteps
// steps in memory between flushes.
type Writer struct {
	w      *bufio.Writer
	nIons  int
	steps  int
	record []byte
}

// NewWriter returns a Writer for nIons ions. bufferSteps <= 0 buffers a
// single step.
func NewWriter(w io.Writer, nIons, bufferSteps int) *Writer {
	if bufferSteps <= 0 {
		bufferSteps = 1
	}
	recordSize := valueSize * 3 * nIons
	return &Writer{
		w:      bufio.NewWriterSize(w, recordSize*bufferSteps),
		nIons:  nIons,
		record: make([]byte, recordSize),
	}
}

// WriteStep appends one step; positions holds x, y, z per ion in particle order.
func (w *Writer) WriteStep(positions []float64) error {
	if len(positions) != 3*w.nIons {
		return fmt.Errorf("trajectory: step has %d values, want %d", len(positions), 3*w.nIons)
	}
	for i, v := range positions {
		binary.LittleEndian.PutUint64(w.record[i*valueSize:], math.Float64bits(v))
	}
	if _, err := w.w.Write(w.record); err != nil {
		return err
	}
	w.steps++
	return nil
}

func (w *Writer) Flush() error { return w.w.Flush() }

// Steps is the number of steps written so far.
func (w *Writer) Steps() int { return w.steps }

// Encode writes rows (one per step) to a new file at path.
func Encode(path string, rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("trajectory: no steps to write")
	}
	if len(rows[0])%3 != 0 {
		return fmt.Errorf("trajectory: row length %d is not a multiple of 3", len(rows[0]))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := NewWriter(f, len(rows[0])/3, len(rows))
	for _, row := range rows {
		if err := w.WriteStep(row); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
