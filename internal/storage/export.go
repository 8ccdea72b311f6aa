package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ionmd/ionmd/internal/trajectory"
)

// ExportCSV writes one row per step: time, then x, y, z for every ion.
func ExportCSV(w io.Writer, s *trajectory.Series, times []float64) error {
	if len(times) != s.NumSteps {
		return fmt.Errorf("storage: %d times for %d steps", len(times), s.NumSteps)
	}

	cw := csv.NewWriter(w)
	header := []string{"time"}
	for i := 0; i < s.NumIons; i++ {
		header = append(header, fmt.Sprintf("x%d", i), fmt.Sprintf("y%d", i), fmt.Sprintf("z%d", i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, 1+3*s.NumIons)
	for step := 0; step < s.NumSteps; step++ {
		row[0] = strconv.FormatFloat(times[step], 'g', -1, 64)
		for i, p := range s.Positions(step) {
			row[1+3*i] = strconv.FormatFloat(p.X, 'g', -1, 64)
			row[2+3*i] = strconv.FormatFloat(p.Y, 'g', -1, 64)
			row[3+3*i] = strconv.FormatFloat(p.Z, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
