package pointcloud

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ionmd/ionmd/internal/sim"
)

// WriteXYZ writes final ion positions: a count line, a comment line, then one
// "mass charge x y z" row per ion.
func WriteXYZ(path string, comment string, particles []sim.Particle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d\n%s\n", len(particles), strings.ReplaceAll(comment, "\n", " "))
	for _, p := range particles {
		fmt.Fprintf(w, "%d %d %.9g %.9g %.9g\n",
			p.Species.Mass, p.Species.Charge, p.Position.X, p.Position.Y, p.Position.Z)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadXYZ reads a positions file. Rows may carry "mass x y z" (charge 1) or
// "mass charge x y z". The first two lines are skipped.
func ReadXYZ(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		r, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseRow(fields []string) (Record, error) {
	nums := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Record{}, err
		}
		nums[i] = v
	}

	switch len(nums) {
	case 4:
		mass, err := integral("mass", nums[0])
		if err != nil {
			return Record{}, err
		}
		return Record{
			Species:  sim.Species{Mass: mass, Charge: 1},
			Position: sim.Vec3{X: nums[1], Y: nums[2], Z: nums[3]},
		}, nil
	case 5:
		mass, err := integral("mass", nums[0])
		if err != nil {
			return Record{}, err
		}
		charge, err := integral("charge", nums[1])
		if err != nil {
			return Record{}, err
		}
		return Record{
			Species:  sim.Species{Mass: mass, Charge: charge},
			Position: sim.Vec3{X: nums[2], Y: nums[3], Z: nums[4]},
		}, nil
	default:
		return Record{}, fmt.Errorf("expected 4 or 5 columns, got %d", len(nums))
	}
}

// integral converts a species column, refusing values that would truncate.
func integral(name string, v float64) (int, error) {
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%s %g is not an integer", name, v)
	}
	return int(v), nil
}
