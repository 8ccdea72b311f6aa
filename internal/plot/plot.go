// Package plot draws ion trajectories as x, y and z traces against time, as
// PNG figures and as terminal graphs.
package plot

import (
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/trajectory"
)

// MaxIons is the most ions drawn in one figure.
const MaxIons = 10

var axisNames = [3]string{"x", "y", "z"}

// Options controls figure size and which ions are drawn.
type Options struct {
	Width, Height vg.Length
	// Ions lists ion indices to draw. Empty means the first MaxIons.
	Ions    []int
	Palette palette.Palette
	Title   string
}

func (o Options) withDefaults(nIons int) Options {
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 9 * vg.Inch
	}
	if len(o.Palette) == 0 {
		o.Palette = palette.Default()
	}
	if len(o.Ions) == 0 {
		n := nIons
		if n > MaxIons {
			n = MaxIons
		}
		for i := 0; i < n; i++ {
			o.Ions = append(o.Ions, i)
		}
	}
	return o
}

// Trajectory builds one plot per axis with a line for every selected ion.
// times must hold one entry per step.
func Trajectory(s *trajectory.Series, times []float64, opts Options) ([]*plot.Plot, error) {
	if len(times) != s.NumSteps {
		return nil, fmt.Errorf("plot: %d times for %d steps", len(times), s.NumSteps)
	}
	opts = opts.withDefaults(s.NumIons)
	if len(opts.Ions) > MaxIons {
		return nil, fmt.Errorf("plot: %d ions requested, at most %d per figure", len(opts.Ions), MaxIons)
	}
	for _, ion := range opts.Ions {
		if ion < 0 || ion >= s.NumIons {
			return nil, fmt.Errorf("plot: ion %d out of range [0, %d)", ion, s.NumIons)
		}
	}

	plots := make([]*plot.Plot, 3)
	for axis := range plots {
		p := plot.New()
		if axis == 0 {
			p.Title.Text = opts.Title
		}
		p.X.Label.Text = "t (s)"
		p.Y.Label.Text = axisNames[axis] + " (µm)"
		p.Add(plotter.NewGrid())

		for k, ion := range opts.Ions {
			xys := make(plotter.XYs, s.NumSteps)
			for step, v := range s.Component(ion, axis) {
				xys[step].X = times[step]
				xys[step].Y = v
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("plot: ion %d %s: %w", ion, axisNames[axis], err)
			}
			line.Color = opts.Palette.At(k).Color()
			p.Add(line)
			if axis == 0 {
				p.Legend.Add(fmt.Sprintf("ion %d", ion), line)
			}
		}
		plots[axis] = p
	}
	return plots, nil
}

// TrajectoryPNG stacks the x, y and z plots in one PNG at path.
func TrajectoryPNG(path string, s *trajectory.Series, times []float64, opts Options) error {
	opts = opts.withDefaults(s.NumIons)
	plots, err := Trajectory(s, times, opts)
	if err != nil {
		return err
	}

	img := vgimg.New(opts.Width, opts.Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 3, Cols: 1,
		PadX: vg.Millimeter, PadY: 2 * vg.Millimeter,
		PadTop: vg.Millimeter, PadBottom: vg.Millimeter,
		PadLeft: vg.Millimeter, PadRight: vg.Millimeter,
	}
	grid := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		grid[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, dc)
	for i, p := range plots {
		p.Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}
