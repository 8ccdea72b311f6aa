// Package engine is a reference trapped-ion molecular dynamics engine. It
// integrates every ion with velocity Verlet under the trap pseudopotential,
// optional Coulomb repulsion, RF micromotion, Doppler damping and Langevin
// kicks, and writes the trajectory, final positions and per-species CCD
// histograms the rest of ionmd reads.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ionmd/ionmd/internal/ccd"
	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
	"github.com/ionmd/ionmd/internal/trajectory"
)

// cancelCheck is how many steps pass between context checks.
const cancelCheck = 256

type Engine struct {
	dir string
	log *log.Logger

	step  atomic.Int64
	total atomic.Int64
}

type Option func(*Engine)

// WithDir resolves relative output filenames against dir.
func WithDir(dir string) Option { return func(e *Engine) { e.dir = dir } }

func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.log = l } }

func New(opts ...Option) *Engine {
	e := &Engine{log: log.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Progress reports steps completed and the step count of the current run.
func (e *Engine) Progress() (int, int) {
	return int(e.step.Load()), int(e.total.Load())
}

// Path resolves an output filename the way Run does.
func (e *Engine) Path(name string) string {
	if e.dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.dir, name)
}

// Run integrates snap for num_steps steps. Step k of the trajectory holds
// positions at t = k*dt, starting from the configured positions. Each step
// is split into substeps while ions are close or fast relative to their
// separation.
func (e *Engine) Run(ctx context.Context, snap sim.Snapshot) error {
	p := snap.Params
	if err := p.Validate(); err != nil {
		return err
	}
	if len(snap.Particles) == 0 {
		return sim.ErrEmptySystem
	}

	e.step.Store(0)
	e.total.Store(int64(p.NumSteps))

	sys := newSystem(p, snap.Particles)
	x := sys.initialState(snap.Particles)
	n := len(snap.Particles)

	f, err := os.Create(e.Path(p.Filename))
	if err != nil {
		return err
	}
	defer f.Close()

	w := trajectory.NewWriter(f, n, p.BufferSize)
	det, err := newDetectors(p, snap.Particles)
	if err != nil {
		return err
	}

	e.log.Info("engine started", "ions", n, "steps", p.NumSteps, "dt", p.Dt, "file", e.Path(p.Filename))
	start := time.Now()

	var integ verlet
	maxSub := 1
	row := make([]float64, 3*n)
	for step := 0; step < p.NumSteps; step++ {
		if step%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		sys.positions(x, row)
		if err := checkFinite(row, step); err != nil {
			return err
		}
		if err := w.WriteStep(row); err != nil {
			return err
		}
		det.add(row)

		if p.BufferSize > 0 && (step+1)%p.BufferSize == 0 {
			if err := w.Flush(); err != nil {
				return err
			}
			e.log.Debug("flushed trajectory buffer", "step", step+1)
		}

		t := float64(step) * p.Dt
		sub := sys.substeps(x, t, p.Dt)
		if sub > maxSub {
			maxSub = sub
		}
		h := p.Dt / float64(sub)
		for k := 0; k < sub; k++ {
			integ.Step(sys, x, t+float64(k)*h, h)
			sys.kick(x, h)
		}
		e.step.Store(int64(step + 1))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	final := finalParticles(snap.Particles, row)
	if p.FPosFilename != "" {
		comment := fmt.Sprintf("ionmd final positions, t=%g s", float64(p.NumSteps-1)*p.Dt)
		if err := pointcloud.WriteXYZ(e.Path(p.FPosFilename), comment, final); err != nil {
			return err
		}
	}
	if err := det.write(e.Path(p.CCDPrefix)); err != nil {
		return err
	}

	e.log.Info("engine finished", "steps", w.Steps(), "max_substeps", maxSub, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func checkFinite(row []float64, step int) error {
	for i := 0; i < len(row); i += 3 {
		if !sim.VecOf([3]float64{row[i], row[i+1], row[i+2]}).IsValid() {
			return fmt.Errorf("engine: ion %d left the finite range at step %d", i/3, step)
		}
	}
	return nil
}

func finalParticles(particles []sim.Particle, row []float64) []sim.Particle {
	out := make([]sim.Particle, len(particles))
	for i, pt := range particles {
		out[i] = sim.Particle{
			Species:  pt.Species,
			Position: sim.Vec3{X: row[3*i], Y: row[3*i+1], Z: row[3*i+2]},
		}
	}
	return out
}

// detectors bins every contiguous species group into its own histogram, x
// along rows and z along columns, as a camera looking down y would see it.
type detectors struct {
	group []int
	accs  []*ccd.Accumulator
}

func newDetectors(p config.Params, particles []sim.Particle) (*detectors, error) {
	if p.CCDBins == 0 || p.CCDPrefix == "" {
		return nil, nil
	}
	d := &detectors{group: make([]int, len(particles))}
	g := -1
	for i, pt := range particles {
		if i == 0 || pt.Species != particles[i-1].Species {
			g++
			acc, err := ccd.NewAccumulator(p.CCDBins, p.CCDExtent)
			if err != nil {
				return nil, err
			}
			d.accs = append(d.accs, acc)
		}
		d.group[i] = g
	}
	return d, nil
}

func (d *detectors) add(row []float64) {
	if d == nil {
		return
	}
	for i, g := range d.group {
		d.accs[g].Add(row[3*i], row[3*i+2])
	}
}

func (d *detectors) write(prefix string) error {
	if d == nil {
		return nil
	}
	for i, det := range ccd.DetectorPaths(prefix, len(d.accs)) {
		if err := ccd.WriteHistogram(det.Path, d.accs[i].Histogram()); err != nil {
			return err
		}
	}
	return nil
}
