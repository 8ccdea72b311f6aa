package engine

import (
	"math"
	"math/rand"

	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/sim"
)

const (
	AMU        = 1.66053906660e-27 // kg
	Elementary = 1.602176634e-19   // C
	Coulomb    = 8.9875517923e9    // N m^2 C^-2
	Boltzmann  = 1.380649e-23      // J/K

	// micrometres per metre
	micro = 1e6
)

// Each integrator substep may move an ion at most this fraction of the
// closest pair separation.
const (
	maxDisplacement = 0.01
	maxSubsteps     = 4096
	rfSamples       = 20 // substeps per RF period with micromotion on
)

// Secular frequencies and the Mathieu q parameter are given for this
// reference species. Other species scale with their charge to mass ratio.
var Reference = sim.Species{Mass: 40, Charge: 1}

type ion struct {
	mass, charge float64
	omega2       [3]float64 // secular angular frequency squared per axis
	q            float64
}

// system holds the per-ion constants for one run. State vectors are laid
// out as [positions..., velocities...] in SI units.
type system struct {
	p    config.Params
	ions []ion
	rng  *rand.Rand

	rfOmega float64
	accel   []float64
}

func newSystem(p config.Params, particles []sim.Particle) *system {
	s := &system{
		p:       p,
		ions:    make([]ion, len(particles)),
		rng:     rand.New(rand.NewSource(p.Seed)),
		rfOmega: 2 * math.Pi * p.RFFreq,
		accel:   make([]float64, 6*len(particles)),
	}
	ref := float64(Reference.Charge) / float64(Reference.Mass)
	for i, pt := range particles {
		ratio := float64(pt.Species.Charge) / float64(pt.Species.Mass) / ref
		in := ion{
			mass:   float64(pt.Species.Mass) * AMU,
			charge: float64(pt.Species.Charge) * Elementary,
			q:      p.QParam * ratio,
		}
		for axis, f := range p.SecularFreq {
			w := 2 * math.Pi * f
			// radial confinement is the RF pseudopotential, axial is static
			if axis < 2 {
				w *= ratio
			} else {
				w *= math.Sqrt(math.Abs(ratio))
			}
			in.omega2[axis] = w * w
		}
		s.ions[i] = in
	}
	return s
}

func (s *system) size() int { return 6 * len(s.ions) }

// initialState places ions at rest at their configured positions.
func (s *system) initialState(particles []sim.Particle) []float64 {
	x := make([]float64, s.size())
	for i, pt := range particles {
		x[3*i] = pt.Position.X / micro
		x[3*i+1] = pt.Position.Y / micro
		x[3*i+2] = pt.Position.Z / micro
	}
	return x
}

// Derive writes the time derivative of x into dx.
func (s *system) Derive(x []float64, t float64, dx []float64) {
	n := len(s.ions)
	half := 3 * n
	copy(dx[:half], x[half:])
	acc := dx[half:]
	for i := range acc {
		acc[i] = 0
	}

	var cosRF float64
	if s.p.MicromotionEnabled {
		cosRF = math.Cos(s.rfOmega * t)
	}

	for i, in := range s.ions {
		pos := x[3*i : 3*i+3]
		vel := x[half+3*i : half+3*i+3]
		a := acc[3*i : 3*i+3]

		if s.p.SecularEnabled {
			for k := 0; k < 3; k++ {
				a[k] -= in.omega2[k] * pos[k]
			}
		}
		if s.p.MicromotionEnabled {
			m := in.q * s.rfOmega * s.rfOmega / 2 * cosRF
			a[0] += m * pos[0]
			a[1] -= m * pos[1]
		}
		if s.p.DopplerEnabled {
			for k := 0; k < 3; k++ {
				a[k] -= s.p.Damping * vel[k]
			}
		}
	}

	if s.p.CoulombEnabled {
		s.coulomb(x[:half], acc)
	}
}

func (s *system) coulomb(pos, acc []float64) {
	for i := 0; i < len(s.ions); i++ {
		for j := i + 1; j < len(s.ions); j++ {
			dx := pos[3*i] - pos[3*j]
			dy := pos[3*i+1] - pos[3*j+1]
			dz := pos[3*i+2] - pos[3*j+2]
			r2 := dx*dx + dy*dy + dz*dz
			if r2 == 0 {
				continue
			}
			f := Coulomb * s.ions[i].charge * s.ions[j].charge / (r2 * math.Sqrt(r2))
			fi, fj := f/s.ions[i].mass, f/s.ions[j].mass
			acc[3*i] += fi * dx
			acc[3*i+1] += fi * dy
			acc[3*i+2] += fi * dz
			acc[3*j] -= fj * dx
			acc[3*j+1] -= fj * dy
			acc[3*j+2] -= fj * dz
		}
	}
}

// substeps picks how many integrator steps cover one output step of dt
// starting from x at time t.
func (s *system) substeps(x []float64, t, dt float64) int {
	n := 1.0
	if s.p.MicromotionEnabled && s.p.RFFreq > 0 {
		n = math.Ceil(dt * s.p.RFFreq * rfSamples)
	}
	if !s.p.CoulombEnabled || len(s.ions) < 2 {
		return clampSubsteps(n)
	}

	rmin := s.minSeparation(x)
	if rmin == 0 {
		return maxSubsteps
	}
	s.Derive(x, t, s.accel)
	half := 3 * len(s.ions)
	var vmax, amax float64
	for i := range s.ions {
		vmax = math.Max(vmax, norm(x[half+3*i:half+3*i+3]))
		amax = math.Max(amax, norm(s.accel[half+3*i:half+3*i+3]))
	}

	limit := maxDisplacement * rmin
	n = math.Max(n, math.Ceil(vmax*dt/limit))
	n = math.Max(n, math.Ceil(dt*math.Sqrt(amax/(2*limit))))
	return clampSubsteps(n)
}

func clampSubsteps(n float64) int {
	switch {
	case math.IsNaN(n) || n < 1:
		return 1
	case n > maxSubsteps:
		return maxSubsteps
	}
	return int(n)
}

func (s *system) minSeparation(x []float64) float64 {
	rmin := math.Inf(1)
	for i := 0; i < len(s.ions); i++ {
		for j := i + 1; j < len(s.ions); j++ {
			dx := x[3*i] - x[3*j]
			dy := x[3*i+1] - x[3*j+1]
			dz := x[3*i+2] - x[3*j+2]
			rmin = math.Min(rmin, math.Sqrt(dx*dx+dy*dy+dz*dz))
		}
	}
	return rmin
}

func norm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// kick adds Langevin velocity noise matching the damping rate and
// temperature over one step.
func (s *system) kick(x []float64, dt float64) {
	if !s.p.StochasticEnabled || s.p.Temperature <= 0 || s.p.Damping <= 0 {
		return
	}
	half := 3 * len(s.ions)
	for i, in := range s.ions {
		sigma := math.Sqrt(2 * s.p.Damping * Boltzmann * s.p.Temperature * dt / in.mass)
		for k := 0; k < 3; k++ {
			x[half+3*i+k] += sigma * s.rng.NormFloat64()
		}
	}
}

// positions writes ion positions in micrometres into out.
func (s *system) positions(x []float64, out []float64) {
	for i := range out {
		out[i] = x[i] * micro
	}
}
