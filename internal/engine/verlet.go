package engine

type deriver interface {
	Derive(x []float64, t float64, dx []float64)
}

// verlet is velocity Verlet over a [positions..., velocities...] state.
// Velocity dependent forces see the previous step's velocity at the new
// position.
type verlet struct {
	dx, dxNew, scratch []float64
}

func (v *verlet) ensureScratch(n int) {
	if len(v.scratch) != n {
		v.dx = make([]float64, n)
		v.dxNew = make([]float64, n)
		v.scratch = make([]float64, n)
	}
}

// Step advances x by dt in place.
func (v *verlet) Step(sys deriver, x []float64, t, dt float64) {
	n := len(x)
	half := n / 2
	v.ensureScratch(n)

	sys.Derive(x, t, v.dx)
	dt2 := dt * dt

	for i := 0; i < half; i++ {
		v.scratch[i] = x[i] + x[half+i]*dt + 0.5*v.dx[half+i]*dt2
		v.scratch[half+i] = x[half+i]
	}

	sys.Derive(v.scratch, t+dt, v.dxNew)

	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		x[i] = v.scratch[i]
		x[half+i] += (v.dx[half+i] + v.dxNew[half+i]) * halfDt
	}
}
