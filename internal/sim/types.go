package sim

import (
	"fmt"
	"math"

	"github.com/ionmd/ionmd/internal/config"
)

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Length() float64      { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Array() [3]float64    { return [3]float64{v.X, v.Y, v.Z} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{v.Y*o.Z - v.Z*o.Y, v.Z*o.X - v.X*o.Z, v.X*o.Y - v.Y*o.X}
}
func (v Vec3) Normalize() Vec3 {
	if l := v.Length(); l != 0 {
		return v.Scale(1 / l)
	}
	return Vec3{}
}

func (v Vec3) IsValid() bool {
	for _, c := range v.Array() {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func VecOf(a [3]float64) Vec3 { return Vec3{a[0], a[1], a[2]} }

// Species identifies an ion type by mass (amu) and charge state (units of e).
type Species struct {
	Mass   int `json:"mass"`
	Charge int `json:"charge"`
}

func (s Species) String() string {
	return fmt.Sprintf("%d/%+d", s.Mass, s.Charge)
}

type Particle struct {
	Species  Species `json:"species"`
	Position Vec3    `json:"position"`
}

// Snapshot is the configuration frozen at Start. The engine owns its copy.
type Snapshot struct {
	Params    config.Params
	Particles []Particle
}

// NumIons is the trajectory column count divided by three.
func (s Snapshot) NumIons() int { return len(s.Particles) }

func (s Snapshot) clone() Snapshot {
	ps := make([]Particle, len(s.Particles))
	copy(ps, s.Particles)
	return Snapshot{Params: s.Params, Particles: ps}
}

type Status int32

const (
	Idle Status = iota
	Running
	Finished
	Errored
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case Errored:
		return "ERRORED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == Finished || s == Errored
}
