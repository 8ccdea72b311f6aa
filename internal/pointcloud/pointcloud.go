// Package pointcloud splits an ordered ion list into per-species point groups
// and feeds them to a 3-D renderer.
package pointcloud

import (
	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/sim"
)

// DefaultScale is the point size used when none is configured.
const DefaultScale = 25.0

type Record struct {
	Species  sim.Species
	Position sim.Vec3
}

// RecordsOf converts particles to records, keeping their order.
func RecordsOf(particles []sim.Particle) []Record {
	out := make([]Record, len(particles))
	for i, p := range particles {
		out[i] = Record{Species: p.Species, Position: p.Position}
	}
	return out
}

// RecordsAt pairs each ion's species with a position from a trajectory step.
func RecordsAt(particles []sim.Particle, positions []sim.Vec3) []Record {
	n := len(particles)
	if len(positions) < n {
		n = len(positions)
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = Record{Species: particles[i].Species, Position: positions[i]}
	}
	return out
}

type PointGroup struct {
	Species   sim.Species
	Color     palette.RGB
	Positions []sim.Vec3
}

// GroupBySpecies splits records into maximal contiguous runs of one species.
// Group k gets pal.At(k).
//
// Ions of one species are expected to be contiguous, as the engine's output
// files list them. This is not checked: interleaved input still yields valid
// groups, just more of them, with the same species possibly appearing in
// several groups.
func GroupBySpecies(records []Record, pal palette.Palette) []PointGroup {
	groups := make([]PointGroup, 0)
	for _, r := range records {
		if n := len(groups); n > 0 && groups[n-1].Species == r.Species {
			groups[n-1].Positions = append(groups[n-1].Positions, r.Position)
			continue
		}
		groups = append(groups, PointGroup{
			Species:   r.Species,
			Color:     pal.At(len(groups)),
			Positions: []sim.Vec3{r.Position},
		})
	}
	return groups
}

// CameraPreset is a fixed view orientation in degrees.
type CameraPreset struct {
	Azimuth   float64
	Elevation float64
	Roll      float64
}

// DefaultCamera looks down the y axis with the image rolled upright.
var DefaultCamera = CameraPreset{Azimuth: 45, Elevation: 90, Roll: 180}

// Renderer is a 3-D drawing surface for point clouds.
type Renderer interface {
	SetCamera(cam CameraPreset)
	DrawPoints(positions []sim.Vec3, color palette.RGB, scale float64) error
}

// Render applies the camera once, then draws one point cloud per group.
func Render(r Renderer, groups []PointGroup, cam CameraPreset, scale float64) error {
	r.SetCamera(cam)
	for _, g := range groups {
		if err := r.DrawPoints(g.Positions, g.Color, scale); err != nil {
			return err
		}
	}
	return nil
}
