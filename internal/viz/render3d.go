package viz

import (
	"math"
	"sort"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
)

// Camera is an orthographic view set by azimuth, elevation and roll in
// degrees. Azimuth is measured in the x-y plane from +x, elevation from +z.
type Camera struct {
	Azimuth, Elevation, Roll float64
}

func NewCamera(p pointcloud.CameraPreset) Camera {
	return Camera{Azimuth: p.Azimuth, Elevation: p.Elevation, Roll: p.Roll}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Basis returns the screen right and up vectors and the unit vector pointing
// from the scene towards the eye.
func (c Camera) Basis() (right, up, eye sim.Vec3) {
	a, e := rad(c.Azimuth), rad(c.Elevation)
	eye = sim.Vec3{X: math.Sin(e) * math.Cos(a), Y: math.Sin(e) * math.Sin(a), Z: math.Cos(e)}
	fwd := eye.Scale(-1)

	world := sim.Vec3{Z: 1}
	if fwd.Cross(world).Length() < 1e-9 {
		world = sim.Vec3{Y: 1}
	}
	right = fwd.Cross(world).Normalize()
	up = right.Cross(fwd).Normalize()

	r := rad(c.Roll)
	cr, sr := math.Cos(r), math.Sin(r)
	right, up = right.Scale(cr).Add(up.Scale(sr)), up.Scale(cr).Sub(right.Scale(sr))
	return right, up, eye
}

// Point is a projected position. Larger Depth is closer to the eye.
type Point struct {
	U, V, Depth float64
}

func (c Camera) Project(p sim.Vec3) Point {
	right, up, eye := c.Basis()
	return Point{U: p.Dot(right), V: p.Dot(up), Depth: p.Dot(eye)}
}

// Marker is one buffered point awaiting layout.
type Marker struct {
	Position sim.Vec3
	Color    palette.RGB
	Scale    float64
}

// Placed is a marker mapped to screen space: X right, Y down, R radius, all
// in the target's pixel units.
type Placed struct {
	X, Y, R float64
	Depth   float64
	Color   palette.RGB
}

// Layout projects markers through cam and fits them into a w x h surface with
// margin pixels on every side. Marker scale is a diameter in world units.
// The result is ordered far to near for painter's drawing.
func Layout(markers []Marker, cam Camera, w, h int, margin float64) []Placed {
	if len(markers) == 0 {
		return nil
	}

	pts := make([]Point, len(markers))
	uMin, uMax := math.Inf(1), math.Inf(-1)
	vMin, vMax := math.Inf(1), math.Inf(-1)
	for i, m := range markers {
		p := cam.Project(m.Position)
		pts[i] = p
		half := m.Scale / 2
		uMin, uMax = math.Min(uMin, p.U-half), math.Max(uMax, p.U+half)
		vMin, vMax = math.Min(vMin, p.V-half), math.Max(vMax, p.V+half)
	}

	availW := math.Max(1, float64(w)-2*margin)
	availH := math.Max(1, float64(h)-2*margin)
	spanU, spanV := uMax-uMin, vMax-vMin
	scale := 1.0
	switch {
	case spanU > 0 && spanV > 0:
		scale = math.Min(availW/spanU, availH/spanV)
	case spanU > 0:
		scale = availW / spanU
	case spanV > 0:
		scale = availH / spanV
	}

	// centre the fitted box
	offX := (float64(w) - spanU*scale) / 2
	offY := (float64(h) - spanV*scale) / 2

	out := make([]Placed, len(markers))
	for i, m := range markers {
		out[i] = Placed{
			X:     offX + (pts[i].U-uMin)*scale,
			Y:     offY + (vMax-pts[i].V)*scale,
			R:     m.Scale / 2 * scale,
			Depth: pts[i].Depth,
			Color: m.Color,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth < out[j].Depth })
	return out
}

// Axis is one arm of the orientation triad in screen-space direction.
type Axis struct {
	Label  string
	DX, DY float64
	Color  palette.RGB
}

// OrientationAxes returns the x, y and z unit vectors as seen through cam,
// scaled to length pixels, with +Y pointing down the screen.
func OrientationAxes(cam Camera, length float64) []Axis {
	right, up, _ := cam.Basis()
	axes := []struct {
		label string
		dir   sim.Vec3
		color palette.RGB
	}{
		{"x", sim.Vec3{X: 1}, palette.RGB{R: 1, G: 0.3, B: 0.3}},
		{"y", sim.Vec3{Y: 1}, palette.RGB{R: 0.3, G: 1, B: 0.3}},
		{"z", sim.Vec3{Z: 1}, palette.RGB{R: 0.4, G: 0.6, B: 1}},
	}
	out := make([]Axis, len(axes))
	for i, a := range axes {
		out[i] = Axis{
			Label: a.label,
			DX:    a.dir.Dot(right) * length,
			DY:    -a.dir.Dot(up) * length,
			Color: a.color,
		}
	}
	return out
}
