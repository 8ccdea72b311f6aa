package viz

import (
	"errors"
	"fmt"
	"math"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
)

var (
	ErrInvalidPoint = errors.New("viz: non-finite point position")
	ErrInvalidScale = errors.New("viz: point scale must be positive")
)

// maxDotRadius keeps large ions from flooding a small terminal.
const maxDotRadius = 3

// Terminal draws point clouds onto a Braille canvas. Draw calls are buffered
// and laid out together so every group shares one fitted view.
type Terminal struct {
	Width, Height int
	Axes          bool

	cam     Camera
	markers []Marker
}

// NewTerminal sizes the view in character cells.
func NewTerminal(w, h int) *Terminal {
	return &Terminal{Width: w, Height: h, cam: NewCamera(pointcloud.DefaultCamera), Axes: true}
}

func (t *Terminal) SetCamera(cam pointcloud.CameraPreset) { t.cam = NewCamera(cam) }

func (t *Terminal) DrawPoints(positions []sim.Vec3, color palette.RGB, scale float64) error {
	return BufferPoints(&t.markers, positions, color, scale)
}

// BufferPoints validates a draw call and appends it to markers.
func BufferPoints(markers *[]Marker, positions []sim.Vec3, color palette.RGB, scale float64) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	for i, p := range positions {
		if !p.IsValid() {
			return fmt.Errorf("%w: point %d", ErrInvalidPoint, i)
		}
	}
	for _, p := range positions {
		*markers = append(*markers, Marker{Position: p, Color: color, Scale: scale})
	}
	return nil
}

// Points returns the number of buffered points.
func (t *Terminal) Points() int { return len(t.markers) }

// Canvas lays out the buffered points on a fresh canvas.
func (t *Terminal) Canvas() *Canvas {
	c := NewCanvas(t.Width, t.Height)
	w, h := c.PixelSize()
	for _, p := range Layout(t.markers, t.cam, w, h, 2) {
		c.FillCircle(p.X, p.Y, math.Min(p.R, maxDotRadius), p.Color.Lipgloss())
	}
	if t.Axes && len(t.markers) > 0 {
		ox, oy := 4, h-5
		for _, a := range OrientationAxes(t.cam, 4) {
			c.DrawLine(ox, oy, ox+int(math.Round(a.DX)), oy+int(math.Round(a.DY)), a.Color.Lipgloss())
		}
	}
	return c
}

// Render returns the coloured view.
func (t *Terminal) Render() string { return t.Canvas().Styled() }
