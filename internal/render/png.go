// Package render rasterises ion point clouds to PNG images.
package render

import (
	"image"

	"github.com/fogleman/gg"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
	"github.com/ionmd/ionmd/internal/viz"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480

	margin    = 20.0
	minRadius = 1.5
	axisLen   = 30.0
)

// PNG is a point cloud renderer backed by a gg drawing context. Draw calls
// are buffered until Image or Save so the view fits every group.
type PNG struct {
	Width, Height int
	Background    palette.RGB
	Axes          bool

	cam     viz.Camera
	markers []viz.Marker
}

func NewPNG(w, h int) *PNG {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return &PNG{
		Width:  w,
		Height: h,
		Axes:   true,
		cam:    viz.NewCamera(pointcloud.DefaultCamera),
	}
}

func (p *PNG) SetCamera(cam pointcloud.CameraPreset) { p.cam = viz.NewCamera(cam) }

func (p *PNG) DrawPoints(positions []sim.Vec3, color palette.RGB, scale float64) error {
	return viz.BufferPoints(&p.markers, positions, color, scale)
}

// Points returns the number of buffered points.
func (p *PNG) Points() int { return len(p.markers) }

// Image draws the buffered points, far to near, over the background.
func (p *PNG) Image() image.Image {
	dc := gg.NewContext(p.Width, p.Height)
	dc.SetRGB(p.Background.R, p.Background.G, p.Background.B)
	dc.Clear()

	for _, m := range viz.Layout(p.markers, p.cam, p.Width, p.Height, margin) {
		r := m.R
		if r < minRadius {
			r = minRadius
		}
		dc.DrawCircle(m.X, m.Y, r)
		dc.SetRGB(m.Color.R, m.Color.G, m.Color.B)
		dc.Fill()
	}

	if p.Axes {
		p.drawAxes(dc)
	}
	return dc.Image()
}

func (p *PNG) drawAxes(dc *gg.Context) {
	ox, oy := margin+axisLen/2, float64(p.Height)-margin-axisLen/2
	dc.SetLineWidth(2)
	for _, a := range viz.OrientationAxes(p.cam, axisLen) {
		dc.SetRGB(a.Color.R, a.Color.G, a.Color.B)
		dc.DrawLine(ox, oy, ox+a.DX, oy+a.DY)
		dc.Stroke()
		dc.DrawStringAnchored(a.Label, ox+a.DX*1.25, oy+a.DY*1.25, 0.5, 0.5)
	}
}

func (p *PNG) Save(path string) error {
	return gg.SavePNG(path, p.Image())
}
