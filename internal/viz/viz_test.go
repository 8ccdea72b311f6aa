package viz

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCameraTopDown(t *testing.T) {
	cam := Camera{}
	p := cam.Project(sim.Vec3{X: 1, Y: 2, Z: 3})
	if !near(p.U, 1) || !near(p.V, 2) || !near(p.Depth, 3) {
		t.Errorf("top-down view should be identity, got %+v", p)
	}
}

func TestCameraDefaultPreset(t *testing.T) {
	cam := NewCamera(pointcloud.DefaultCamera)
	right, up, eye := cam.Basis()

	for _, v := range []sim.Vec3{right, up, eye} {
		if !near(v.Length(), 1) {
			t.Errorf("basis vector %v not unit length", v)
		}
	}
	if !near(right.Dot(up), 0) || !near(right.Dot(eye), 0) {
		t.Error("basis not orthogonal")
	}

	// rolled 180 degrees: the trap axis runs down the screen
	p := cam.Project(sim.Vec3{Z: 10})
	if !near(p.U, 0) || !near(p.V, -10) {
		t.Errorf("unexpected projection of +z: %+v", p)
	}
}

func TestLayoutFitsChain(t *testing.T) {
	markers := []Marker{
		{Position: sim.Vec3{Z: -5}, Color: palette.Red, Scale: 1},
		{Position: sim.Vec3{Z: 5}, Color: palette.Cyan, Scale: 1},
	}
	placed := Layout(markers, NewCamera(pointcloud.DefaultCamera), 100, 100, 0)
	if len(placed) != 2 {
		t.Fatalf("expected 2 placed markers, got %d", len(placed))
	}

	var top, bottom Placed
	for _, p := range placed {
		if p.Color == palette.Red {
			top = p
		} else {
			bottom = p
		}
	}
	if !near(top.X, 50) || !near(bottom.X, 50) {
		t.Errorf("chain should be centred horizontally: %v %v", top.X, bottom.X)
	}
	if !(top.Y < bottom.Y) {
		t.Errorf("+z should be drawn below -z: %v %v", top.Y, bottom.Y)
	}
	scale := 100.0 / 11
	if !near(top.R, scale/2) || !near(top.Y, 0.5*scale) || !near(bottom.Y, 10.5*scale) {
		t.Errorf("unexpected fit: %+v %+v", top, bottom)
	}
}

func TestLayoutDepthOrder(t *testing.T) {
	markers := []Marker{
		{Position: sim.Vec3{Z: 3}, Scale: 1},
		{Position: sim.Vec3{Z: -2}, Scale: 1},
		{Position: sim.Vec3{Z: 1}, Scale: 1},
	}
	placed := Layout(markers, Camera{}, 50, 50, 2)
	for i := 1; i < len(placed); i++ {
		if placed[i-1].Depth > placed[i].Depth {
			t.Fatalf("markers not ordered far to near: %+v", placed)
		}
	}
	if Layout(nil, Camera{}, 10, 10, 0) != nil {
		t.Error("empty layout should be nil")
	}

	single := Layout(markers[:1], Camera{}, 40, 20, 0)
	if !near(single[0].X, 20) || !near(single[0].Y, 10) {
		t.Errorf("single point should be centred, got %+v", single[0])
	}
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(3, 2)
	w, h := c.PixelSize()
	if w != 6 || h != 8 {
		t.Fatalf("unexpected pixel size %dx%d", w, h)
	}

	c.Set(1, 5)
	c.Set(-1, 0)
	c.Set(100, 100)
	if !c.IsSet(1, 5) || c.IsSet(0, 5) {
		t.Error("dot state mismatch")
	}
	if c.Grid[1][0] != blank|0x10 {
		t.Errorf("unexpected cell rune %U", c.Grid[1][0])
	}

	lines := strings.Split(strings.TrimSuffix(c.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 rows, got %d", len(lines))
	}

	c.Clear()
	if c.IsSet(1, 5) {
		t.Error("clear left dots behind")
	}

	c.FillCircle(3, 3, 1, "#ff0000")
	for _, d := range [][2]int{{3, 3}, {2, 3}, {4, 3}, {3, 2}, {3, 4}} {
		if !c.IsSet(d[0], d[1]) {
			t.Errorf("dot %v should be lit", d)
		}
	}
	if c.IsSet(2, 2) {
		t.Error("corner outside radius lit")
	}
	if c.Colors[0][1] != "#ff0000" {
		t.Errorf("cell colour not recorded: %q", c.Colors[0][1])
	}
}

func TestTerminalRenderer(t *testing.T) {
	term := NewTerminal(20, 10)
	var _ pointcloud.Renderer = term

	groups := []pointcloud.PointGroup{
		{Color: palette.Red, Positions: []sim.Vec3{{Z: -10}, {Z: 0}}},
		{Color: palette.Gold, Positions: []sim.Vec3{{Z: 10}}},
	}
	if err := pointcloud.Render(term, groups, pointcloud.DefaultCamera, pointcloud.DefaultScale); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if term.Points() != 3 {
		t.Errorf("expected 3 buffered points, got %d", term.Points())
	}

	c := term.Canvas()
	colors := map[string]bool{}
	for i := range c.Colors {
		for _, col := range c.Colors[i] {
			colors[string(col)] = true
		}
	}
	if !colors[palette.Red.Hex()] || !colors[palette.Gold.Hex()] {
		t.Errorf("expected both group colours on canvas, got %v", colors)
	}
	if term.Render() == "" {
		t.Error("empty render")
	}
}

func TestTerminalRejectsBadInput(t *testing.T) {
	term := NewTerminal(10, 5)
	err := term.DrawPoints([]sim.Vec3{{X: math.NaN()}}, palette.Red, 1)
	if !errors.Is(err, ErrInvalidPoint) {
		t.Errorf("expected ErrInvalidPoint, got %v", err)
	}
	if err := term.DrawPoints([]sim.Vec3{{}}, palette.Red, 0); !errors.Is(err, ErrInvalidScale) {
		t.Errorf("expected ErrInvalidScale, got %v", err)
	}
	if term.Points() != 0 {
		t.Error("rejected draw calls must not buffer points")
	}
}

func TestOrientationAxes(t *testing.T) {
	axes := OrientationAxes(Camera{}, 10)
	if len(axes) != 3 {
		t.Fatalf("expected 3 axes, got %d", len(axes))
	}
	if !near(axes[0].DX, 10) || !near(axes[1].DY, -10) || !near(axes[2].DX, 0) {
		t.Errorf("unexpected triad %+v", axes)
	}
}
