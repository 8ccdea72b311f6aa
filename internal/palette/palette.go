// Package palette holds the fixed species/detector colour tables shared by the
// CCD compositor and the point cloud builder. Palettes are plain values passed
// to those components; there is no package-level mutable palette.
package palette

import (
	"fmt"
	"image/color"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGB is a colour with channels in [0, 1].
type RGB struct {
	R, G, B float64
}

// Hex returns the colour as "#rrggbb".
func (c RGB) Hex() string {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex()
}

// Color converts the colour for image and plot drawing.
func (c RGB) Color() color.Color {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped()
}

// Lipgloss converts the colour for terminal styling.
func (c RGB) Lipgloss() lipgloss.Color {
	return lipgloss.Color(c.Hex())
}

// Palette is an ordered colour table indexed cyclically.
type Palette []RGB

// Red, forest green, cyan, gold.
var (
	Red         = RGB{1, 0, 0}
	ForestGreen = RGB{0.13, 0.55, 0.13}
	Cyan        = RGB{0, 1, 1}
	Gold        = RGB{1, 0.84, 0}
)

// Default returns a fresh copy of the built-in four colour palette.
func Default() Palette {
	return Palette{Red, ForestGreen, Cyan, Gold}
}

// At returns the colour for index i, wrapping around when i exceeds the
// palette size. An empty palette yields white.
func (p Palette) At(i int) RGB {
	if len(p) == 0 {
		return RGB{1, 1, 1}
	}
	i %= len(p)
	if i < 0 {
		i += len(p)
	}
	return p[i]
}

// Hex renders every entry as "#rrggbb".
func (p Palette) Hex() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Hex()
	}
	return out
}

// ParseHex builds a palette from "#rrggbb" strings. An empty list gives the
// default palette.
func ParseHex(colors []string) (Palette, error) {
	if len(colors) == 0 {
		return Default(), nil
	}
	p := make(Palette, 0, len(colors))
	for i, s := range colors {
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d (%q): %w", i, s, err)
		}
		p = append(p, RGB{R: c.R, G: c.G, B: c.B})
	}
	return p, nil
}
