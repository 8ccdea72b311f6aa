package plot

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/ionmd/ionmd/internal/trajectory"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Red, asciigraph.ForestGreen, asciigraph.Cyan, asciigraph.Gold,
}

// Terminal renders one graph per axis, every selected ion overlaid. Empty
// ions means the first MaxIons.
func Terminal(s *trajectory.Series, ions []int, width, height int) (string, error) {
	if len(ions) == 0 {
		for i := 0; i < s.NumIons && i < MaxIons; i++ {
			ions = append(ions, i)
		}
	}
	colors := make([]asciigraph.AnsiColor, len(ions))
	for i := range ions {
		if ions[i] < 0 || ions[i] >= s.NumIons {
			return "", fmt.Errorf("plot: ion %d out of range [0, %d)", ions[i], s.NumIons)
		}
		colors[i] = seriesColors[i%len(seriesColors)]
	}

	var b strings.Builder
	for axis, name := range axisNames {
		data := make([][]float64, len(ions))
		for i, ion := range ions {
			data[i] = s.Component(ion, axis)
		}
		graph := asciigraph.PlotMany(data,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.SeriesColors(colors...),
			asciigraph.Caption(fmt.Sprintf("%s (µm) vs step, %d ions", name, len(ions))),
		)
		b.WriteString(graph)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
