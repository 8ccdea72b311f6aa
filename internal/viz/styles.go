package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	Subtle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688"))

	MetricLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	MetricValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	KeyHint = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688")).
		Italic(true)

	statusStyles = map[sim.Status]lipgloss.Style{
		sim.Idle:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#888899")),
		sim.Running:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")),
		sim.Finished: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")),
		sim.Errored:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444")),
	}
)

// StatusBadge renders a controller status in its colour.
func StatusBadge(s sim.Status) string {
	st, ok := statusStyles[s]
	if !ok {
		return s.String()
	}
	return st.Render(s.String())
}

// Metric renders "label value".
func Metric(label, value string) string {
	return MetricLabel.Render(label+" ") + MetricValue.Render(value)
}

// Legend lists one coloured swatch per point group.
func Legend(groups []pointcloud.PointGroup) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = Swatch(g.Color) + " " + fmt.Sprintf("%s x%d", g.Species, len(g.Positions))
	}
	return strings.Join(parts, "  ")
}

func Swatch(c palette.RGB) string {
	return lipgloss.NewStyle().Foreground(c.Lipgloss()).Render("●")
}

// AnimatedSpinner returns frame of animated spinner
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}

// ProgressBar renders a bar filled to percent in [0, 1].
func ProgressBar(percent float64, width int) string {
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return MetricValue.Render(strings.Repeat("█", filled)) + Subtle.Render(strings.Repeat("░", width-filled))
}
