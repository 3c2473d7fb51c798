package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// UsageGauge fills from left to right as usage grows. A negative percent
// renders a dimmed track with "N/A".
func UsageGauge(usedPercent float64, width int) string {
	if width < 5 {
		width = 5
	}
	if usedPercent < 0 {
		return dimStyle.Render(strings.Repeat("─", width)) + dimStyle.Render("   N/A")
	}
	usedPercent = min(usedPercent, 100)

	filled := int(usedPercent / 100 * float64(width))
	color := usageColor(usedPercent)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("━", filled)) +
		lipgloss.NewStyle().Foreground(colorSurface1).Render(strings.Repeat("━", width-filled))
	return bar + " " + lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%5.1f%%", usedPercent))
}
