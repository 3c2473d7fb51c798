package render

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha.
var (
	colorSurface1 = lipgloss.Color("#45475A")
	colorText     = lipgloss.Color("#CDD6F4")
	colorSubtext  = lipgloss.Color("#A6ADC8")
	colorDim      = lipgloss.Color("#585B70")
	colorGreen    = lipgloss.Color("#A6E3A1")
	colorYellow   = lipgloss.Color("#F9E2AF")
	colorRed      = lipgloss.Color("#F38BA8")
	colorPeach    = lipgloss.Color("#FAB387")
	colorLavender = lipgloss.Color("#B4BEFE")

	colorOK   = colorGreen
	colorWarn = colorYellow
	colorCrit = colorRed
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(colorSubtext).Width(9)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle    = lipgloss.NewStyle().Foreground(colorPeach)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	cardStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// Used-share thresholds for gauge colors.
const (
	warnUsedPercent = 70.0
	critUsedPercent = 90.0
)

func usageColor(usedPercent float64) lipgloss.Color {
	switch {
	case usedPercent >= critUsedPercent:
		return colorCrit
	case usedPercent >= warnUsedPercent:
		return colorWarn
	default:
		return colorOK
	}
}
