package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/segfeed/internal/config"
)

// Catppuccin Mocha palette.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorTeal   = lipgloss.Color("#94e2d5")
	ColorMauve  = lipgloss.Color("#cba6f7")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorDim    = lipgloss.Color("#3a4055")
	ColorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleLabel          lipgloss.Style
	styleBigNumber      lipgloss.Style
	styleIconDone       lipgloss.Style
	styleIconFailed     lipgloss.Style
	styleError          lipgloss.Style
	styleErrorPath      lipgloss.Style
	styleShape          lipgloss.Style
	styleRate           lipgloss.Style
	styleSparkline      lipgloss.Style
	styleStall          lipgloss.Style
	styleProgressFilled lipgloss.Style
	styleDivider        lipgloss.Style
	styleHeader         lipgloss.Style
)

func init() {
	rebuildStyles()
}

// rebuildStyles reconstructs all lipgloss styles from the current color vars.
func rebuildStyles() {
	styleLabel = lipgloss.NewStyle().Foreground(ColorMuted)
	styleBigNumber = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
	styleIconDone = lipgloss.NewStyle().Foreground(ColorGreen)
	styleIconFailed = lipgloss.NewStyle().Foreground(ColorRed)
	styleError = lipgloss.NewStyle().Foreground(ColorRed)
	styleErrorPath = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	styleShape = lipgloss.NewStyle().Foreground(ColorMauve)
	styleRate = lipgloss.NewStyle().Foreground(ColorTeal)
	styleSparkline = lipgloss.NewStyle().Foreground(ColorBlue)
	styleStall = lipgloss.NewStyle().Foreground(ColorYellow)
	styleProgressFilled = lipgloss.NewStyle().Foreground(ColorGreen)
	styleDivider = lipgloss.NewStyle().Foreground(ColorDim)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
}

// ApplyTheme overrides palette entries set in t and rebuilds the styles.
func ApplyTheme(t config.ThemeConfig) {
	for _, o := range []struct {
		dst *lipgloss.Color
		src *string
	}{
		{&ColorGreen, t.Green},
		{&ColorBlue, t.Blue},
		{&ColorYellow, t.Yellow},
		{&ColorRed, t.Red},
		{&ColorTeal, t.Teal},
		{&ColorMauve, t.Mauve},
		{&ColorMuted, t.Muted},
		{&ColorDim, t.Dim},
		{&ColorBright, t.Bright},
	} {
		if o.src != nil {
			*o.dst = lipgloss.Color(*o.src)
		}
	}
	rebuildStyles()
}

// paint renders s with st when styled is set.
func paint(styled bool, st lipgloss.Style, s string) string {
	if !styled {
		return s
	}
	return st.Render(s)
}
