package display

import "github.com/charmbracelet/lipgloss"

// UI colors.
var (
	ColorBorder    = lipgloss.Color("#4b5563")
	ColorDimmed    = lipgloss.Color("#6b7280")
	ColorBright    = lipgloss.Color("#f9fafb")
	ColorHighlight = lipgloss.Color("#f59e0b")
	ColorUp        = lipgloss.Color("#22c55e")
	ColorDown      = lipgloss.Color("#dc2626")
)

// Reusable styles.
var (
	StyleRule = lipgloss.NewStyle().
			Foreground(ColorBorder)

	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleColumnHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorDimmed)

	StyleCell = lipgloss.NewStyle()

	// StyleFresh marks a value that changed within the freshness window.
	StyleFresh = lipgloss.NewStyle().
			Bold(true).
			Reverse(true).
			Foreground(ColorHighlight)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleDialog = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorBright).
			Width(dialogWidth-2).
			Height(dialogHeight-2).
			Align(lipgloss.Center, lipgloss.Center)
)

const (
	dialogWidth  = 30
	dialogHeight = 5
)
