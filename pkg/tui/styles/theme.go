// Package styles provides theming for the device screen simulator.
package styles

import (
	"github.com/andri/cardwallet/pkg/display"
	"github.com/charmbracelet/lipgloss"
)

// Color palette. Adaptive colors work on light and dark terminals.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7C7AE6"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#00AF87", Dark: "#00D787"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D7AF00", Dark: "#FFD700"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#5FAFFF"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#585858"}
	ColorSubtle  = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#8A8A8A"}
)

// Text styles.
var (
	StyleHeading = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	StyleBody = lipgloss.NewStyle().
			MarginTop(1)

	StyleEntry = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	StyleSubtle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)
)

// Box styles, one per screen kind.
var (
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	StyleBoxConfirm = StyleBox.BorderForeground(ColorPrimary)
	StyleBoxText    = StyleBox.BorderForeground(ColorWarning)
	StyleBoxMessage = StyleBox.BorderForeground(ColorInfo)
	StyleBoxError   = StyleBox.BorderForeground(ColorError)
)

// Icons.
const (
	IconIdle    = "◐"
	IconConfirm = "?"
	IconText    = "✎"
	IconMessage = "ℹ"
	IconError   = "✗"
	IconMask    = "•"
)

// Box returns the frame style of a screen kind.
func Box(kind display.ScreenKind) lipgloss.Style {
	switch kind {
	case display.ScreenConfirm:
		return StyleBoxConfirm
	case display.ScreenText:
		return StyleBoxText
	case display.ScreenMessage:
		return StyleBoxMessage
	case display.ScreenError:
		return StyleBoxError
	default:
		return StyleBox
	}
}

// Icon returns the title icon of a screen kind.
func Icon(kind display.ScreenKind) string {
	switch kind {
	case display.ScreenConfirm:
		return IconConfirm
	case display.ScreenText:
		return IconText
	case display.ScreenMessage:
		return IconMessage
	case display.ScreenError:
		return IconError
	default:
		return IconIdle
	}
}
