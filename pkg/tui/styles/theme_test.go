package styles

import (
	"testing"

	"github.com/andri/cardwallet/pkg/display"
	"github.com/charmbracelet/lipgloss"
)

func TestColorPalette(t *testing.T) {
	tests := []struct {
		name  string
		color lipgloss.AdaptiveColor
	}{
		{"ColorPrimary", ColorPrimary},
		{"ColorSuccess", ColorSuccess},
		{"ColorWarning", ColorWarning},
		{"ColorError", ColorError},
		{"ColorInfo", ColorInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.color.Light == "" || tt.color.Dark == "" {
				t.Errorf("%s: missing color variant", tt.name)
			}
		})
	}
}

func TestBoxPerScreenKind(t *testing.T) {
	kinds := []display.ScreenKind{
		display.ScreenIdle,
		display.ScreenConfirm,
		display.ScreenText,
		display.ScreenMessage,
		display.ScreenError,
	}

	icons := map[string]bool{}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			style := Box(kind)
			if !style.GetBorderTop() || !style.GetBorderBottom() {
				t.Errorf("%s: box has no border", kind)
			}
			if style.Render("content") == "" {
				t.Errorf("%s: rendered output is empty", kind)
			}
		})
		icons[Icon(kind)] = true
	}

	if len(icons) != len(kinds) {
		t.Errorf("screen kinds share icons: %v", icons)
	}
}
