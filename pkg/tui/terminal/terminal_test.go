package terminal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectNonInteractive(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("NO_COLOR", "")
	t.Setenv("LANG", "en_US.UTF-8")

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	c := Detect(f, f)
	if c.Interactive {
		t.Errorf("regular file reported as terminal")
	}
	if c.NoColor || !c.Unicode || c.Term != "xterm-256color" {
		t.Errorf("unexpected capability %+v", c)
	}
	if c.Width != 0 || c.Height != 0 {
		t.Errorf("size reported for non-terminal: %dx%d", c.Width, c.Height)
	}
}

func TestDetectEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		term        string
		noColor     string
		lang        string
		wantNoColor bool
		wantUnicode bool
	}{
		{"dumb", "dumb", "", "", true, false},
		{"no color", "xterm", "1", "", true, true},
		{"latin1 locale", "xterm", "", "de_DE.ISO-8859-1", false, false},
		{"utf8 locale", "screen", "", "C.UTF-8", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TERM", tt.term)
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("LANG", tt.lang)

			c := Detect(nil, nil)
			if c.NoColor != tt.wantNoColor || c.Unicode != tt.wantUnicode {
				t.Errorf("got NoColor=%v Unicode=%v", c.NoColor, c.Unicode)
			}
		})
	}
}

func TestSizeWarning(t *testing.T) {
	tests := []struct {
		width, height int
		want          string
	}{
		{0, 0, ""},
		{80, 24, ""},
		{30, 24, "terminal too narrow, recommend 40+ columns"},
		{80, 10, "terminal too short, recommend 12+ rows"},
		{30, 10, "terminal too narrow, recommend 40+ columns; terminal too short, recommend 12+ rows"},
	}
	for _, tt := range tests {
		if got := SizeWarning(tt.width, tt.height); got != tt.want {
			t.Errorf("SizeWarning(%d, %d) = %q, want %q", tt.width, tt.height, got, tt.want)
		}
	}
}
