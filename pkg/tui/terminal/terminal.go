// Package terminal detects what the attached terminal can display.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// Minimum size of the device simulator.
const (
	MinWidth  = 40
	MinHeight = 12
)

// Capability describes the terminal the simulator would run in.
type Capability struct {
	// Interactive is set when both stdin and stdout are terminals.
	Interactive bool
	NoColor     bool
	Unicode     bool
	Width       int
	Height      int
	Term        string
}

// Detect inspects stdin, stdout and the environment.
func Detect(in, out *os.File) Capability {
	t := os.Getenv("TERM")
	c := Capability{
		Term:        t,
		Unicode:     t != "dumb" && t != "",
		NoColor:     t == "dumb" || os.Getenv("NO_COLOR") != "",
		Interactive: isTerminal(in) && isTerminal(out),
	}
	if c.Interactive {
		if w, h, err := term.GetSize(int(out.Fd())); err == nil {
			c.Width, c.Height = w, h
		}
	}
	if lang := os.Getenv("LANG"); lang != "" && !strings.Contains(strings.ToUpper(lang), "UTF") {
		c.Unicode = false
	}
	return c
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// SizeWarning returns a warning when the terminal is smaller than the
// simulator, or "" when it fits or the size is unknown.
func SizeWarning(width, height int) string {
	var warnings []string
	if width > 0 && width < MinWidth {
		warnings = append(warnings, "terminal too narrow, recommend 40+ columns")
	}
	if height > 0 && height < MinHeight {
		warnings = append(warnings, "terminal too short, recommend 12+ rows")
	}
	return strings.Join(warnings, "; ")
}
