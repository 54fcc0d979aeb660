// Package flow holds the hierarchical UI flow state of the device: the five
// level selectors, the per-tick step counter and the session phase.
package flow

import (
	"errors"
	"fmt"

	"github.com/andri/cardwallet/pkg/secret"
	"github.com/mattn/go-runewidth"
)

// Depth limits and text capacities. Prompts are measured in display cells.
const (
	MaxDepth       = 5
	PromptCapacity = 128
	ErrorCapacity  = 64
	InputCapacity  = 64
	truncateTail   = "…"
)

var (
	// ErrNoParent is returned when a level is advanced while its parent is at default.
	ErrNoParent = errors.New("parent level not selected")
	// ErrDepth is returned for a level outside 1..MaxDepth.
	ErrDepth = errors.New("level out of range")
)

// Level addresses one of the five selector depths.
type Level uint8

const (
	LevelOne Level = iota + 1
	LevelTwo
	LevelThree
	LevelFour
	LevelFive
)

func (l Level) valid() bool {
	return l >= LevelOne && l <= LevelFive
}

// ScreenInput carries what the user entered on the last input screen. The
// text may be a PIN or passphrase and is wiped on reset.
type ScreenInput struct {
	text           *secret.Buffer
	Choice         uint8
	ExpectedChoice uint8
}

// Text returns the entered bytes. The slice is invalidated by Reset.
func (in *ScreenInput) Text() []byte {
	return in.text.Bytes()
}

// SetText stores entered text, bounded by InputCapacity.
func (in *ScreenInput) SetText(p []byte) error {
	return in.text.Set(p)
}

// ClearText wipes entered text and keeps the list selection.
func (in *ScreenInput) ClearText() {
	in.text.Wipe()
}

// ChoiceMatches reports whether the selected list entry is the one the
// current screen expects.
func (in *ScreenInput) ChoiceMatches() bool {
	return in.ExpectedChoice != 0 && in.Choice == in.ExpectedChoice
}

func (in *ScreenInput) reset() {
	in.text.Wipe()
	in.Choice = 0
	in.ExpectedChoice = 0
}

// FlowLevel is the device's position in the menu hierarchy plus the text
// shown on the current screen. Depths one and two encode the static menu
// position; depths three to five are owned by the running workflow.
type FlowLevel struct {
	levels [MaxDepth]uint8

	Input                  ScreenInput
	ConfirmationPrompt     string
	ErrorPrompt            string
	ShowDesktopStartScreen bool
	ShowErrorScreen        bool
}

// NewFlowLevel returns a flow level at its defaults.
func NewFlowLevel() *FlowLevel {
	return &FlowLevel{Input: ScreenInput{text: secret.New(InputCapacity)}}
}

// Reset returns every level and screen field to its default and wipes the
// input buffer.
func (f *FlowLevel) Reset() {
	f.levels = [MaxDepth]uint8{}
	f.Input.reset()
	f.ConfirmationPrompt = ""
	f.ErrorPrompt = ""
	f.ShowDesktopStartScreen = false
	f.ShowErrorScreen = false
}

// ResetBelow clears every level deeper than level and leaves level and its
// ancestors untouched.
func (f *FlowLevel) ResetBelow(level Level) {
	if level < LevelOne {
		f.levels = [MaxDepth]uint8{}
		return
	}
	for i := int(level); i < MaxDepth; i++ {
		f.levels[i] = 0
	}
}

// Advance selects value at level. Deeper levels are cleared. A value of zero
// is equivalent to returning level to its default.
func (f *FlowLevel) Advance(level Level, value uint8) error {
	if !level.valid() {
		return fmt.Errorf("%w: %d", ErrDepth, level)
	}
	if level > LevelOne && f.levels[level-2] == 0 {
		return fmt.Errorf("%w: level %d", ErrNoParent, level)
	}
	f.levels[level-1] = value
	f.ResetBelow(level)
	return nil
}

// Level returns the selector at level, or zero when out of range.
func (f *FlowLevel) Level(level Level) uint8 {
	if !level.valid() {
		return 0
	}
	return f.levels[level-1]
}

// Depth returns the deepest selected level, or zero when all are default.
func (f *FlowLevel) Depth() Level {
	var depth Level
	for i, v := range f.levels {
		if v == 0 {
			break
		}
		depth = Level(i + 1)
	}
	return depth
}

// Monotonic reports whether no level is set below a level at default.
func (f *FlowLevel) Monotonic() bool {
	seenDefault := false
	for _, v := range f.levels {
		if v == 0 {
			seenDefault = true
			continue
		}
		if seenDefault {
			return false
		}
	}
	return true
}

// AtDefaults reports whether the flow level is fully reset.
func (f *FlowLevel) AtDefaults() bool {
	return f.levels == [MaxDepth]uint8{} &&
		f.Input.text.IsZero() && f.Input.Choice == 0 && f.Input.ExpectedChoice == 0 &&
		f.ConfirmationPrompt == "" && f.ErrorPrompt == "" &&
		!f.ShowDesktopStartScreen && !f.ShowErrorScreen
}

// SetPrompt stores the confirmation text, truncated to PromptCapacity cells.
func (f *FlowLevel) SetPrompt(text string) {
	f.ConfirmationPrompt = bound(text, PromptCapacity)
}

// SetError stores the error text, truncated to ErrorCapacity cells, and
// raises the error screen flag.
func (f *FlowLevel) SetError(text string) {
	f.ErrorPrompt = bound(text, ErrorCapacity)
	f.ShowErrorScreen = true
}

func bound(text string, cells int) string {
	if runewidth.StringWidth(text) <= cells {
		return text
	}
	return runewidth.Truncate(text, cells, truncateTail)
}
