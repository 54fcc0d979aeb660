package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/transport"
)

const (
	iconSend    = "→" // right arrow
	iconReceive = "←" // left arrow
	iconOK      = "✓" // checkmark
	iconFail    = "✗" // X mark
	iconScreen  = "□" // square
	iconKey     = "⌨" // keyboard
	iconClock   = "⧖" // hourglass

	// maxHex bounds printed payloads.
	maxHex = 48
)

// TranscriptWriter prints the exchange between a host and the device, one
// line per event.
type TranscriptWriter struct {
	w io.Writer
}

// NewTranscriptWriter creates a new TranscriptWriter.
// If w is nil, os.Stdout is used.
func NewTranscriptWriter(w io.Writer) *TranscriptWriter {
	if w == nil {
		w = os.Stdout
	}
	return &TranscriptWriter{w: w}
}

// OnFrame prints a host command frame.
func (tw *TranscriptWriter) OnFrame(cmd command.Command) {
	_, _ = fmt.Fprintf(tw.w, "%s %s %s\n", iconSend, cmd.Type, shortHex(cmd.Payload))
}

// OnStatus prints a host status frame.
func (tw *TranscriptWriter) OnStatus(s command.Status) {
	_, _ = fmt.Fprintf(tw.w, "%s STATUS %s\n", iconSend, s)
}

// OnReset prints a host reset.
func (tw *TranscriptWriter) OnReset(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "refused"
	}
	_, _ = fmt.Fprintf(tw.w, "%s RESET %s\n", iconSend, result)
}

// OnResponse prints a device response.
func (tw *TranscriptWriter) OnResponse(r transport.Response) {
	icon := iconOK
	if r.Kind.IsError() {
		icon = iconFail
	}
	_, _ = fmt.Fprintf(tw.w, "%s %s %s code=%d %s\n", iconReceive, icon, r.Kind, r.Code, shortHex(r.Payload))
}

// OnScreen prints a screen change. Masked screens are marked.
func (tw *TranscriptWriter) OnScreen(s display.Screen) {
	line := fmt.Sprintf("%s [%s] %s", iconScreen, s.Kind, s.Title)
	if s.Body != "" {
		line += " | " + s.Body
	}
	if s.Masked {
		line += " (masked)"
	}
	_, _ = fmt.Fprintln(tw.w, line)
}

// OnInput prints local input. Text is never printed.
func (tw *TranscriptWriter) OnInput(in display.Input) {
	if in.Kind == display.InputText {
		_, _ = fmt.Fprintf(tw.w, "%s %s (%d bytes)\n", iconKey, in.Kind, len(in.Text))
		return
	}
	_, _ = fmt.Fprintf(tw.w, "%s %s\n", iconKey, in.Kind)
}

// OnAdvance prints a clock advance.
func (tw *TranscriptWriter) OnAdvance(d time.Duration) {
	_, _ = fmt.Fprintf(tw.w, "%s +%s\n", iconClock, d)
}

// PrintSuccess prints a success message.
func (tw *TranscriptWriter) PrintSuccess(message string) {
	_, _ = fmt.Fprintf(tw.w, "%s %s\n", iconOK, message)
}

// PrintError prints an error message.
func (tw *TranscriptWriter) PrintError(message string) {
	_, _ = fmt.Fprintf(tw.w, "%s %s\n", iconFail, message)
}

func shortHex(p []byte) string {
	if len(p) == 0 {
		return "-"
	}
	s := hex.EncodeToString(p)
	if len(s) > maxHex {
		return fmt.Sprintf("%s… (%d bytes)", s[:maxHex], len(p))
	}
	return s
}
