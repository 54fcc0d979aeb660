package display

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// CancelWord rejects a text entry screen from the console.
const CancelWord = "/cancel"

// Console renders screens as text lines and turns typed lines into input.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	current Screen
	shown   bool
}

// NewConsole creates a console display. If w is nil, os.Stdout is used.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Render implements Display. Unchanged screens are not printed again.
func (c *Console) Render(s Screen) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shown && s == c.current {
		return
	}
	c.current = s
	c.shown = true

	title := ansi.Strip(s.Title)
	body := ansi.Strip(s.Body)
	switch s.Kind {
	case ScreenIdle:
		_, _ = fmt.Fprintln(c.w, "✓ Ready")
	case ScreenConfirm:
		_, _ = fmt.Fprintf(c.w, "? %s\n  %s (y/N): ", title, body)
	case ScreenText:
		_, _ = fmt.Fprintf(c.w, "> %s: ", title)
	case ScreenMessage:
		_, _ = fmt.Fprintf(c.w, "→ %s\n", joinLine(title, body))
	case ScreenError:
		_, _ = fmt.Fprintf(c.w, "✗ %s\n", joinLine(title, body))
	}
}

func joinLine(title, body string) string {
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + ": " + body
	}
}

func (c *Console) screenKind() ScreenKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Kind
}

// ReadFrom scans lines from r until EOF and pushes the matching input onto q.
// On a text entry screen every line is text except CancelWord; elsewhere
// y/yes accepts and n/no rejects.
func (c *Console) ReadFrom(r io.Reader, q *InputQueue) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if in, ok := c.parseLine(line); ok {
			q.Push(in)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func (c *Console) parseLine(line string) (Input, bool) {
	if c.screenKind() == ScreenText {
		if strings.TrimSpace(line) == CancelWord {
			return Input{Kind: InputReject}, true
		}
		return Input{Kind: InputText, Text: []byte(line)}, true
	}

	switch strings.TrimSpace(strings.ToLower(line)) {
	case "y", "yes":
		return Input{Kind: InputAccept}, true
	case "n", "no":
		return Input{Kind: InputReject}, true
	default:
		return Input{}, false
	}
}
