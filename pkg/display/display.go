// Package display renders device screens and collects local user input.
package display

import "sync"

// ScreenKind selects the screen layout.
type ScreenKind uint8

const (
	ScreenIdle ScreenKind = iota
	ScreenConfirm
	ScreenText
	ScreenMessage
	ScreenError
)

func (k ScreenKind) String() string {
	switch k {
	case ScreenIdle:
		return "idle"
	case ScreenConfirm:
		return "confirm"
	case ScreenText:
		return "text"
	case ScreenMessage:
		return "message"
	case ScreenError:
		return "error"
	default:
		return "unknown"
	}
}

// Screen is what the device shows.
type Screen struct {
	Kind   ScreenKind
	Title  string
	Body   string
	Masked bool
}

// Display renders screens.
type Display interface {
	Render(Screen)
}

// InputKind classifies a local input event.
type InputKind uint8

const (
	InputAccept InputKind = iota
	InputReject
	InputText
)

func (k InputKind) String() string {
	switch k {
	case InputAccept:
		return "accept"
	case InputReject:
		return "reject"
	case InputText:
		return "text"
	default:
		return "unknown"
	}
}

// Input is one local user action.
type Input struct {
	Kind InputKind
	Text []byte
}

// Source yields pending local input.
type Source interface {
	Poll() (Input, bool)
}

// InputQueue is a concurrency-safe FIFO of local input.
type InputQueue struct {
	mu     sync.Mutex
	inputs []Input
}

// Push appends an input.
func (q *InputQueue) Push(in Input) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inputs = append(q.inputs, in)
}

// Poll implements Source.
func (q *InputQueue) Poll() (Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.inputs) == 0 {
		return Input{}, false
	}
	in := q.inputs[0]
	q.inputs[0] = Input{}
	q.inputs = q.inputs[1:]
	return in, true
}

// Len returns the number of pending inputs.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inputs)
}
