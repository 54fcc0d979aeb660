package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/andri/cardwallet/pkg/command"
	"go.uber.org/atomic"
)

// DefaultCapacity bounds the pending command queue.
const DefaultCapacity = 16

// ErrQueueFull is returned when the host pushes faster than the device drains.
var ErrQueueFull = errors.New("command queue full")

// Link is the device side of the transport.
type Link interface {
	// Next pops the oldest pending command.
	Next() (command.Command, bool)
	// Status pops the latest host status frame.
	Status() (command.Status, bool)
	// Send queues a response for the host.
	Send(Response)
	// TakeReset reports and clears an accepted host reset request.
	TakeReset() bool
}

// Queue is an in-memory transport shared by the device loop and a host
// bridge. It is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	capacity  int
	commands  []command.Command
	status    *command.Status
	responses []Response
	notify    chan struct{}

	// resetAllowed is cleared by device teardown and set when a session arms.
	resetAllowed *atomic.Bool
	resetPending atomic.Bool
}

// NewQueue creates a queue. guard is the reset permission flag shared with
// the device session; nil allocates a private one.
func NewQueue(capacity int, guard *atomic.Bool) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if guard == nil {
		guard = atomic.NewBool(false)
	}
	return &Queue{
		capacity:     capacity,
		resetAllowed: guard,
		notify:       make(chan struct{}, 1),
	}
}

// Push enqueues a host frame. Status frames replace any unread status.
func (q *Queue) Push(cmd command.Command) error {
	if cmd.Type == command.TypeStatus {
		s, err := command.DecodeStatus(cmd.Payload)
		if err != nil {
			return err
		}
		q.mu.Lock()
		q.status = &s
		q.mu.Unlock()
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) >= q.capacity {
		return fmt.Errorf("%w (%d pending)", ErrQueueFull, len(q.commands))
	}
	q.commands = append(q.commands, command.Command{Type: cmd.Type, Payload: append([]byte(nil), cmd.Payload...)})
	return nil
}

// Next implements Link.
func (q *Queue) Next() (command.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) == 0 {
		return command.Command{}, false
	}
	cmd := q.commands[0]
	q.commands = q.commands[1:]
	return cmd, true
}

// Status implements Link.
func (q *Queue) Status() (command.Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status == nil {
		return 0, false
	}
	s := *q.status
	q.status = nil
	return s, true
}

// Send implements Link.
func (q *Queue) Send(r Response) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = append(q.responses, r)

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain returns and clears every queued response, along with the pending
// notification for them.
func (q *Queue) Drain() []Response {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.responses
	q.responses = nil

	select {
	case <-q.notify:
	default:
	}
	return out
}

// Notify is signalled after a response is queued.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Pending returns the number of unread commands.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// HostReset requests a low-level reset. It is accepted only while the
// device allows resets; accepted resets discard pending commands.
func (q *Queue) HostReset() bool {
	if !q.resetAllowed.Load() {
		return false
	}
	q.mu.Lock()
	q.commands = nil
	q.status = nil
	q.mu.Unlock()
	q.resetPending.Store(true)
	return true
}

// TakeReset implements Link.
func (q *Queue) TakeReset() bool {
	return q.resetPending.CompareAndSwap(true, false)
}
