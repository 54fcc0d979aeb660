// Package session supervises an armed workflow: it resolves exactly one of
// host success, host abort, local input or timeout per armed watch.
package session

import (
	"context"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
)

// Await selects which sources may complete a watch.
type Await uint8

const (
	// AwaitUser needs a local accept. The host may only abort.
	AwaitUser Await = iota
	// AwaitText needs local text entry.
	AwaitText
	// AwaitHost needs a host success status or a follow-up frame.
	AwaitHost
)

func (a Await) String() string {
	switch a {
	case AwaitUser:
		return "user"
	case AwaitText:
		return "text"
	case AwaitHost:
		return "host"
	default:
		return "unknown"
	}
}

// Event is the resolved outcome of a watch.
type Event uint8

const (
	EventNone Event = iota
	EventSuccess
	EventAbort
	EventReject
	EventText
	EventTimeout
	EventCancelled
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSuccess:
		return "success"
	case EventAbort:
		return "abort"
	case EventReject:
		return "reject"
	case EventText:
		return "text"
	case EventTimeout:
		return "timeout"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is delivered once per armed watch.
type Outcome struct {
	Event     Event
	SessionID string
	// Text is set for EventText. The caller owns and must wipe it.
	Text []byte
}

// StatusSource yields host status frames.
type StatusSource interface {
	Status() (command.Status, bool)
}

// Options configures a Supervisor.
type Options struct {
	// Now is the clock used for deadlines (default time.Now).
	Now    func() time.Time
	Logger *logger.Logger
}

// Supervisor owns at most one watch at a time.
type Supervisor struct {
	now func() time.Time
	log *logger.Logger
	w   *watch
}

type watch struct {
	id       string
	await    Await
	deadline time.Time

	// poll is the completion poller token, timer the timeout token.
	// Settling the watch cancels both.
	poll       context.Context
	pollCancel context.CancelFunc
	timer      context.Context
	timerStop  context.CancelFunc
}

// New creates an idle supervisor.
func New(opts Options) *Supervisor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	return &Supervisor{now: opts.Now, log: opts.Logger.With("component", "supervisor")}
}

// Arm starts a watch for session id. An existing watch is cancelled first.
// Cancelling ctx resolves the watch as EventCancelled on the next poll.
func (s *Supervisor) Arm(ctx context.Context, id string, await Await, timeout time.Duration) {
	s.Cancel()

	w := &watch{id: id, await: await, deadline: s.now().Add(timeout)}
	w.poll, w.pollCancel = context.WithCancel(ctx)
	w.timer, w.timerStop = context.WithCancel(ctx)
	s.w = w

	s.log.Debug("watch armed", "session", id, "await", await.String(), "timeout", timeout)
}

// Armed reports whether a watch is pending.
func (s *Supervisor) Armed() bool {
	return s.w != nil
}

// Awaiting returns the await kind of the pending watch.
func (s *Supervisor) Awaiting() (Await, bool) {
	if s.w == nil {
		return 0, false
	}
	return s.w.await, true
}

// Deadline returns the deadline of the pending watch.
func (s *Supervisor) Deadline() (time.Time, bool) {
	if s.w == nil {
		return time.Time{}, false
	}
	return s.w.deadline, true
}

// Poll checks every source once. Explicit events are considered before the
// deadline, so an answer arriving in the same tick as the timeout wins.
func (s *Supervisor) Poll(status StatusSource, input display.Source) (Outcome, bool) {
	w := s.w
	if w == nil {
		return Outcome{}, false
	}

	if w.poll.Err() != nil {
		return s.settle(EventCancelled, nil), true
	}

	if st, ok := status.Status(); ok {
		switch {
		case st == command.StatusAbort:
			return s.settle(EventAbort, nil), true
		case st == command.StatusSuccess && w.await == AwaitHost:
			return s.settle(EventSuccess, nil), true
		default:
			s.log.Debug("host status ignored", "session", w.id, "status", st.String(), "await", w.await.String())
		}
	}

	if in, ok := input.Poll(); ok {
		switch {
		case in.Kind == display.InputReject:
			return s.settle(EventReject, nil), true
		case in.Kind == display.InputAccept && w.await == AwaitUser:
			return s.settle(EventSuccess, nil), true
		case in.Kind == display.InputText && w.await == AwaitText:
			return s.settle(EventText, in.Text), true
		default:
			clear(in.Text)
			s.log.Debug("local input ignored", "session", w.id, "input", in.Kind.String(), "await", w.await.String())
		}
	}

	if !s.now().Before(w.deadline) {
		return s.settle(EventTimeout, nil), true
	}

	return Outcome{}, false
}

// Cancel drops the pending watch without an outcome.
func (s *Supervisor) Cancel() {
	if s.w == nil {
		return
	}
	s.w.pollCancel()
	s.w.timerStop()
	s.w = nil
}

func (s *Supervisor) settle(ev Event, text []byte) Outcome {
	w := s.w
	w.pollCancel()
	w.timerStop()
	s.w = nil

	s.log.Debug("watch settled", "session", w.id, "event", ev.String())
	return Outcome{Event: ev, SessionID: w.id, Text: text}
}
