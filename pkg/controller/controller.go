// Package controller implements the per-workflow step machines that run
// after the user accepts a workflow's start screen.
package controller

import (
	"errors"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

// DefaultChunkSize is the app-log chunk length.
const DefaultChunkSize = 512

// ErrUnexpectedEvent is returned when a step receives input it cannot use.
var ErrUnexpectedEvent = errors.New("unexpected event for current step")

// EventKind classifies what woke a controller.
type EventKind uint8

const (
	// EventStart is delivered once after the start screen is accepted.
	EventStart EventKind = iota
	// EventAccept is a local accept on a confirmation screen.
	EventAccept
	// EventText carries local text entry.
	EventText
	// EventFrame carries a follow-up host frame.
	EventFrame
	// EventHostSuccess is a host success status.
	EventHostSuccess
	// EventContinue is a self-scheduled step.
	EventContinue
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventAccept:
		return "accept"
	case EventText:
		return "text"
	case EventFrame:
		return "frame"
	case EventHostSuccess:
		return "host-success"
	case EventContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Event is one controller input. Text is owned by the controller, which
// wipes it once consumed.
type Event struct {
	Kind  EventKind
	Text  []byte
	Frame command.Command
}

// Directive tells the engine what to do after a step.
type Directive struct {
	Responses []transport.Response
	Screen    display.Screen

	// Wait arms the supervisor with Await.
	Wait  bool
	Await session.Await
	// Continue schedules another step on the next tick.
	Continue bool
	// Done ends the workflow successfully.
	Done bool
	// Err aborts the workflow.
	Err error
}

// Controller is a running workflow.
type Controller interface {
	device.Workflow
	Advance(env *Env, ev Event) Directive
}

// Locker locks wallets whose PIN attempts are exhausted.
type Locker interface {
	Lock(id wallet.ID) error
}

// Seeder rebuilds the seed of a wallet into a session buffer.
type Seeder interface {
	Seed(id wallet.ID, pinHash, passphrase []byte, seed *secret.Buffer) error
}

// Env is what controllers may touch.
type Env struct {
	Session  *device.Session
	Wallets  Locker
	Seeds    Seeder
	Identity device.Identity
	Logs     *logger.Ring
	// ChunkSize bounds app-log chunks (default DefaultChunkSize).
	ChunkSize int
	Log       *logger.Logger
}

func (env *Env) step(level flow.Level, value uint8) error {
	return env.Session.Flow.Advance(level, value)
}

func (env *Env) logger() *logger.Logger {
	if env.Log == nil {
		return logger.GetDefault()
	}
	return env.Log
}

func wait(await session.Await, screen display.Screen, responses ...transport.Response) Directive {
	return Directive{Wait: true, Await: await, Screen: screen, Responses: responses}
}

func done(screen display.Screen, responses ...transport.Response) Directive {
	return Directive{Done: true, Screen: screen, Responses: responses}
}

func fail(err error, responses ...transport.Response) Directive {
	return Directive{Err: err, Responses: responses}
}

func wipeEvent(ev Event) {
	secret.Wipe(ev.Text)
}
