// Package engine runs the cooperative device loop: one tick polls the
// supervisor, runs scheduled controller steps and handles one host command.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/controller"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/dispatch"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

// Defaults for Options.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultFrameTimeout   = 30 * time.Second
	DefaultTickInterval   = 50 * time.Millisecond
)

// Screen texts of the terminal states.
const (
	textCancelled  = "Operation cancelled"
	textNoResponse = "No response"
	textFailed     = "Operation failed"
	textLocked     = "Wallet is locked"
)

// WalletStore is the wallet table with locking.
type WalletStore interface {
	wallet.Table
	controller.Locker
}

// Deps are the collaborators of the engine.
type Deps struct {
	Session  *device.Session
	Link     transport.Link
	Input    display.Source
	Display  display.Display
	Wallets  WalletStore
	Seeds    controller.Seeder
	Identity device.Identity
	Logs     *logger.Ring
}

// Options tunes the engine.
type Options struct {
	ConfirmTimeout time.Duration
	FrameTimeout   time.Duration
	ChunkSize      int
	RequireAuth    bool
	// Now is the clock used for deadlines (default time.Now).
	Now    func() time.Time
	Logger *logger.Logger
}

// Engine owns the device session. Tick and Run must not be called
// concurrently.
type Engine struct {
	session    *device.Session
	link       transport.Link
	input      display.Source
	screen     display.Display
	dispatcher *dispatch.Dispatcher
	supervisor *session.Supervisor
	env        *controller.Env
	opts       Options
	log        *logger.Logger
}

// New wires an engine.
func New(deps Deps, opts Options) *Engine {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = DefaultFrameTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	log := opts.Logger.With("component", "engine")

	return &Engine{
		session: deps.Session,
		link:    deps.Link,
		input:   deps.Input,
		screen:  deps.Display,
		dispatcher: dispatch.New(deps.Session, deps.Wallets, deps.Identity, dispatch.Options{
			RequireAuth: opts.RequireAuth,
			Logger:      opts.Logger,
		}),
		supervisor: session.New(session.Options{Now: opts.Now, Logger: opts.Logger}),
		env: &controller.Env{
			Session:   deps.Session,
			Wallets:   deps.Wallets,
			Seeds:     deps.Seeds,
			Identity:  deps.Identity,
			Logs:      deps.Logs,
			ChunkSize: opts.ChunkSize,
			Log:       log,
		},
		opts: opts,
		log:  log,
	}
}

// Session returns the device session.
func (e *Engine) Session() *device.Session {
	return e.session
}

// Mode returns the current device mode.
func (e *Engine) Mode() device.Mode {
	return e.dispatcher.Mode()
}

// Run ticks until ctx is cancelled, then tears down any running session.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("device loop started", "interval", interval, "mode", e.Mode().String())
	e.screen.Render(idleScreen)

	for {
		select {
		case <-ctx.Done():
			e.Shutdown()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Shutdown ends any running session.
func (e *Engine) Shutdown() {
	e.supervisor.Cancel()
	if e.session.Armed() {
		e.log.Info("tearing down session on shutdown", "session", e.session.ID)
	}
	e.session.Teardown()
}

// Tick runs one iteration of the device loop.
func (e *Engine) Tick(ctx context.Context) {
	if e.link.TakeReset() {
		e.log.Warn("host reset accepted", "session", e.session.ID)
		if e.session.Armed() {
			e.cancel(textCancelled)
		}
	}

	// The step flag is cleared before polling so a step is never run twice.
	if e.session.Counter.NextEvent {
		e.session.Counter.NextEvent = false
		e.advance(ctx, controller.Event{Kind: controller.EventContinue})
	}

	if e.supervisor.Armed() {
		await, _ := e.supervisor.Awaiting()
		if out, ok := e.supervisor.Poll(e.link, e.input); ok {
			e.settle(ctx, await, out)
		}
	} else if !e.session.Armed() {
		e.drainStale()
	}

	cmd, ok := e.link.Next()
	if !ok {
		return
	}
	if await, armed := e.supervisor.Awaiting(); armed && await == session.AwaitHost && dispatch.FollowUp(cmd.Type) {
		e.supervisor.Cancel()
		e.advance(ctx, controller.Event{Kind: controller.EventFrame, Frame: cmd})
		return
	}
	e.handle(ctx, cmd)
}

func (e *Engine) handle(ctx context.Context, cmd command.Command) {
	res := e.dispatcher.Dispatch(cmd)
	for _, r := range res.Responses {
		e.link.Send(r)
	}
	if res.Started == nil {
		return
	}

	// The accept must land on the workflow this prompt was shown for.
	e.session.Flow.Input.ExpectedChoice = uint8(res.Started.Kind())
	e.screen.Render(display.Screen{
		Kind:  display.ScreenConfirm,
		Title: res.Started.Kind().String(),
		Body:  e.session.Flow.ConfirmationPrompt,
	})
	e.supervisor.Arm(ctx, e.session.ID, session.AwaitUser, e.opts.ConfirmTimeout)
}

// settle applies one supervisor outcome.
func (e *Engine) settle(ctx context.Context, await session.Await, out session.Outcome) {
	log := e.log.WithSession(out.SessionID)
	if out.SessionID != e.session.ID {
		log.Warn("outcome for stale session dropped", "event", out.Event.String())
		return
	}
	log.Debug("watch outcome", "event", out.Event.String(), "await", await.String())

	switch out.Event {
	case session.EventSuccess:
		if e.session.Phase == flow.PhaseAwaitingConfirmation {
			in := &e.session.Flow.Input
			in.Choice = uint8(e.session.Kind())
			if !in.ChoiceMatches() {
				log.Error("confirmation does not match the armed workflow", "workflow", e.session.Kind().String())
				e.abort(textFailed)
				return
			}
			in.Choice, in.ExpectedChoice = 0, 0
			e.session.Activate()
			e.link.Send(transport.Response{Kind: transport.KindConfirmed})
			e.advance(ctx, controller.Event{Kind: controller.EventStart})
			return
		}
		kind := controller.EventAccept
		if await == session.AwaitHost {
			kind = controller.EventHostSuccess
		}
		e.advance(ctx, controller.Event{Kind: kind})

	case session.EventText:
		input := &e.session.Flow.Input
		err := input.SetText(out.Text)
		secret.Wipe(out.Text)
		if err != nil {
			log.Warn("text entry refused", "error", err)
			e.abort(textFailed)
			return
		}
		e.advance(ctx, controller.Event{Kind: controller.EventText, Text: input.Text()})
		input.ClearText()

	case session.EventReject:
		e.link.Send(transport.Response{Kind: transport.KindUserRejected})
		e.cancel(textCancelled)

	case session.EventAbort:
		e.cancel(textCancelled)

	case session.EventTimeout:
		e.link.Send(transport.Response{Kind: transport.KindTimeout})
		e.cancel(textNoResponse)

	case session.EventCancelled:
		log.Info("session cancelled by shutdown")
		e.session.Phase = flow.PhaseAborted
		e.session.Teardown()
	}
}

// advance runs the controller and applies its directive.
func (e *Engine) advance(ctx context.Context, ev controller.Event) {
	c, ok := e.session.Workflow.(controller.Controller)
	if !ok || e.session.Phase != flow.PhaseActive {
		clear(ev.Text)
		e.log.Error("controller step without active workflow", "event", ev.Kind.String())
		e.abort(textFailed)
		return
	}

	d := c.Advance(e.env, ev)
	for _, r := range d.Responses {
		e.link.Send(r)
	}

	log := e.log.WithSession(e.session.ID)
	switch {
	case d.Err != nil:
		log.Warn("workflow failed", "workflow", c.Kind().String(), "error", d.Err)
		msg := textFailed
		if errors.Is(d.Err, wallet.ErrLocked) {
			msg = textLocked
		}
		e.abort(msg)
		return
	case d.Done:
		if d.Screen != (display.Screen{}) {
			e.screen.Render(d.Screen)
		}
		log.Info("workflow complete", "workflow", c.Kind().String())
		e.session.Phase = flow.PhaseComplete
		e.supervisor.Cancel()
		e.session.Teardown()
		return
	}

	if d.Screen != (display.Screen{}) {
		e.screen.Render(d.Screen)
	}
	if d.Wait {
		timeout := e.opts.ConfirmTimeout
		if d.Await == session.AwaitHost {
			timeout = e.opts.FrameTimeout
		}
		e.supervisor.Arm(ctx, e.session.ID, d.Await, timeout)
	}
	if d.Continue {
		e.session.Counter.NextEvent = true
	}
}

// cancel records that the session was cancelled, then aborts it. The flag
// stays raised until teardown clears it.
func (e *Engine) cancel(msg string) {
	e.session.Counter.PreviousEvent = true
	e.abort(msg)
}

// abort shows msg and tears the session down.
func (e *Engine) abort(msg string) {
	e.log.WithSession(e.session.ID).Info("session aborted", "reason", msg, "workflow", e.session.Kind().String())
	e.supervisor.Cancel()
	e.session.Phase = flow.PhaseAborted
	e.session.Flow.SetError(msg)
	e.screen.Render(display.Screen{Kind: display.ScreenError, Title: "Error", Body: e.session.Flow.ErrorPrompt})
	e.session.Teardown()
}

// drainStale drops host status and local input that arrived while no
// session was armed.
func (e *Engine) drainStale() {
	if st, ok := e.link.Status(); ok {
		e.log.Debug("stale host status dropped", "status", st.String())
	}
	if in, ok := e.input.Poll(); ok {
		clear(in.Text)
		e.log.Debug("stale input dropped", "input", in.Kind.String())
	}
}

var idleScreen = display.Screen{Kind: display.ScreenIdle, Title: "Ready"}
