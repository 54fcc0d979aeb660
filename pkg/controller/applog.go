package controller

import (
	"fmt"
	"math"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
)

// AppLog streams a snapshot of the log ring to the host, one chunk per
// FETCH_NEXT frame, and ends with LOG_END.
type AppLog struct {
	started bool
	data    []byte
	offset  int
	chunks  int
}

func (a *AppLog) Kind() flow.Kind { return flow.KindAppLog }

func (a *AppLog) Advance(env *Env, ev Event) Directive {
	wipeEvent(ev)

	if !a.started {
		a.started = true
		if env.Logs != nil {
			a.data = env.Logs.Snapshot()
		}
		if err := env.step(flow.LevelThree, 1); err != nil {
			return fail(err)
		}
		return a.next(env)
	}

	switch {
	case ev.Kind == EventFrame && ev.Frame.Type == command.TypeFetchNext:
		if err := command.DecodeEmpty(command.TypeFetchNext, ev.Frame.Payload); err != nil {
			return fail(err, transport.Invalid())
		}
		return a.next(env)
	case ev.Kind == EventHostSuccess:
		return done(display.Screen{Kind: display.ScreenMessage, Title: "Logs sent"})
	default:
		return fail(fmt.Errorf("%w: %s during log export", ErrUnexpectedEvent, ev.Kind), transport.Invalid())
	}
}

func (a *AppLog) next(env *Env) Directive {
	if a.offset >= len(a.data) {
		return done(
			display.Screen{Kind: display.ScreenMessage, Title: "Logs sent"},
			transport.Response{Kind: transport.KindLogEnd},
		)
	}

	size := env.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	end := min(a.offset+size, len(a.data))
	chunk := a.data[a.offset:end]
	a.offset = end
	a.chunks++

	if err := env.step(flow.LevelFour, uint8(min(a.chunks, math.MaxUint8))); err != nil {
		return fail(err)
	}
	return wait(session.AwaitHost,
		display.Screen{Kind: display.ScreenMessage, Title: "Sending logs", Body: fmt.Sprintf("%d%%", a.offset*100/len(a.data))},
		transport.Response{Kind: transport.KindLogChunk, Payload: chunk},
	)
}
