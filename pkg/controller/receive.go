package controller

import (
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/signer"
	"github.com/andri/cardwallet/pkg/transport"
)

type receiveStep uint8

const (
	receiveUnlock receiveStep = iota + 1
	receiveDerive
	receiveVerify
)

// Receive derives an address and has the user verify it on screen before
// it is sent to the host.
type Receive struct {
	Request command.ReceiveRequest

	step    receiveStep
	address string
	unlock  unlocker
}

// NewReceive creates the controller for a decoded RECV_TXN_START.
func NewReceive(req command.ReceiveRequest) *Receive {
	return &Receive{Request: req}
}

func (r *Receive) Kind() flow.Kind { return flow.KindRecvTxn }

func (r *Receive) Advance(env *Env, ev Event) Directive {
	switch r.step {
	case 0:
		if err := r.enter(env, receiveUnlock); err != nil {
			return fail(err)
		}
		fallthrough

	case receiveUnlock:
		d, ready := r.unlock.advance(env, ev)
		if !ready {
			return d
		}
		if err := r.enter(env, receiveDerive); err != nil {
			return fail(err)
		}
		return Directive{Continue: true, Screen: display.Screen{Kind: display.ScreenMessage, Title: "Deriving address"}}

	case receiveDerive:
		t := r.Request.Target
		node, err := derive(env, t.Coin, t.Path)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		addr, err := signer.Address(t.Coin, node)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		r.address = addr
		if err := r.enter(env, receiveVerify); err != nil {
			return fail(err)
		}
		return wait(session.AwaitUser, display.Screen{
			Kind:  display.ScreenConfirm,
			Title: fmt.Sprintf("Verify %s address", t.Network.Name),
			Body:  addr,
		})

	case receiveVerify:
		if ev.Kind != EventAccept {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s on address verification", ErrUnexpectedEvent, ev.Kind))
		}
		return done(
			display.Screen{Kind: display.ScreenMessage, Title: "Address verified"},
			transport.Response{Kind: transport.KindAddress, Payload: []byte(r.address)},
		)
	}

	wipeEvent(ev)
	return fail(ErrUnexpectedEvent)
}

func (r *Receive) enter(env *Env, step receiveStep) error {
	r.step = step
	return env.step(flow.LevelThree, uint8(step))
}
