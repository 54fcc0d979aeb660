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

type swapStep uint8

const (
	swapAwaitTxn swapStep = iota + 1
	swapConfirm
	swapUnlock
	swapSign
)

// Swap signs the outgoing leg of an exchange and returns the receive
// address of the incoming leg.
type Swap struct {
	Request command.SwapRequest

	step   swapStep
	txn    command.UnsignedTxn
	unlock unlocker
}

// NewSwap creates the controller for a decoded SWAP_TXN_START.
func NewSwap(req command.SwapRequest) *Swap {
	return &Swap{Request: req}
}

func (s *Swap) Kind() flow.Kind { return flow.KindSwapTxn }

func (s *Swap) Advance(env *Env, ev Event) Directive {
	switch s.step {
	case 0:
		if err := s.enter(env, swapAwaitTxn); err != nil {
			return fail(err)
		}
		return wait(session.AwaitHost, display.Screen{Kind: display.ScreenMessage, Title: "Waiting for swap quote"})

	case swapAwaitTxn:
		txn, d, ok := receiveTxn(ev, command.TxnNative)
		if !ok {
			return d
		}
		s.txn = txn
		if err := s.enter(env, swapConfirm); err != nil {
			return fail(err)
		}
		from, to := s.Request.From, s.Request.To
		return wait(session.AwaitUser, display.Screen{
			Kind:  display.ScreenConfirm,
			Title: fmt.Sprintf("Swap %s %s", formatAmount(txn.Amount, from.Coin.Decimals), from.Network.Symbol),
			Body:  "for " + to.Network.Name,
		})

	case swapConfirm:
		if ev.Kind != EventAccept {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s on confirmation", ErrUnexpectedEvent, ev.Kind))
		}
		if err := s.enter(env, swapUnlock); err != nil {
			return fail(err)
		}
		fallthrough

	case swapUnlock:
		d, ready := s.unlock.advance(env, ev)
		if !ready {
			return d
		}
		if err := s.enter(env, swapSign); err != nil {
			return fail(err)
		}
		return Directive{Continue: true, Screen: display.Screen{Kind: display.ScreenMessage, Title: "Signing swap"}}

	case swapSign:
		to := s.Request.To
		node, err := derive(env, to.Coin, to.Path)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		addr, err := signer.Address(to.Coin, node)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}

		from := s.Request.From
		node, err = derive(env, from.Coin, from.Path)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		sig, err := signer.Sign(from.Coin, node, s.txn.Raw)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		return done(
			display.Screen{Kind: display.ScreenMessage, Title: "Swap signed"},
			transport.Response{Kind: transport.KindAddress, Payload: []byte(addr)},
			transport.Response{Kind: transport.KindSignature, Payload: sig},
		)
	}

	wipeEvent(ev)
	return fail(ErrUnexpectedEvent)
}

func (s *Swap) enter(env *Env, step swapStep) error {
	s.step = step
	return env.step(flow.LevelThree, uint8(step))
}
