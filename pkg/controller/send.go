package controller

import (
	"errors"
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/signer"
	"github.com/andri/cardwallet/pkg/transport"
)

// ErrNoTransaction is returned when the host completes a signing session
// without sending the transaction.
var ErrNoTransaction = errors.New("host finished without sending a transaction")

type sendStep uint8

const (
	sendAwaitTxn sendStep = iota + 1
	sendConfirm
	sendUnlock
	sendSign
)

// Send waits for the unsigned transaction, has the user confirm amount and
// recipient, unlocks the wallet and returns the signature.
type Send struct {
	Request command.SendRequest

	step   sendStep
	txn    command.UnsignedTxn
	unlock unlocker
}

// NewSend creates the controller for a decoded SEND_TXN_START.
func NewSend(req command.SendRequest) *Send {
	return &Send{Request: req}
}

func (s *Send) Kind() flow.Kind { return flow.KindSendTxn }

func (s *Send) Advance(env *Env, ev Event) Directive {
	switch s.step {
	case 0:
		if err := s.enter(env, sendAwaitTxn); err != nil {
			return fail(err)
		}
		return wait(session.AwaitHost, display.Screen{Kind: display.ScreenMessage, Title: "Waiting for transaction"})

	case sendAwaitTxn:
		txn, d, ok := receiveTxn(ev, s.Request.Kind)
		if !ok {
			return d
		}
		s.txn = txn
		if err := s.enter(env, sendConfirm); err != nil {
			return fail(err)
		}
		return wait(session.AwaitUser, s.confirmScreen())

	case sendConfirm:
		if ev.Kind != EventAccept {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s on confirmation", ErrUnexpectedEvent, ev.Kind))
		}
		if err := s.enter(env, sendUnlock); err != nil {
			return fail(err)
		}
		fallthrough

	case sendUnlock:
		d, ready := s.unlock.advance(env, ev)
		if !ready {
			return d
		}
		if err := s.enter(env, sendSign); err != nil {
			return fail(err)
		}
		return Directive{Continue: true, Screen: display.Screen{Kind: display.ScreenMessage, Title: "Signing"}}

	case sendSign:
		t := s.Request.Target
		node, err := derive(env, t.Coin, t.Path)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		sig, err := signer.Sign(t.Coin, node, s.txn.Raw)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		return done(
			display.Screen{Kind: display.ScreenMessage, Title: "Transaction signed"},
			transport.Response{Kind: transport.KindSignature, Payload: sig},
		)
	}

	wipeEvent(ev)
	return fail(ErrUnexpectedEvent)
}

func (s *Send) confirmScreen() display.Screen {
	if s.Request.Kind == command.TxnAccountCreate && s.txn.Amount == 0 {
		return display.Screen{Kind: display.ScreenConfirm, Title: "Create account", Body: s.txn.Recipient}
	}
	symbol, decimals := asset(s.Request)
	return display.Screen{
		Kind:  display.ScreenConfirm,
		Title: fmt.Sprintf("Send %s %s", formatAmount(s.txn.Amount, decimals), symbol),
		Body:  "to " + s.txn.Recipient,
	}
}

func (s *Send) enter(env *Env, step sendStep) error {
	s.step = step
	return env.step(flow.LevelThree, uint8(step))
}

// receiveTxn handles the event of a step waiting for the unsigned
// transaction frame.
func receiveTxn(ev Event, kind command.TxnKind) (command.UnsignedTxn, Directive, bool) {
	switch ev.Kind {
	case EventFrame:
		if ev.Frame.Type != command.TypeUnsignedTxn {
			return command.UnsignedTxn{}, fail(fmt.Errorf("%w: %s frame", ErrUnexpectedEvent, ev.Frame.Type), transport.Invalid()), false
		}
		txn, err := command.DecodeUnsigned(ev.Frame.Payload)
		if err != nil {
			return txn, fail(err, transport.Invalid()), false
		}
		if err := command.ValidateUnsigned(kind, txn); err != nil {
			return txn, fail(err, transport.Response{Kind: transport.KindTxnRejected, Code: transport.TxnReasonMetadata}), false
		}
		return txn, Directive{}, true
	case EventHostSuccess:
		return command.UnsignedTxn{}, fail(ErrNoTransaction), false
	default:
		wipeEvent(ev)
		return command.UnsignedTxn{}, fail(fmt.Errorf("%w: %s while waiting for transaction", ErrUnexpectedEvent, ev.Kind)), false
	}
}
