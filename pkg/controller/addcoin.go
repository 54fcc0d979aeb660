package controller

import (
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/transport"
)

type addCoinStep uint8

const (
	addCoinUnlock addCoinStep = iota + 1
	addCoinDerive
)

// AddCoin exports the account public key and chain code of a coin.
type AddCoin struct {
	Request command.AddCoinRequest

	step   addCoinStep
	unlock unlocker
}

// NewAddCoin creates the controller for a decoded ADD_COIN_START.
func NewAddCoin(req command.AddCoinRequest) *AddCoin {
	return &AddCoin{Request: req}
}

func (c *AddCoin) Kind() flow.Kind { return flow.KindAddCoin }

func (c *AddCoin) Advance(env *Env, ev Event) Directive {
	switch c.step {
	case 0:
		if err := c.enter(env, addCoinUnlock); err != nil {
			return fail(err)
		}
		fallthrough

	case addCoinUnlock:
		d, ready := c.unlock.advance(env, ev)
		if !ready {
			return d
		}
		if err := c.enter(env, addCoinDerive); err != nil {
			return fail(err)
		}
		return Directive{
			Continue: true,
			Screen:   display.Screen{Kind: display.ScreenMessage, Title: "Adding coin", Body: c.Request.Target.Network.Name},
		}

	case addCoinDerive:
		if ev.Kind != EventContinue {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s while deriving", ErrUnexpectedEvent, ev.Kind))
		}
		t := c.Request.Target
		node, err := derive(env, t.Coin, t.Path)
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		pub, err := node.PublicKey()
		if err != nil {
			return fail(err, transport.Response{Kind: transport.KindDeviceError})
		}
		payload := append(pub, node.ChainCode()...)
		return done(
			display.Screen{
				Kind:  display.ScreenMessage,
				Title: "Coin added",
				Body:  fmt.Sprintf("%s added to %s", t.Network.Name, env.Session.Wallet.Name),
			},
			transport.Response{Kind: transport.KindAddCoinResult, Payload: payload},
		)
	}

	wipeEvent(ev)
	return fail(ErrUnexpectedEvent)
}

func (c *AddCoin) enter(env *Env, step addCoinStep) error {
	c.step = step
	return env.step(flow.LevelThree, uint8(step))
}
