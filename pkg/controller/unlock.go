package controller

import (
	"errors"
	"fmt"

	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

type unlockStep uint8

const (
	unlockPIN unlockStep = iota + 1
	unlockPassphrase
	unlockTap
)

// unlocker collects the wallet credentials and rebuilds the seed into the
// session. It owns level four of the flow while it runs.
type unlocker struct {
	step unlockStep
}

// advance returns ready once the seed is in the session. Otherwise the
// directive must be returned to the engine.
func (u *unlocker) advance(env *Env, ev Event) (d Directive, ready bool) {
	w := env.Session.Wallet

	if u.step == 0 {
		wipeEvent(ev)
		return u.enter(env, u.after(w, 0))
	}

	switch u.step {
	case unlockPIN:
		if ev.Kind != EventText {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s during PIN entry", ErrUnexpectedEvent, ev.Kind)), false
		}
		hash := card.HashPIN(ev.Text)
		wipeEvent(ev)
		err := w.PasswordDoubleHash.Set(hash[:])
		secret.Wipe(hash[:])
		if err != nil {
			return fail(err), false
		}
		return u.enter(env, u.after(w, unlockPIN))

	case unlockPassphrase:
		if ev.Kind != EventText {
			wipeEvent(ev)
			return fail(fmt.Errorf("%w: %s during passphrase entry", ErrUnexpectedEvent, ev.Kind)), false
		}
		err := w.Passphrase.Set(ev.Text)
		wipeEvent(ev)
		if err != nil {
			return fail(fmt.Errorf("passphrase: %w", err)), false
		}
		return u.enter(env, unlockTap)

	default:
		wipeEvent(ev)
		return u.enter(env, unlockTap)
	}
}

func (u *unlocker) after(w *wallet.Active, step unlockStep) unlockStep {
	if step < unlockPIN && w.Info.PinSet() {
		return unlockPIN
	}
	if step < unlockPassphrase && w.Info.PassphraseSet() {
		return unlockPassphrase
	}
	return unlockTap
}

func (u *unlocker) enter(env *Env, step unlockStep) (Directive, bool) {
	u.step = step
	if err := env.step(flow.LevelFour, uint8(step)); err != nil {
		return fail(err), false
	}

	w := env.Session.Wallet
	switch step {
	case unlockPIN:
		return wait(session.AwaitText, display.Screen{Kind: display.ScreenText, Title: "Enter PIN", Body: w.Name, Masked: true}), false
	case unlockPassphrase:
		return wait(session.AwaitText, display.Screen{Kind: display.ScreenText, Title: "Enter passphrase", Body: w.Name, Masked: true}), false
	}

	err := env.Seeds.Seed(w.ID, w.PasswordDoubleHash.Bytes(), w.Passphrase.Bytes(), env.Session.Seed)
	switch {
	case err == nil:
		env.logger().Debug("wallet unlocked", "wallet", w.ID.Short())
		return Directive{}, true

	case errors.Is(err, card.ErrAttemptsUsed):
		if lockErr := env.Wallets.Lock(w.ID); lockErr != nil {
			env.logger().Error("failed to lock wallet", "wallet", w.ID.Short(), "error", lockErr)
		}
		return fail(wallet.ErrLocked, transport.Response{Kind: transport.KindWalletLocked}), false

	case errors.Is(err, card.ErrWrongPIN):
		w.PasswordDoubleHash.Wipe()
		u.step = unlockPIN
		if err := env.step(flow.LevelFour, uint8(unlockPIN)); err != nil {
			return fail(err), false
		}
		return wait(session.AwaitText, display.Screen{Kind: display.ScreenText, Title: "Wrong PIN, try again", Body: w.Name, Masked: true}), false

	default:
		return fail(fmt.Errorf("unlock wallet: %w", err), transport.Response{Kind: transport.KindDeviceError}), false
	}
}
