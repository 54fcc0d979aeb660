package controller

import (
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

// ExportWallet sends the list of valid wallets to the host:
// count(1) then per wallet id(32) | info(1) | name length(1) | name.
type ExportWallet struct {
	Table wallet.Table
}

func (x *ExportWallet) Kind() flow.Kind { return flow.KindExportWallet }

func (x *ExportWallet) Advance(env *Env, ev Event) Directive {
	wipeEvent(ev)
	if ev.Kind != EventStart {
		return fail(ErrUnexpectedEvent)
	}
	if err := env.step(flow.LevelThree, 1); err != nil {
		return fail(err)
	}

	payload := []byte{0}
	for _, rec := range x.Table.Slots() {
		if rec.State != wallet.StateValid {
			continue
		}
		payload[0]++
		payload = append(payload, rec.ID[:]...)
		payload = append(payload, byte(rec.Info), byte(len(rec.Name)))
		payload = append(payload, rec.Name...)
	}

	return done(
		display.Screen{Kind: display.ScreenMessage, Title: "Wallets exported"},
		transport.Response{Kind: transport.KindWalletList, Payload: payload},
	)
}
