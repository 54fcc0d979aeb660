package controller

import (
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
)

// FirmwareUpgrade records the pending version and waits for the host to
// report that the image transfer finished.
type FirmwareUpgrade struct {
	Version command.Version

	started bool
}

func (f *FirmwareUpgrade) Kind() flow.Kind { return flow.KindFirmwareUpgrade }

func (f *FirmwareUpgrade) Advance(env *Env, ev Event) Directive {
	wipeEvent(ev)

	if !f.started {
		f.started = true
		if err := env.step(flow.LevelThree, 1); err != nil {
			return fail(err)
		}
		if err := env.Identity.MarkUpgradePending(f.Version); err != nil {
			return fail(fmt.Errorf("record pending upgrade: %w", err), transport.Response{Kind: transport.KindDeviceError})
		}
		return wait(session.AwaitHost,
			display.Screen{Kind: display.ScreenMessage, Title: "Updating firmware", Body: "v" + f.Version.String()},
			transport.Response{Kind: transport.KindFirmwareAck, Payload: command.EncodeFirmware(f.Version)},
		)
	}

	if ev.Kind != EventHostSuccess {
		return fail(fmt.Errorf("%w: %s during firmware transfer", ErrUnexpectedEvent, ev.Kind), transport.Invalid())
	}
	return done(display.Screen{Kind: display.ScreenMessage, Title: "Firmware ready", Body: "Restart the device to finish"})
}
