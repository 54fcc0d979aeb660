// Package dispatch validates host commands, answers the synchronous ones
// and starts workflow sessions for the rest.
package dispatch

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/controller"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

// Options configures a Dispatcher.
type Options struct {
	// RequireAuth restricts unauthenticated devices.
	RequireAuth bool
	Logger      *logger.Logger
}

// Result is the outcome of one dispatched command.
type Result struct {
	Responses []transport.Response
	// Started is set when the command armed a workflow session.
	Started controller.Controller
}

// Dispatcher routes commands. It is driven by the device loop only.
type Dispatcher struct {
	session     *device.Session
	wallets     wallet.Table
	identity    device.Identity
	requireAuth bool
	log         *logger.Logger
}

// New creates a dispatcher over the device session.
func New(s *device.Session, wallets wallet.Table, identity device.Identity, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	return &Dispatcher{
		session:     s,
		wallets:     wallets,
		identity:    identity,
		requireAuth: opts.RequireAuth,
		log:         opts.Logger.With("component", "dispatch"),
	}
}

// Mode returns the current device mode.
func (d *Dispatcher) Mode() device.Mode {
	return device.ModeFor(d.identity.Info(), d.requireAuth)
}

// Dispatch handles one command. On any rejection the session is left idle.
func (d *Dispatcher) Dispatch(cmd command.Command) Result {
	log := d.log.With("command", cmd.Type.String())

	if !cmd.Type.Known() {
		log.Warn("unknown command rejected")
		return reply(transport.Invalid())
	}
	if mode := d.Mode(); !allowed(mode, cmd.Type) {
		log.Warn("command not allowed in device mode", "mode", mode.String())
		return reply(transport.Invalid())
	}
	if d.session.Armed() && !alwaysAllowed[cmd.Type] {
		log.Warn("command rejected while session is armed", "session", d.session.ID, "running", d.session.Kind().String())
		return reply(transport.Response{Kind: transport.KindBusy})
	}

	res, err := d.route(cmd)
	if err != nil {
		log.Warn("command rejected", "error", err)
		if !d.session.Armed() {
			d.session.Teardown()
		}
		return res
	}
	if res.Started != nil {
		log.Info("workflow armed", "session", d.session.ID, "workflow", res.Started.Kind().String())
	}
	return res
}

func (d *Dispatcher) route(cmd command.Command) (Result, error) {
	switch cmd.Type {
	case command.TypeDeviceInfo:
		if err := command.DecodeEmpty(cmd.Type, cmd.Payload); err != nil {
			return reply(transport.Invalid()), err
		}
		return reply(transport.Response{Kind: transport.KindDeviceInfo, Payload: d.identity.Info().Encode()}), nil

	case command.TypeListCoins:
		if err := command.DecodeEmpty(cmd.Type, cmd.Payload); err != nil {
			return reply(transport.Invalid()), err
		}
		return reply(transport.Response{Kind: transport.KindCoinList, Payload: coinList()}), nil

	case command.TypeProvision:
		req, err := command.DecodeProvision(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		pub, err := d.identity.Provision(req.Serial)
		if err != nil {
			return reply(transport.Response{Kind: transport.KindDeviceError}), err
		}
		return reply(transport.Response{Kind: transport.KindProvisioned, Payload: pub}), nil

	case command.TypeDeviceAuth:
		return d.authenticate(cmd.Payload)

	case command.TypeAddCoin:
		req, err := command.DecodeAddCoin(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		if res, err := d.selectWallet(req.WalletID); err != nil {
			return res, err
		}
		prompt := addCoinPrompt(req, d.session.Wallet.Name)
		return d.begin(controller.NewAddCoin(req), flow.SubFlowDefault, prompt)

	case command.TypeSendTxn:
		req, err := command.DecodeSend(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		if res, err := d.selectWallet(req.WalletID); err != nil {
			return res, err
		}
		if err := command.ValidateSend(req); err != nil {
			return reply(transport.Response{Kind: transport.KindTxnRejected, Code: transport.TxnReasonMetadata}), err
		}
		prompt, sub := sendPrompt(req, d.session.Wallet.Name)
		return d.begin(controller.NewSend(req), sub, prompt)

	case command.TypeRecvTxn:
		req, err := command.DecodeReceive(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		if res, err := d.selectWallet(req.WalletID); err != nil {
			return res, err
		}
		prompt, sub := receivePrompt(req, d.session.Wallet.Name)
		return d.begin(controller.NewReceive(req), sub, prompt)

	case command.TypeSwapTxn:
		req, err := command.DecodeSwap(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		if res, err := d.selectWallet(req.WalletID); err != nil {
			return res, err
		}
		if err := command.ValidateSwap(req); err != nil {
			return reply(transport.Response{Kind: transport.KindTxnRejected, Code: transport.TxnReasonMetadata}), err
		}
		return d.begin(controller.NewSwap(req), flow.SubFlowDefault, swapPrompt(req, d.session.Wallet.Name))

	case command.TypeExportWallet:
		if err := command.DecodeEmpty(cmd.Type, cmd.Payload); err != nil {
			return reply(transport.Invalid()), err
		}
		return d.begin(&controller.ExportWallet{Table: d.wallets}, flow.SubFlowDefault, exportPrompt)

	case command.TypeFirmwareUpgrade:
		v, err := command.DecodeFirmware(cmd.Payload)
		if err != nil {
			return reply(transport.Invalid()), err
		}
		if current := d.identity.Info().Firmware; !v.Newer(current) {
			return reply(transport.Invalid()), &command.RuleError{Rule: fmt.Sprintf("firmware %s is not newer than %s", v, current)}
		}
		return d.begin(&controller.FirmwareUpgrade{Version: v}, flow.SubFlowDefault, firmwarePrompt(v))

	case command.TypeAppLog:
		if err := command.DecodeEmpty(cmd.Type, cmd.Payload); err != nil {
			return reply(transport.Invalid()), err
		}
		return d.begin(&controller.AppLog{}, flow.SubFlowDefault, logPrompt)

	default:
		return reply(transport.Invalid()), errors.New("command is only valid inside a running workflow")
	}
}

// selectWallet binds the wallet to the session or returns its rejection.
func (d *Dispatcher) selectWallet(id wallet.ID) (Result, error) {
	err := wallet.Select(d.wallets, id, d.session.Wallet)
	if err == nil {
		return Result{}, nil
	}
	var rejected *wallet.RejectError
	if errors.As(err, &rejected) && rejected.Locked {
		return reply(transport.Response{Kind: transport.KindWalletLocked}), err
	}
	if errors.As(err, &rejected) {
		return reply(transport.Response{Kind: transport.KindWalletRejected, Code: uint8(rejected.Reason)}), err
	}
	return reply(transport.Response{Kind: transport.KindDeviceError}), err
}

// begin points the flow at the workflow entry and arms the session.
func (d *Dispatcher) begin(c controller.Controller, sub flow.SubFlow, prompt string) (Result, error) {
	f := d.session.Flow
	if err := f.Advance(flow.LevelOne, uint8(c.Kind())); err != nil {
		return reply(transport.Response{Kind: transport.KindDeviceError}), err
	}
	if err := f.Advance(flow.LevelTwo, uint8(sub)); err != nil {
		return reply(transport.Response{Kind: transport.KindDeviceError}), err
	}
	f.SetPrompt(prompt)
	d.session.Begin(c, true)
	return Result{Started: c}, nil
}

// authenticate runs the ordered device authentication stages.
func (d *Dispatcher) authenticate(payload []byte) (Result, error) {
	req, err := command.DecodeAuth(payload)
	if err != nil {
		d.session.AuthStage = 0
		return reply(transport.Invalid()), err
	}

	info := d.identity.Info()
	switch req.Stage {
	case command.AuthSignSerial:
		digest := sha256.Sum256(info.Serial[:])
		sig, err := d.identity.SignAttestation(digest[:])
		if err != nil {
			d.session.AuthStage = 0
			return reply(transport.Response{Kind: transport.KindDeviceError}), err
		}
		d.session.AuthStage = command.AuthSignSerial
		out := append(info.Serial[:], sig...)
		return reply(transport.Response{Kind: transport.KindAuth, Code: uint8(req.Stage), Payload: out}), nil

	case command.AuthSignChallenge:
		if d.session.AuthStage != command.AuthSignSerial {
			return d.authOutOfOrder(req.Stage)
		}
		h := sha256.New()
		h.Write(req.Challenge[:])
		h.Write(info.Serial[:])
		sig, err := d.identity.SignAttestation(h.Sum(nil))
		if err != nil {
			d.session.AuthStage = 0
			return reply(transport.Response{Kind: transport.KindDeviceError}), err
		}
		d.session.AuthStage = command.AuthSignChallenge
		return reply(transport.Response{Kind: transport.KindAuth, Code: uint8(req.Stage), Payload: sig}), nil

	case command.AuthSuccess:
		if d.session.AuthStage != command.AuthSignChallenge {
			return d.authOutOfOrder(req.Stage)
		}
		d.session.AuthStage = 0
		if err := d.identity.SetAuthenticated(true); err != nil {
			return reply(transport.Response{Kind: transport.KindDeviceError}), err
		}
		d.log.Info("device authenticated")
		return reply(transport.Response{Kind: transport.KindAuth, Code: uint8(req.Stage)}), nil

	default:
		if d.session.AuthStage == 0 {
			return d.authOutOfOrder(req.Stage)
		}
		d.session.AuthStage = 0
		if err := d.identity.SetAuthenticated(false); err != nil {
			return reply(transport.Response{Kind: transport.KindDeviceError}), err
		}
		d.log.Warn("device authentication failed")
		return reply(transport.Response{Kind: transport.KindAuth, Code: uint8(req.Stage)}), nil
	}
}

func (d *Dispatcher) authOutOfOrder(stage command.AuthStage) (Result, error) {
	prev := d.session.AuthStage
	d.session.AuthStage = 0
	return reply(transport.Invalid()), &command.RuleError{Rule: fmt.Sprintf("authentication stage %d after stage %d", stage, prev)}
}

// coinList encodes count(1) then each coin index as a big-endian uint32.
func coinList() []byte {
	coins := coin.All()
	out := make([]byte, 1, 1+4*len(coins))
	out[0] = byte(len(coins))
	for _, c := range coins {
		out = binary.BigEndian.AppendUint32(out, c.Index)
	}
	return out
}

func reply(r transport.Response) Result {
	return Result{Responses: []transport.Response{r}}
}
