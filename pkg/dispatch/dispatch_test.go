package dispatch

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
)

type fakeIdentity struct {
	info   device.Info
	signed [][]byte
}

func (f *fakeIdentity) Info() device.Info { return f.info }

func (f *fakeIdentity) Provision(serial [command.SerialSize]byte) ([]byte, error) {
	f.info.Serial = serial
	return bytes.Repeat([]byte{0x02}, 33), nil
}

func (f *fakeIdentity) SignAttestation(digest []byte) ([]byte, error) {
	f.signed = append(f.signed, append([]byte(nil), digest...))
	return bytes.Repeat([]byte{0x07}, 65), nil
}

func (f *fakeIdentity) SetAuthenticated(ok bool) error {
	f.info.Authenticated = ok
	return nil
}

func (f *fakeIdentity) MarkUpgradePending(command.Version) error { return nil }

type table [wallet.MaxWallets]wallet.Record

func (t *table) Slots() [wallet.MaxWallets]wallet.Record { return *t }

var (
	mainID   = wallet.ID{0x01}
	lockedID = wallet.ID{0x02}
	draftID  = wallet.ID{0x03}
)

func newDispatcher(t *testing.T, provisioned, authenticated, requireAuth bool) (*Dispatcher, *device.Session, *fakeIdentity) {
	t.Helper()
	id := &fakeIdentity{info: device.Info{Authenticated: authenticated, Firmware: command.Version{Major: 1, Minor: 2}}}
	if provisioned {
		id.info.Serial[0] = 0xaa
	}
	wallets := &table{
		{ID: mainID, Name: "Main", State: wallet.StateValid},
		{ID: lockedID, Name: "Old", State: wallet.StateLocked},
		{ID: draftID, Name: "Draft", State: wallet.StateUnverified},
	}
	s := device.NewSession(nil, nil)
	d := New(s, wallets, id, Options{
		RequireAuth: requireAuth,
		Logger:      logger.New(logger.Config{Output: io.Discard}),
	})
	return d, s, id
}

func path(t *testing.T, s string, chainID uint64) command.PathSpec {
	t.Helper()
	p, err := command.ParsePath(s, chainID)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func single(t *testing.T, res Result) transport.Response {
	t.Helper()
	if len(res.Responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(res.Responses))
	}
	return res.Responses[0]
}

func TestModeFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		provisioned   bool
		authenticated bool
		cmd           command.Type
		allowed       bool
	}{
		{"provisioning device info", false, false, command.TypeDeviceInfo, true},
		{"provisioning provision", false, false, command.TypeProvision, true},
		{"provisioning list coins", false, false, command.TypeListCoins, false},
		{"provisioning export", false, false, command.TypeExportWallet, false},
		{"restricted auth", true, false, command.TypeDeviceAuth, true},
		{"restricted firmware", true, false, command.TypeFirmwareUpgrade, true},
		{"restricted list coins", true, false, command.TypeListCoins, false},
		{"restricted add coin", true, false, command.TypeAddCoin, false},
		{"normal provision", true, true, command.TypeProvision, false},
		{"normal list coins", true, true, command.TypeListCoins, true},
		{"normal export", true, true, command.TypeExportWallet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, _ := newDispatcher(t, tt.provisioned, tt.authenticated, true)
			if got := allowed(d.Mode(), tt.cmd); got != tt.allowed {
				t.Fatalf("allowed(%s, %s) = %v, want %v", d.Mode(), tt.cmd, got, tt.allowed)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	d, s, _ := newDispatcher(t, true, true, false)
	r := single(t, d.Dispatch(command.Command{Type: 0x99}))
	if r.Kind != transport.KindInvalidCommand || !s.Pristine() {
		t.Fatalf("got %s, pristine=%v", r.Kind, s.Pristine())
	}
}

func TestListCoins(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher(t, true, true, false)
	r := single(t, d.Dispatch(command.Command{Type: command.TypeListCoins}))
	coins := coin.All()
	if r.Kind != transport.KindCoinList || int(r.Payload[0]) != len(coins) || len(r.Payload) != 1+4*len(coins) {
		t.Fatalf("unexpected coin list %x", r.Payload)
	}
	if got := binary.BigEndian.Uint32(r.Payload[1:]); got != coins[0].Index {
		t.Fatalf("first coin 0x%08x", got)
	}

	r = single(t, d.Dispatch(command.Command{Type: command.TypeListCoins, Payload: []byte{0}}))
	if r.Kind != transport.KindInvalidCommand {
		t.Fatalf("payload accepted on LIST_SUPPORTED_COINS")
	}
}

func TestWalletRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   wallet.ID
		kind transport.Kind
		code uint8
	}{
		{"unknown", wallet.ID{0xff}, transport.KindWalletRejected, uint8(wallet.ReasonNotFound)},
		{"unverified", draftID, transport.KindWalletRejected, uint8(wallet.ReasonNotVerified)},
		{"locked", lockedID, transport.KindWalletLocked, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, s, _ := newDispatcher(t, true, true, false)
			res := d.Dispatch(command.Command{Type: command.TypeAddCoin, Payload: command.EncodeAddCoin(tt.id, path(t, "m/44'/60'/0'", 1))})
			r := single(t, res)
			if res.Started != nil || r.Kind != tt.kind || r.Code != tt.code {
				t.Fatalf("got %s code %d", r.Kind, r.Code)
			}
			if !s.Pristine() {
				t.Fatalf("session not pristine after rejection")
			}
		})
	}
}

func TestNoWallets(t *testing.T) {
	t.Parallel()

	s := device.NewSession(nil, nil)
	d := New(s, &table{}, &fakeIdentity{info: device.Info{Serial: [32]byte{1}}}, Options{Logger: logger.New(logger.Config{Output: io.Discard})})
	r := single(t, d.Dispatch(command.Command{Type: command.TypeRecvTxn, Payload: command.EncodeReceive(mainID, path(t, "m/44'/60'/0'/0/0", 1))}))
	if r.Kind != transport.KindWalletRejected || r.Code != uint8(wallet.ReasonNoWallets) {
		t.Fatalf("got %s code %d", r.Kind, r.Code)
	}
}

func TestBeginSetsPromptAndSubFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cmd    command.Command
		kind   flow.Kind
		sub    flow.SubFlow
		prompt string
	}{
		{
			name:   "add coin",
			cmd:    command.Command{Type: command.TypeAddCoin, Payload: command.EncodeAddCoin(mainID, path(t, "m/44'/60'/1'", 56))},
			kind:   flow.KindAddCoin,
			sub:    flow.SubFlowDefault,
			prompt: "Add BNB Smart Chain to Main, Account #2",
		},
		{
			name:   "native send",
			cmd:    command.Command{Type: command.TypeSendTxn, Payload: command.EncodeSend(mainID, path(t, "m/84'/0'/0'/0/3", 0), command.TxnNative, "")},
			kind:   flow.KindSendTxn,
			sub:    flow.SubFlowNative,
			prompt: "Send Bitcoin from Main, Account #1",
		},
		{
			name:   "token send",
			cmd:    command.Command{Type: command.TypeSendTxn, Payload: command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0/0", 1), command.TxnToken, "usdt")},
			kind:   flow.KindSendTxn,
			sub:    flow.SubFlowToken,
			prompt: "Send USDT on Ethereum from Main, Account #1",
		},
		{
			name:   "account create",
			cmd:    command.Command{Type: command.TypeSendTxn, Payload: command.EncodeSend(mainID, path(t, "m/44'/397'/0'/0'/1'", 0), command.TxnAccountCreate, "")},
			kind:   flow.KindSendTxn,
			sub:    flow.SubFlowAccountCreate,
			prompt: "Create Near account from Main, Account #1",
		},
		{
			name:   "receive",
			cmd:    command.Command{Type: command.TypeRecvTxn, Payload: command.EncodeReceive(mainID, path(t, "m/44'/501'/0'/0'", 0))},
			kind:   flow.KindRecvTxn,
			sub:    flow.SubFlowDefault,
			prompt: "Receive Solana in Main, Account #1",
		},
		{
			name:   "receive short path",
			cmd:    command.Command{Type: command.TypeRecvTxn, Payload: command.EncodeReceive(mainID, path(t, "m/44'/501'/0'", 0))},
			kind:   flow.KindRecvTxn,
			sub:    flow.SubFlowShortPath,
			prompt: "Receive Solana in Main, Account #1",
		},
		{
			name:   "firmware",
			cmd:    command.Command{Type: command.TypeFirmwareUpgrade, Payload: command.EncodeFirmware(command.Version{Major: 1, Minor: 3})},
			kind:   flow.KindFirmwareUpgrade,
			sub:    flow.SubFlowDefault,
			prompt: "Update firmware to v1.3.0",
		},
		{
			name:   "export",
			cmd:    command.Command{Type: command.TypeExportWallet},
			kind:   flow.KindExportWallet,
			sub:    flow.SubFlowDefault,
			prompt: exportPrompt,
		},
		{
			name:   "logs",
			cmd:    command.Command{Type: command.TypeAppLog},
			kind:   flow.KindAppLog,
			sub:    flow.SubFlowDefault,
			prompt: logPrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, s, _ := newDispatcher(t, true, true, false)
			res := d.Dispatch(tt.cmd)
			if res.Started == nil {
				t.Fatalf("workflow not started: %v", res.Responses)
			}
			if len(res.Responses) != 0 {
				t.Fatalf("unexpected responses %v", res.Responses)
			}
			if s.Kind() != tt.kind || s.Flow.Level(flow.LevelOne) != uint8(tt.kind) {
				t.Fatalf("kind = %s", s.Kind())
			}
			if got := flow.SubFlow(s.Flow.Level(flow.LevelTwo)); got != tt.sub {
				t.Fatalf("sub-flow = %d, want %d", got, tt.sub)
			}
			if s.Flow.ConfirmationPrompt != tt.prompt {
				t.Fatalf("prompt = %q, want %q", s.Flow.ConfirmationPrompt, tt.prompt)
			}
			if s.Phase != flow.PhaseAwaitingConfirmation || s.Counter.Level != flow.LevelTwo || !s.ResetGuard().Load() {
				t.Fatalf("session not armed: phase=%s level=%d", s.Phase, s.Counter.Level)
			}
		})
	}
}

func TestBusyWhileArmed(t *testing.T) {
	t.Parallel()

	d, s, _ := newDispatcher(t, true, true, false)
	if res := d.Dispatch(command.Command{Type: command.TypeExportWallet}); res.Started == nil {
		t.Fatalf("export not started")
	}
	id := s.ID

	r := single(t, d.Dispatch(command.Command{Type: command.TypeAppLog}))
	if r.Kind != transport.KindBusy {
		t.Fatalf("got %s, want BUSY", r.Kind)
	}
	r = single(t, d.Dispatch(command.Command{Type: command.TypeAddCoin, Payload: []byte{1}}))
	if r.Kind != transport.KindBusy {
		t.Fatalf("malformed command while armed got %s, want BUSY", r.Kind)
	}
	r = single(t, d.Dispatch(command.Command{Type: command.TypeDeviceInfo}))
	if r.Kind != transport.KindDeviceInfo {
		t.Fatalf("device info refused while armed")
	}
	if s.ID != id || s.Kind() != flow.KindExportWallet {
		t.Fatalf("running session replaced")
	}
}

func TestSendRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    transport.Kind
	}{
		{"unknown token", command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0/0", 1), command.TxnToken, "XYZ"), transport.KindTxnRejected},
		{"native with token", command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0/0", 1), command.TxnNative, "USDT"), transport.KindTxnRejected},
		{"account create unsupported", command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0/0", 1), command.TxnAccountCreate, ""), transport.KindTxnRejected},
		{"unsupported chain", command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0/0", 5), command.TxnNative, ""), transport.KindInvalidCommand},
		{"bad hardening", command.EncodeSend(mainID, path(t, "m/44'/60'/0'/0'/0", 1), command.TxnNative, ""), transport.KindInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, s, _ := newDispatcher(t, true, true, false)
			r := single(t, d.Dispatch(command.Command{Type: command.TypeSendTxn, Payload: tt.payload}))
			if r.Kind != tt.want {
				t.Fatalf("got %s, want %s", r.Kind, tt.want)
			}
			if !s.Pristine() {
				t.Fatalf("session not pristine after rejection")
			}
		})
	}
}

func TestFirmwareDowngradeRejected(t *testing.T) {
	t.Parallel()

	d, s, _ := newDispatcher(t, true, true, false)
	for _, v := range []command.Version{{Major: 1, Minor: 2}, {Major: 1, Minor: 1, Patch: 9}} {
		r := single(t, d.Dispatch(command.Command{Type: command.TypeFirmwareUpgrade, Payload: command.EncodeFirmware(v)}))
		if r.Kind != transport.KindInvalidCommand {
			t.Fatalf("firmware %s accepted", v)
		}
	}
	if !s.Pristine() {
		t.Fatalf("session not pristine")
	}
}

func TestAuthenticationStages(t *testing.T) {
	t.Parallel()

	d, _, id := newDispatcher(t, true, false, true)
	auth := func(stage command.AuthStage, challenge []byte) transport.Response {
		t.Helper()
		return single(t, d.Dispatch(command.Command{Type: command.TypeDeviceAuth, Payload: command.EncodeAuth(stage, challenge)}))
	}

	if r := auth(command.AuthSignChallenge, []byte{1}); r.Kind != transport.KindInvalidCommand {
		t.Fatalf("challenge before serial accepted")
	}

	r := auth(command.AuthSignSerial, nil)
	if r.Kind != transport.KindAuth || r.Code != uint8(command.AuthSignSerial) || len(r.Payload) != command.SerialSize+65 {
		t.Fatalf("unexpected serial response %v", r)
	}
	if !bytes.Equal(r.Payload[:command.SerialSize], id.info.Serial[:]) {
		t.Fatalf("serial not echoed")
	}

	r = auth(command.AuthSignChallenge, []byte{0x42})
	if r.Kind != transport.KindAuth || len(r.Payload) != 65 {
		t.Fatalf("unexpected challenge response %v", r)
	}
	if len(id.signed) != 2 || bytes.Equal(id.signed[0], id.signed[1]) {
		t.Fatalf("serial and challenge digests should differ")
	}

	if d.Mode() != device.ModeRestricted {
		t.Fatalf("mode = %s before success", d.Mode())
	}
	if r = auth(command.AuthSuccess, nil); r.Kind != transport.KindAuth || !id.info.Authenticated {
		t.Fatalf("authentication not recorded")
	}
	if d.Mode() != device.ModeNormal {
		t.Fatalf("mode = %s after success", d.Mode())
	}

	if r = auth(command.AuthSuccess, nil); r.Kind != transport.KindInvalidCommand {
		t.Fatalf("repeated success accepted")
	}
}

func TestAuthenticationFailure(t *testing.T) {
	t.Parallel()

	d, _, id := newDispatcher(t, true, true, false)
	send := func(stage command.AuthStage) transport.Response {
		t.Helper()
		return single(t, d.Dispatch(command.Command{Type: command.TypeDeviceAuth, Payload: command.EncodeAuth(stage, nil)}))
	}

	if r := send(command.AuthFailure); r.Kind != transport.KindInvalidCommand {
		t.Fatalf("failure without exchange accepted")
	}
	send(command.AuthSignSerial)
	if r := send(command.AuthFailure); r.Kind != transport.KindAuth || id.info.Authenticated {
		t.Fatalf("failure not recorded")
	}
}

func TestAuthenticationResetByTeardown(t *testing.T) {
	t.Parallel()

	d, s, _ := newDispatcher(t, true, false, false)
	send := func(stage command.AuthStage, challenge []byte) transport.Response {
		t.Helper()
		return single(t, d.Dispatch(command.Command{Type: command.TypeDeviceAuth, Payload: command.EncodeAuth(stage, challenge)}))
	}

	if r := send(command.AuthSignSerial, nil); r.Kind != transport.KindAuth {
		t.Fatalf("unexpected serial response %v", r)
	}
	if s.AuthStage != command.AuthSignSerial {
		t.Fatalf("stage = %d, want serial", s.AuthStage)
	}

	// A rejected command tears the idle session down.
	if r := single(t, d.Dispatch(command.Command{Type: command.TypeAddCoin, Payload: []byte{1}})); r.Kind != transport.KindInvalidCommand {
		t.Fatalf("malformed add coin got %s", r.Kind)
	}
	if !s.Pristine() {
		t.Fatalf("session not pristine after rejection")
	}
	if r := send(command.AuthSignChallenge, []byte{0x42}); r.Kind != transport.KindInvalidCommand {
		t.Fatalf("challenge accepted after teardown")
	}
}

func TestFollowUpOutsideWorkflow(t *testing.T) {
	t.Parallel()

	d, s, _ := newDispatcher(t, true, true, false)
	for _, typ := range []command.Type{command.TypeUnsignedTxn, command.TypeFetchNext} {
		if !FollowUp(typ) {
			t.Fatalf("%s is a follow-up frame", typ)
		}
		r := single(t, d.Dispatch(command.Command{Type: typ}))
		if r.Kind != transport.KindInvalidCommand {
			t.Fatalf("%s outside workflow got %s", typ, r.Kind)
		}
	}
	if FollowUp(command.TypeSendTxn) {
		t.Fatalf("SEND_TXN_START is not a follow-up frame")
	}
	if !s.Pristine() {
		t.Fatalf("session not pristine")
	}
}
