package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flash"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/session"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/atomic"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	t      *testing.T
	eng    *Engine
	queue  *transport.Queue
	input  *display.InputQueue
	screen *display.Recorder
	store  *flash.Store
	clock  *clock
	ring   *logger.Ring
	// main is PIN protected, plain has no credentials.
	main  wallet.ID
	plain wallet.ID
}

func newHarness(t *testing.T, provisioned bool) *harness {
	t.Helper()

	img := flash.NewImage(command.Version{Major: 1, Minor: 4})
	main, err := img.AddWallet(flash.WalletSpec{Name: "Main", PIN: "1234"}, nil)
	if err != nil {
		t.Fatalf("add wallet: %v", err)
	}
	plain, err := img.AddWallet(flash.WalletSpec{Name: "Plain"}, nil)
	if err != nil {
		t.Fatalf("add wallet: %v", err)
	}
	if provisioned {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		img.Device.Serial = hexutil.Encode(bytes.Repeat([]byte{0xab}, command.SerialSize))
		img.Device.AttestationKey = hexutil.Encode(crypto.FromECDSA(key))
		img.Device.Authenticated = true
	}

	store, err := flash.NewStore(img, "", flash.Options{MaxPINAttempts: 3})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	quiet := logger.New(logger.Config{Output: io.Discard, Level: logger.LevelDebug})
	ring := logger.NewRing(4096)
	guard := atomic.NewBool(false)
	h := &harness{
		t:      t,
		queue:  transport.NewQueue(0, guard),
		input:  &display.InputQueue{},
		screen: &display.Recorder{},
		store:  store,
		clock:  &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		ring:   ring,
		main:   main,
		plain:  plain,
	}
	h.eng = New(Deps{
		Session:  device.NewSession(guard, nil),
		Link:     h.queue,
		Input:    h.input,
		Display:  h.screen,
		Wallets:  store,
		Seeds:    card.NewReconstructor(store, store.Deck()),
		Identity: store,
		Logs:     ring,
	}, Options{
		ConfirmTimeout: 60 * time.Second,
		FrameTimeout:   30 * time.Second,
		ChunkSize:      8,
		Now:            h.clock.Now,
		Logger:         quiet,
	})
	return h
}

func (h *harness) push(t command.Type, payload []byte) {
	h.t.Helper()
	if err := h.queue.Push(command.Command{Type: t, Payload: payload}); err != nil {
		h.t.Fatalf("push %s: %v", t, err)
	}
}

func (h *harness) tick() []transport.Response {
	h.eng.Tick(context.Background())
	return h.queue.Drain()
}

func (h *harness) accept() []transport.Response {
	h.input.Push(display.Input{Kind: display.InputAccept})
	return h.tick()
}

func (h *harness) text(s string) []transport.Response {
	h.input.Push(display.Input{Kind: display.InputText, Text: []byte(s)})
	return h.tick()
}

func (h *harness) lastScreen() display.Screen {
	h.t.Helper()
	s, ok := h.screen.Last()
	if !ok {
		h.t.Fatalf("no screen rendered")
	}
	return s
}

func (h *harness) requirePristine() {
	h.t.Helper()
	s := h.eng.Session()
	if !s.Pristine() {
		h.t.Fatalf("session not pristine: phase=%s level=%d", s.Phase, s.Counter.Level)
	}
	if h.eng.supervisor.Armed() {
		h.t.Fatalf("supervisor still armed")
	}
}

func expectKinds(t *testing.T, got []transport.Response, want ...transport.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got responses %v, want kinds %v", got, want)
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Fatalf("response %d = %s, want %s", i, got[i].Kind, want[i])
		}
	}
}

func mustPath(t *testing.T, s string, chainID uint64) command.PathSpec {
	t.Helper()
	p, err := command.ParsePath(s, chainID)
	if err != nil {
		t.Fatalf("parse path: %v", err)
	}
	return p
}

func TestDeviceInfoBeforeAuthentication(t *testing.T) {
	h := newHarness(t, false)
	h.push(command.TypeDeviceInfo, nil)

	got := h.tick()
	expectKinds(t, got, transport.KindDeviceInfo)
	if len(got[0].Payload) != device.InfoSize {
		t.Fatalf("device info is %d bytes, want %d", len(got[0].Payload), device.InfoSize)
	}
	if got[0].Payload[0] != 0 {
		t.Fatalf("expected unauthenticated status byte")
	}
	h.requirePristine()
}

func TestProvisioningModeFiltersCommands(t *testing.T) {
	h := newHarness(t, false)
	h.push(command.TypeListCoins, nil)
	expectKinds(t, h.tick(), transport.KindInvalidCommand)

	serial := bytes.Repeat([]byte{0x01}, command.SerialSize)
	h.push(command.TypeProvision, serial)
	got := h.tick()
	expectKinds(t, got, transport.KindProvisioned)
	if len(got[0].Payload) != 33 {
		t.Fatalf("expected compressed attestation key")
	}
	if h.eng.Mode() != device.ModeNormal {
		t.Fatalf("expected normal mode after provisioning, got %s", h.eng.Mode())
	}

	h.push(command.TypeProvision, serial)
	expectKinds(t, h.tick(), transport.KindInvalidCommand)
}

func TestAddCoinUnknownWallet(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(wallet.ID{0xee}, mustPath(t, "m/44'/60'/0'", 1)))

	got := h.tick()
	expectKinds(t, got, transport.KindWalletRejected)
	if got[0].Code != uint8(wallet.ReasonNotFound) {
		t.Fatalf("reason = %d, want %d", got[0].Code, wallet.ReasonNotFound)
	}
	s := h.eng.Session()
	if s.Counter.Level != flow.LevelOne || !s.Flow.AtDefaults() {
		t.Fatalf("flow mutated by rejected command")
	}
	h.requirePristine()
}

func TestMalformedCommandRejected(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, []byte{1, 2, 3})
	expectKinds(t, h.tick(), transport.KindInvalidCommand)

	h.push(command.Type(0x7f), nil)
	expectKinds(t, h.tick(), transport.KindInvalidCommand)

	h.push(command.TypeFetchNext, nil)
	expectKinds(t, h.tick(), transport.KindInvalidCommand)
	h.requirePristine()
}

func TestSendNativeFlow(t *testing.T) {
	h := newHarness(t, true)
	path := mustPath(t, "m/44'/60'/0'/0/0", 1)
	h.push(command.TypeSendTxn, command.EncodeSend(h.main, path, command.TxnNative, ""))

	if got := h.tick(); len(got) != 0 {
		t.Fatalf("unexpected responses %v", got)
	}
	s := h.eng.Session()
	if s.Phase != flow.PhaseAwaitingConfirmation || !s.Flow.ShowDesktopStartScreen {
		t.Fatalf("expected awaiting confirmation, got %s", s.Phase)
	}
	prompt := s.Flow.ConfirmationPrompt
	if !strings.Contains(prompt, "Main") || !strings.Contains(prompt, "Account #1") {
		t.Fatalf("prompt %q lacks wallet or account", prompt)
	}
	if s.Flow.Level(flow.LevelTwo) != uint8(flow.SubFlowNative) {
		t.Fatalf("expected native sub-flow")
	}

	expectKinds(t, h.accept(), transport.KindConfirmed)
	if s.Counter.Level != flow.LevelThree || s.Phase != flow.PhaseActive {
		t.Fatalf("expected level three active, got %d %s", s.Counter.Level, s.Phase)
	}
	if await, _ := h.eng.supervisor.Awaiting(); await != session.AwaitHost {
		t.Fatalf("expected host wait, got %s", await)
	}

	h.push(command.TypeUnsignedTxn, command.EncodeUnsigned(1_500_000_000_000_000_000, "0xabc", []byte{1, 2}))
	if got := h.tick(); len(got) != 0 {
		t.Fatalf("unexpected responses %v", got)
	}
	if scr := h.lastScreen(); scr.Title != "Send 1.5 ETH" || scr.Body != "to 0xabc" {
		t.Fatalf("unexpected confirm screen %+v", scr)
	}

	h.accept()
	if scr := h.lastScreen(); scr.Kind != display.ScreenText || !scr.Masked {
		t.Fatalf("expected masked PIN screen, got %+v", scr)
	}
	if s.Flow.Depth() != flow.LevelFour {
		t.Fatalf("expected depth four during unlock, got %d", s.Flow.Depth())
	}

	if got := h.text("1234"); len(got) != 0 {
		t.Fatalf("unexpected responses %v", got)
	}
	if !s.Counter.NextEvent {
		t.Fatalf("expected a scheduled signing step")
	}

	got := h.tick()
	expectKinds(t, got, transport.KindSignature)
	if len(got[0].Payload) != 65 {
		t.Fatalf("signature is %d bytes", len(got[0].Payload))
	}
	h.requirePristine()
}

func TestSendTokenRejectedByRules(t *testing.T) {
	h := newHarness(t, true)
	path := mustPath(t, "m/44'/60'/0'/0/0", 1)
	h.push(command.TypeSendTxn, command.EncodeSend(h.main, path, command.TxnToken, "NOPE"))

	got := h.tick()
	expectKinds(t, got, transport.KindTxnRejected)
	if got[0].Code != transport.TxnReasonMetadata {
		t.Fatalf("reason = %d", got[0].Code)
	}
	h.requirePristine()
}

func TestZeroAmountRejected(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeSendTxn, command.EncodeSend(h.plain, mustPath(t, "m/44'/60'/0'/0/0", 1), command.TxnNative, ""))
	h.tick()
	h.accept()
	h.push(command.TypeUnsignedTxn, command.EncodeUnsigned(0, "0xabc", nil))
	expectKinds(t, h.tick(), transport.KindTxnRejected)
	if scr := h.lastScreen(); scr.Kind != display.ScreenError {
		t.Fatalf("expected error screen, got %+v", scr)
	}
	h.requirePristine()
}

func TestConfirmationTimeout(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/60'/0'", 1)))
	h.tick()

	h.clock.now = h.clock.now.Add(59 * time.Second)
	if got := h.tick(); len(got) != 0 {
		t.Fatalf("timed out early: %v", got)
	}

	h.clock.now = h.clock.now.Add(time.Second)
	expectKinds(t, h.tick(), transport.KindTimeout)
	if scr := h.lastScreen(); scr.Kind != display.ScreenError || scr.Body != "No response" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	if h.eng.Session().Counter.Level != flow.LevelOne {
		t.Fatalf("counter not reset")
	}
	h.requirePristine()
}

func TestAnswerBeatsTimeoutInSameTick(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeExportWallet, nil)
	h.tick()

	h.clock.now = h.clock.now.Add(2 * time.Minute)
	got := h.accept()
	expectKinds(t, got, transport.KindConfirmed, transport.KindWalletList)
	if got[1].Payload[0] != 2 {
		t.Fatalf("expected two exported wallets, got %d", got[1].Payload[0])
	}
	h.requirePristine()
}

func TestSingleSessionLock(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/60'/0'", 1)))
	h.tick()
	id := h.eng.Session().ID

	h.push(command.TypeListCoins, nil)
	got := h.tick()
	expectKinds(t, got, transport.KindCoinList)

	h.push(command.TypeDeviceInfo, nil)
	expectKinds(t, h.tick(), transport.KindDeviceInfo)

	h.push(command.TypeRecvTxn, command.EncodeReceive(h.plain, mustPath(t, "m/44'/60'/0'/0/0", 1)))
	expectKinds(t, h.tick(), transport.KindBusy)

	if h.eng.Session().ID != id || h.eng.Session().Kind() != flow.KindAddCoin {
		t.Fatalf("running session replaced")
	}
}

func TestLocalRejectTearsDown(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAppLog, nil)
	h.tick()

	h.input.Push(display.Input{Kind: display.InputReject})
	expectKinds(t, h.tick(), transport.KindUserRejected)
	if scr := h.lastScreen(); scr.Body != "Operation cancelled" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}

func TestHostSuccessDoesNotConfirm(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeExportWallet, nil)
	h.tick()

	h.push(command.TypeStatus, []byte{byte(command.StatusSuccess)})
	if got := h.tick(); len(got) != 0 {
		t.Fatalf("host success confirmed a local prompt: %v", got)
	}
	if h.eng.Session().Phase != flow.PhaseAwaitingConfirmation {
		t.Fatalf("phase changed to %s", h.eng.Session().Phase)
	}
}

func TestHostAbortDuringFrameWait(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeSendTxn, command.EncodeSend(h.main, mustPath(t, "m/44'/60'/0'/0/0", 1), command.TxnNative, ""))
	h.tick()
	h.accept()

	h.push(command.TypeStatus, []byte{byte(command.StatusAbort)})
	if got := h.tick(); len(got) != 0 {
		t.Fatalf("unexpected responses %v", got)
	}
	if scr := h.lastScreen(); scr.Body != "Operation cancelled" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}

func TestHostReset(t *testing.T) {
	h := newHarness(t, true)
	if h.queue.HostReset() {
		t.Fatalf("reset accepted while idle")
	}

	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/60'/0'", 1)))
	h.tick()
	if !h.queue.HostReset() {
		t.Fatalf("reset refused while armed")
	}
	h.tick()
	h.requirePristine()
	if h.queue.HostReset() {
		t.Fatalf("reset accepted after teardown")
	}
}

func TestWrongPINLocksWallet(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/0'/0'", 0)))
	h.tick()
	h.accept()

	h.text("0000")
	if scr := h.lastScreen(); scr.Title != "Wrong PIN, try again" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.text("0000")
	expectKinds(t, h.text("0000"), transport.KindWalletLocked)
	h.requirePristine()

	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/0'/0'", 0)))
	expectKinds(t, h.tick(), transport.KindWalletLocked)
	h.requirePristine()
}

func TestAddCoinResult(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.plain, mustPath(t, "m/84'/0'/0'", 0)))
	h.tick()
	expectKinds(t, h.accept(), transport.KindConfirmed)

	got := h.tick()
	expectKinds(t, got, transport.KindAddCoinResult)
	if len(got[0].Payload) != 33+32 {
		t.Fatalf("add coin result is %d bytes", len(got[0].Payload))
	}
	if scr := h.lastScreen(); scr.Body != "Bitcoin added to Plain" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}

func TestReceiveShortPath(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeRecvTxn, command.EncodeReceive(h.plain, mustPath(t, "m/44'/501'/0'", 0)))
	h.tick()
	if sub := h.eng.Session().Flow.Level(flow.LevelTwo); sub != uint8(flow.SubFlowShortPath) {
		t.Fatalf("sub-flow = %d, want short path", sub)
	}

	h.accept()
	h.tick()
	scr := h.lastScreen()
	if scr.Kind != display.ScreenConfirm || len(scr.Body) != 64 {
		t.Fatalf("unexpected verify screen %+v", scr)
	}

	got := h.accept()
	expectKinds(t, got, transport.KindAddress)
	if string(got[0].Payload) != scr.Body {
		t.Fatalf("sent address differs from verified one")
	}
	h.requirePristine()
}

func TestSwapFlow(t *testing.T) {
	h := newHarness(t, true)
	from := mustPath(t, "m/44'/60'/0'/0/0", 1)
	to := mustPath(t, "m/44'/60'/0'/0/0", 137)
	h.push(command.TypeSwapTxn, command.EncodeSwap(h.plain, from, to))
	h.tick()
	if p := h.eng.Session().Flow.ConfirmationPrompt; p != "Swap Ethereum to Polygon in Plain" {
		t.Fatalf("unexpected prompt %q", p)
	}
	h.accept()
	h.push(command.TypeUnsignedTxn, command.EncodeUnsigned(1_000_000_000_000_000_000, "router", nil))
	h.tick()
	h.accept()

	got := h.tick()
	expectKinds(t, got, transport.KindAddress, transport.KindSignature)
	if !strings.HasPrefix(string(got[0].Payload), "0x") {
		t.Fatalf("expected EVM address, got %q", got[0].Payload)
	}
	h.requirePristine()
}

func TestSwapIdenticalAssetsRejected(t *testing.T) {
	h := newHarness(t, true)
	p := mustPath(t, "m/44'/60'/0'/0/0", 1)
	h.push(command.TypeSwapTxn, command.EncodeSwap(h.plain, p, p))
	expectKinds(t, h.tick(), transport.KindTxnRejected)
	h.requirePristine()
}

func TestFirmwareUpgrade(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeFirmwareUpgrade, command.EncodeFirmware(command.Version{Major: 1, Minor: 3}))
	expectKinds(t, h.tick(), transport.KindInvalidCommand)

	next := command.Version{Major: 1, Minor: 5, Patch: 2}
	h.push(command.TypeFirmwareUpgrade, command.EncodeFirmware(next))
	h.tick()
	expectKinds(t, h.accept(), transport.KindConfirmed, transport.KindFirmwareAck)
	if h.store.Image().Device.UpgradePending != "1.5.2" {
		t.Fatalf("upgrade not recorded")
	}

	h.push(command.TypeStatus, []byte{byte(command.StatusSuccess)})
	h.tick()
	if scr := h.lastScreen(); scr.Title != "Firmware ready" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}

func TestFrameTimeout(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeFirmwareUpgrade, command.EncodeFirmware(command.Version{Major: 2}))
	h.tick()
	h.accept()

	h.clock.now = h.clock.now.Add(31 * time.Second)
	expectKinds(t, h.tick(), transport.KindTimeout)
	h.requirePristine()
}

func TestAppLogChunks(t *testing.T) {
	h := newHarness(t, true)
	if _, err := h.ring.Write([]byte("0123456789abcdef01")); err != nil {
		t.Fatalf("write ring: %v", err)
	}
	snapshot := h.ring.Snapshot()

	h.push(command.TypeAppLog, nil)
	h.tick()

	var collected []byte
	got := h.accept()
	expectKinds(t, got, transport.KindConfirmed, transport.KindLogChunk)
	collected = append(collected, got[1].Payload...)

	for range 10 {
		h.push(command.TypeFetchNext, nil)
		got = h.tick()
		if len(got) == 1 && got[0].Kind == transport.KindLogEnd {
			break
		}
		expectKinds(t, got, transport.KindLogChunk)
		if len(got[0].Payload) > 8 {
			t.Fatalf("chunk of %d bytes exceeds chunk size", len(got[0].Payload))
		}
		collected = append(collected, got[0].Payload...)
	}

	if !bytes.Equal(collected, snapshot) {
		t.Fatalf("collected %q, want %q", collected, snapshot)
	}
	h.requirePristine()
}

func TestDeviceAuthentication(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.SetAuthenticated(false); err != nil {
		t.Fatal(err)
	}
	pub, err := h.store.AttestationPublicKey()
	if err != nil {
		t.Fatal(err)
	}

	h.push(command.TypeDeviceAuth, command.EncodeAuth(command.AuthSuccess, nil))
	expectKinds(t, h.tick(), transport.KindInvalidCommand)

	h.push(command.TypeDeviceAuth, command.EncodeAuth(command.AuthSignSerial, nil))
	got := h.tick()
	expectKinds(t, got, transport.KindAuth)
	serial, sig := got[0].Payload[:command.SerialSize], got[0].Payload[command.SerialSize:]
	digest := sha256.Sum256(serial)
	recovered, err := crypto.SigToPub(digest[:], sig)
	if err != nil || !bytes.Equal(crypto.CompressPubkey(recovered), pub) {
		t.Fatalf("serial signature does not verify: %v", err)
	}

	challenge := bytes.Repeat([]byte{0x42}, command.ChallengeSize)
	h.push(command.TypeDeviceAuth, command.EncodeAuth(command.AuthSignChallenge, challenge))
	expectKinds(t, h.tick(), transport.KindAuth)

	h.push(command.TypeDeviceAuth, command.EncodeAuth(command.AuthSuccess, nil))
	got = h.tick()
	expectKinds(t, got, transport.KindAuth)
	if got[0].Code != uint8(command.AuthSuccess) || !h.store.Info().Authenticated {
		t.Fatalf("device not authenticated")
	}
}

func TestStaleInputDropped(t *testing.T) {
	h := newHarness(t, true)
	h.input.Push(display.Input{Kind: display.InputAccept})
	h.tick()

	h.push(command.TypeExportWallet, nil)
	h.tick()
	if h.eng.Session().Phase != flow.PhaseAwaitingConfirmation {
		t.Fatalf("stale accept confirmed a new session")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeExportWallet, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.eng.Run(ctx, time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	h.requirePristine()
}

// flagWatch records the cancellation flag each time an error screen renders.
type flagWatch struct {
	display.Display
	session *device.Session
	seen    []bool
}

func (w *flagWatch) Render(s display.Screen) {
	if s.Kind == display.ScreenError {
		w.seen = append(w.seen, w.session.Counter.PreviousEvent)
	}
	w.Display.Render(s)
}

func (h *harness) watchFlags() *flagWatch {
	w := &flagWatch{Display: h.eng.screen, session: h.eng.session}
	h.eng.screen = w
	return w
}

func TestCancellationRaisesPreviousEvent(t *testing.T) {
	tests := []struct {
		name   string
		start  func(h *harness)
		cancel func(h *harness)
	}{
		{
			name:  "local reject",
			start: func(h *harness) { h.push(command.TypeAppLog, nil); h.tick() },
			cancel: func(h *harness) {
				h.input.Push(display.Input{Kind: display.InputReject})
				h.tick()
			},
		},
		{
			name: "confirmation timeout",
			start: func(h *harness) {
				h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(h.t, "m/44'/60'/0'", 1)))
				h.tick()
			},
			cancel: func(h *harness) {
				h.clock.now = h.clock.now.Add(time.Minute)
				h.tick()
			},
		},
		{
			name: "host abort",
			start: func(h *harness) {
				h.push(command.TypeSendTxn, command.EncodeSend(h.main, mustPath(h.t, "m/44'/60'/0'/0/0", 1), command.TxnNative, ""))
				h.tick()
				h.accept()
			},
			cancel: func(h *harness) {
				h.push(command.TypeStatus, []byte{byte(command.StatusAbort)})
				h.tick()
			},
		},
		{
			name: "host reset",
			start: func(h *harness) {
				h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(h.t, "m/44'/60'/0'", 1)))
				h.tick()
			},
			cancel: func(h *harness) {
				if !h.queue.HostReset() {
					h.t.Fatalf("reset refused")
				}
				h.tick()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			w := h.watchFlags()
			tt.start(h)
			if h.eng.Session().Counter.PreviousEvent {
				t.Fatalf("flag raised before cancellation")
			}
			tt.cancel(h)
			if len(w.seen) != 1 || !w.seen[0] {
				t.Fatalf("flag during error screen = %v, want [true]", w.seen)
			}
			if h.eng.Session().Counter.PreviousEvent {
				t.Fatalf("teardown left the flag raised")
			}
			h.requirePristine()
		})
	}
}

func TestFailureDoesNotRaisePreviousEvent(t *testing.T) {
	h := newHarness(t, true)
	w := h.watchFlags()
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/0'/0'", 0)))
	h.tick()
	h.accept()

	h.text("0000")
	h.text("0000")
	h.text("0000")
	if len(w.seen) != 1 || w.seen[0] {
		t.Fatalf("flag during lock screen = %v, want [false]", w.seen)
	}
	h.requirePristine()
}

func TestTextEntryWipedAfterStep(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/0'/0'", 0)))
	h.tick()
	h.accept()

	pin := []byte("0000")
	h.input.Push(display.Input{Kind: display.InputText, Text: pin})
	h.tick()
	if !bytes.Equal(pin, make([]byte, len(pin))) {
		t.Fatalf("entered text not wiped: %q", pin)
	}
	if got := h.eng.Session().Flow.Input.Text(); len(got) != 0 {
		t.Fatalf("flow input still holds %d bytes", len(got))
	}
	if h.eng.Session().Phase != flow.PhaseActive {
		t.Fatalf("wrong PIN ended the session: %s", h.eng.Session().Phase)
	}
}

func TestOversizedTextAborts(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeAddCoin, command.EncodeAddCoin(h.main, mustPath(t, "m/44'/0'/0'", 0)))
	h.tick()
	h.accept()

	long := bytes.Repeat([]byte{'1'}, flow.InputCapacity+1)
	h.input.Push(display.Input{Kind: display.InputText, Text: long})
	if got := h.tick(); len(got) != 0 {
		t.Fatalf("unexpected responses %v", got)
	}
	if !bytes.Equal(long, make([]byte, len(long))) {
		t.Fatalf("oversized text not wiped")
	}
	if scr := h.lastScreen(); scr.Body != "Operation failed" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}

func TestConfirmationGuardedByExpectedChoice(t *testing.T) {
	h := newHarness(t, true)
	h.push(command.TypeExportWallet, nil)
	h.tick()
	in := &h.eng.Session().Flow.Input
	if in.ExpectedChoice != uint8(flow.KindExportWallet) {
		t.Fatalf("expected choice = %d, want export wallet", in.ExpectedChoice)
	}

	expectKinds(t, h.accept(), transport.KindConfirmed, transport.KindWalletList)
	h.requirePristine()

	h.push(command.TypeAppLog, nil)
	h.tick()
	in.ExpectedChoice = uint8(flow.KindSwapTxn)
	if got := h.accept(); len(got) != 0 {
		t.Fatalf("mismatched confirmation answered: %v", got)
	}
	if scr := h.lastScreen(); scr.Body != "Operation failed" {
		t.Fatalf("unexpected screen %+v", scr)
	}
	h.requirePristine()
}
