package replay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/cli"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/config"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/engine"
	"github.com/andri/cardwallet/pkg/flash"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/atomic"
)

// DefaultStart is the replay clock's initial time.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Options tunes a replay.
type Options struct {
	// Output receives the transcript (default os.Stdout).
	Output io.Writer

	// LogOutput receives the device log (default discarded).
	LogOutput io.Writer

	ConfirmTimeout time.Duration
	FrameTimeout   time.Duration
	ChunkSize      int
	RingBytes      int
	MaxPINAttempts int
	Start          time.Time
}

// Result summarizes a replay.
type Result struct {
	Steps     int
	Responses []transport.Response
	Failures  []error
}

// ExpectationError reports a step whose responses differ from Expect.
type ExpectationError struct {
	Step int
	Want []string
	Got  []string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("step %d: expected [%s], got [%s]",
		e.Step, strings.Join(e.Want, " "), strings.Join(e.Got, " "))
}

// ErrExpectations is returned when at least one step did not match.
var ErrExpectations = errors.New("replay expectations failed")

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

// screenTap prints screen changes to the transcript.
type screenTap struct {
	tw   *cli.TranscriptWriter
	last display.Screen
	seen bool
}

func (s *screenTap) Render(scr display.Screen) {
	if s.seen && scr == s.last {
		return
	}
	s.last, s.seen = scr, true
	s.tw.OnScreen(scr)
}

type runner struct {
	script *Script
	opts   Options
	tw     *cli.TranscriptWriter
	clock  *clock
	queue  *transport.Queue
	input  *display.InputQueue
	store  *flash.Store
	eng    *engine.Engine
}

// Run executes every step of s. Steps whose responses differ from their
// expectations are collected in Result.Failures and reported as
// ErrExpectations after the last step.
func Run(ctx context.Context, s *Script, opts Options) (Result, error) {
	r, err := newRunner(s, opts)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		got, err := r.step(ctx, step)
		if err != nil {
			return res, fmt.Errorf("step %d: %w", i+1, err)
		}
		res.Steps++
		res.Responses = append(res.Responses, got...)

		if step.Expect == nil {
			continue
		}
		kinds := kindNames(got)
		if !slices.Equal(kinds, normalize(step.Expect)) {
			fail := &ExpectationError{Step: i + 1, Want: step.Expect, Got: kinds}
			r.tw.PrintError(fail.Error())
			res.Failures = append(res.Failures, fail)
		}
	}
	r.eng.Shutdown()

	if len(res.Failures) > 0 {
		return res, fmt.Errorf("%w: %w", ErrExpectations, errors.Join(res.Failures...))
	}
	r.tw.PrintSuccess(fmt.Sprintf("%d steps replayed", res.Steps))
	return res, nil
}

func newRunner(s *Script, opts Options) (*runner, error) {
	if opts.Start.IsZero() {
		opts.Start = DefaultStart
	}
	if opts.RingBytes <= 0 {
		opts.RingBytes = config.DefaultLogRingBytes
	}
	if opts.MaxPINAttempts <= 0 {
		opts.MaxPINAttempts = config.DefaultMaxPINAttempts
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.DefaultAppLogChunkBytes
	}
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = io.Discard
	}

	img, err := buildImage(s)
	if err != nil {
		return nil, err
	}
	store, err := flash.NewStore(img, "", flash.Options{MaxPINAttempts: opts.MaxPINAttempts})
	if err != nil {
		return nil, err
	}

	ring := logger.NewRing(opts.RingBytes)
	log := logger.New(logger.Config{
		Level:  logger.LevelDebug,
		Format: logger.FormatText,
		Output: logOut,
		Ring:   ring,
	}).With("replay", s.Name)

	tw := cli.NewTranscriptWriter(opts.Output)
	guard := atomic.NewBool(false)
	r := &runner{
		script: s,
		opts:   opts,
		tw:     tw,
		clock:  &clock{now: opts.Start},
		queue:  transport.NewQueue(0, guard),
		input:  &display.InputQueue{},
		store:  store,
	}
	r.eng = engine.New(engine.Deps{
		Session:  device.NewSession(guard, device.NewActivity(r.clock.Now)),
		Link:     r.queue,
		Input:    r.input,
		Display:  &screenTap{tw: tw},
		Wallets:  store,
		Seeds:    card.NewReconstructor(store, store.Deck()),
		Identity: store,
		Logs:     ring,
	}, engine.Options{
		ConfirmTimeout: opts.ConfirmTimeout,
		FrameTimeout:   opts.FrameTimeout,
		ChunkSize:      opts.ChunkSize,
		RequireAuth:    s.RequireAuth,
		Now:            r.clock.Now,
		Logger:         log,
	})
	return r, nil
}

func buildImage(s *Script) (*flash.Image, error) {
	var img *flash.Image
	if path := s.imagePath(); path != "" {
		parsed, err := flash.ParseFile(path)
		if err != nil {
			return nil, err
		}
		img = parsed
	} else {
		firmware := command.Version{Major: 1}
		if s.Firmware != "" {
			v, err := command.ParseVersion(s.Firmware)
			if err != nil {
				return nil, err
			}
			firmware = v
		}
		img = flash.NewImage(firmware)
		for _, w := range s.Wallets {
			if _, err := img.AddWallet(flash.WalletSpec{Name: w.Name, PIN: w.PIN, Passphrase: w.Passphrase}, nil); err != nil {
				return nil, fmt.Errorf("wallet %q: %w", w.Name, err)
			}
		}
	}

	if s.Provisioned && img.Device.Serial == "" {
		serial := bytes.Repeat([]byte{0xab}, command.SerialSize)
		if s.Serial != "" {
			b, err := hexutil.Decode(s.Serial)
			if err != nil || len(b) != command.SerialSize {
				return nil, fmt.Errorf("serial must be %d bytes of 0x-prefixed hex", command.SerialSize)
			}
			serial = b
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate attestation key: %w", err)
		}
		img.Device.Serial = hexutil.Encode(serial)
		img.Device.AttestationKey = encodeKey(key)
	}
	if s.Authenticated {
		img.Device.Authenticated = true
	}
	return img, nil
}

func encodeKey(key *ecdsa.PrivateKey) string {
	raw := crypto.FromECDSA(key)
	defer clear(raw)
	return hexutil.Encode(raw)
}

func (r *runner) step(ctx context.Context, step Step) ([]transport.Response, error) {
	if err := r.apply(step); err != nil {
		return nil, err
	}

	ticks := step.Ticks
	if ticks == 0 {
		ticks = 1
	}
	var got []transport.Response
	for range ticks {
		r.eng.Tick(ctx)
		for _, resp := range r.queue.Drain() {
			r.tw.OnResponse(resp)
			got = append(got, resp)
		}
	}
	return got, nil
}

func (r *runner) apply(step Step) error {
	if step.Advance > 0 {
		r.clock.now = r.clock.now.Add(step.Advance)
		r.tw.OnAdvance(step.Advance)
	}

	switch {
	case step.Frame != nil:
		cmd, err := step.Frame.Command(r.resolveWallet)
		if err != nil {
			return err
		}
		r.tw.OnFrame(cmd)
		return r.queue.Push(cmd)

	case step.Status != "":
		s, err := parseStatus(step.Status)
		if err != nil {
			return err
		}
		r.tw.OnStatus(s)
		return r.queue.Push(command.Command{Type: command.TypeStatus, Payload: []byte{byte(s)}})

	case step.Reset:
		r.tw.OnReset(r.queue.HostReset())

	case step.Accept:
		r.push(display.Input{Kind: display.InputAccept})

	case step.Reject:
		r.push(display.Input{Kind: display.InputReject})

	case step.Text != nil:
		r.push(display.Input{Kind: display.InputText, Text: []byte(*step.Text)})
	}
	return nil
}

func (r *runner) push(in display.Input) {
	r.tw.OnInput(in)
	r.input.Push(in)
}

// resolveWallet accepts a wallet name or a 0x-prefixed id.
func (r *runner) resolveWallet(name string) (wallet.ID, error) {
	if strings.HasPrefix(name, "0x") {
		return wallet.ParseID(name)
	}
	for _, rec := range r.store.Slots() {
		if rec.State != wallet.StateEmpty && rec.Name == name {
			return rec.ID, nil
		}
	}
	return wallet.ID{}, fmt.Errorf("unknown wallet %q", name)
}

func parseStatus(s string) (command.Status, error) {
	switch strings.ToLower(s) {
	case "success":
		return command.StatusSuccess, nil
	case "abort":
		return command.StatusAbort, nil
	default:
		return 0, fmt.Errorf("unknown status %q (valid: success, abort)", s)
	}
}

func kindNames(rs []transport.Response) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Kind.String())
	}
	return out
}

func normalize(kinds []string) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, strings.ToUpper(strings.TrimSpace(k)))
	}
	return out
}
