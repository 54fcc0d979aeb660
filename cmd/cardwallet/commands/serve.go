package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/config"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/engine"
	"github.com/andri/cardwallet/pkg/flash"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/andri/cardwallet/pkg/transport/httpbridge"
	"github.com/andri/cardwallet/pkg/tui/models"
	"github.com/andri/cardwallet/pkg/tui/terminal"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
)

// newServeCmd creates the serve subcommand. Its flags are read through the
// config loader, which binds them over file and environment values.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device",
		Long: `Run the device loop against a flash image.

The host bridge accepts command frames over HTTP:
  POST /api/v1/frames     queue a frame {"type": "SEND_TXN_START", "payload": "0x..."}
  GET  /api/v1/responses  drain device responses (?wait=5s long-polls)
  POST /api/v1/reset      request a transport reset
  GET  /livez             liveness

Confirmations and PIN entry happen on the device screen: the console
display reads y/n and text lines from stdin, the tui display uses the keyboard.`,
		Example: `  # Serve with the console display
  cardwallet serve

  # Serve with the terminal UI on another port
  cardwallet serve --display tui --listen 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", config.DefaultListenAddr, "host bridge listen address")
	flags.String("display", config.DefaultDisplay, "device screen: console, tui")
	flags.Bool("require-auth", config.DefaultRequireAuth,
		"restrict commands until device authentication succeeds")
	flags.Int("confirm-timeout", config.DefaultConfirmTimeoutSeconds,
		"seconds to wait for a confirmation")

	return cmd
}

// deviceParts bundles what the engine needs around one flash image.
type deviceParts struct {
	store *flash.Store
	queue *transport.Queue
	input *display.InputQueue
	guard *atomic.Bool
}

func openDevice(cfg config.Config) (*deviceParts, error) {
	path, err := flash.ResolvePath(cfg.Device.ImagePath)
	if err != nil {
		return nil, err
	}
	store, err := openImage(path, flash.Options{MaxPINAttempts: cfg.Device.MaxPINAttempts})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("flash image not found: %s, run 'cardwallet image init' first", path)
		}
		return nil, err
	}
	guard := atomic.NewBool(false)
	return &deviceParts{
		store: store,
		queue: transport.NewQueue(0, guard),
		input: &display.InputQueue{},
		guard: guard,
	}, nil
}

func (d *deviceParts) engine(cfg config.Config, screen display.Display) *engine.Engine {
	return engine.New(engine.Deps{
		Session:  device.NewSession(d.guard, device.NewActivity(time.Now)),
		Link:     d.queue,
		Input:    d.input,
		Display:  screen,
		Wallets:  d.store,
		Seeds:    card.NewReconstructor(d.store, d.store.Deck()),
		Identity: d.store,
		Logs:     logger.GetDefault().Ring(),
	}, engine.Options{
		ConfirmTimeout: time.Duration(cfg.Session.ConfirmTimeoutSeconds) * time.Second,
		FrameTimeout:   time.Duration(cfg.Session.FrameTimeoutSeconds) * time.Second,
		ChunkSize:      cfg.Logging.ChunkBytes,
		RequireAuth:    cfg.Device.RequireAuth,
		Logger:         logger.GetDefault(),
	})
}

func runServe(cmd *cobra.Command) error {
	cfg := GlobalOptions.Config
	ctx, cancel := context.WithCancel(GlobalOptions.Context)
	defer cancel()

	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}

	tui := cfg.UI.Display == "tui" && useTUI(detectTerminal(os.Stdin, os.Stdout))
	if tui && cfg.Logging.File == "" {
		// stderr would draw over the screen; keep the records for log export only.
		logger.SetDefault(logger.New(logger.Config{
			Level:  logger.ParseLevel(cfg.Logging.Level),
			Output: io.Discard,
			Ring:   logger.GetDefault().Ring(),
		}))
	}

	bridge := httpbridge.New(httpbridge.Config{
		ListenAddr: cfg.Transport.ListenAddr,
		MaxPayload: cfg.Transport.MaxPayload,
		Logger:     logger.GetDefault(),
	}, dev.queue)
	bridgeErr := make(chan error, 1)
	go func() {
		bridgeErr <- bridge.Run(ctx)
	}()

	interval := time.Duration(cfg.Session.TickMS) * time.Millisecond
	logger.Info("device starting",
		"image", dev.store.Path(),
		"listen", cfg.Transport.ListenAddr,
		"display", cfg.UI.Display,
	)

	var runErr error
	if tui {
		runErr = serveTUI(ctx, cfg, dev, interval)
	} else {
		runErr = serveConsole(ctx, cmd, cfg, dev, interval)
	}
	cancel()

	if err := <-bridgeErr; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func useTUI(c terminal.Capability) bool {
	if !c.Interactive {
		logger.Warn("terminal UI needs an interactive terminal, using console display")
		return false
	}
	if w := terminal.SizeWarning(c.Width, c.Height); w != "" {
		logger.Warn(w)
	}
	return true
}

func serveConsole(ctx context.Context, cmd *cobra.Command, cfg config.Config, dev *deviceParts, interval time.Duration) error {
	console := display.NewConsole(cmd.OutOrStdout())
	eng := dev.engine(cfg, console)

	go func() {
		if err := console.ReadFrom(cmd.InOrStdin(), dev.input); err != nil {
			logger.Warn("console input stopped", "error", err)
		}
	}()

	return eng.Run(ctx, interval)
}

func serveTUI(ctx context.Context, cfg config.Config, dev *deviceParts, interval time.Duration) error {
	model := models.NewDeviceModel(models.DeviceConfig{
		Input:    dev.input,
		Interval: interval,
		Width:    cfg.UI.Width,
		Title:    "cardwallet " + cfg.Transport.ListenAddr,
		Context:  ctx,
	})
	eng := dev.engine(cfg, model)
	model.SetEngine(eng)
	defer eng.Shutdown()

	return models.Run(model)
}
