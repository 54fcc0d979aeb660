package commands

import (
	"time"

	"github.com/andri/cardwallet/pkg/replay"
	"github.com/spf13/cobra"
)

// ReplayOptions holds options for the replay command
type ReplayOptions struct {
	ShowLog bool
}

// newReplayCmd creates the replay subcommand
func newReplayCmd() *cobra.Command {
	opts := &ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a scripted host session",
		Long: `Drive the device from a YAML script of host frames, host status,
local input and clock advances, and print the exchange.

The device runs on a simulated clock and an in-memory copy of the flash
image; the image file is never modified. Steps with an expect list fail
the replay when the device answers differently.`,
		Example: `  cardwallet replay testdata/send.yaml

  # Script format
  name: send
  provisioned: true
  wallets: [{name: Main, pin: "1234"}]
  steps:
    - frame: {type: SEND_TXN_START, wallet: Main, path: "m/44'/60'/0'/0/0", chain-id: 1}
      expect: []
    - accept: true
      expect: [CONFIRMED]
    - advance: 61s
      expect: [TIMEOUT]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayCmd(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowLog, "show-log", false, "write the device log to stderr")

	return cmd
}

func runReplayCmd(cmd *cobra.Command, path string, opts *ReplayOptions) error {
	cfg := GlobalOptions.Config

	script, err := replay.Load(path)
	if err != nil {
		return err
	}

	ropts := replay.Options{
		Output:         cmd.OutOrStdout(),
		ConfirmTimeout: time.Duration(cfg.Session.ConfirmTimeoutSeconds) * time.Second,
		FrameTimeout:   time.Duration(cfg.Session.FrameTimeoutSeconds) * time.Second,
		ChunkSize:      cfg.Logging.ChunkBytes,
		RingBytes:      cfg.Logging.RingBytes,
		MaxPINAttempts: cfg.Device.MaxPINAttempts,
	}
	if opts.ShowLog {
		ropts.LogOutput = cmd.ErrOrStderr()
	}

	_, err = runReplay(GlobalOptions.Context, script, ropts)
	return err
}
