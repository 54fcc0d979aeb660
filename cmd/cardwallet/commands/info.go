package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/andri/cardwallet/pkg/output"
	"github.com/spf13/cobra"
)

// InfoOptions holds options for the info command
type InfoOptions struct {
	Output string
	Raw    bool
}

// newInfoCmd creates the info subcommand
func newInfoCmd() *cobra.Command {
	opts := &InfoOptions{}

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the device info record",
		Long: `Show the identity the device reports in DEVICE_INFO: serial,
authentication status, firmware version and the resulting device mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "table", "output format: table, json, yaml")
	flags.BoolVar(&opts.Raw, "raw", false, "print the encoded DEVICE_INFO record as hex")

	return cmd
}

func runInfo(cmd *cobra.Command, opts *InfoOptions) error {
	cfg := GlobalOptions.Config

	format, err := output.ParseFormat(opts.Output)
	if err != nil {
		return err
	}
	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}

	info := dev.store.Info()
	if opts.Raw {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(info.Encode()))
		return nil
	}
	pending := dev.store.Image().Device.UpgradePending
	return output.Render(cmd.OutOrStdout(), format, &output.Report{
		Device: output.NewDeviceReport(info, pending, cfg.Device.RequireAuth),
	})
}
