package commands

import (
	"fmt"
	"strings"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/cli"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/flash"
	"github.com/andri/cardwallet/pkg/output"
	"github.com/spf13/cobra"
)

// ImageInitOptions holds options for the image init command
type ImageInitOptions struct {
	Wallets    []string
	Passphrase bool
	Firmware   string
	Force      bool
	Output     string
}

// ImageShowOptions holds options for the image show command
type ImageShowOptions struct {
	Output string
}

// newImageCmd creates the image subcommand with its subcommands
func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Manage the flash image",
		Long: `Manage the flash image that holds the device identity, the wallet
slots and the card shares.`,
	}

	cmd.AddCommand(newImageInitCmd())
	cmd.AddCommand(newImageShowCmd())

	return cmd
}

// newImageInitCmd creates the image init subcommand
func newImageInitCmd() *cobra.Command {
	opts := &ImageInitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a flash image",
		Long: `Create an unprovisioned flash image with demo wallets. Each wallet's
entropy is split with Shamir across the device and four cards.

Wallets are given as NAME or NAME:PIN. An existing image is backed up
before it is replaced.`,
		Example: `  # One wallet without PIN
  cardwallet image init

  # Two wallets, one PIN protected
  cardwallet image init --wallet Main:1234 --wallet Savings --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImageInit(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.Wallets, "wallet", "w", []string{"Main"}, "wallet as NAME or NAME:PIN (repeatable)")
	flags.BoolVar(&opts.Passphrase, "passphrase", false, "require a passphrase for every wallet")
	flags.StringVar(&opts.Firmware, "firmware", "", "firmware version (default: device.firmware-version)")
	flags.BoolVar(&opts.Force, "force", false, "overwrite an existing image without asking")
	flags.StringVarP(&opts.Output, "output", "o", "table", "output format: table, json, yaml")

	return cmd
}

// newImageShowCmd creates the image show subcommand
func newImageShowCmd() *cobra.Command {
	opts := &ImageShowOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the flash image",
		Long:  "Show the device record and wallet slots of the flash image. Shares are never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImageShow(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "output format: table, json, yaml")

	return cmd
}

func runImageInit(cmd *cobra.Command, opts *ImageInitOptions) error {
	cfg := GlobalOptions.Config

	format, err := output.ParseFormat(opts.Output)
	if err != nil {
		return err
	}

	firmware := opts.Firmware
	if firmware == "" {
		firmware = cfg.Device.FirmwareVersion
	}
	version, err := command.ParseVersion(firmware)
	if err != nil {
		return err
	}

	img := flash.NewImage(version)
	for _, spec := range opts.Wallets {
		name, pin, _ := strings.Cut(spec, ":")
		if _, err := img.AddWallet(flash.WalletSpec{Name: name, PIN: pin, Passphrase: opts.Passphrase}, nil); err != nil {
			return err
		}
	}

	path, err := flash.ResolvePath(cfg.Device.ImagePath)
	if err != nil {
		return err
	}
	ok, err := cli.ConfirmOverwrite(path, cli.ConfirmOptions{
		Force:  opts.Force,
		Input:  cmd.InOrStdin(),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted: %s left unchanged", path)
	}

	backup, err := flash.ReplaceImage(path, *img, flash.SnapshotOptions{
		Enabled: cfg.Image.BackupEnabled,
		Dir:     cfg.Image.BackupDirectory,
		Keep:    cfg.Image.BackupKeep,
	})
	if err != nil {
		return err
	}
	logger.Info("flash image created", "path", path, "wallets", len(img.Wallets), "backup", backup)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Created %s with %d wallet(s)\n", path, len(img.Wallets))
	return renderImage(cmd, format, path)
}

func runImageShow(cmd *cobra.Command, opts *ImageShowOptions) error {
	format, err := output.ParseFormat(opts.Output)
	if err != nil {
		return err
	}
	path, err := flash.ResolvePath(GlobalOptions.Config.Device.ImagePath)
	if err != nil {
		return err
	}
	return renderImage(cmd, format, path)
}

func renderImage(cmd *cobra.Command, format output.Format, path string) error {
	img, warnings, err := flash.ValidateFile(path)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w.Message)
	}

	store, err := flash.NewStore(img, "", flash.Options{MaxPINAttempts: GlobalOptions.Config.Device.MaxPINAttempts})
	if err != nil {
		return err
	}
	return output.Render(cmd.OutOrStdout(), format, &output.Report{
		Device:  output.NewDeviceReport(store.Info(), img.Device.UpgradePending, GlobalOptions.Config.Device.RequireAuth),
		Wallets: output.NewWalletReports(*img),
	})
}
