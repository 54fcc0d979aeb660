// Package commands provides the CLI command implementations for cardwallet.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// version information set by build flags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

// RootOptions holds the global options for all commands
type RootOptions struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// ImagePath overrides device.image-path
	ImagePath string

	// LogLevel sets the logging level (debug, info, warn, error)
	LogLevel string

	// LogFile sets the file path for log output
	LogFile string

	// Config holds the loaded configuration
	Config config.Config

	// ConfigFileUsed is the config file that was read, if any
	ConfigFileUsed string

	// Context is the root context for all operations
	Context context.Context

	// CancelFunc cancels the root context
	CancelFunc context.CancelFunc

	logFile io.Closer
}

// GlobalOptions is the singleton instance for root options
var GlobalOptions = &RootOptions{}

// NewRootCmd creates the root cobra command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cardwallet",
		Short: "Card-based hardware wallet device simulator",
		Long: `cardwallet - Card-Based Hardware Wallet Device

Runs the command dispatch and workflow engine of a card-based hardware
wallet. A desktop host sends command frames over the host bridge; the
device asks for local confirmation on its screen, reconstructs the wallet
from the device and card shares and answers with signatures, addresses
and account keys.

Key features:
  - One workflow session at a time, with confirmation and frame timeouts
  - Wallet selection with locked and unverified wallet rejection
  - Send, receive, swap, add-coin and export workflows
  - Device provisioning, authentication and firmware upgrade
  - Console or terminal UI device screen
  - Deterministic replay of scripted host sessions`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeGlobals(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			cleanup()
		},
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newImageCmd())
	rootCmd.AddCommand(newCoinsCmd())
	rootCmd.AddCommand(newInfoCmd())

	return rootCmd
}

// addGlobalFlags adds the global flags to the root command
func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringVar(&GlobalOptions.ConfigFile, "config", "",
		"config file (default: ./cardwallet.yaml, ~/.config/cardwallet/config.yaml, /etc/cardwallet/config.yaml)")
	flags.StringVar(&GlobalOptions.ImagePath, "image", "",
		"flash image path (default: "+config.DefaultImagePath+")")
	flags.StringVar(&GlobalOptions.LogLevel, "log-level", "",
		"log level: debug, info, warn, error (default: info)")
	flags.StringVar(&GlobalOptions.LogFile, "log-file", "",
		"log file path (default: stderr)")
}

// initializeGlobals initializes global options from flags, env, and config file
func initializeGlobals(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	GlobalOptions.Context = ctx
	GlobalOptions.CancelFunc = cancel

	loadOpts := config.LoadOptions{
		ConfigFile: GlobalOptions.ConfigFile,
		Flags:      buildFlagSet(cmd),
		EnvFiles:   config.DefaultEnvFiles(),
	}

	result, err := config.LoadConfig(loadOpts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	GlobalOptions.Config = result.Config
	GlobalOptions.ConfigFileUsed = result.ConfigFileUsed

	if logErr := initLogger(); logErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", logErr)
	}

	if result.ConfigFileUsed != "" {
		logger.Debug("loaded configuration", "file", result.ConfigFileUsed)
	}
	for _, warning := range result.Validation.Warnings {
		logger.Warn("configuration warning", "warning", warning)
	}

	return nil
}

// buildFlagSet collects the command's flags that map onto config keys,
// whether declared locally or inherited from the root.
func buildFlagSet(cmd *cobra.Command) *pflag.FlagSet {
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	for _, name := range config.BoundFlags() {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
		if f != nil {
			flags.AddFlag(f)
		}
	}
	return flags
}

// initLogger installs the default logger. Every record is also kept in a
// ring buffer for on-device log export.
func initLogger() error {
	cfg := GlobalOptions.Config.Logging

	var output io.Writer = os.Stderr
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = f
		GlobalOptions.logFile = f
	}

	logger.SetDefault(logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Format: logger.ParseFormat(cfg.Format),
		Output: output,
		Ring:   logger.NewRing(cfg.RingBytes),
	}))
	return nil
}

// cleanup performs any necessary cleanup before exit
func cleanup() {
	if GlobalOptions.CancelFunc != nil {
		GlobalOptions.CancelFunc()
	}
	if GlobalOptions.logFile != nil {
		_ = GlobalOptions.logFile.Close()
		GlobalOptions.logFile = nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the cardwallet version, the commit and build date, and the Go runtime it was built with.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cardwallet version %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit:     %s\n", commit)
			_, _ = fmt.Fprintf(out, "  build date: %s\n", buildDate)
			_, _ = fmt.Fprintf(out, "  runtime:    %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
