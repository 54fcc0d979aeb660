package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andri/cardwallet/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigShowOptions holds options for the config show command
type ConfigShowOptions struct {
	Format string
}

// ConfigValidateOptions holds options for the config validate command
type ConfigValidateOptions struct {
	ConfigFile string
	Format     string
}

// newConfigCmd creates the config subcommand with its subcommands
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage cardwallet configuration.

Configuration is loaded from multiple sources in order of precedence:
  1. CLI flags (highest priority)
  2. Environment variables (CARDWALLET_* prefix, also read from .env)
  3. Config file (./cardwallet.yaml, ~/.config/cardwallet/config.yaml, /etc/cardwallet/config.yaml)
  4. Default values (lowest priority)`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

// newConfigShowCmd creates the config show subcommand
func newConfigShowCmd() *cobra.Command {
	opts := &ConfigShowOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources,
including the source file if one was loaded.`,
		Example: `  # Show configuration in YAML format (default)
  cardwallet config show

  # Show configuration in JSON format
  cardwallet config show --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "yaml", "output format: yaml, json")

	return cmd
}

// newConfigValidateCmd creates the config validate subcommand
func newConfigValidateCmd() *cobra.Command {
	opts := &ConfigValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate configuration",
		Long: `Validate configuration and report any errors or warnings.

Returns exit code 0 if configuration is valid, 1 if there are errors.
Warnings are reported but don't affect the exit code.`,
		Example: `  # Validate the effective configuration
  cardwallet config validate

  # Validate a specific config file
  cardwallet config validate /path/to/config.yaml

  # Output validation results as JSON
  cardwallet config validate --format json`,
		Args: cobra.MaximumNArgs(1),
		// Validation reports load errors itself instead of failing early.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.ConfigFile = args[0]
			}
			return runConfigValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format: text, json, yaml")

	return cmd
}

// ConfigOutput represents the configuration output structure
type ConfigOutput struct {
	ConfigFile string        `json:"configFile,omitempty" yaml:"configFile,omitempty"`
	Config     config.Config `json:"config" yaml:"config"`
}

// ValidationOutput represents validation results for output
type ValidationOutput struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func runConfigShow(cmd *cobra.Command, opts *ConfigShowOptions) error {
	return writeStructured(cmd.OutOrStdout(), opts.Format, ConfigOutput{
		ConfigFile: GlobalOptions.ConfigFileUsed,
		Config:     GlobalOptions.Config,
	})
}

func runConfigValidate(cmd *cobra.Command, opts *ConfigValidateOptions) error {
	out := cmd.OutOrStdout()

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = GlobalOptions.ConfigFile
	}

	result, loadErr := config.LoadConfig(config.LoadOptions{
		ConfigFile: configFile,
		EnvFiles:   config.DefaultEnvFiles(),
	})

	validation := ValidationOutput{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	// A ValidationError repeats result.Validation.Errors; report those once.
	var verr *config.ValidationError
	if loadErr != nil && !errors.As(loadErr, &verr) {
		validation.Valid = false
		validation.Errors = append(validation.Errors, loadErr.Error())
	}
	for _, err := range result.Validation.Errors {
		validation.Valid = false
		validation.Errors = append(validation.Errors, err.Error())
	}
	validation.Warnings = append(validation.Warnings, result.Validation.Warnings...)

	switch strings.ToLower(opts.Format) {
	case "json", "yaml":
		if err := writeStructured(out, opts.Format, validation); err != nil {
			return err
		}

	default: // text
		if result.ConfigFileUsed != "" {
			_, _ = fmt.Fprintf(out, "Config file: %s\n\n", result.ConfigFileUsed)
		} else {
			_, _ = fmt.Fprint(out, "Config file: (none - using defaults)\n\n")
		}

		if validation.Valid {
			_, _ = fmt.Fprintln(out, "Configuration is valid.")
		} else {
			_, _ = fmt.Fprintln(out, "Configuration has errors:")
			for _, err := range validation.Errors {
				_, _ = fmt.Fprintf(out, "  - %s\n", err)
			}
		}

		if len(validation.Warnings) > 0 {
			_, _ = fmt.Fprintln(out, "\nWarnings:")
			for _, warn := range validation.Warnings {
				_, _ = fmt.Fprintf(out, "  - %s\n", warn)
			}
		}
	}

	if !validation.Valid {
		return fmt.Errorf("configuration validation failed")
	}

	return nil
}

// writeStructured renders v as JSON or, by default, YAML.
func writeStructured(out io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	default:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, _ = fmt.Fprint(out, string(data))
	}
	return nil
}
