package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CARDWALLET"

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	ConfigFile  string
	ConfigFiles []string
	Flags       *pflag.FlagSet

	// EnvFiles are dotenv files loaded into the process environment before
	// overrides are read. Missing files are ignored. Existing variables win.
	EnvFiles []string
}

// LoadResult contains the merged configuration and validation output.
type LoadResult struct {
	Config         Config
	Validation     ValidationResult
	ConfigFileUsed string
}

// LoadConfig loads configuration from defaults, file, env, and flags.
func LoadConfig(opts LoadOptions) (LoadResult, error) {
	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return LoadResult{}, err
	}

	v := viper.New()
	setDefaults(v)
	known := v.AllKeys()
	configureEnv(v)

	if opts.Flags != nil {
		if err := BindFlags(v, opts.Flags); err != nil {
			return LoadResult{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	configPath, err := resolveConfigFile(opts)
	if err != nil {
		return LoadResult{}, err
	}
	var unknown []error
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return LoadResult{}, fmt.Errorf("read config: %w", err)
		}
		unknown, err = unknownKeys(configPath, known)
		if err != nil {
			return LoadResult{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return LoadResult{}, fmt.Errorf("unmarshal config: %w", err)
	}

	validation := ValidateConfig(cfg)
	validation.Errors = append(unknown, validation.Errors...)
	result := LoadResult{
		Config:         cfg,
		Validation:     validation,
		ConfigFileUsed: v.ConfigFileUsed(),
	}
	if validation.HasErrors() {
		return result, &ValidationError{Result: validation}
	}

	return result, nil
}

// flagBindings maps CLI flag names to config keys.
var flagBindings = map[string]string{
	"image":           "device.image-path",
	"require-auth":    "device.require-auth",
	"listen":          "transport.listen-addr",
	"display":         "ui.display",
	"confirm-timeout": "session.confirm-timeout-seconds",
	"log-level":       "logging.level",
	"log-file":        "logging.file",
	"log-format":      "logging.format",
}

// BoundFlags returns the flag names BindFlags understands, sorted.
func BoundFlags() []string {
	names := make([]string, 0, len(flagBindings))
	for name := range flagBindings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BindFlags binds supported CLI flags to viper keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for flag, key := range flagBindings {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("device.image-path", defaults.Device.ImagePath)
	v.SetDefault("device.require-auth", defaults.Device.RequireAuth)
	v.SetDefault("device.firmware-version", defaults.Device.FirmwareVersion)
	v.SetDefault("device.max-pin-attempts", defaults.Device.MaxPINAttempts)

	v.SetDefault("session.confirm-timeout-seconds", defaults.Session.ConfirmTimeoutSeconds)
	v.SetDefault("session.frame-timeout-seconds", defaults.Session.FrameTimeoutSeconds)
	v.SetDefault("session.tick-ms", defaults.Session.TickMS)

	v.SetDefault("transport.listen-addr", defaults.Transport.ListenAddr)
	v.SetDefault("transport.max-payload", defaults.Transport.MaxPayload)

	v.SetDefault("ui.display", defaults.UI.Display)
	v.SetDefault("ui.width", defaults.UI.Width)

	v.SetDefault("image.backup-enabled", defaults.Image.BackupEnabled)
	v.SetDefault("image.backup-directory", defaults.Image.BackupDirectory)
	v.SetDefault("image.backup-keep", defaults.Image.BackupKeep)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.ring-bytes", defaults.Logging.RingBytes)
	v.SetDefault("logging.chunk-bytes", defaults.Logging.ChunkBytes)
}

func configureEnv(v *viper.Viper) {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	v.SetEnvKeyReplacer(replacer)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
}

func loadEnvFiles(files []string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("env file error: %w", err)
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

// unknownKeys reports keys present in the config file that the schema does not define.
func unknownKeys(path string, known []string) ([]error, error) {
	fileOnly := viper.New()
	fileOnly.SetConfigFile(path)
	if err := fileOnly.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var errs []error
	for _, key := range fileOnly.AllKeys() {
		if slices.Contains(known, key) {
			continue
		}
		errs = append(errs, fmt.Errorf("unknown config key %q", key))
	}
	slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	return errs, nil
}

func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
			}
			return "", fmt.Errorf("config file error: %w", err)
		}
		return opts.ConfigFile, nil
	}

	candidates := opts.ConfigFiles
	if len(candidates) == 0 {
		candidates = defaultConfigFiles()
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("config file error: %w", err)
		}
		if info.IsDir() {
			continue
		}
		return candidate, nil
	}

	return "", nil
}

func defaultConfigFiles() []string {
	files := []string{"./cardwallet.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "cardwallet", "config.yaml"))
	}
	files = append(files, "/etc/cardwallet/config.yaml")
	return files
}

// DefaultEnvFiles lists the dotenv files consulted by the CLI.
func DefaultEnvFiles() []string {
	return []string{".env"}
}
