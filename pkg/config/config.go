package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultImagePath             = "~/.config/cardwallet/image.json"
	DefaultRequireAuth           = true
	DefaultFirmwareVersion       = "1.0.0"
	DefaultConfirmTimeoutSeconds = 60
	DefaultFrameTimeoutSeconds   = 30
	DefaultTickMS                = 50
	DefaultListenAddr            = "127.0.0.1:8420"
	DefaultMaxPayload            = 4096
	DefaultDisplay               = "console"
	DefaultDisplayWidth          = 32
	DefaultBackupEnabled         = true
	DefaultBackupDirectory       = "~/.config/cardwallet/backups"
	DefaultBackupKeep            = 10
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
	DefaultLogRingBytes          = 16 * 1024
	DefaultMaxPINAttempts        = 3
	DefaultAppLogChunkBytes      = 512
)

// Config holds the full configuration schema for cardwallet.
type Config struct {
	Device    DeviceConfig    `mapstructure:"device" yaml:"device" json:"device"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session" json:"session"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" json:"transport"`
	UI        UIConfig        `mapstructure:"ui" yaml:"ui" json:"ui"`
	Image     ImageConfig     `mapstructure:"image" yaml:"image" json:"image"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// DeviceConfig describes the simulated device.
type DeviceConfig struct {
	// ImagePath is the flash image file. Supports ~ expansion.
	ImagePath string `mapstructure:"image-path" yaml:"image-path" json:"image-path"`

	// RequireAuth keeps the device in restricted mode until device
	// authentication has succeeded.
	RequireAuth bool `mapstructure:"require-auth" yaml:"require-auth" json:"require-auth"`

	// FirmwareVersion is reported in DEVICE_INFO as major.minor.patch.
	FirmwareVersion string `mapstructure:"firmware-version" yaml:"firmware-version" json:"firmware-version"`

	// MaxPINAttempts locks a wallet after this many consecutive wrong PINs.
	MaxPINAttempts int `mapstructure:"max-pin-attempts" yaml:"max-pin-attempts" json:"max-pin-attempts"`
}

// SessionConfig captures workflow session timing.
type SessionConfig struct {
	ConfirmTimeoutSeconds int `mapstructure:"confirm-timeout-seconds" yaml:"confirm-timeout-seconds" json:"confirm-timeout-seconds"`
	FrameTimeoutSeconds   int `mapstructure:"frame-timeout-seconds" yaml:"frame-timeout-seconds" json:"frame-timeout-seconds"`
	TickMS                int `mapstructure:"tick-ms" yaml:"tick-ms" json:"tick-ms"`
}

// TransportConfig controls the host bridge.
type TransportConfig struct {
	ListenAddr string `mapstructure:"listen-addr" yaml:"listen-addr" json:"listen-addr"`
	MaxPayload int    `mapstructure:"max-payload" yaml:"max-payload" json:"max-payload"`
}

// UIConfig holds device screen settings.
type UIConfig struct {
	// Display selects the screen renderer: console or tui.
	Display string `mapstructure:"display" yaml:"display" json:"display"`

	// Width is the screen width in cells used to bound prompts.
	Width int `mapstructure:"width" yaml:"width" json:"width"`
}

// ImageConfig controls flash image backups.
type ImageConfig struct {
	BackupEnabled   bool   `mapstructure:"backup-enabled" yaml:"backup-enabled" json:"backup-enabled"`
	BackupDirectory string `mapstructure:"backup-directory" yaml:"backup-directory" json:"backup-directory"`
	// BackupKeep bounds the snapshots kept per image; zero keeps all.
	BackupKeep int `mapstructure:"backup-keep" yaml:"backup-keep" json:"backup-keep"`
}

// LoggingConfig controls log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`

	// RingBytes sizes the in-memory log buffer exported by the app-log workflow.
	RingBytes int `mapstructure:"ring-bytes" yaml:"ring-bytes" json:"ring-bytes"`

	// ChunkBytes is the size of one exported log chunk.
	ChunkBytes int `mapstructure:"chunk-bytes" yaml:"chunk-bytes" json:"chunk-bytes"`
}

// DefaultConfig returns a config with all default values applied.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			ImagePath:       DefaultImagePath,
			RequireAuth:     DefaultRequireAuth,
			FirmwareVersion: DefaultFirmwareVersion,
			MaxPINAttempts:  DefaultMaxPINAttempts,
		},
		Session: SessionConfig{
			ConfirmTimeoutSeconds: DefaultConfirmTimeoutSeconds,
			FrameTimeoutSeconds:   DefaultFrameTimeoutSeconds,
			TickMS:                DefaultTickMS,
		},
		Transport: TransportConfig{
			ListenAddr: DefaultListenAddr,
			MaxPayload: DefaultMaxPayload,
		},
		UI: UIConfig{
			Display: DefaultDisplay,
			Width:   DefaultDisplayWidth,
		},
		Image: ImageConfig{
			BackupEnabled:   DefaultBackupEnabled,
			BackupDirectory: DefaultBackupDirectory,
			BackupKeep:      DefaultBackupKeep,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			File:       "",
			Format:     DefaultLogFormat,
			RingBytes:  DefaultLogRingBytes,
			ChunkBytes: DefaultAppLogChunkBytes,
		},
	}
}

// String renders the configuration as YAML.
func (c Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}

	return strings.TrimSpace(string(data))
}
