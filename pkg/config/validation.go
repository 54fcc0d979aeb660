package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/andri/cardwallet/pkg/command"
)

// ValidationError wraps a ValidationResult as an error.
// It provides actionable error messages that include all validation issues.
type ValidationError struct {
	Result ValidationResult
}

// Error implements the error interface, returning all validation errors as a single message.
func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Result.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Result.Errors[0])
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, err := range e.Result.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors joined together.
func (e *ValidationError) Unwrap() error {
	return errors.Join(e.Result.Errors...)
}

// ValidationResult captures validation errors and warnings.
type ValidationResult struct {
	Errors   []error
	Warnings []string
}

// HasErrors reports whether validation errors exist.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings reports whether validation warnings exist.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Allowed values for enumerated settings.
var (
	allowedLogLevels  = []string{"debug", "info", "warn", "error"}
	allowedLogFormats = []string{"text", "json"}
	allowedDisplays   = []string{"console", "tui"}
)

const (
	minConfirmTimeoutSeconds  = 5
	warnConfirmTimeoutSeconds = 3600
	minPayload                = 64
	maxPayload                = 65535
	minDisplayWidth           = 16
	maxDisplayWidth           = 128
	maxPINAttempts            = 15
	minRingBytes              = 1024
	minChunkBytes             = 16
)

// ValidateConfig validates configuration values and returns all issues.
func ValidateConfig(cfg Config) ValidationResult {
	var result ValidationResult

	if strings.TrimSpace(cfg.Device.ImagePath) == "" {
		result.Errors = append(result.Errors, errors.New("device.image-path must be non-empty"))
	}
	if _, err := command.ParseVersion(cfg.Device.FirmwareVersion); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("invalid device.firmware-version %q: %w", cfg.Device.FirmwareVersion, err))
	}
	if cfg.Device.MaxPINAttempts < 1 || cfg.Device.MaxPINAttempts > maxPINAttempts {
		result.Errors = append(result.Errors, fmt.Errorf(
			"device.max-pin-attempts must be between 1 and %d, got: %d", maxPINAttempts, cfg.Device.MaxPINAttempts))
	}
	if !cfg.Device.RequireAuth {
		result.Warnings = append(result.Warnings,
			"device.require-auth=false - unauthenticated devices accept every command")
	}

	if cfg.Session.ConfirmTimeoutSeconds < minConfirmTimeoutSeconds {
		result.Errors = append(result.Errors, fmt.Errorf(
			"session.confirm-timeout-seconds must be >= %d, got: %d", minConfirmTimeoutSeconds, cfg.Session.ConfirmTimeoutSeconds))
	} else if cfg.Session.ConfirmTimeoutSeconds > warnConfirmTimeoutSeconds {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("session.confirm-timeout-seconds=%d keeps sessions armed for over an hour", cfg.Session.ConfirmTimeoutSeconds))
	}
	if cfg.Session.FrameTimeoutSeconds < 1 {
		result.Errors = append(result.Errors, fmt.Errorf(
			"session.frame-timeout-seconds must be >= 1, got: %d", cfg.Session.FrameTimeoutSeconds))
	}
	if cfg.Session.TickMS <= 0 {
		result.Errors = append(result.Errors, fmt.Errorf("session.tick-ms must be > 0, got: %d", cfg.Session.TickMS))
	} else if cfg.Session.TickMS < 10 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("session.tick-ms=%d is below 10ms - the device loop will spin", cfg.Session.TickMS))
	}

	if _, _, err := net.SplitHostPort(cfg.Transport.ListenAddr); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("invalid transport.listen-addr %q: %w", cfg.Transport.ListenAddr, err))
	}
	if cfg.Transport.MaxPayload < minPayload || cfg.Transport.MaxPayload > maxPayload {
		result.Errors = append(result.Errors, fmt.Errorf(
			"transport.max-payload must be between %d and %d, got: %d", minPayload, maxPayload, cfg.Transport.MaxPayload))
	}

	if !slices.Contains(allowedDisplays, cfg.UI.Display) {
		result.Errors = append(result.Errors, fmt.Errorf(
			"invalid ui.display %q: allowed values are %v", cfg.UI.Display, allowedDisplays))
	}
	if cfg.UI.Width < minDisplayWidth || cfg.UI.Width > maxDisplayWidth {
		result.Errors = append(result.Errors, fmt.Errorf(
			"ui.width must be between %d and %d, got: %d", minDisplayWidth, maxDisplayWidth, cfg.UI.Width))
	}

	if cfg.Image.BackupEnabled && strings.TrimSpace(cfg.Image.BackupDirectory) == "" {
		result.Errors = append(result.Errors, errors.New("image.backup-directory must be set when backups are enabled"))
	}
	if cfg.Image.BackupKeep < 0 {
		result.Errors = append(result.Errors, fmt.Errorf("image.backup-keep must be >= 0, got: %d", cfg.Image.BackupKeep))
	}

	// Validate logging.level
	if cfg.Logging.Level != "" && !slices.Contains(allowedLogLevels, cfg.Logging.Level) {
		result.Errors = append(result.Errors, fmt.Errorf(
			"invalid logging.level %q: allowed values are %v",
			cfg.Logging.Level, allowedLogLevels))
	}

	// Validate logging.format
	if cfg.Logging.Format != "" && !slices.Contains(allowedLogFormats, cfg.Logging.Format) {
		result.Errors = append(result.Errors, fmt.Errorf(
			"invalid logging.format %q: allowed values are %v",
			cfg.Logging.Format, allowedLogFormats))
	}

	if cfg.Logging.RingBytes < minRingBytes {
		result.Errors = append(result.Errors, fmt.Errorf(
			"logging.ring-bytes must be >= %d, got: %d", minRingBytes, cfg.Logging.RingBytes))
	}
	if cfg.Logging.ChunkBytes < minChunkBytes || cfg.Logging.ChunkBytes > cfg.Transport.MaxPayload {
		result.Errors = append(result.Errors, fmt.Errorf(
			"logging.chunk-bytes must be between %d and transport.max-payload, got: %d", minChunkBytes, cfg.Logging.ChunkBytes))
	}

	return result
}
