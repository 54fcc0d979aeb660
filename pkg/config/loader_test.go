package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/andri/cardwallet/pkg/config"
	"github.com/spf13/pflag"
)

func TestLoadConfigDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("# empty\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	result, err := config.LoadConfig(config.LoadOptions{ConfigFile: configPath})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := result.Config
	if cfg.Device.ImagePath != config.DefaultImagePath {
		t.Fatalf("expected image path default %q, got %q", config.DefaultImagePath, cfg.Device.ImagePath)
	}
	if cfg.Session.ConfirmTimeoutSeconds != config.DefaultConfirmTimeoutSeconds {
		t.Fatalf("expected confirm timeout default %d, got %d", config.DefaultConfirmTimeoutSeconds, cfg.Session.ConfirmTimeoutSeconds)
	}
	if !cfg.Device.RequireAuth {
		t.Fatalf("expected require-auth to default to true")
	}
	if result.Validation.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", result.Validation.Errors)
	}
}

func TestLoadConfigFlagOverridesDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("image", "", "")
	flags.String("display", "", "")
	if err := flags.Set("image", "/tmp/flag-image.json"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := flags.Set("display", "tui"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	result, err := config.LoadConfig(config.LoadOptions{Flags: flags, ConfigFiles: []string{filepath.Join(t.TempDir(), "none.yaml")}})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := result.Config
	if cfg.Device.ImagePath != "/tmp/flag-image.json" {
		t.Fatalf("expected flag override, got %q", cfg.Device.ImagePath)
	}
	if cfg.UI.Display != "tui" {
		t.Fatalf("expected display flag override, got %q", cfg.UI.Display)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := config.LoadConfig(config.LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfigFromFileFixture(t *testing.T) {
	result, err := config.LoadConfig(config.LoadOptions{ConfigFile: testdataPath(t, "full.yaml")})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := result.Config
	if cfg.Device.FirmwareVersion != "2.4.1" {
		t.Fatalf("expected firmware version from file, got %q", cfg.Device.FirmwareVersion)
	}
	if cfg.Session.TickMS != 25 {
		t.Fatalf("expected tick from file, got %d", cfg.Session.TickMS)
	}
	if cfg.Transport.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("expected listen addr from file, got %q", cfg.Transport.ListenAddr)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected log format from file, got %q", cfg.Logging.Format)
	}
	if cfg.Image.BackupEnabled || cfg.Image.BackupKeep != 3 {
		t.Fatalf("expected backups disabled with keep 3 from file, got %+v", cfg.Image)
	}
	if result.Validation.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", result.Validation.Errors)
	}
}

func TestLoadConfigPartialUsesDefaults(t *testing.T) {
	result, err := config.LoadConfig(config.LoadOptions{ConfigFile: testdataPath(t, "partial.yaml")})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := result.Config
	if cfg.Session.ConfirmTimeoutSeconds != 120 {
		t.Fatalf("expected confirm timeout from file, got %d", cfg.Session.ConfirmTimeoutSeconds)
	}
	if cfg.Session.FrameTimeoutSeconds != config.DefaultFrameTimeoutSeconds {
		t.Fatalf("expected default frame timeout, got %d", cfg.Session.FrameTimeoutSeconds)
	}
	if cfg.Transport.MaxPayload != config.DefaultMaxPayload {
		t.Fatalf("expected default max payload, got %d", cfg.Transport.MaxPayload)
	}
}

func TestLoadConfigEnvOverridesDefault(t *testing.T) {
	t.Setenv("CARDWALLET_DEVICE_IMAGE_PATH", "/tmp/env-image.json")
	t.Setenv("CARDWALLET_SESSION_TICK_MS", "40")

	result, err := config.LoadConfig(config.LoadOptions{ConfigFile: testdataPath(t, "full.yaml")})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := result.Config
	if cfg.Device.ImagePath != "/tmp/env-image.json" {
		t.Fatalf("expected env override for image path, got %q", cfg.Device.ImagePath)
	}
	if cfg.Session.TickMS != 40 {
		t.Fatalf("expected env override for tick, got %d", cfg.Session.TickMS)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envPath, []byte("CARDWALLET_UI_WIDTH=48\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CARDWALLET_UI_WIDTH", "")
	os.Unsetenv("CARDWALLET_UI_WIDTH")

	result, err := config.LoadConfig(config.LoadOptions{
		ConfigFiles: []string{filepath.Join(tempDir, "none.yaml")},
		EnvFiles:    []string{filepath.Join(tempDir, "missing.env"), envPath},
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if result.Config.UI.Width != 48 {
		t.Fatalf("expected width from env file, got %d", result.Config.UI.Width)
	}
}

func TestLoadConfigConfigFileDiscovery(t *testing.T) {
	tempDir := t.TempDir()
	missing := filepath.Join(tempDir, "missing.yaml")
	first := filepath.Join(tempDir, "first.yaml")
	second := filepath.Join(tempDir, "second.yaml")

	if err := os.WriteFile(first, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("write first config: %v", err)
	}
	if err := os.WriteFile(second, []byte("logging:\n  level: warn\n"), 0o600); err != nil {
		t.Fatalf("write second config: %v", err)
	}

	result, err := config.LoadConfig(config.LoadOptions{ConfigFiles: []string{missing, first, second}})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if result.Config.Logging.Level != "debug" {
		t.Fatalf("expected first config file to win, got %q", result.Config.Logging.Level)
	}
	if result.ConfigFileUsed != first {
		t.Fatalf("expected ConfigFileUsed %q, got %q", first, result.ConfigFileUsed)
	}
}

func TestLoadConfigNoConfigFileFound(t *testing.T) {
	tempDir := t.TempDir()
	result, err := config.LoadConfig(config.LoadOptions{ConfigFiles: []string{filepath.Join(tempDir, "missing.yaml")}})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if result.ConfigFileUsed != "" {
		t.Fatalf("expected no config file used, got %q", result.ConfigFileUsed)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("ui: ["), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := config.LoadConfig(config.LoadOptions{ConfigFile: configPath})
	if err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestLoadConfigUnknownKeys(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantKey  string
	}{
		{
			name:     "unknown top level section",
			contents: "logging:\n  level: info\nunknown-section:\n  foo: bar\n",
			wantKey:  "unknown-section.foo",
		},
		{
			name:     "unknown nested key",
			contents: "ui:\n  width: 40\n  invalid-key: some-value\n",
			wantKey:  "ui.invalid-key",
		},
		{
			name:     "typo in known key",
			contents: "session:\n  tick-mss: 20\n",
			wantKey:  "session.tick-mss",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.contents), 0o600); err != nil {
				t.Fatalf("write config file: %v", err)
			}

			result, err := config.LoadConfig(config.LoadOptions{ConfigFile: configPath})
			if err == nil {
				t.Fatalf("expected error for unknown config key")
			}
			var validationErr *config.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}

			found := false
			for _, errMsg := range result.Validation.Errors {
				if strings.Contains(errMsg.Error(), tt.wantKey) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error for %s, got errors: %v", tt.wantKey, result.Validation.Errors)
			}
		})
	}
}

func TestLoadConfigValidKeysDoNotWarn(t *testing.T) {
	result, err := config.LoadConfig(config.LoadOptions{ConfigFile: testdataPath(t, "full.yaml")})
	if err != nil {
		t.Fatalf("load config with valid keys should succeed: %v", err)
	}

	for _, e := range result.Validation.Errors {
		if strings.Contains(e.Error(), "unknown config key") {
			t.Errorf("unexpected unknown key error for valid config: %v", e)
		}
	}
}

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func TestBoundFlagsSorted(t *testing.T) {
	names := config.BoundFlags()
	if !slices.IsSorted(names) {
		t.Errorf("BoundFlags() not sorted: %v", names)
	}
	for _, want := range []string{"image", "log-level", "require-auth"} {
		if !slices.Contains(names, want) {
			t.Errorf("BoundFlags() missing %q", want)
		}
	}
}
