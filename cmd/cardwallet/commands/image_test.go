package commands_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func initImage(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.json")
	args := append([]string{"--image", path, "image", "init", "--force"}, extra...)
	if _, err := execute(t, args...); err != nil {
		t.Fatalf("image init: %v", err)
	}
	return path
}

func TestImageInitAndShow(t *testing.T) {
	path := initImage(t, "-w", "Main:1234", "-w", "Savings")

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("image not written: %v", err)
	}

	output, err := execute(t, "--image", path, "image", "show")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"not provisioned", "=== WALLETS (2) ===", "Main", "Savings"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %q", want, output)
		}
	}
}

func TestImageShowJSON(t *testing.T) {
	path := initImage(t)

	output, err := execute(t, "--image", path, "image", "show", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if _, ok := result["wallets"]; !ok {
		t.Errorf("expected wallets key, got %v", result)
	}
}

func TestImageInitDeclinedOverwrite(t *testing.T) {
	path := initImage(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// No --force and empty stdin: the prompt defaults to no.
	_, err = execute(t, "--image", path, "image", "init", "-w", "Other")
	if err == nil || !strings.Contains(err.Error(), "aborted") {
		t.Fatalf("expected aborted error, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("declined overwrite modified the image")
	}
}

func TestImageInitRejectsBadFirmware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.json")
	_, err := execute(t, "--image", path, "image", "init", "--firmware", "one.two")
	if err == nil {
		t.Fatal("expected error for invalid firmware version")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("image written despite error: %v", statErr)
	}
}

func TestImageShowMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	if _, err := execute(t, "--image", path, "image", "show"); err == nil {
		t.Error("expected error for missing image")
	}
}
