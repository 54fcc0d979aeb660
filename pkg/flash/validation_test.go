package flash

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFileNotFound(t *testing.T) {
	t.Parallel()

	_, _, err := ValidateFile(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "image init") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestValidateImageWarnings(t *testing.T) {
	t.Parallel()

	img := demoImage(t)
	img.Device.UpgradePending = "2.0.0"
	img.Wallets[0].State = "locked"
	img.Cards = nil

	warnings := ValidateImage(img)
	want := []string{"not provisioned", "pending", "no cards", "locked"}
	if len(warnings) != len(want) {
		t.Fatalf("expected %d warnings, got %+v", len(want), warnings)
	}
	for i, w := range want {
		if !strings.Contains(warnings[i].Message, w) {
			t.Fatalf("warning %d = %q, want it to mention %q", i, warnings[i].Message, w)
		}
	}
}

func TestValidateFileClean(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "image.json")
	img := demoImage(t)
	img.Device.Serial = "0x" + strings.Repeat("ab", 32)
	img.Device.AttestationKey = "0x" + strings.Repeat("01", 32)
	img.Device.Authenticated = true
	if err := WriteFile(path, *img); err != nil {
		t.Fatalf("write image: %v", err)
	}

	_, warnings, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
}
