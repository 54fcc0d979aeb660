package flash

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ValidationWarning represents a non-fatal issue with an image.
type ValidationWarning struct {
	Message string
}

// ValidateFile parses an image on disk and returns it with its warnings.
func ValidateFile(path string) (*Image, []ValidationWarning, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, errors.New("flash image path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("flash image not found: %s, run 'cardwallet image init' first", path)
		}
		return nil, nil, fmt.Errorf("stat flash image %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("flash image path is a directory: %s", path)
	}

	img, err := ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	return img, ValidateImage(img), nil
}

// ValidateImage reports conditions that leave the device partly usable.
func ValidateImage(img *Image) []ValidationWarning {
	if img == nil {
		return nil
	}

	var warnings []ValidationWarning
	switch {
	case img.Device.Serial == "":
		warnings = append(warnings, ValidationWarning{Message: "Device is not provisioned; only DEVICE_INFO and PROVISION are accepted."})
	case !img.Device.Authenticated:
		warnings = append(warnings, ValidationWarning{Message: "Device is not authenticated."})
	}
	if img.Device.UpgradePending != "" {
		warnings = append(warnings, ValidationWarning{
			Message: fmt.Sprintf("Firmware upgrade to %s is pending.", img.Device.UpgradePending),
		})
	}

	cards := make(map[string]int)
	for _, c := range img.Cards {
		cards[strings.ToLower(c.WalletID)]++
	}
	for _, w := range img.Wallets {
		if cards[strings.ToLower(w.ID)] == 0 {
			warnings = append(warnings, ValidationWarning{
				Message: fmt.Sprintf("Wallet %q has no cards and cannot be unlocked.", w.Name),
			})
		}
		if w.State != "valid" {
			warnings = append(warnings, ValidationWarning{
				Message: fmt.Sprintf("Wallet %q is %s.", w.Name, w.State),
			})
		}
	}
	return warnings
}
