package flash

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type imageJSON struct {
	Version *string       `json:"version"`
	Device  *deviceJSON   `json:"device"`
	Wallets *[]walletJSON `json:"wallets"`
	Cards   []Card        `json:"cards"`
}

type deviceJSON struct {
	Serial         string  `json:"serial"`
	Authenticated  bool    `json:"authenticated"`
	AttestationKey string  `json:"attestationKey"`
	Firmware       *string `json:"firmware"`
	UpgradePending string  `json:"upgradePending"`
}

type walletJSON struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	State       *string `json:"state"`
	PIN         bool    `json:"pin"`
	Passphrase  bool    `json:"passphrase"`
	DeviceShare *string `json:"deviceShare"`
}

// Parse parses an image from JSON bytes.
func Parse(data []byte) (*Image, error) {
	return parseImage(data, "")
}

// ParseFile parses a JSON image from disk.
func ParseFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flash image %s: %w", path, err)
	}
	return parseImage(data, path)
}

// WriteFile validates img and writes it to disk as deterministic JSON.
func WriteFile(path string, img Image) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("flash image path is required")
	}

	normalized := img
	if normalized.Version == "" {
		normalized.Version = VersionV1
	}
	if normalized.Wallets == nil {
		normalized.Wallets = []Wallet{}
	}
	normalized.Cards = SortedCards(normalized.Cards)
	if err := check(&normalized, path); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal flash image: %w", err)
	}
	payload = append(payload, '\n')

	return writeFileAtomic(path, payload)
}

func parseImage(data []byte, path string) (*Image, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed(path, errors.New("empty flash image"))
	}

	var raw imageJSON
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return nil, malformed(path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, malformed(path, errors.New("unexpected trailing data"))
	}

	if raw.Version == nil || strings.TrimSpace(*raw.Version) == "" {
		return nil, invalid(path, "version", errMissing)
	}
	if raw.Device == nil {
		return nil, invalid(path, "device", errMissing)
	}
	if raw.Device.Firmware == nil {
		return nil, invalid(path, "device.firmware", errMissing)
	}
	if raw.Wallets == nil {
		return nil, invalid(path, "wallets", errMissing)
	}

	img := &Image{
		Version: strings.TrimSpace(*raw.Version),
		Device: Device{
			Serial:         raw.Device.Serial,
			Authenticated:  raw.Device.Authenticated,
			AttestationKey: raw.Device.AttestationKey,
			Firmware:       *raw.Device.Firmware,
			UpgradePending: raw.Device.UpgradePending,
		},
		Wallets: make([]Wallet, 0, len(*raw.Wallets)),
		Cards:   raw.Cards,
	}
	if img.Cards == nil {
		img.Cards = []Card{}
	}

	for i, w := range *raw.Wallets {
		prefix := fmt.Sprintf("wallets[%d]", i)
		switch {
		case w.ID == nil:
			return nil, invalid(path, prefix+".id", errMissing)
		case w.Name == nil:
			return nil, invalid(path, prefix+".name", errMissing)
		case w.State == nil:
			return nil, invalid(path, prefix+".state", errMissing)
		case w.DeviceShare == nil:
			return nil, invalid(path, prefix+".deviceShare", errMissing)
		}
		img.Wallets = append(img.Wallets, Wallet{
			ID:          *w.ID,
			Name:        *w.Name,
			State:       *w.State,
			PIN:         w.PIN,
			Passphrase:  w.Passphrase,
			DeviceShare: *w.DeviceShare,
		})
	}

	if err := check(img, path); err != nil {
		return nil, err
	}
	return img, nil
}

// check enforces the invariants every stored image satisfies.
func check(img *Image, path string) error {
	if img.Version != VersionV1 {
		return invalid(path, "version", fmt.Errorf("unsupported value %q", img.Version))
	}

	if _, err := command.ParseVersion(img.Device.Firmware); err != nil {
		return invalid(path, "device.firmware", err)
	}
	if img.Device.UpgradePending != "" {
		if _, err := command.ParseVersion(img.Device.UpgradePending); err != nil {
			return invalid(path, "device.upgradePending", err)
		}
	}
	if err := checkHex(img.Device.Serial, command.SerialSize, true); err != nil {
		return invalid(path, "device.serial", err)
	}
	if err := checkHex(img.Device.AttestationKey, 32, true); err != nil {
		return invalid(path, "device.attestationKey", err)
	}
	if img.Device.Serial != "" && img.Device.AttestationKey == "" {
		return invalid(path, "device.attestationKey", errors.New("missing for provisioned device"))
	}

	if len(img.Wallets) > wallet.MaxWallets {
		return invalid(path, "wallets", fmt.Errorf("at most %d wallets", wallet.MaxWallets))
	}
	ids := make(map[string]struct{}, len(img.Wallets))
	for i, w := range img.Wallets {
		prefix := fmt.Sprintf("wallets[%d]", i)
		id, err := wallet.ParseID(w.ID)
		if err != nil {
			return invalid(path, prefix+".id", err)
		}
		if _, dup := ids[id.String()]; dup {
			return invalid(path, prefix+".id", errors.New("duplicate wallet id"))
		}
		ids[id.String()] = struct{}{}

		if strings.TrimSpace(w.Name) == "" || len(w.Name) > wallet.MaxNameLen {
			return invalid(path, prefix+".name", fmt.Errorf("must be 1-%d characters", wallet.MaxNameLen))
		}
		if _, err := wallet.ParseState(w.State); err != nil {
			return invalid(path, prefix+".state", err)
		}
		if err := checkHex(w.DeviceShare, 0, false); err != nil {
			return invalid(path, prefix+".deviceShare", err)
		}
	}

	for i, c := range img.Cards {
		prefix := fmt.Sprintf("cards[%d]", i)
		if c.Index < 1 || c.Index > 4 {
			return invalid(path, prefix+".index", errors.New("must be between 1 and 4"))
		}
		id, err := wallet.ParseID(c.WalletID)
		if err != nil {
			return invalid(path, prefix+".walletId", err)
		}
		if _, ok := ids[id.String()]; !ok {
			return invalid(path, prefix+".walletId", errors.New("unknown wallet"))
		}
		if err := checkHex(c.Share, 0, false); err != nil {
			return invalid(path, prefix+".share", err)
		}
		if err := checkHex(c.PinHash, wallet.PasswordHashSize, true); err != nil {
			return invalid(path, prefix+".pinHash", err)
		}
	}

	return nil
}

// checkHex validates a 0x-prefixed field. size 0 accepts any non-empty length.
func checkHex(s string, size int, optional bool) error {
	if s == "" {
		if optional {
			return nil
		}
		return errors.New("missing")
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("empty")
	}
	if size > 0 && len(b) != size {
		return fmt.Errorf("must be %d bytes, got %d", size, len(b))
	}
	return nil
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create image directory %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.")
	if err != nil {
		return fmt.Errorf("create temp image file: %w", err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(payload); err != nil {
		_ = tmpFile.Close()
		logger.Error("failed to write flash image", "path", path, "temp_path", tmpName, "error", err)
		return fmt.Errorf("write flash image %s: %w", path, err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		logger.Error("failed to sync flash image", "path", path, "temp_path", tmpName, "error", err)
		return fmt.Errorf("sync flash image %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		logger.Error("failed to close image temp file", "path", path, "temp_path", tmpName, "error", err)
		return fmt.Errorf("close image temp file %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		logger.Error("failed to set image permissions", "path", path, "temp_path", tmpName, "error", err)
		return fmt.Errorf("chmod flash image %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		logger.Error("failed to replace flash image", "path", path, "temp_path", tmpName, "error", err)
		return fmt.Errorf("replace flash image %s: %w", path, err)
	}

	return nil
}
