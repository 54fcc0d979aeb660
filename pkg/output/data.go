package output

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/flash"
)

// Report is everything a command may print. Empty sections are omitted.
type Report struct {
	Device  *DeviceReport  `json:"device,omitempty" yaml:"device,omitempty"`
	Wallets []WalletReport `json:"wallets,omitempty" yaml:"wallets,omitempty"`
	Coins   []CoinReport   `json:"coins,omitempty" yaml:"coins,omitempty"`
}

// DeviceReport describes the device identity.
type DeviceReport struct {
	Serial         string `json:"serial,omitempty" yaml:"serial,omitempty"`
	Provisioned    bool   `json:"provisioned" yaml:"provisioned"`
	Authenticated  bool   `json:"authenticated" yaml:"authenticated"`
	Firmware       string `json:"firmware" yaml:"firmware"`
	UpgradePending string `json:"upgradePending,omitempty" yaml:"upgradePending,omitempty"`
	Mode           string `json:"mode" yaml:"mode"`
}

// WalletReport describes one wallet slot. It never carries shares.
type WalletReport struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	State      string `json:"state" yaml:"state"`
	PIN        bool   `json:"pin" yaml:"pin"`
	Passphrase bool   `json:"passphrase" yaml:"passphrase"`
	Cards      int    `json:"cards" yaml:"cards"`
}

// CoinReport describes one coin app.
type CoinReport struct {
	Name     string   `json:"name" yaml:"name"`
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Index    uint32   `json:"index" yaml:"index"`
	Family   string   `json:"family" yaml:"family"`
	Curve    string   `json:"curve" yaml:"curve"`
	Decimals uint8    `json:"decimals" yaml:"decimals"`
	Networks []string `json:"networks,omitempty" yaml:"networks,omitempty"`
	Tokens   []string `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

// NewDeviceReport builds the device section from the reported identity.
func NewDeviceReport(info device.Info, pending string, requireAuth bool) *DeviceReport {
	r := &DeviceReport{
		Provisioned:    info.Provisioned(),
		Authenticated:  info.Authenticated,
		Firmware:       info.Firmware.String(),
		UpgradePending: pending,
		Mode:           device.ModeFor(info, requireAuth).String(),
	}
	if r.Provisioned {
		r.Serial = hex.EncodeToString(info.Serial[:])
	}
	return r
}

// NewWalletReports lists the image's wallets with their card counts.
func NewWalletReports(img flash.Image) []WalletReport {
	cards := make(map[string]int, len(img.Wallets))
	for _, c := range img.Cards {
		cards[strings.ToLower(c.WalletID)]++
	}

	out := make([]WalletReport, 0, len(img.Wallets))
	for _, w := range img.Wallets {
		out = append(out, WalletReport{
			ID:         w.ID,
			Name:       w.Name,
			State:      w.State,
			PIN:        w.PIN,
			Passphrase: w.Passphrase,
			Cards:      cards[strings.ToLower(w.ID)],
		})
	}
	return out
}

// NewCoinReport describes c.
func NewCoinReport(c coin.Coin) CoinReport {
	r := CoinReport{
		Name:     c.Name,
		Symbol:   c.Symbol,
		Index:    c.Index &^ coin.Hardened,
		Family:   c.Family.String(),
		Curve:    c.Curve.String(),
		Decimals: c.Decimals,
	}
	for _, n := range c.Networks {
		r.Networks = append(r.Networks, fmt.Sprintf("%s (%d)", n.Name, n.ChainID))
	}
	for _, t := range c.Tokens {
		r.Tokens = append(r.Tokens, t.Symbol)
	}
	return r
}

// NewCoinReports describes every coin in order.
func NewCoinReports(coins []coin.Coin) []CoinReport {
	out := make([]CoinReport, 0, len(coins))
	for _, c := range coins {
		out = append(out, NewCoinReport(c))
	}
	return out
}
