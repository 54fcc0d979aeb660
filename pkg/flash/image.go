// Package flash persists the device image: identity, wallet slots and the
// card shares of each wallet.
package flash

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// VersionV1 is the current image version.
	VersionV1 = "v1"
)

// Image is the persisted flash content. Binary fields are 0x-prefixed hex.
type Image struct {
	Version string   `json:"version"`
	Device  Device   `json:"device"`
	Wallets []Wallet `json:"wallets"`
	Cards   []Card   `json:"cards"`
}

// Device is the device identity record.
type Device struct {
	Serial         string `json:"serial,omitempty"`
	Authenticated  bool   `json:"authenticated"`
	AttestationKey string `json:"attestationKey,omitempty"`
	Firmware       string `json:"firmware"`
	UpgradePending string `json:"upgradePending,omitempty"`
}

// Wallet is one wallet slot.
type Wallet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	PIN         bool   `json:"pin"`
	Passphrase  bool   `json:"passphrase"`
	DeviceShare string `json:"deviceShare"`
}

// Card is one card's share of a wallet.
type Card struct {
	Index    int    `json:"index"`
	WalletID string `json:"walletId"`
	Share    string `json:"share"`
	PinHash  string `json:"pinHash,omitempty"`
}

// NewImage returns an unprovisioned image running firmware.
func NewImage(firmware command.Version) *Image {
	return &Image{
		Version: VersionV1,
		Device:  Device{Firmware: firmware.String()},
		Wallets: []Wallet{},
		Cards:   []Card{},
	}
}

// WalletSpec describes a wallet to create.
type WalletSpec struct {
	Name       string
	PIN        string
	Passphrase bool
}

// AddWallet generates wallet entropy from rnd (crypto/rand when nil), splits
// it across the device and four cards and stores the slot.
func (img *Image) AddWallet(spec WalletSpec, rnd io.Reader) (wallet.ID, error) {
	var id wallet.ID
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return id, fmt.Errorf("wallet name is required")
	}
	if len(name) > wallet.MaxNameLen {
		return id, fmt.Errorf("wallet name exceeds %d characters", wallet.MaxNameLen)
	}
	if len(img.Wallets) >= wallet.MaxWallets {
		return id, fmt.Errorf("all %d wallet slots are in use", wallet.MaxWallets)
	}
	for _, w := range img.Wallets {
		if w.Name == name {
			return id, fmt.Errorf("wallet %q already exists", name)
		}
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	if _, err := io.ReadFull(rnd, id[:]); err != nil {
		return id, fmt.Errorf("generate wallet id: %w", err)
	}

	err := secret.Scope(card.EntropySize, func(entropy *secret.Buffer) error {
		raw := make([]byte, card.EntropySize)
		defer secret.Wipe(raw)
		if _, err := io.ReadFull(rnd, raw); err != nil {
			return fmt.Errorf("generate wallet entropy: %w", err)
		}
		if err := entropy.Set(raw); err != nil {
			return err
		}

		shares, err := card.Split(entropy.Bytes())
		if err != nil {
			return err
		}
		defer func() {
			for _, s := range shares {
				secret.Wipe(s)
			}
		}()

		var pinHash string
		if spec.PIN != "" {
			h := card.HashPIN([]byte(spec.PIN))
			pinHash = hexutil.Encode(h[:])
		}

		img.Wallets = append(img.Wallets, Wallet{
			ID:          hexutil.Encode(id[:]),
			Name:        name,
			State:       wallet.StateValid.String(),
			PIN:         spec.PIN != "",
			Passphrase:  spec.Passphrase,
			DeviceShare: hexutil.Encode(shares[0]),
		})
		for i, s := range shares[1:] {
			img.Cards = append(img.Cards, Card{
				Index:    i + 1,
				WalletID: hexutil.Encode(id[:]),
				Share:    hexutil.Encode(s),
				PinHash:  pinHash,
			})
		}
		return nil
	})
	return id, err
}

// SortedCards returns a copy of cards sorted by wallet, then index.
func SortedCards(cards []Card) []Card {
	sorted := append([]Card(nil), cards...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].WalletID != sorted[j].WalletID {
			return sorted[i].WalletID < sorted[j].WalletID
		}
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}
