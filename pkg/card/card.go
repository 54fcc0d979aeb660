// Package card reconstructs wallet seeds from the device share and one card
// share, gated by the card's PIN check.
package card

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/hashicorp/vault/shamir"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Threshold is the number of shares needed to rebuild a wallet.
	Threshold = 2
	// Parts is the device share plus four cards.
	Parts = 5
	// EntropySize is the length of the wallet entropy.
	EntropySize = 32
	// SeedSize is the length of the derived seed.
	SeedSize = 64
	// DefaultMaxAttempts locks a wallet after this many wrong PINs.
	DefaultMaxAttempts = 3

	seedRounds = 2048
	seedSalt   = "mnemonic"
)

var (
	ErrWrongPIN     = errors.New("wrong PIN")
	ErrAttemptsUsed = errors.New("PIN attempts exhausted")
	ErrNoCard       = errors.New("no card for wallet")
	ErrNoShare      = errors.New("no device share for wallet")
)

// Record is one card's share of a wallet.
type Record struct {
	Index    int
	WalletID wallet.ID
	Share    []byte
	// PinHash is the PIN double hash; empty for wallets without PIN.
	PinHash []byte
}

// HashPIN returns SHA-256(SHA-256(pin)).
func HashPIN(pin []byte) [sha256.Size]byte {
	first := sha256.Sum256(pin)
	defer secret.Wipe(first[:])
	return sha256.Sum256(first[:])
}

// Split divides entropy into Parts shares, any Threshold of which rebuild it.
func Split(entropy []byte) ([][]byte, error) {
	if len(entropy) != EntropySize {
		return nil, fmt.Errorf("entropy must be %d bytes, got %d", EntropySize, len(entropy))
	}
	shares, err := shamir.Split(entropy, Parts, Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split entropy: %w", err)
	}
	return shares, nil
}

// Deck holds the cards known to the device and their PIN attempt counters.
type Deck struct {
	mu          sync.Mutex
	cards       []Record
	attempts    map[wallet.ID]int
	maxAttempts int
}

// NewDeck creates a deck over records.
func NewDeck(records []Record, maxAttempts int) *Deck {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Deck{
		cards:       records,
		attempts:    make(map[wallet.ID]int),
		maxAttempts: maxAttempts,
	}
}

// Tap returns a copy of the first card share of id after checking pinHash.
// A wallet without PIN accepts an empty pinHash.
func (d *Deck) Tap(id wallet.ID, pinHash []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range d.cards {
		if c.WalletID != id {
			continue
		}
		if d.attempts[id] >= d.maxAttempts {
			return nil, ErrAttemptsUsed
		}
		if len(c.PinHash) > 0 && subtle.ConstantTimeCompare(c.PinHash, pinHash) != 1 {
			d.attempts[id]++
			if d.attempts[id] >= d.maxAttempts {
				return nil, fmt.Errorf("%w: %w", ErrWrongPIN, ErrAttemptsUsed)
			}
			return nil, ErrWrongPIN
		}
		delete(d.attempts, id)
		return append([]byte(nil), c.Share...), nil
	}
	return nil, ErrNoCard
}

// Remaining returns the PIN attempts left for id.
func (d *Deck) Remaining(id wallet.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxAttempts - d.attempts[id]
}

// DeviceShares resolves the share kept in device flash.
type DeviceShares interface {
	DeviceShare(id wallet.ID) ([]byte, error)
}

// Reconstructor rebuilds the seed of a wallet.
type Reconstructor struct {
	device DeviceShares
	deck   *Deck
}

// NewReconstructor combines device flash and a card deck.
func NewReconstructor(device DeviceShares, deck *Deck) *Reconstructor {
	return &Reconstructor{device: device, deck: deck}
}

// Seed rebuilds the wallet entropy and stretches it with the passphrase into
// seed. Every intermediate buffer is wiped before returning.
func (r *Reconstructor) Seed(id wallet.ID, pinHash, passphrase []byte, seed *secret.Buffer) error {
	deviceShare, err := r.device.DeviceShare(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoShare, err)
	}
	defer secret.Wipe(deviceShare)

	cardShare, err := r.deck.Tap(id, pinHash)
	if err != nil {
		return err
	}
	defer secret.Wipe(cardShare)

	entropy, err := shamir.Combine([][]byte{deviceShare, cardShare})
	if err != nil {
		return fmt.Errorf("failed to reconstruct wallet: %w", err)
	}
	defer secret.Wipe(entropy)

	salt := make([]byte, 0, len(seedSalt)+len(passphrase))
	salt = append(salt, seedSalt...)
	salt = append(salt, passphrase...)
	defer secret.Wipe(salt)

	derived := pbkdf2.Key(entropy, salt, seedRounds, SeedSize, sha512.New)
	defer secret.Wipe(derived)

	return seed.Set(derived)
}
