package flash

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/device"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNotProvisioned     = errors.New("device is not provisioned")
	ErrAlreadyProvisioned = errors.New("device is already provisioned")
	ErrUnknownWallet      = errors.New("unknown wallet")
)

// Options configures a Store.
type Options struct {
	MaxPINAttempts int
}

// Store is the live view of an image. Changes are written back to its path;
// a store without path keeps them in memory only.
type Store struct {
	mu    sync.Mutex
	path  string
	image *Image
	deck  *card.Deck
}

var (
	_ wallet.Table      = (*Store)(nil)
	_ device.Identity   = (*Store)(nil)
	_ card.DeviceShares = (*Store)(nil)
)

// Open loads the image at path.
func Open(path string, opts Options) (*Store, error) {
	img, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(img, path, opts)
}

// NewStore wraps an already parsed image.
func NewStore(img *Image, path string, opts Options) (*Store, error) {
	if err := check(img, path); err != nil {
		return nil, err
	}

	records := make([]card.Record, 0, len(img.Cards))
	for _, c := range SortedCards(img.Cards) {
		id, _ := wallet.ParseID(c.WalletID)
		share, _ := hexutil.Decode(c.Share)
		var pinHash []byte
		if c.PinHash != "" {
			pinHash, _ = hexutil.Decode(c.PinHash)
		}
		records = append(records, card.Record{Index: c.Index, WalletID: id, Share: share, PinHash: pinHash})
	}

	return &Store{
		path:  path,
		image: img,
		deck:  card.NewDeck(records, opts.MaxPINAttempts),
	}, nil
}

// Path returns the backing file, if any.
func (s *Store) Path() string {
	return s.path
}

// Image returns a copy of the current image.
func (s *Store) Image() Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := *s.image
	img.Wallets = append([]Wallet(nil), s.image.Wallets...)
	img.Cards = append([]Card(nil), s.image.Cards...)
	return img
}

// Deck returns the cards of every wallet.
func (s *Store) Deck() *card.Deck {
	return s.deck
}

// Slots implements wallet.Table.
func (s *Store) Slots() [wallet.MaxWallets]wallet.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slots [wallet.MaxWallets]wallet.Record
	for i, w := range s.image.Wallets {
		id, _ := wallet.ParseID(w.ID)
		state, _ := wallet.ParseState(w.State)
		var info wallet.Info
		if w.PIN {
			info |= wallet.InfoPinSet
		}
		if w.Passphrase {
			info |= wallet.InfoPassphraseSet
		}
		slots[i] = wallet.Record{ID: id, Name: w.Name, State: state, Info: info}
	}
	return slots
}

// Lock marks a wallet locked after its PIN attempts are used up.
func (s *Store) Lock(id wallet.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.findWallet(id)
	if w == nil {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, id.Short())
	}
	w.State = wallet.StateLocked.String()
	logger.Warn("wallet locked", "wallet", id.Short())
	return s.save()
}

// DeviceShare implements card.DeviceShares.
func (s *Store) DeviceShare(id wallet.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.findWallet(id)
	if w == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWallet, id.Short())
	}
	return hexutil.Decode(w.DeviceShare)
}

// Info implements device.Identity.
func (s *Store) Info() device.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	var info device.Info
	if s.image.Device.Serial != "" {
		serial, _ := hexutil.Decode(s.image.Device.Serial)
		copy(info.Serial[:], serial)
	}
	info.Authenticated = s.image.Device.Authenticated
	info.Firmware, _ = command.ParseVersion(s.image.Device.Firmware)
	return info
}

// Provision implements device.Identity.
func (s *Store) Provision(serial [command.SerialSize]byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image.Device.Serial != "" {
		return nil, ErrAlreadyProvisioned
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate attestation key: %w", err)
	}
	defer key.D.SetInt64(0)

	s.image.Device.Serial = hexutil.Encode(serial[:])
	s.image.Device.AttestationKey = hexutil.Encode(crypto.FromECDSA(key))
	s.image.Device.Authenticated = false
	if err := s.save(); err != nil {
		s.image.Device.Serial = ""
		s.image.Device.AttestationKey = ""
		return nil, err
	}

	logger.Info("device provisioned", "serial", strings.TrimPrefix(s.image.Device.Serial, "0x")[:8])
	return crypto.CompressPubkey(&key.PublicKey), nil
}

// SignAttestation implements device.Identity.
func (s *Store) SignAttestation(digest []byte) ([]byte, error) {
	s.mu.Lock()
	encoded := s.image.Device.AttestationKey
	s.mu.Unlock()

	if encoded == "" {
		return nil, ErrNotProvisioned
	}
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode attestation key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	clear(raw)
	if err != nil {
		return nil, fmt.Errorf("load attestation key: %w", err)
	}
	defer key.D.SetInt64(0)
	return crypto.Sign(digest, key)
}

// AttestationPublicKey returns the compressed attestation public key.
func (s *Store) AttestationPublicKey() ([]byte, error) {
	s.mu.Lock()
	encoded := s.image.Device.AttestationKey
	s.mu.Unlock()

	if encoded == "" {
		return nil, ErrNotProvisioned
	}
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	clear(raw)
	if err != nil {
		return nil, err
	}
	defer key.D.SetInt64(0)
	return crypto.CompressPubkey(&key.PublicKey), nil
}

// SetAuthenticated implements device.Identity.
func (s *Store) SetAuthenticated(ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image.Device.Authenticated = ok
	return s.save()
}

// MarkUpgradePending implements device.Identity.
func (s *Store) MarkUpgradePending(v command.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image.Device.UpgradePending = v.String()
	return s.save()
}

func (s *Store) findWallet(id wallet.ID) *Wallet {
	for i := range s.image.Wallets {
		parsed, err := wallet.ParseID(s.image.Wallets[i].ID)
		if err == nil && parsed == id {
			return &s.image.Wallets[i]
		}
	}
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	return WriteFile(s.path, *s.image)
}
