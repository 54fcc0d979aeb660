package flash

import (
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"

	"github.com/andri/cardwallet/pkg/card"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/crypto"
)

func openDemo(t *testing.T) (*Store, wallet.ID, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image.json")
	img := demoImage(t)
	if err := WriteFile(path, *img); err != nil {
		t.Fatalf("write image: %v", err)
	}
	s, err := Open(path, Options{MaxPINAttempts: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	id, err := wallet.ParseID(img.Wallets[0].ID)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	return s, id, path
}

func TestStoreSlots(t *testing.T) {
	t.Parallel()

	s, id, _ := openDemo(t)
	slots := s.Slots()
	if slots[0].ID != id || slots[0].State != wallet.StateValid || !slots[0].Info.PinSet() {
		t.Fatalf("unexpected slot: %+v", slots[0])
	}
	if slots[1].State != wallet.StateEmpty {
		t.Fatalf("expected empty second slot")
	}

	active := wallet.NewActive()
	if err := wallet.Select(s, id, active); err != nil {
		t.Fatalf("select: %v", err)
	}
}

func TestStoreLockPersists(t *testing.T) {
	t.Parallel()

	s, id, path := openDemo(t)
	if err := s.Lock(id); err != nil {
		t.Fatalf("lock: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	err = wallet.Select(reopened, id, wallet.NewActive())
	if !errors.Is(err, wallet.ErrLocked) {
		t.Fatalf("expected locked wallet, got %v", err)
	}

	if err := s.Lock(wallet.ID{0xff}); !errors.Is(err, ErrUnknownWallet) {
		t.Fatalf("expected unknown wallet, got %v", err)
	}
}

func TestStoreReconstructsSeed(t *testing.T) {
	t.Parallel()

	s, id, _ := openDemo(t)
	r := card.NewReconstructor(s, s.Deck())
	pin := card.HashPIN([]byte("1234"))
	seed := secret.New(card.SeedSize)
	if err := r.Seed(id, pin[:], nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if seed.Len() != card.SeedSize {
		t.Fatalf("unexpected seed length %d", seed.Len())
	}
}

func TestStoreIdentity(t *testing.T) {
	t.Parallel()

	s, _, path := openDemo(t)
	if s.Info().Provisioned() {
		t.Fatalf("expected unprovisioned device")
	}
	if _, err := s.SignAttestation(make([]byte, 32)); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected not provisioned, got %v", err)
	}

	var serial [command.SerialSize]byte
	serial[0] = 0xaa
	pub, err := s.Provision(serial)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := s.Provision(serial); !errors.Is(err, ErrAlreadyProvisioned) {
		t.Fatalf("expected already provisioned, got %v", err)
	}

	digest := sha256.Sum256(serial[:])
	sig, err := s.SignAttestation(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if string(crypto.CompressPubkey(recovered)) != string(pub) {
		t.Fatalf("signature does not match attestation key")
	}

	if err := s.SetAuthenticated(true); err != nil {
		t.Fatalf("set authenticated: %v", err)
	}
	if err := s.MarkUpgradePending(command.Version{Major: 2}); err != nil {
		t.Fatalf("mark upgrade: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info := reopened.Info()
	if info.Serial != serial || !info.Authenticated {
		t.Fatalf("identity not persisted: %+v", info)
	}
	if reopened.Image().Device.UpgradePending != "2.0.0" {
		t.Fatalf("upgrade not persisted")
	}
	key, err := reopened.AttestationPublicKey()
	if err != nil || string(key) != string(pub) {
		t.Fatalf("attestation key not persisted: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s, err := NewStore(NewImage(command.Version{Major: 1}), "", Options{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.SetAuthenticated(true); err != nil {
		t.Fatalf("set authenticated: %v", err)
	}
	if !s.Image().Device.Authenticated {
		t.Fatalf("expected in-memory change")
	}
}
