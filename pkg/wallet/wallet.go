// Package wallet models the on-device wallet table and the wallet bound to
// the running workflow.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// IDSize is the length of a wallet identifier.
	IDSize = 32
	// MaxWallets is the number of wallet slots in flash.
	MaxWallets = 4
	// MaxNameLen bounds wallet names.
	MaxNameLen = 16
	// PasswordHashSize is the length of the PIN double hash.
	PasswordHashSize = 32
	// MaxPassphraseLen bounds the passphrase buffer.
	MaxPassphraseLen = 64
)

// ID identifies a wallet across the device and the host.
type ID [IDSize]byte

// ParseID decodes a hex wallet id.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("decode wallet id: %w", err)
	}
	if len(raw) != IDSize {
		return id, fmt.Errorf("wallet id must be %d bytes, got %d", IDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first four bytes in hex for log lines.
func (id ID) Short() string {
	return hex.EncodeToString(id[:4])
}

// State is the persisted lifecycle state of a wallet slot.
type State uint8

const (
	StateEmpty State = iota
	StateValid
	StatePartial
	StateUnverified
	StateLocked
)

var stateNames = map[State]string{
	StateEmpty:      "empty",
	StateValid:      "valid",
	StatePartial:    "partial",
	StateUnverified: "unverified",
	StateLocked:     "locked",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseState maps a persisted state name back to a State.
func ParseState(s string) (State, error) {
	for state, name := range stateNames {
		if name == s {
			return state, nil
		}
	}
	return StateEmpty, fmt.Errorf("unknown wallet state %q", s)
}

// Info is the wallet configuration bit set.
type Info uint8

const (
	InfoPinSet Info = 1 << iota
	InfoPassphraseSet
)

// PinSet reports whether the wallet is PIN protected.
func (i Info) PinSet() bool { return i&InfoPinSet != 0 }

// PassphraseSet reports whether the wallet uses a passphrase.
func (i Info) PassphraseSet() bool { return i&InfoPassphraseSet != 0 }

// Record is one wallet slot as stored in flash. It never holds secrets.
type Record struct {
	ID    ID
	Name  string
	State State
	Info  Info
}

// Table is the fixed slot table of persisted wallets.
type Table interface {
	Slots() [MaxWallets]Record
}

// Reason is the code sent to the host when wallet selection fails.
type Reason uint8

const (
	ReasonNoWallets   Reason = 0
	ReasonNotVerified Reason = 1
	ReasonNotFound    Reason = 2
)

// ErrLocked matches a RejectError for a locked wallet.
var ErrLocked = errors.New("wallet locked")

// RejectError reports why a wallet id could not be bound.
type RejectError struct {
	Reason Reason
	Locked bool
}

func (e *RejectError) Error() string {
	if e.Locked {
		return "wallet is locked"
	}
	switch e.Reason {
	case ReasonNoWallets:
		return "no wallets on device"
	case ReasonNotVerified:
		return "wallet is not verified"
	case ReasonNotFound:
		return "wallet not found"
	default:
		return fmt.Sprintf("wallet rejected (reason %d)", e.Reason)
	}
}

// Is lets errors.Is(err, ErrLocked) match locked rejections.
func (e *RejectError) Is(target error) bool {
	return target == ErrLocked && e.Locked
}

// Select resolves id against the table and binds the matching wallet to
// active. On rejection active is left untouched.
func Select(table Table, id ID, active *Active) error {
	slots := table.Slots()

	populated := 0
	for _, rec := range slots {
		if rec.State != StateEmpty {
			populated++
		}
	}
	if populated == 0 {
		return &RejectError{Reason: ReasonNoWallets}
	}

	for _, rec := range slots {
		if rec.State == StateEmpty || rec.ID != id {
			continue
		}
		switch rec.State {
		case StateValid:
			active.Bind(rec)
			return nil
		case StateLocked:
			return &RejectError{Reason: ReasonNotVerified, Locked: true}
		default:
			return &RejectError{Reason: ReasonNotVerified}
		}
	}

	return &RejectError{Reason: ReasonNotFound}
}
