// Package device holds the device-wide session context and identity.
package device

import (
	"encoding/binary"
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
)

// InfoSize is the length of the DEVICE_INFO record:
// auth status(1) | serial(32) | firmware version(4, big-endian).
const InfoSize = 1 + command.SerialSize + 4

// Info is the identity reported to the host.
type Info struct {
	Serial        [command.SerialSize]byte
	Authenticated bool
	Firmware      command.Version
}

// Provisioned reports whether a serial has been assigned.
func (i Info) Provisioned() bool {
	return i.Serial != [command.SerialSize]byte{}
}

// Encode renders the fixed DEVICE_INFO record.
func (i Info) Encode() []byte {
	b := make([]byte, InfoSize)
	if i.Authenticated {
		b[0] = 1
	}
	copy(b[1:], i.Serial[:])
	binary.BigEndian.PutUint32(b[1+command.SerialSize:], i.Firmware.Uint32())
	return b
}

// DecodeInfo parses a DEVICE_INFO record.
func DecodeInfo(b []byte) (Info, error) {
	var i Info
	if len(b) != InfoSize {
		return i, fmt.Errorf("device info is %d bytes, want %d", len(b), InfoSize)
	}
	if b[0] > 1 {
		return i, fmt.Errorf("invalid auth status %d", b[0])
	}
	i.Authenticated = b[0] == 1
	copy(i.Serial[:], b[1:])
	i.Firmware = command.VersionFromUint32(binary.BigEndian.Uint32(b[1+command.SerialSize:]))
	return i, nil
}

// Mode gates which commands the dispatcher accepts.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeRestricted
	ModeProvisioning
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRestricted:
		return "restricted"
	case ModeProvisioning:
		return "provisioning"
	default:
		return "unknown"
	}
}

// ModeFor derives the mode from the identity. An unprovisioned device is in
// provisioning mode; an unauthenticated one is restricted when requireAuth is set.
func ModeFor(info Info, requireAuth bool) Mode {
	switch {
	case !info.Provisioned():
		return ModeProvisioning
	case requireAuth && !info.Authenticated:
		return ModeRestricted
	default:
		return ModeNormal
	}
}

// Identity is the persisted device identity and attestation key.
type Identity interface {
	Info() Info
	// Provision stores the serial, generates the attestation key and
	// returns its compressed public key.
	Provision(serial [command.SerialSize]byte) ([]byte, error)
	// SignAttestation signs a 32-byte digest with the attestation key.
	SignAttestation(digest []byte) ([]byte, error)
	SetAuthenticated(ok bool) error
	MarkUpgradePending(v command.Version) error
}
