// Package command defines the host command frames and their fixed-layout
// decoders.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPayload bounds a command payload. Larger payloads are rejected before decoding.
const MaxPayload = 4096

// Type is the command tag carried by every host frame.
type Type uint8

const (
	TypeStatus          Type = 0x01
	TypeDeviceInfo      Type = 0x10
	TypeListCoins       Type = 0x11
	TypeProvision       Type = 0x12
	TypeDeviceAuth      Type = 0x13
	TypeFirmwareUpgrade Type = 0x14
	TypeAppLog          Type = 0x15
	TypeFetchNext       Type = 0x16
	TypeExportWallet    Type = 0x20
	TypeAddCoin         Type = 0x21
	TypeSendTxn         Type = 0x22
	TypeRecvTxn         Type = 0x23
	TypeSwapTxn         Type = 0x24
	TypeUnsignedTxn     Type = 0x25
)

var typeNames = map[Type]string{
	TypeStatus:          "STATUS",
	TypeDeviceInfo:      "DEVICE_INFO",
	TypeListCoins:       "LIST_SUPPORTED_COINS",
	TypeProvision:       "PROVISION_DEVICE",
	TypeDeviceAuth:      "START_DEVICE_AUTHENTICATION",
	TypeFirmwareUpgrade: "START_FIRMWARE_UPGRADE",
	TypeAppLog:          "APP_LOG_DATA_SEND",
	TypeFetchNext:       "FETCH_NEXT",
	TypeExportWallet:    "EXPORT_WALLET",
	TypeAddCoin:         "ADD_COIN_START",
	TypeSendTxn:         "SEND_TXN_START",
	TypeRecvTxn:         "RECV_TXN_START",
	TypeSwapTxn:         "SWAP_TXN_START",
	TypeUnsignedTxn:     "UNSIGNED_TXN",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
}

// Known reports whether t is a recognized command tag.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType resolves a command name or a numeric tag. Any 0xNN tag is
// accepted; the dispatcher answers tags it does not know.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	if hex, ok := strings.CutPrefix(s, "0x"); ok && len(hex) > 0 && len(hex) <= 2 {
		if n, err := strconv.ParseUint(hex, 16, 8); err == nil {
			return Type(n), nil
		}
	}
	return 0, fmt.Errorf("unknown command type %q", s)
}

// Command is one decoded host frame.
type Command struct {
	Type    Type
	Payload []byte
}

// Status is the code carried by a host status frame.
type Status uint8

const (
	StatusSuccess Status = 0x00
	StatusAbort   Status = 0x01
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAbort:
		return "abort"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}
