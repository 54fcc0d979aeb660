// Package transport moves command frames from the host to the device loop
// and responses back.
package transport

import "fmt"

// Kind tags a device response frame.
type Kind uint8

const (
	KindDeviceInfo    Kind = 0x10
	KindCoinList      Kind = 0x11
	KindProvisioned   Kind = 0x12
	KindAuth          Kind = 0x13
	KindFirmwareAck   Kind = 0x14
	KindLogChunk      Kind = 0x15
	KindLogEnd        Kind = 0x16
	KindWalletList    Kind = 0x20
	KindAddCoinResult Kind = 0x21
	KindSignature     Kind = 0x22
	KindAddress       Kind = 0x23
	KindConfirmed     Kind = 0x30

	KindInvalidCommand Kind = 0x80
	KindWalletRejected Kind = 0x81
	KindWalletLocked   Kind = 0x82
	KindTxnRejected    Kind = 0x83
	KindUserRejected   Kind = 0x84
	KindBusy           Kind = 0x85
	KindTimeout        Kind = 0x86
	KindDeviceError    Kind = 0x87
)

var kindNames = map[Kind]string{
	KindDeviceInfo:     "DEVICE_INFO",
	KindCoinList:       "COIN_LIST",
	KindProvisioned:    "PROVISIONED",
	KindAuth:           "AUTH",
	KindFirmwareAck:    "FIRMWARE_ACK",
	KindLogChunk:       "LOG_CHUNK",
	KindLogEnd:         "LOG_END",
	KindWalletList:     "WALLET_LIST",
	KindAddCoinResult:  "ADD_COIN_RESULT",
	KindSignature:      "SIGNATURE",
	KindAddress:        "ADDRESS",
	KindConfirmed:      "CONFIRMED",
	KindInvalidCommand: "INVALID_COMMAND",
	KindWalletRejected: "WALLET_REJECTED",
	KindWalletLocked:   "WALLET_LOCKED",
	KindTxnRejected:    "TXN_REJECTED",
	KindUserRejected:   "USER_REJECTED",
	KindBusy:           "BUSY",
	KindTimeout:        "TIMEOUT",
	KindDeviceError:    "DEVICE_ERROR",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(0x%02x)", uint8(k))
}

// IsError reports whether k is a rejection or failure response.
func (k Kind) IsError() bool {
	return k >= KindInvalidCommand
}

// Reason codes for KindTxnRejected.
const (
	TxnReasonMetadata uint8 = 0
)

// Response is one device-to-host frame.
type Response struct {
	Kind    Kind
	Code    uint8
	Payload []byte
}

func (r Response) String() string {
	return fmt.Sprintf("%s(code=%d, %d bytes)", r.Kind, r.Code, len(r.Payload))
}

// Invalid is the uniform response to an undecodable or disallowed command.
func Invalid() Response {
	return Response{Kind: KindInvalidCommand}
}
