package command

import (
	"bytes"
	"encoding/binary"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/wallet"
)

// Payload sizes of the fixed-layout commands.
const (
	SerialSize       = 32
	ChallengeSize    = 32
	TokenSymbolSize  = 16
	MaxRecipientLen  = 64
	addCoinSize      = wallet.IDSize + pathBlockSize
	sendSize         = wallet.IDSize + pathBlockSize + 1 + TokenSymbolSize
	swapSize         = wallet.IDSize + 2*pathBlockSize
	firmwareSize     = 4
	unsignedHeader   = 8 + 1
	unsignedDataSize = 2
)

// TxnKind selects the confirmation template of a send.
type TxnKind uint8

const (
	TxnNative TxnKind = iota
	TxnToken
	TxnAccountCreate
)

// Target is a validated path together with the coin and network it addresses.
type Target struct {
	PathSpec
	Coin    coin.Coin
	Network coin.Network
}

// AddCoinRequest asks for the account public key of a coin.
type AddCoinRequest struct {
	WalletID wallet.ID
	Target   Target
}

// SendRequest starts a signing session.
type SendRequest struct {
	WalletID wallet.ID
	Target   Target
	Kind     TxnKind
	Token    string
}

// ReceiveRequest asks for an address to be derived and verified on screen.
type ReceiveRequest struct {
	WalletID wallet.ID
	Target   Target
}

// SwapRequest starts a two-coin exchange session.
type SwapRequest struct {
	WalletID wallet.ID
	From     Target
	To       Target
}

// AuthStage is the step of the device authentication exchange.
type AuthStage uint8

const (
	AuthSignSerial    AuthStage = 1
	AuthSignChallenge AuthStage = 2
	AuthSuccess       AuthStage = 3
	AuthFailure       AuthStage = 4
)

// AuthRequest is one device authentication step.
type AuthRequest struct {
	Stage     AuthStage
	Challenge [ChallengeSize]byte
}

// ProvisionRequest carries the serial assigned at manufacturing.
type ProvisionRequest struct {
	Serial [SerialSize]byte
}

// UnsignedTxn is the follow-up frame of send and swap sessions.
type UnsignedTxn struct {
	Amount    uint64
	Recipient string
	Data      []byte
	// Raw is the full payload. Signatures cover it.
	Raw []byte
}

func checkSize(t Type, payload []byte, want int) error {
	if len(payload) > MaxPayload {
		return decodeErr(t, "", "payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	if len(payload) != want {
		return decodeErr(t, "", "payload is %d bytes, want %d", len(payload), want)
	}
	return nil
}

func decodeTarget(t Type, field string, b []byte, usage Usage) (Target, error) {
	spec, err := decodePath(t, field, b)
	if err != nil {
		return Target{}, err
	}
	c, n, err := ValidatePath(t, field, spec, usage)
	if err != nil {
		return Target{}, err
	}
	return Target{PathSpec: spec, Coin: c, Network: n}, nil
}

// DecodeAddCoin decodes ADD_COIN_START.
func DecodeAddCoin(payload []byte) (AddCoinRequest, error) {
	var req AddCoinRequest
	if err := checkSize(TypeAddCoin, payload, addCoinSize); err != nil {
		return req, err
	}
	copy(req.WalletID[:], payload)
	target, err := decodeTarget(TypeAddCoin, "path", payload[wallet.IDSize:], UsageAccount)
	if err != nil {
		return req, err
	}
	req.Target = target
	return req, nil
}

// DecodeReceive decodes RECV_TXN_START.
func DecodeReceive(payload []byte) (ReceiveRequest, error) {
	var req ReceiveRequest
	if err := checkSize(TypeRecvTxn, payload, addCoinSize); err != nil {
		return req, err
	}
	copy(req.WalletID[:], payload)
	target, err := decodeTarget(TypeRecvTxn, "path", payload[wallet.IDSize:], UsageAddress)
	if err != nil {
		return req, err
	}
	req.Target = target
	return req, nil
}

// DecodeSend decodes SEND_TXN_START.
func DecodeSend(payload []byte) (SendRequest, error) {
	var req SendRequest
	if err := checkSize(TypeSendTxn, payload, sendSize); err != nil {
		return req, err
	}
	copy(req.WalletID[:], payload)
	off := wallet.IDSize
	target, err := decodeTarget(TypeSendTxn, "path", payload[off:off+pathBlockSize], UsageAddress)
	if err != nil {
		return req, err
	}
	req.Target = target
	off += pathBlockSize

	kind := TxnKind(payload[off])
	if kind > TxnAccountCreate {
		return req, decodeErr(TypeSendTxn, "kind", "unknown transaction kind %d", kind)
	}
	req.Kind = kind
	off++

	symbol, err := decodeSymbol(TypeSendTxn, payload[off:off+TokenSymbolSize])
	if err != nil {
		return req, err
	}
	req.Token = symbol
	return req, nil
}

// DecodeSwap decodes SWAP_TXN_START.
func DecodeSwap(payload []byte) (SwapRequest, error) {
	var req SwapRequest
	if err := checkSize(TypeSwapTxn, payload, swapSize); err != nil {
		return req, err
	}
	copy(req.WalletID[:], payload)
	off := wallet.IDSize
	from, err := decodeTarget(TypeSwapTxn, "from", payload[off:off+pathBlockSize], UsageAddress)
	if err != nil {
		return req, err
	}
	off += pathBlockSize
	to, err := decodeTarget(TypeSwapTxn, "to", payload[off:off+pathBlockSize], UsageAddress)
	if err != nil {
		return req, err
	}
	req.From, req.To = from, to
	return req, nil
}

// DecodeAuth decodes START_DEVICE_AUTHENTICATION.
func DecodeAuth(payload []byte) (AuthRequest, error) {
	var req AuthRequest
	if len(payload) == 0 {
		return req, decodeErr(TypeDeviceAuth, "stage", "missing")
	}
	req.Stage = AuthStage(payload[0])
	want := 1
	switch req.Stage {
	case AuthSignChallenge:
		want = 1 + ChallengeSize
	case AuthSignSerial, AuthSuccess, AuthFailure:
	default:
		return req, decodeErr(TypeDeviceAuth, "stage", "unknown stage %d", req.Stage)
	}
	if err := checkSize(TypeDeviceAuth, payload, want); err != nil {
		return req, err
	}
	if req.Stage == AuthSignChallenge {
		copy(req.Challenge[:], payload[1:])
	}
	return req, nil
}

// DecodeFirmware decodes START_FIRMWARE_UPGRADE.
func DecodeFirmware(payload []byte) (Version, error) {
	if err := checkSize(TypeFirmwareUpgrade, payload, firmwareSize); err != nil {
		return Version{}, err
	}
	return VersionFromUint32(binary.BigEndian.Uint32(payload)), nil
}

// DecodeProvision decodes PROVISION_DEVICE.
func DecodeProvision(payload []byte) (ProvisionRequest, error) {
	var req ProvisionRequest
	if err := checkSize(TypeProvision, payload, SerialSize); err != nil {
		return req, err
	}
	copy(req.Serial[:], payload)
	if req.Serial == ([SerialSize]byte{}) {
		return req, decodeErr(TypeProvision, "serial", "must not be zero")
	}
	return req, nil
}

// DecodeStatus decodes a host status frame.
func DecodeStatus(payload []byte) (Status, error) {
	if err := checkSize(TypeStatus, payload, 1); err != nil {
		return 0, err
	}
	s := Status(payload[0])
	if s != StatusSuccess && s != StatusAbort {
		return 0, decodeErr(TypeStatus, "code", "unknown status 0x%02x", payload[0])
	}
	return s, nil
}

// DecodeEmpty checks commands that carry no payload.
func DecodeEmpty(t Type, payload []byte) error {
	return checkSize(t, payload, 0)
}

// DecodeUnsigned decodes the unsigned transaction follow-up frame:
// amount(8) | recipient length(1) | recipient | data length(2) | data.
func DecodeUnsigned(payload []byte) (UnsignedTxn, error) {
	var txn UnsignedTxn
	if len(payload) > MaxPayload {
		return txn, decodeErr(TypeUnsignedTxn, "", "payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	if len(payload) < unsignedHeader+unsignedDataSize {
		return txn, decodeErr(TypeUnsignedTxn, "", "payload of %d bytes is shorter than the header", len(payload))
	}
	txn.Amount = binary.BigEndian.Uint64(payload)
	rlen := int(payload[8])
	if rlen == 0 || rlen > MaxRecipientLen {
		return txn, decodeErr(TypeUnsignedTxn, "recipient", "length %d out of range", rlen)
	}
	off := unsignedHeader
	if len(payload) < off+rlen+unsignedDataSize {
		return txn, decodeErr(TypeUnsignedTxn, "recipient", "declared length %d exceeds payload", rlen)
	}
	txn.Recipient = string(payload[off : off+rlen])
	off += rlen

	dlen := int(binary.BigEndian.Uint16(payload[off:]))
	off += unsignedDataSize
	if len(payload) != off+dlen {
		return txn, decodeErr(TypeUnsignedTxn, "data", "declared length %d does not match %d remaining bytes", dlen, len(payload)-off)
	}
	txn.Data = payload[off:]
	txn.Raw = payload
	return txn, nil
}

func decodeSymbol(t Type, b []byte) (string, error) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		end = len(b)
	}
	for _, c := range b[end:] {
		if c != 0 {
			return "", decodeErr(t, "token", "bytes after terminator")
		}
	}
	for _, c := range b[:end] {
		if c < 0x21 || c > 0x7e {
			return "", decodeErr(t, "token", "non-printable symbol")
		}
	}
	return string(b[:end]), nil
}
