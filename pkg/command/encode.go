package command

import (
	"encoding/binary"
	"fmt"

	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/accounts"
)

// Encoders build host frames. They are used by the replay tool and tests.

// ParsePath parses a textual derivation path such as m/44'/60'/0'/0/0.
func ParsePath(s string, chainID uint64) (PathSpec, error) {
	path, err := accounts.ParseDerivationPath(s)
	if err != nil {
		return PathSpec{}, fmt.Errorf("parse path %q: %w", s, err)
	}
	if len(path) > maxPathLevels {
		return PathSpec{}, fmt.Errorf("path %q deeper than %d levels", s, maxPathLevels)
	}
	return PathSpec{Path: path, ChainID: chainID}, nil
}

// EncodePath writes the fixed path block.
func EncodePath(p PathSpec) []byte {
	b := make([]byte, pathBlockSize)
	b[0] = byte(len(p.Path))
	for i, level := range p.Path {
		if i >= maxPathLevels {
			break
		}
		binary.BigEndian.PutUint32(b[1+i*4:], level)
	}
	binary.BigEndian.PutUint64(b[1+maxPathLevels*4:], p.ChainID)
	return b
}

// EncodeAddCoin builds an ADD_COIN_START payload.
func EncodeAddCoin(id wallet.ID, p PathSpec) []byte {
	return append(id[:], EncodePath(p)...)
}

// EncodeReceive builds a RECV_TXN_START payload.
func EncodeReceive(id wallet.ID, p PathSpec) []byte {
	return append(id[:], EncodePath(p)...)
}

// EncodeSend builds a SEND_TXN_START payload.
func EncodeSend(id wallet.ID, p PathSpec, kind TxnKind, token string) []byte {
	b := append(id[:], EncodePath(p)...)
	b = append(b, byte(kind))
	symbol := make([]byte, TokenSymbolSize)
	copy(symbol, token)
	return append(b, symbol...)
}

// EncodeSwap builds a SWAP_TXN_START payload.
func EncodeSwap(id wallet.ID, from, to PathSpec) []byte {
	b := append(id[:], EncodePath(from)...)
	return append(b, EncodePath(to)...)
}

// EncodeAuth builds a START_DEVICE_AUTHENTICATION payload.
func EncodeAuth(stage AuthStage, challenge []byte) []byte {
	b := []byte{byte(stage)}
	if stage == AuthSignChallenge {
		c := make([]byte, ChallengeSize)
		copy(c, challenge)
		b = append(b, c...)
	}
	return b
}

// EncodeFirmware builds a START_FIRMWARE_UPGRADE payload.
func EncodeFirmware(v Version) []byte {
	return binary.BigEndian.AppendUint32(nil, v.Uint32())
}

// EncodeUnsigned builds an unsigned transaction follow-up payload.
func EncodeUnsigned(amount uint64, recipient string, data []byte) []byte {
	b := binary.BigEndian.AppendUint64(nil, amount)
	b = append(b, byte(len(recipient)))
	b = append(b, recipient...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	return append(b, data...)
}
