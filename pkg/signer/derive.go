// Package signer derives wallet keys from a seed and signs transaction
// digests with them.
package signer

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// NodeSize is the key(32) | chain code(32) scratch layout.
const NodeSize = 64

var (
	ErrInvalidKey   = errors.New("derived key is invalid")
	ErrNonHardened  = errors.New("curve only supports hardened derivation")
	ErrUnknownCurve = errors.New("unknown curve")
)

var masterKeys = map[coin.Curve][]byte{
	coin.CurveSecp256k1: []byte("Bitcoin seed"),
	coin.CurveEd25519:   []byte("ed25519 seed"),
}

// Node is a derived key whose secret half lives in a session buffer.
type Node struct {
	curve coin.Curve
	buf   *secret.Buffer
}

func (n *Node) key() []byte {
	return n.buf.Bytes()[:32]
}

// Curve returns the node curve.
func (n *Node) Curve() coin.Curve {
	return n.curve
}

// ChainCode returns a copy of the node chain code.
func (n *Node) ChainCode() []byte {
	return append([]byte(nil), n.buf.Bytes()[32:NodeSize]...)
}

// PublicKey returns the compressed secp256k1 key or the raw ed25519 key.
func (n *Node) PublicKey() ([]byte, error) {
	switch n.curve {
	case coin.CurveSecp256k1:
		priv, err := crypto.ToECDSA(n.key())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		defer priv.D.SetInt64(0)
		return crypto.CompressPubkey(&priv.PublicKey), nil
	case coin.CurveEd25519:
		priv := ed25519.NewKeyFromSeed(n.key())
		defer secret.Wipe(priv)
		return append([]byte(nil), priv.Public().(ed25519.PublicKey)...), nil
	default:
		return nil, ErrUnknownCurve
	}
}

// Derive walks path from the master key of seed and leaves the node in out.
// out must hold at least NodeSize bytes; it is wiped on failure.
func Derive(seed []byte, curve coin.Curve, path accounts.DerivationPath, out *secret.Buffer) (*Node, error) {
	master, ok := masterKeys[curve]
	if !ok {
		return nil, ErrUnknownCurve
	}

	node := hmacSHA512(master, seed)
	defer secret.Wipe(node)

	if curve == coin.CurveSecp256k1 {
		if err := checkScalar(node[:32]); err != nil {
			return nil, err
		}
	}

	for _, index := range path {
		child, err := deriveChild(curve, node, index)
		if err != nil {
			out.Wipe()
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
		copy(node, child)
		secret.Wipe(child)
	}

	if err := out.Set(node); err != nil {
		return nil, err
	}
	return &Node{curve: curve, buf: out}, nil
}

func deriveChild(curve coin.Curve, parent []byte, index uint32) ([]byte, error) {
	key, chain := parent[:32], parent[32:]
	hardened := index >= coin.Hardened

	data := make([]byte, 0, 37)
	defer secret.Wipe(data[:cap(data)])

	switch {
	case hardened:
		data = append(data, 0)
		data = append(data, key...)
	case curve == coin.CurveEd25519:
		return nil, ErrNonHardened
	default:
		priv, err := crypto.ToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		data = append(data, crypto.CompressPubkey(&priv.PublicKey)...)
		priv.D.SetInt64(0)
	}
	data = binary.BigEndian.AppendUint32(data, index)

	i := hmacSHA512(chain, data)
	if curve == coin.CurveEd25519 {
		return i, nil
	}

	if err := checkScalar(i[:32]); err != nil {
		secret.Wipe(i)
		return nil, err
	}
	n := crypto.S256().Params().N
	k := new(big.Int).SetBytes(i[:32])
	k.Add(k, new(big.Int).SetBytes(key))
	k.Mod(k, n)
	if k.Sign() == 0 {
		secret.Wipe(i)
		return nil, ErrInvalidKey
	}
	k.FillBytes(i[:32])
	k.SetInt64(0)
	return i, nil
}

func checkScalar(b []byte) error {
	k := new(big.Int).SetBytes(b)
	defer k.SetInt64(0)
	if k.Sign() == 0 || k.Cmp(crypto.S256().Params().N) >= 0 {
		return ErrInvalidKey
	}
	return nil
}

func hmacSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
