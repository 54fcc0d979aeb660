package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is part of the Bitcoin address format
)

// Digest returns what the coin family signs for msg. Ed25519 families sign
// the message itself.
func Digest(family coin.Family, msg []byte) []byte {
	switch family {
	case coin.FamilyEVM:
		return crypto.Keccak256(msg)
	case coin.FamilyBitcoin:
		first := sha256.Sum256(msg)
		second := sha256.Sum256(first[:])
		return second[:]
	case coin.FamilyNear:
		sum := sha256.Sum256(msg)
		return sum[:]
	default:
		return append([]byte(nil), msg...)
	}
}

// Sign signs msg for c. secp256k1 signatures are 65 bytes [R || S || V],
// ed25519 signatures 64 bytes.
func Sign(c coin.Coin, n *Node, msg []byte) ([]byte, error) {
	if n.curve != c.Curve {
		return nil, fmt.Errorf("node curve does not match %s", c.Name)
	}
	digest := Digest(c.Family, msg)

	switch n.curve {
	case coin.CurveSecp256k1:
		priv, err := crypto.ToECDSA(n.key())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		defer priv.D.SetInt64(0)
		return crypto.Sign(digest, priv)
	case coin.CurveEd25519:
		priv := ed25519.NewKeyFromSeed(n.key())
		defer secret.Wipe(priv)
		return ed25519.Sign(priv, digest), nil
	default:
		return nil, ErrUnknownCurve
	}
}

// Address renders the receive address of n for c. EVM addresses carry the
// mixed-case checksum, Bitcoin-family addresses are the hash160 witness
// program, the others are the hex public key.
func Address(c coin.Coin, n *Node) (string, error) {
	pub, err := n.PublicKey()
	if err != nil {
		return "", err
	}

	switch c.Family {
	case coin.FamilyEVM:
		key, err := crypto.DecompressPubkey(pub)
		if err != nil {
			return "", fmt.Errorf("decompress public key: %w", err)
		}
		return crypto.PubkeyToAddress(*key).Hex(), nil
	case coin.FamilyBitcoin:
		sum := sha256.Sum256(pub)
		h := ripemd160.New()
		h.Write(sum[:])
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		return hex.EncodeToString(pub), nil
	}
}
