package command

import (
	"encoding/binary"
	"fmt"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/ethereum/go-ethereum/accounts"
)

// Path block layout: depth(1) | five big-endian uint32 levels | chain id(8).
const (
	maxPathLevels = 5
	pathBlockSize = 1 + maxPathLevels*4 + 8
	minPathDepth  = 2
)

// Usage selects which depth list of a coin applies to a path.
type Usage uint8

const (
	UsageAccount Usage = iota
	UsageAddress
)

// PathSpec is a derivation path plus the chain it is used on.
type PathSpec struct {
	Path    accounts.DerivationPath
	ChainID uint64
}

// Depth returns the number of path levels.
func (p PathSpec) Depth() int {
	return len(p.Path)
}

// CoinIndex returns the hardened coin type level.
func (p PathSpec) CoinIndex() uint32 {
	if len(p.Path) < 2 {
		return 0
	}
	return p.Path[1]
}

// Account returns the unhardened account number, or zero when the path is
// shorter than three levels.
func (p PathSpec) Account() uint32 {
	if len(p.Path) < 3 {
		return 0
	}
	return p.Path[2] &^ coin.Hardened
}

// AccountLabel renders the account as shown on the device.
func (p PathSpec) AccountLabel() string {
	return fmt.Sprintf("Account #%d", p.Account()+1)
}

func (p PathSpec) String() string {
	return p.Path.String()
}

func decodePath(t Type, field string, b []byte) (PathSpec, error) {
	depth := int(b[0])
	if depth < minPathDepth || depth > maxPathLevels {
		return PathSpec{}, decodeErr(t, field, "depth %d out of range", depth)
	}
	path := make(accounts.DerivationPath, depth)
	for i := range depth {
		path[i] = binary.BigEndian.Uint32(b[1+i*4:])
	}
	for i := depth; i < maxPathLevels; i++ {
		if binary.BigEndian.Uint32(b[1+i*4:]) != 0 {
			return PathSpec{}, decodeErr(t, field, "level %d set beyond declared depth %d", i+1, depth)
		}
	}
	return PathSpec{
		Path:    path,
		ChainID: binary.BigEndian.Uint64(b[1+maxPathLevels*4:]),
	}, nil
}

// ValidatePath checks a path against the coin registry and returns the coin
// and network it addresses.
func ValidatePath(t Type, field string, p PathSpec, usage Usage) (coin.Coin, coin.Network, error) {
	c, ok := coin.Lookup(p.CoinIndex())
	if !ok {
		return coin.Coin{}, coin.Network{}, decodeErr(t, field, "unsupported coin 0x%08x", p.CoinIndex())
	}
	if !c.SupportsPurpose(p.Path[0]) {
		return c, coin.Network{}, decodeErr(t, field, "purpose 0x%08x not allowed for %s", p.Path[0], c.Name)
	}

	depthOK := c.SupportsAddressDepth(p.Depth())
	if usage == UsageAccount {
		depthOK = c.SupportsAccountDepth(p.Depth())
	}
	if !depthOK {
		return c, coin.Network{}, decodeErr(t, field, "depth %d not supported by %s", p.Depth(), c.Name)
	}

	for i, level := range p.Path {
		hardened := level&coin.Hardened != 0
		wantHardened := i < 3 || c.AllHardened
		if hardened != wantHardened {
			return c, coin.Network{}, decodeErr(t, field, "level %d hardening mismatch", i+1)
		}
	}

	n, ok := c.Network(p.ChainID)
	if !ok {
		return c, coin.Network{}, decodeErr(t, field, "chain id %d not supported by %s", p.ChainID, c.Name)
	}
	return c, n, nil
}
