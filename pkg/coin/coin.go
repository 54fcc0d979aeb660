// Package coin is the registry of coin applications the device supports.
package coin

import (
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Hardened is the BIP32 hardened derivation offset.
const Hardened uint32 = 0x80000000

// Purpose values accepted as the first path level.
const (
	PurposeBIP44 = Hardened + 44
	PurposeBIP49 = Hardened + 49
	PurposeBIP84 = Hardened + 84
)

// Curve selects the key derivation scheme.
type Curve uint8

const (
	CurveSecp256k1 Curve = iota
	CurveEd25519
)

func (c Curve) String() string {
	if c == CurveEd25519 {
		return "ed25519"
	}
	return "secp256k1"
}

// Family groups coins that share address and signing rules.
type Family uint8

const (
	FamilyBitcoin Family = iota
	FamilyEVM
	FamilyNear
	FamilySolana
	FamilyHedera
)

func (f Family) String() string {
	switch f {
	case FamilyBitcoin:
		return "bitcoin"
	case FamilyEVM:
		return "evm"
	case FamilyNear:
		return "near"
	case FamilySolana:
		return "solana"
	case FamilyHedera:
		return "hedera"
	default:
		return "unknown"
	}
}

// Network is a chain served by an account-based coin app.
type Network struct {
	ChainID uint64
	Name    string
	Symbol  string
}

// Token is a fungible token known to a coin app.
type Token struct {
	Symbol   string
	Decimals uint8
}

// Coin describes one coin app.
type Coin struct {
	Name     string
	Symbol   string
	Index    uint32 // hardened SLIP-44 coin type
	Family   Family
	Curve    Curve
	Decimals uint8

	Purposes      []uint32
	AccountDepths []int
	AddressDepths []int
	// ShortDepth is a supported depth that selects the short-path sub-flow.
	ShortDepth  int
	AllHardened bool

	// Networks is set for coins that require a chain id. Other coins accept
	// only chain id zero.
	Networks        []Network
	Tokens          []Token
	AccountCreation bool
}

var registry = []Coin{
	{
		Name: "Bitcoin", Symbol: "BTC", Index: Hardened + 0, Family: FamilyBitcoin, Curve: CurveSecp256k1, Decimals: 8,
		Purposes: []uint32{PurposeBIP44, PurposeBIP49, PurposeBIP84}, AccountDepths: []int{3}, AddressDepths: []int{5},
	},
	{
		Name: "Litecoin", Symbol: "LTC", Index: Hardened + 2, Family: FamilyBitcoin, Curve: CurveSecp256k1, Decimals: 8,
		Purposes: []uint32{PurposeBIP44, PurposeBIP49, PurposeBIP84}, AccountDepths: []int{3}, AddressDepths: []int{5},
	},
	{
		Name: "Ethereum", Symbol: "ETH", Index: Hardened + 60, Family: FamilyEVM, Curve: CurveSecp256k1, Decimals: 18,
		Purposes: []uint32{PurposeBIP44}, AccountDepths: []int{3}, AddressDepths: []int{5},
		Networks: []Network{
			{ChainID: 1, Name: "Ethereum", Symbol: "ETH"},
			{ChainID: 56, Name: "BNB Smart Chain", Symbol: "BNB"},
			{ChainID: 137, Name: "Polygon", Symbol: "POL"},
		},
		Tokens: []Token{{Symbol: "USDT", Decimals: 6}, {Symbol: "USDC", Decimals: 6}, {Symbol: "DAI", Decimals: 18}},
	},
	{
		Name: "Near", Symbol: "NEAR", Index: Hardened + 397, Family: FamilyNear, Curve: CurveEd25519, Decimals: 24,
		Purposes: []uint32{PurposeBIP44}, AccountDepths: []int{5}, AddressDepths: []int{5}, AllHardened: true,
		AccountCreation: true,
	},
	{
		Name: "Solana", Symbol: "SOL", Index: Hardened + 501, Family: FamilySolana, Curve: CurveEd25519, Decimals: 9,
		Purposes: []uint32{PurposeBIP44}, AccountDepths: []int{3, 4}, AddressDepths: []int{3, 4}, ShortDepth: 3, AllHardened: true,
	},
	{
		Name: "Hedera", Symbol: "HBAR", Index: Hardened + 3030, Family: FamilyHedera, Curve: CurveEd25519, Decimals: 8,
		Purposes: []uint32{PurposeBIP44}, AccountDepths: []int{5}, AddressDepths: []int{5}, AllHardened: true,
		AccountCreation: true,
	},
}

// All returns the supported coins in registry order.
func All() []Coin {
	return slices.Clone(registry)
}

// Lookup finds a coin by its hardened SLIP-44 index.
func Lookup(index uint32) (Coin, bool) {
	for _, c := range registry {
		if c.Index == index {
			return c, true
		}
	}
	return Coin{}, false
}

// Find matches a coin by name or symbol, ignoring case.
func Find(name string) (Coin, bool) {
	for _, c := range registry {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Symbol, name) {
			return c, true
		}
	}
	return Coin{}, false
}

const maxSuggestDistance = 3

// Suggest returns the registry name closest to name, if any is close enough.
func Suggest(name string) (string, bool) {
	needle := strings.ToLower(name)
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range registry {
		for _, candidate := range []string{c.Name, c.Symbol} {
			d := levenshtein.ComputeDistance(needle, strings.ToLower(candidate))
			if d < bestDist {
				best, bestDist = c.Name, d
			}
		}
	}
	return best, best != ""
}

// SupportsPurpose reports whether purpose is an allowed first path level.
func (c Coin) SupportsPurpose(purpose uint32) bool {
	return slices.Contains(c.Purposes, purpose)
}

// SupportsAccountDepth reports whether an add-coin path may have depth d.
func (c Coin) SupportsAccountDepth(d int) bool {
	return slices.Contains(c.AccountDepths, d)
}

// SupportsAddressDepth reports whether an address path may have depth d.
func (c Coin) SupportsAddressDepth(d int) bool {
	return slices.Contains(c.AddressDepths, d)
}

// Network resolves chainID. Coins without networks accept only zero.
func (c Coin) Network(chainID uint64) (Network, bool) {
	if len(c.Networks) == 0 {
		if chainID != 0 {
			return Network{}, false
		}
		return Network{Name: c.Name, Symbol: c.Symbol}, true
	}
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return Network{}, false
}

// Token finds a token by symbol, ignoring case.
func (c Coin) Token(symbol string) (Token, bool) {
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}
