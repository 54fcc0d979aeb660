package controller

import (
	"strconv"
	"strings"

	"github.com/andri/cardwallet/pkg/coin"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/signer"
	"github.com/ethereum/go-ethereum/accounts"
)

// formatAmount renders base units with decimals, trimming trailing zeros.
func formatAmount(amount uint64, decimals uint8) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// asset returns the symbol and decimals the amount of a send is expressed in.
func asset(req command.SendRequest) (string, uint8) {
	if req.Kind == command.TxnToken {
		if t, ok := req.Target.Coin.Token(req.Token); ok {
			return t.Symbol, t.Decimals
		}
	}
	return req.Target.Network.Symbol, req.Target.Coin.Decimals
}

func derive(env *Env, c coin.Coin, path accounts.DerivationPath) (*signer.Node, error) {
	return signer.Derive(env.Session.Seed.Bytes(), c.Curve, path, env.Session.Key)
}
