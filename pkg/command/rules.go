package command

// ValidateSend applies the metadata rules that need a resolved coin: the
// token must be known, account creation must be supported, and a native
// transfer carries no token.
func ValidateSend(req SendRequest) error {
	c := req.Target.Coin
	switch req.Kind {
	case TxnNative:
		if req.Token != "" {
			return ruleErr("native transfer carries token %q", req.Token)
		}
	case TxnToken:
		if req.Token == "" {
			return ruleErr("token transfer without token symbol")
		}
		if _, ok := c.Token(req.Token); !ok {
			return ruleErr("token %q unknown to %s", req.Token, c.Name)
		}
	case TxnAccountCreate:
		if !c.AccountCreation {
			return ruleErr("%s does not support account creation", c.Name)
		}
	}
	return nil
}

// ValidateSwap rejects swaps whose legs address the same coin and network.
func ValidateSwap(req SwapRequest) error {
	if req.From.Coin.Index == req.To.Coin.Index && req.From.Network.ChainID == req.To.Network.ChainID {
		return ruleErr("swap between identical assets")
	}
	return nil
}

// ValidateUnsigned checks the follow-up frame of a send session.
func ValidateUnsigned(kind TxnKind, txn UnsignedTxn) error {
	if kind != TxnAccountCreate && txn.Amount == 0 {
		return ruleErr("zero amount")
	}
	return nil
}
