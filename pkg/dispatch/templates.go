package dispatch

import (
	"fmt"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/flow"
)

func addCoinPrompt(req command.AddCoinRequest, walletName string) string {
	return fmt.Sprintf("Add %s to %s, %s", req.Target.Network.Name, walletName, req.Target.AccountLabel())
}

// sendPrompt selects the template and level two sub-flow of a send.
func sendPrompt(req command.SendRequest, walletName string) (string, flow.SubFlow) {
	t := req.Target
	switch req.Kind {
	case command.TxnToken:
		symbol := req.Token
		if tok, ok := t.Coin.Token(req.Token); ok {
			symbol = tok.Symbol
		}
		return fmt.Sprintf("Send %s on %s from %s, %s", symbol, t.Network.Name, walletName, t.AccountLabel()), flow.SubFlowToken
	case command.TxnAccountCreate:
		return fmt.Sprintf("Create %s account from %s, %s", t.Network.Name, walletName, t.AccountLabel()), flow.SubFlowAccountCreate
	default:
		return fmt.Sprintf("Send %s from %s, %s", t.Network.Name, walletName, t.AccountLabel()), flow.SubFlowNative
	}
}

func receivePrompt(req command.ReceiveRequest, walletName string) (string, flow.SubFlow) {
	t := req.Target
	sub := flow.SubFlowDefault
	if t.Coin.ShortDepth != 0 && t.Depth() == t.Coin.ShortDepth {
		sub = flow.SubFlowShortPath
	}
	return fmt.Sprintf("Receive %s in %s, %s", t.Network.Name, walletName, t.AccountLabel()), sub
}

func swapPrompt(req command.SwapRequest, walletName string) string {
	return fmt.Sprintf("Swap %s to %s in %s", req.From.Network.Name, req.To.Network.Name, walletName)
}

func firmwarePrompt(v command.Version) string {
	return fmt.Sprintf("Update firmware to v%s", v)
}

const (
	exportPrompt = "Export wallets to desktop app"
	logPrompt    = "Send logs to desktop app"
)
