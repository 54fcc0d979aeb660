package replay

import (
	"fmt"
	"strings"

	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Frame describes a host command. Payload, when set, is sent as is;
// otherwise the payload is built from the typed fields. Binary fields are
// 0x-prefixed hex.
type Frame struct {
	Type    string `yaml:"type"`
	Payload string `yaml:"payload,omitempty"`

	Wallet    string `yaml:"wallet,omitempty"`
	Path      string `yaml:"path,omitempty"`
	ChainID   uint64 `yaml:"chain-id,omitempty"`
	To        string `yaml:"to,omitempty"`
	ToChainID uint64 `yaml:"to-chain-id,omitempty"`
	Kind      string `yaml:"kind,omitempty"`
	Token     string `yaml:"token,omitempty"`

	Amount    uint64 `yaml:"amount,omitempty"`
	Recipient string `yaml:"recipient,omitempty"`
	Data      string `yaml:"data,omitempty"`

	Version   string `yaml:"version,omitempty"`
	Stage     string `yaml:"stage,omitempty"`
	Challenge string `yaml:"challenge,omitempty"`
	Serial    string `yaml:"serial,omitempty"`
}

// WalletResolver maps a wallet name to its id.
type WalletResolver func(name string) (wallet.ID, error)

var txnKinds = map[string]command.TxnKind{
	"":               command.TxnNative,
	"native":         command.TxnNative,
	"token":          command.TxnToken,
	"account-create": command.TxnAccountCreate,
}

var authStages = map[string]command.AuthStage{
	"sign-serial":    command.AuthSignSerial,
	"sign-challenge": command.AuthSignChallenge,
	"success":        command.AuthSuccess,
	"failure":        command.AuthFailure,
}

// Command builds the host frame.
func (f Frame) Command(resolve WalletResolver) (command.Command, error) {
	t, err := command.ParseType(strings.TrimSpace(f.Type))
	if err != nil {
		return command.Command{}, err
	}
	cmd := command.Command{Type: t}

	if f.Payload != "" {
		cmd.Payload, err = hexutil.Decode(f.Payload)
		if err != nil {
			return cmd, fmt.Errorf("%s payload: %w", t, err)
		}
		return cmd, nil
	}

	cmd.Payload, err = f.encode(t, resolve)
	if err != nil {
		return cmd, fmt.Errorf("%s: %w", t, err)
	}
	return cmd, nil
}

func (f Frame) encode(t command.Type, resolve WalletResolver) ([]byte, error) {
	switch t {
	case command.TypeAddCoin, command.TypeRecvTxn, command.TypeSendTxn, command.TypeSwapTxn:
		return f.encodeWalletFrame(t, resolve)

	case command.TypeUnsignedTxn:
		data, err := decodeOptional(f.Data)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return command.EncodeUnsigned(f.Amount, f.Recipient, data), nil

	case command.TypeFirmwareUpgrade:
		v, err := command.ParseVersion(f.Version)
		if err != nil {
			return nil, err
		}
		return command.EncodeFirmware(v), nil

	case command.TypeDeviceAuth:
		stage, ok := authStages[f.Stage]
		if !ok {
			return nil, fmt.Errorf("unknown auth stage %q", f.Stage)
		}
		challenge, err := decodeOptional(f.Challenge)
		if err != nil {
			return nil, fmt.Errorf("challenge: %w", err)
		}
		return command.EncodeAuth(stage, challenge), nil

	case command.TypeProvision:
		serial, err := decodeOptional(f.Serial)
		if err != nil {
			return nil, fmt.Errorf("serial: %w", err)
		}
		return serial, nil

	default:
		return nil, nil
	}
}

func (f Frame) encodeWalletFrame(t command.Type, resolve WalletResolver) ([]byte, error) {
	id, err := resolve(f.Wallet)
	if err != nil {
		return nil, err
	}
	path, err := command.ParsePath(f.Path, f.ChainID)
	if err != nil {
		return nil, err
	}

	switch t {
	case command.TypeAddCoin:
		return command.EncodeAddCoin(id, path), nil
	case command.TypeRecvTxn:
		return command.EncodeReceive(id, path), nil
	case command.TypeSendTxn:
		kind, ok := txnKinds[f.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown transaction kind %q", f.Kind)
		}
		return command.EncodeSend(id, path, kind, f.Token), nil
	default:
		to, err := command.ParsePath(f.To, f.ToChainID)
		if err != nil {
			return nil, err
		}
		return command.EncodeSwap(id, path, to), nil
	}
}

func decodeOptional(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode(s)
}
