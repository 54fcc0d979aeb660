package flow

// Kind identifies a workflow. It is stored in level one while the workflow runs.
type Kind uint8

const (
	KindNone Kind = iota
	KindAddCoin
	KindSendTxn
	KindRecvTxn
	KindSwapTxn
	KindExportWallet
	KindFirmwareUpgrade
	KindAppLog
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAddCoin:
		return "add-coin"
	case KindSendTxn:
		return "send-txn"
	case KindRecvTxn:
		return "recv-txn"
	case KindSwapTxn:
		return "swap-txn"
	case KindExportWallet:
		return "export-wallet"
	case KindFirmwareUpgrade:
		return "firmware-upgrade"
	case KindAppLog:
		return "app-log"
	default:
		return "unknown"
	}
}

// SubFlow is the level two selector chosen from the coin template.
type SubFlow uint8

const (
	SubFlowNone SubFlow = iota
	SubFlowDefault
	SubFlowNative
	SubFlowToken
	SubFlowAccountCreate
	SubFlowShortPath
)

// Phase is the lifecycle position of the device session.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitingConfirmation
	PhaseActive
	PhaseComplete
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingConfirmation:
		return "awaiting-confirmation"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
