package dispatch

import (
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/device"
)

var modeAllowList = map[device.Mode]map[command.Type]bool{
	device.ModeProvisioning: {
		command.TypeDeviceInfo: true,
		command.TypeProvision:  true,
	},
	device.ModeRestricted: {
		command.TypeDeviceInfo:      true,
		command.TypeDeviceAuth:      true,
		command.TypeFirmwareUpgrade: true,
	},
}

// alwaysAllowed commands are answered even while a session is armed.
var alwaysAllowed = map[command.Type]bool{
	command.TypeDeviceInfo: true,
	command.TypeListCoins:  true,
}

// allowed reports whether mode lets t reach the dispatcher. Normal mode
// accepts everything except provisioning.
func allowed(mode device.Mode, t command.Type) bool {
	if list, ok := modeAllowList[mode]; ok {
		return list[t]
	}
	return t != command.TypeProvision
}

// FollowUp reports whether t only makes sense inside a running workflow.
func FollowUp(t command.Type) bool {
	return t == command.TypeUnsignedTxn || t == command.TypeFetchNext
}
