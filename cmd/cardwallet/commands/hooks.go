package commands

import (
	"github.com/andri/cardwallet/pkg/flash"
	"github.com/andri/cardwallet/pkg/replay"
	"github.com/andri/cardwallet/pkg/tui/terminal"
)

var openImage = flash.Open
var runReplay = replay.Run
var detectTerminal = terminal.Detect
