package sealdex

import (
	"github.com/kurumiimari/sealdex/chain"
)

type config struct {
	Network *chain.Network
	Prefix  string
}

// Config is filled in by the CLI before any command runs.
var Config = new(config)
