package chain

import (
	"sort"

	"github.com/pkg/errors"
)

// ChainInfo describes a chain that settlement payments can originate from
// or be delivered to.
type ChainInfo struct {
	ID            uint64 `json:"id"`
	Name          string `json:"name"`
	TokenAddress  string `json:"token_address"`
	TokenDecimals int32  `json:"token_decimals"`
}

type Network struct {
	Name          string
	APIPort       int
	OracleRPCPort int
	// ReferenceChainID is the chain whose height seals and reveals bids.
	ReferenceChainID uint64
	Chains           map[uint64]*ChainInfo
}

var NetworkMain = &Network{
	Name:             "main",
	APIPort:          9339,
	OracleRPCPort:    8545,
	ReferenceChainID: 8453,
	Chains: map[uint64]*ChainInfo{
		8453: {
			ID:            8453,
			Name:          "base",
			TokenAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			TokenDecimals: 6,
		},
		43114: {
			ID:            43114,
			Name:          "avalanche",
			TokenAddress:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
			TokenDecimals: 6,
		},
	},
}

var NetworkTestnet = &Network{
	Name:             "testnet",
	APIPort:          19339,
	OracleRPCPort:    18545,
	ReferenceChainID: 84532,
	Chains: map[uint64]*ChainInfo{
		84532: {
			ID:            84532,
			Name:          "base-sepolia",
			TokenAddress:  "0x10b5Be494C2962A7B318aFB63f0Ee30b959D000b",
			TokenDecimals: 6,
		},
		43113: {
			ID:            43113,
			Name:          "avalanche-fuji",
			TokenAddress:  "0x608D6Eeb3f6C4ea5CBa3A1e7aB1a3eE9F1d1a2C7",
			TokenDecimals: 6,
		},
	},
}

var NetworkRegtest = &Network{
	Name:             "regtest",
	APIPort:          29339,
	OracleRPCPort:    28545,
	ReferenceChainID: 31337,
	Chains: map[uint64]*ChainInfo{
		31337: {
			ID:            31337,
			Name:          "local-a",
			TokenAddress:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			TokenDecimals: 6,
		},
		31338: {
			ID:            31338,
			Name:          "local-b",
			TokenAddress:  "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
			TokenDecimals: 6,
		},
	},
}

func NetworkFromName(name string) (*Network, error) {
	switch name {
	case NetworkMain.Name:
		return NetworkMain, nil
	case NetworkTestnet.Name:
		return NetworkTestnet, nil
	case NetworkRegtest.Name:
		return NetworkRegtest, nil
	default:
		return nil, errors.New("invalid network")
	}
}

// Chain returns the registered chain with the given ID, or nil.
func (n *Network) Chain(id uint64) *ChainInfo {
	return n.Chains[id]
}

func (n *Network) HasChain(id uint64) bool {
	_, ok := n.Chains[id]
	return ok
}

func (n *Network) ReferenceChain() *ChainInfo {
	return n.Chains[n.ReferenceChainID]
}

// ChainList returns the registered chains ordered by ID.
func (n *Network) ChainList() []*ChainInfo {
	out := make([]*ChainInfo, 0, len(n.Chains))
	for _, c := range n.Chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
