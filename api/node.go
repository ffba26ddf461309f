package api

import (
	"runtime"

	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/client"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/log"
	"github.com/kurumiimari/sealdex/solver"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

var nodeLogger = log.ModuleLogger("node")

var ErrNotDevMode = errors.New("only available in dev mode")

// DevServices are the in-process stand-ins for the chain oracle, the
// decryption network and the solver network.
type DevServices struct {
	Chain   *client.DevChain
	Network *timelock.DevNetwork
	Solver  *solver.DevSolver
}

// Node owns the coordinator and fans height notifications out to it and
// to any dev services.
type Node struct {
	tmb     *tomb.Tomb
	network *chain.Network
	hm      *auction.HeightMonitor
	coord   *auction.Coordinator
	dev     *DevServices
}

type NodeStatus struct {
	Status             string         `json:"status"`
	Network            string         `json:"network"`
	Height             uint64         `json:"height"`
	Dev                bool           `json:"dev"`
	MemUsage           uint64         `json:"mem_usage"`
	IntegrityFailures  map[string]int `json:"integrity_failures"`
	PendingDecryptions int            `json:"pending_decryptions"`
	PendingSettlements int            `json:"pending_settlements"`
}

func NewNode(
	tmb *tomb.Tomb,
	network *chain.Network,
	hm *auction.HeightMonitor,
	coord *auction.Coordinator,
	dev *DevServices,
) *Node {
	n := &Node{
		tmb:     tmb,
		network: network,
		hm:      hm,
		coord:   coord,
		dev:     dev,
	}
	if dev != nil {
		coord.SetDecryptionRequester(dev.Network)
		dev.Network.SetDeliverFunc(n.deliverDecryption)
		dev.Solver.SetReceiver(coord)
	}
	return n
}

// Start hands in-flight work back to the external collaborators and
// subscribes to the height monitor. It must be called before the monitor
// is started so that the first height is not missed.
func (n *Node) Start() error {
	if err := n.coord.Resume(); err != nil {
		return err
	}
	sub := n.hm.Subscribe()
	n.tmb.Go(func() error {
		for {
			select {
			case notif, ok := <-sub:
				if !ok {
					return nil
				}
				n.onHeight(notif.Height)
			case <-n.tmb.Dying():
				return nil
			}
		}
	})
	return nil
}

func (n *Node) Status() *NodeStatus {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := &NodeStatus{
		Status:            "OK",
		Network:           n.network.Name,
		Height:            n.hm.LastHeight(),
		Dev:               n.dev != nil,
		MemUsage:          memStats.HeapAlloc,
		IntegrityFailures: n.coord.IntegrityCounts(),
	}
	if n.dev != nil {
		status.PendingDecryptions = n.dev.Network.PendingCount()
		status.PendingSettlements = n.dev.Solver.PendingCount()
	}
	return status
}

func (n *Node) Coordinator() *auction.Coordinator {
	return n.coord
}

func (n *Node) PollHeight() (uint64, error) {
	return n.hm.Poll()
}

// Mine advances the dev chain by count blocks and polls it.
func (n *Node) Mine(count uint64) (uint64, error) {
	if n.dev == nil {
		return 0, ErrNotDevMode
	}
	n.dev.Chain.Mine(count)
	return n.hm.Poll()
}

func (n *Node) onHeight(height uint64) {
	nodeLogger.Debug("processing height", "height", height)
	if n.dev != nil {
		n.dev.Network.OnHeight(height)
	}
	n.coord.OnHeight(height)
	if n.dev != nil {
		n.dev.Solver.OnHeight(height)
	}
}

func (n *Node) deliverDecryption(key string, ref gcrypto.Hash, cleartext []byte, proof *timelock.Proof) error {
	_, err := n.coord.OnDecryptionDelivered(key, ref, cleartext, proof)
	return err
}
