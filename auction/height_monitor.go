package auction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/client"
	"github.com/kurumiimari/sealdex/log"
	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

const (
	HeightMonitorCheckpointDepth = 10
	DefaultPollInterval          = 10 * time.Second
)

var hmLogger = log.ModuleLogger("height-monitor")

type HeightNotification struct {
	Height uint64
}

// HeightMonitor polls the reference chain and publishes its height. The
// published height never decreases: lower readings are logged and ignored,
// and the last height is restored from checkpoints on restart.
type HeightMonitor struct {
	tmb          *tomb.Tomb
	client       client.ChainClient
	engine       *auctiondb.Engine
	pollInterval time.Duration
	subs         []chan *HeightNotification
	checkpoints  []*auctiondb.HeightCheckpoint
	lastHeight   uint64
	mtx          sync.RWMutex
	// pollMtx serializes polls. Oracle and storage I/O happen under it,
	// never under mtx.
	pollMtx sync.Mutex
	dead    bool
}

func NewHeightMonitor(tmb *tomb.Tomb, client client.ChainClient, engine *auctiondb.Engine, pollInterval time.Duration) *HeightMonitor {
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	return &HeightMonitor{
		tmb:          tmb,
		client:       client,
		engine:       engine,
		pollInterval: pollInterval,
	}
}

func (h *HeightMonitor) Start() error {
	var checkpoints []*auctiondb.HeightCheckpoint
	err := h.engine.View(func(tx auctiondb.Transactor) error {
		checks, err := auctiondb.GetHeightCheckpoints(tx)
		if err != nil {
			return err
		}
		checkpoints = checks
		return nil
	})
	if err != nil {
		return err
	}
	h.mtx.Lock()
	h.checkpoints = checkpoints
	if len(checkpoints) > 0 {
		h.lastHeight = checkpoints[0].Height
	}
	h.mtx.Unlock()

	h.tmb.Go(func() error {
		advanced, err := h.poll()
		if err != nil {
			hmLogger.Error("error polling", "err", err)
			return err
		}
		// subscribers still get the restored height after a restart
		if !advanced {
			h.notifyCurrent()
		}

		tick := time.NewTicker(h.pollInterval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				if _, err := h.Poll(); err != nil {
					hmLogger.Error("error polling", "err", err)
				}
			case <-h.tmb.Dying():
				h.mtx.Lock()
				h.dead = true
				for _, sub := range h.subs {
					close(sub)
				}
				h.mtx.Unlock()
				return nil
			}
		}
	})

	return nil
}

func (h *HeightMonitor) LastHeight() uint64 {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return h.lastHeight
}

// Subscribe returns a channel that receives the latest height after each
// advance. Slow subscribers see only the most recent notification.
func (h *HeightMonitor) Subscribe() <-chan *HeightNotification {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.dead {
		panic("height monitor is closed")
	}

	ch := make(chan *HeightNotification, 1)
	h.subs = append(h.subs, ch)
	return ch
}

// Poll reads the chain height and returns the monitor's height afterward.
func (h *HeightMonitor) Poll() (uint64, error) {
	_, err := h.poll()
	return h.LastHeight(), err
}

func (h *HeightMonitor) poll() (bool, error) {
	h.pollMtx.Lock()
	defer h.pollMtx.Unlock()

	h.mtx.RLock()
	dead := h.dead
	lastHeight := h.lastHeight
	known := h.checkpoints
	h.mtx.RUnlock()
	if dead {
		return false, errors.New("height monitor is dead")
	}

	height, err := h.client.BlockHeight()
	if err != nil {
		return false, errors.Wrap(err, "error getting block height")
	}

	if height < lastHeight {
		hmLogger.Warning(
			"oracle height went backwards, ignoring",
			"oracle_height",
			height,
			"last_height",
			lastHeight,
		)
		return false, nil
	}
	if height == lastHeight && len(known) > 0 {
		return false, nil
	}

	checkpoints, err := h.updateCheckpoints(height, known)
	if err != nil {
		return false, err
	}
	return h.publish(height, checkpoints), nil
}

// publish records height and notifies subscribers. It reports false once
// the monitor is dead.
func (h *HeightMonitor) publish(height uint64, checkpoints []*auctiondb.HeightCheckpoint) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.dead {
		return false
	}
	h.checkpoints = checkpoints
	h.lastHeight = height
	h.sendNotifications(height)
	return true
}

func (h *HeightMonitor) notifyCurrent() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.dead {
		return
	}
	h.sendNotifications(h.lastHeight)
}

func (h *HeightMonitor) updateCheckpoints(height uint64, prevCheckpoints []*auctiondb.HeightCheckpoint) ([]*auctiondb.HeightCheckpoint, error) {
	start := uint64(0)
	count := HeightMonitorCheckpointDepth
	if height+1 > uint64(count) {
		start = height + 1 - uint64(count)
	} else {
		count = int(height + 1)
	}

	hashes, err := h.client.BlockHashesBatch(start, count)
	if err != nil {
		return nil, errors.Wrap(err, "error getting block hashes")
	}

	known := make(map[uint64]string)
	for _, check := range prevCheckpoints {
		known[check.Height] = check.Hash
	}

	checkpoints := make([]*auctiondb.HeightCheckpoint, 0, len(hashes))
	for i := len(hashes) - 1; i >= 0; i-- {
		res := hashes[i]
		if res.Error != nil {
			return nil, errors.Wrapf(res.Error, "error getting block %d", res.Height)
		}
		if prev, ok := known[res.Height]; ok && prev != res.Hash {
			hmLogger.Error(
				"reference chain reorg detected",
				"height",
				res.Height,
				"checkpoint_hash",
				prev,
				"chain_hash",
				res.Hash,
			)
		}
		checkpoints = append(checkpoints, &auctiondb.HeightCheckpoint{
			Height: res.Height,
			Hash:   res.Hash,
		})
	}

	err = h.engine.Transaction(func(tx auctiondb.Transactor) error {
		return auctiondb.UpdateHeightCheckpoints(tx, checkpoints)
	})
	if err != nil {
		return nil, err
	}
	return checkpoints, nil
}

func (h *HeightMonitor) sendNotifications(height uint64) {
	notif := &HeightNotification{
		Height: height,
	}
	for _, sub := range h.subs {
		select {
		case sub <- notif:
		default:
			select {
			case <-sub:
			default:
			}
			sub <- notif
		}
	}
}

// FixedHeight is a HeightSource set by hand.
type FixedHeight struct {
	height atomic.Uint64
}

func NewFixedHeight(height uint64) *FixedHeight {
	f := new(FixedHeight)
	f.height.Store(height)
	return f
}

func (f *FixedHeight) Set(height uint64) {
	f.height.Store(height)
}

func (f *FixedHeight) LastHeight() uint64 {
	return f.height.Load()
}
