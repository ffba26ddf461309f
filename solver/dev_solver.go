package solver

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/log"
)

var logger = log.ModuleLogger("dev-solver")

// Receiver is the side of the Coordinator that accepts solver reports.
type Receiver interface {
	OnFulfillment(key string, requestID string, actualAmount uint64) (auction.Outcome, error)
	OnFulfillmentFailed(key string, requestID string, reason string) (auction.Outcome, error)
}

// DevSolver stands in for the solver network in dev mode. Requests
// submitted to it are filled at their expected amount on the next height.
type DevSolver struct {
	receiver  Receiver
	pending   map[string]*auctiondb.SettlementRequest
	shortfall uint64
	failNext  string
	mtx       sync.Mutex
}

var _ auction.SolverGateway = (*DevSolver)(nil)

func NewDevSolver() *DevSolver {
	return &DevSolver{
		pending: make(map[string]*auctiondb.SettlementRequest),
	}
}

func (d *DevSolver) SetReceiver(r Receiver) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.receiver = r
}

// SetShortfall makes later fills deliver this much less than expected.
func (d *DevSolver) SetShortfall(amount uint64) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.shortfall = amount
}

// FailNext makes the next processed request fail with reason.
func (d *DevSolver) FailNext(reason string) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.failNext = reason
}

func (d *DevSolver) Submit(req *auctiondb.SettlementRequest) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.pending[req.ID] = req
	logger.Debug("accepted settlement request", "request_id", req.ID)
	return nil
}

func (d *DevSolver) PendingCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.pending)
}

// OnHeight reports a result for every pending request.
func (d *DevSolver) OnHeight(height uint64) {
	d.mtx.Lock()
	receiver := d.receiver
	if receiver == nil {
		d.mtx.Unlock()
		return
	}
	reqs := make([]*auctiondb.SettlementRequest, 0, len(d.pending))
	for _, req := range d.pending {
		reqs = append(reqs, req)
	}
	d.pending = make(map[string]*auctiondb.SettlementRequest)
	shortfall := d.shortfall
	failNext := d.failNext
	d.failNext = ""
	d.mtx.Unlock()

	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].ID < reqs[j].ID
	})

	for _, req := range reqs {
		if failNext != "" {
			_, err := receiver.OnFulfillmentFailed(FailureKey(req.ID), req.ID, failNext)
			failNext = ""
			if err != nil {
				logger.Warning("error reporting failure", "request_id", req.ID, "err", err)
			}
			continue
		}

		amount := req.ExpectedAmount
		if shortfall > amount {
			amount = 0
		} else {
			amount -= shortfall
		}
		outcome, err := receiver.OnFulfillment(FulfillmentKey(req.ID), req.ID, amount)
		if err != nil {
			logger.Warning("error reporting fulfillment", "request_id", req.ID, "err", err)
			continue
		}
		logger.Info("filled settlement request", "request_id", req.ID, "height", height, "amount", amount, "outcome", outcome)
	}
}

func FulfillmentKey(requestID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("fulfilled:"+requestID)).String()
}

func FailureKey(requestID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("failed:"+requestID)).String()
}
