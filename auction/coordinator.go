package auction

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/log"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const autoSelectConcurrency = 4

var coordLogger = log.ModuleLogger("coordinator")

// Coordinator is the only writer of listing, bid and settlement state. It
// serializes work per listing and applies each external callback at most
// once per idempotency key.
type Coordinator struct {
	engine      *auctiondb.Engine
	codec       timelock.Codec
	heights     HeightSource
	solver      SolverGateway
	decryptor   DecryptionRequester
	cfg         *Config
	listings    *ListingStore
	ledger      *BidLedger
	settlements *SettlementTracker
	locks       *listingLocks
	seen        *seenKeys
	integrity   map[string]int
	mtx         sync.Mutex
}

func NewCoordinator(
	engine *auctiondb.Engine,
	codec timelock.Codec,
	heights HeightSource,
	solver SolverGateway,
	cfg *Config,
) (*Coordinator, error) {
	if cfg.Network == nil {
		return nil, errors.New("config must specify a network")
	}
	cfg = cfg.withDefaults()

	var keys []string
	err := engine.View(func(tx auctiondb.Transactor) error {
		var err error
		keys, err = auctiondb.ListProcessedEventKeys(tx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "error loading processed events")
	}

	return &Coordinator{
		engine:      engine,
		codec:       codec,
		heights:     heights,
		solver:      solver,
		cfg:         cfg,
		listings:    new(ListingStore),
		ledger:      NewBidLedger(codec),
		settlements: NewSettlementTracker(cfg.Network, cfg.StaleAfter),
		locks:       newListingLocks(),
		seen:        newSeenKeys(keys),
		integrity:   make(map[string]int),
	}, nil
}

func (c *Coordinator) SetDecryptionRequester(d DecryptionRequester) {
	c.decryptor = d
}

func (c *Coordinator) Network() *chain.Network {
	return c.cfg.Network
}

func (c *Coordinator) Height() uint64 {
	return c.heights.LastHeight()
}

func (c *Coordinator) CreateListing(p *CreateListingParams) (*auctiondb.Listing, error) {
	height := c.heights.LastHeight()
	var listing *auctiondb.Listing
	err := c.engine.Transaction(func(tx auctiondb.Transactor) error {
		var err error
		listing, err = c.listings.Create(tx, p, height, c.cfg.Clock())
		return err
	})
	if err != nil {
		return nil, err
	}
	coordLogger.Info(
		"created listing",
		"listing_id", listing.ID,
		"owner", listing.Owner,
		"reveal_height", listing.RevealHeight,
		"end_height", listing.EndHeight,
	)
	return listing, nil
}

// SealBid binds amount to the listing's reveal height.
func (c *Coordinator) SealBid(listingID uint64, amount uint64) (*timelock.Envelope, error) {
	listing, err := c.GetListing(listingID)
	if err != nil {
		return nil, err
	}
	env, err := c.codec.Bind(amount, listing.RevealHeight)
	if err != nil {
		return nil, errors.Wrap(err, "error sealing bid")
	}
	return env, nil
}

func (c *Coordinator) SubmitBid(p *SubmitBidParams) (*auctiondb.Bid, error) {
	unlock := c.locks.Lock(p.ListingID)
	defer unlock()

	height := c.heights.LastHeight()
	var bid *auctiondb.Bid
	err := c.engine.Transaction(func(tx auctiondb.Transactor) error {
		listing, err := getListing(tx, p.ListingID)
		if err != nil {
			return err
		}
		bid, err = c.ledger.Submit(tx, listing, p.Bidder, p.Envelope, height)
		return err
	})
	if err != nil {
		return nil, err
	}

	coordLogger.Info(
		"submitted bid",
		"listing_id", bid.ListingID,
		"bid_id", bid.ID,
		"bidder", bid.Bidder,
		"envelope_ref", bid.EnvelopeRef.String(),
	)

	if c.decryptor != nil {
		if err := c.decryptor.RequestDecryption(bid.Envelope); err != nil {
			coordLogger.Warning(
				"error requesting decryption",
				"bid_id", bid.ID,
				"envelope_ref", bid.EnvelopeRef.String(),
				"err", err,
			)
		}
	}
	return bid, nil
}

// OnDecryptionCallback decodes a wire proof and applies the delivery. A
// proof that cannot be decoded counts as an integrity failure.
func (c *Coordinator) OnDecryptionCallback(key string, ref gcrypto.Hash, cleartext []byte, rawProof []byte) (Outcome, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	proof, err := timelock.NewProofFromBytes(rawProof)
	if err != nil {
		err = errors.Wrap(ErrMalformedProof, err.Error())
		c.noteIntegrity(err, "key", key, "envelope_ref", ref.String())
		return "", err
	}
	return c.OnDecryptionDelivered(key, ref, cleartext, proof)
}

// OnDecryptionDelivered applies a cleartext delivered by the decryption
// network to the bid sealed in the referenced envelope.
func (c *Coordinator) OnDecryptionDelivered(key string, ref gcrypto.Hash, cleartext []byte, proof *timelock.Proof) (Outcome, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if dup, err := c.alreadyProcessed(key); err != nil || dup {
		return OutcomeDuplicate, err
	}

	var bid *auctiondb.Bid
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		bid, err = auctiondb.GetBidByEnvelopeRef(tx, ref)
		return err
	})
	if errors.Is(err, auctiondb.ErrNotFound) {
		coordLogger.Info("dropping decryption for unknown envelope", "key", key, "envelope_ref", ref.String())
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}

	unlock := c.locks.Lock(bid.ListingID)
	defer unlock()

	height := c.heights.LastHeight()
	var outcome Outcome
	err = c.engine.Transaction(func(tx auctiondb.Transactor) error {
		if dup, err := processedIn(tx, key); err != nil || dup {
			outcome = OutcomeDuplicate
			return err
		}

		bid, err := auctiondb.GetBid(tx, bid.ID)
		if err != nil {
			return err
		}
		amount, err := c.codec.Accept(bid.Envelope, cleartext, proof)
		if err != nil {
			return codecError(err)
		}
		listing, err := getListing(tx, bid.ListingID)
		if err != nil {
			return err
		}
		outcome, err = c.ledger.ApplyReveal(tx, listing, bid, amount, cleartext, height)
		if err != nil {
			return err
		}
		return c.recordEvent(tx, key, auctiondb.EventDecryption, ref.String(), outcome)
	})
	if err != nil {
		c.noteIntegrity(err, "key", key, "envelope_ref", ref.String())
		return "", err
	}

	c.seen.Add(key)
	coordLogger.Info(
		"applied decryption",
		"key", key,
		"bid_id", bid.ID,
		"listing_id", bid.ListingID,
		"outcome", outcome,
	)
	return outcome, nil
}

// SelectWinner ends a listing whose end height has been reached. NoBids and
// NoQualifyingBid are returned with the ended listing.
func (c *Coordinator) SelectWinner(listingID uint64) (*auctiondb.Listing, error) {
	unlock := c.locks.Lock(listingID)
	defer unlock()

	height := c.heights.LastHeight()
	var listing *auctiondb.Listing
	var outcome error
	err := c.engine.Transaction(func(tx auctiondb.Transactor) error {
		current, err := getListing(tx, listingID)
		if err != nil {
			return err
		}
		bids, err := c.ledger.RevealedBidsFor(tx, listingID)
		if err != nil {
			return err
		}
		listing, outcome = c.listings.SelectWinner(tx, current, height, bids)
		if listing == nil {
			return outcome
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome != nil {
		coordLogger.Info("listing ended without a winner", "listing_id", listingID, "outcome", CodeOf(outcome))
		return listing, outcome
	}
	coordLogger.Info(
		"selected winner",
		"listing_id", listingID,
		"winner", listing.Winner,
		"winning_amount", *listing.WinningAmount,
	)
	return listing, nil
}

// RecomputeWinner runs winner selection over the listing's current
// revealed bids without changing state.
func (c *Coordinator) RecomputeWinner(listingID uint64) (*RevealedBid, error) {
	var winner *RevealedBid
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		listing, err := getListing(tx, listingID)
		if err != nil {
			return err
		}
		bids, err := c.ledger.RevealedBidsFor(tx, listingID)
		if err != nil {
			return err
		}
		winner, err = SelectWinner(bids, listing.MinimumAmount)
		return err
	})
	return winner, err
}

func (c *Coordinator) CancelListing(listingID uint64, caller chain.Principal) (*auctiondb.Listing, error) {
	unlock := c.locks.Lock(listingID)
	defer unlock()

	var listing *auctiondb.Listing
	err := c.engine.Transaction(func(tx auctiondb.Transactor) error {
		var err error
		listing, err = getListing(tx, listingID)
		if err != nil {
			return err
		}
		return c.listings.Cancel(tx, listing, caller)
	})
	if err != nil {
		return nil, err
	}
	coordLogger.Info("cancelled listing", "listing_id", listingID)
	return listing, nil
}

// InitiatePayment opens a settlement request from the listing's winner to
// its owner and hands it to the solver gateway.
func (c *Coordinator) InitiatePayment(p *PaymentParams) (*auctiondb.SettlementRequest, error) {
	unlock := c.locks.Lock(p.ListingID)
	defer unlock()

	height := c.heights.LastHeight()
	var req *auctiondb.SettlementRequest
	err := c.engine.Transaction(func(tx auctiondb.Transactor) error {
		listing, err := getListing(tx, p.ListingID)
		if err != nil {
			return err
		}
		req, err = c.settlements.Initiate(tx, listing, p, height, c.cfg.Clock())
		return err
	})
	if err != nil {
		return nil, err
	}

	coordLogger.Info(
		"initiated settlement",
		"request_id", req.ID,
		"listing_id", req.ListingID,
		"source_chain", req.SourceChain,
		"destination_chain", req.DestinationChain,
		"source_amount", req.SourceAmount,
		"expected_amount", req.ExpectedAmount,
		"solver_fee", req.SolverFee,
	)

	if c.solver != nil {
		if err := c.solver.Submit(req); err != nil {
			coordLogger.Warning("error submitting settlement to solver", "request_id", req.ID, "err", err)
		}
	}
	return req, nil
}

// OnFulfillment applies a solver's report that a request was paid out.
func (c *Coordinator) OnFulfillment(key string, requestID string, actualAmount uint64) (Outcome, error) {
	return c.applySettlementEvent(key, requestID, auctiondb.EventFulfillment, func(tx auctiondb.Transactor, req *auctiondb.SettlementRequest) error {
		err := c.settlements.MarkFulfilled(tx, req, actualAmount, c.cfg.Clock())
		if errors.Is(err, ErrAlreadyFailed) {
			coordLogger.Error(
				"settlement paid after it was marked failed",
				"request_id", req.ID,
				"listing_id", req.ListingID,
				"actual_amount", actualAmount,
				"failure_reason", req.FailureReason,
			)
			return errors.Wrapf(ErrLateFulfillment, "request %s", req.ID)
		}
		if err != nil {
			return err
		}
		listing, err := getListing(tx, req.ListingID)
		if err != nil {
			return err
		}
		return c.listings.RecordPayment(tx, listing)
	})
}

// OnFulfillmentFailed applies a solver's report that a request could not
// be filled. The listing may start a new request afterward.
func (c *Coordinator) OnFulfillmentFailed(key string, requestID string, reason string) (Outcome, error) {
	return c.applySettlementEvent(key, requestID, auctiondb.EventFulfillmentFailure, func(tx auctiondb.Transactor, req *auctiondb.SettlementRequest) error {
		return c.settlements.MarkFailed(tx, req, reason, c.cfg.Clock())
	})
}

// MarkFailed is the operator's way to abandon a Pending request, typically
// one reported as stale.
func (c *Coordinator) MarkFailed(requestID string, reason string) (*auctiondb.SettlementRequest, error) {
	req, err := c.GetSettlementRequest(requestID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(req.ListingID)
	defer unlock()

	var out *auctiondb.SettlementRequest
	err = c.engine.Transaction(func(tx auctiondb.Transactor) error {
		var err error
		out, err = getSettlementRequest(tx, requestID)
		if err != nil {
			return err
		}
		return c.settlements.MarkFailed(tx, out, reason, c.cfg.Clock())
	})
	if err != nil {
		return nil, err
	}
	coordLogger.Info("marked settlement failed", "request_id", requestID, "reason", reason)
	return out, nil
}

func (c *Coordinator) applySettlementEvent(
	key string,
	requestID string,
	kind auctiondb.EventKind,
	apply func(tx auctiondb.Transactor, req *auctiondb.SettlementRequest) error,
) (Outcome, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if dup, err := c.alreadyProcessed(key); err != nil || dup {
		return OutcomeDuplicate, err
	}

	var req *auctiondb.SettlementRequest
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		req, err = auctiondb.GetSettlementRequest(tx, requestID)
		return err
	})
	if errors.Is(err, auctiondb.ErrNotFound) {
		coordLogger.Info("dropping settlement event for unknown request", "key", key, "request_id", requestID, "kind", kind)
		return OutcomeDropped, nil
	}
	if err != nil {
		return "", err
	}

	unlock := c.locks.Lock(req.ListingID)
	defer unlock()

	outcome := OutcomeApplied
	var rejection error
	err = c.engine.Transaction(func(tx auctiondb.Transactor) error {
		if dup, err := processedIn(tx, key); err != nil || dup {
			outcome = OutcomeDuplicate
			return err
		}
		req, err := auctiondb.GetSettlementRequest(tx, requestID)
		if err != nil {
			return err
		}
		if err := apply(tx, req); err != nil {
			if KindOf(err) != KindExternalIntegrity {
				return err
			}
			rejection = err
			outcome = OutcomeRejected
		}
		return c.recordEvent(tx, key, kind, requestID, outcome)
	})
	if err != nil {
		coordLogger.Warning("rejected settlement event", "key", key, "request_id", requestID, "kind", kind, "err", err)
		return "", err
	}

	c.seen.Add(key)
	if rejection != nil {
		c.noteIntegrity(rejection, "key", key, "request_id", requestID)
		return outcome, rejection
	}

	coordLogger.Info("applied settlement event", "key", key, "request_id", requestID, "kind", kind, "outcome", outcome)
	return outcome, nil
}

// Resume hands work that was in flight before a restart back to the
// external collaborators: unrevealed envelopes to the decryption network
// and Pending settlement requests to the solver gateway.
func (c *Coordinator) Resume() error {
	var bids []*auctiondb.Bid
	var reqs []*auctiondb.SettlementRequest
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		bids, err = auctiondb.ListUnrevealedBids(tx)
		if err != nil {
			return err
		}
		reqs, err = auctiondb.ListPendingSettlementRequests(tx)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "error loading in-flight work")
	}

	var decryptions, settlements int
	if c.decryptor != nil {
		for _, bid := range bids {
			if err := c.decryptor.RequestDecryption(bid.Envelope); err != nil {
				return errors.Wrapf(err, "error re-requesting decryption for bid %d", bid.ID)
			}
			decryptions++
		}
	}
	if c.solver != nil {
		for _, req := range reqs {
			if err := c.solver.Submit(req); err != nil {
				return errors.Wrapf(err, "error resubmitting settlement %s", req.ID)
			}
			settlements++
		}
	}

	coordLogger.Info("resumed in-flight work", "decryptions", decryptions, "settlements", settlements)
	return nil
}

// OnHeight is called after the reference chain advances.
func (c *Coordinator) OnHeight(height uint64) {
	if !c.cfg.AutoSelectWinners {
		return
	}
	if err := c.SelectEndedListings(height); err != nil {
		coordLogger.Error("error selecting winners", "height", height, "err", err)
	}
}

// SelectEndedListings runs winner selection for every Active listing whose
// end height is at or below height. Listings are independent, so they are
// processed concurrently.
func (c *Coordinator) SelectEndedListings(height uint64) error {
	var due []*auctiondb.Listing
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		due, err = auctiondb.ListEndedActiveListings(tx, height)
		return err
	})
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(autoSelectConcurrency)
	for _, listing := range due {
		listingID := listing.ID
		g.Go(func() error {
			_, err := c.SelectWinner(listingID)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrNoBids), errors.Is(err, ErrNoQualifyingBid):
				return nil
			case errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrTooEarly):
				return nil
			default:
				return errors.Wrapf(err, "error selecting winner for listing %d", listingID)
			}
		})
	}
	return g.Wait()
}

func (c *Coordinator) GetListing(id uint64) (*auctiondb.Listing, error) {
	var listing *auctiondb.Listing
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		listing, err = getListing(tx, id)
		return err
	})
	return listing, err
}

func (c *Coordinator) ListListings(filter *auctiondb.ListingFilter) ([]*auctiondb.Listing, error) {
	var listings []*auctiondb.Listing
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		listings, err = auctiondb.ListListings(tx, filter)
		return err
	})
	return listings, err
}

func (c *Coordinator) GetBid(id uint64) (*auctiondb.Bid, error) {
	var bid *auctiondb.Bid
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		bid, err = auctiondb.GetBid(tx, id)
		if errors.Is(err, auctiondb.ErrNotFound) {
			return errors.Wrapf(ErrBidNotFound, "bid %d", id)
		}
		return err
	})
	return bid, err
}

func (c *Coordinator) ListBids(listingID uint64) ([]*auctiondb.Bid, error) {
	var bids []*auctiondb.Bid
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		if _, err := getListing(tx, listingID); err != nil {
			return err
		}
		var err error
		bids, err = auctiondb.ListBidsForListing(tx, listingID)
		return err
	})
	return bids, err
}

func (c *Coordinator) ListBidsByBidder(bidder chain.Principal, count, offset int) ([]*auctiondb.Bid, error) {
	var bids []*auctiondb.Bid
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		bids, err = auctiondb.ListBidsByBidder(tx, bidder, count, offset)
		return err
	})
	return bids, err
}

func (c *Coordinator) GetSettlementRequest(id string) (*SettlementView, error) {
	var req *auctiondb.SettlementRequest
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		req, err = getSettlementRequest(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.settlements.View(req, c.cfg.Clock()), nil
}

func (c *Coordinator) ListSettlements(listingID uint64) ([]*SettlementView, error) {
	var reqs []*auctiondb.SettlementRequest
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		if _, err := getListing(tx, listingID); err != nil {
			return err
		}
		var err error
		reqs, err = auctiondb.ListSettlementRequests(tx, listingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.views(reqs), nil
}

// ListStaleSettlements returns Pending requests older than the configured
// staleness threshold.
func (c *Coordinator) ListStaleSettlements() ([]*SettlementView, error) {
	now := c.cfg.Clock()
	var reqs []*auctiondb.SettlementRequest
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		reqs, err = auctiondb.ListPendingSettlementsBefore(tx, now.Add(-c.cfg.StaleAfter))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.views(reqs), nil
}

// IntegrityCounts returns how many times each external-integrity error has
// been seen since startup.
func (c *Coordinator) IntegrityCounts() map[string]int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make(map[string]int, len(c.integrity))
	for code, n := range c.integrity {
		out[code] = n
	}
	return out
}

func (c *Coordinator) views(reqs []*auctiondb.SettlementRequest) []*SettlementView {
	now := c.cfg.Clock()
	out := make([]*SettlementView, len(reqs))
	for i, req := range reqs {
		out[i] = c.settlements.View(req, now)
	}
	return out
}

func (c *Coordinator) alreadyProcessed(key string) (bool, error) {
	if !c.seen.MaybeSeen(key) {
		return false, nil
	}
	var dup bool
	err := c.engine.View(func(tx auctiondb.Transactor) error {
		var err error
		dup, err = processedIn(tx, key)
		return err
	})
	return dup, err
}

func (c *Coordinator) recordEvent(tx auctiondb.Transactor, key string, kind auctiondb.EventKind, ref string, outcome Outcome) error {
	return auctiondb.RecordProcessedEvent(tx, &auctiondb.ProcessedEvent{
		Key:         key,
		Kind:        kind,
		Ref:         ref,
		Outcome:     string(outcome),
		ProcessedAt: c.cfg.Clock().UTC().Truncate(time.Second),
	})
}

func (c *Coordinator) noteIntegrity(err error, kv ...interface{}) {
	if KindOf(err) != KindExternalIntegrity {
		return
	}
	code := CodeOf(err)
	c.mtx.Lock()
	c.integrity[code]++
	count := c.integrity[code]
	c.mtx.Unlock()

	kv = append(kv, "code", code, "count", count, "err", err)
	if count >= c.cfg.IntegrityAlertThreshold {
		coordLogger.Error("repeated integrity failures from external collaborator", kv...)
		return
	}
	coordLogger.Warning("integrity failure from external collaborator", kv...)
}

func processedIn(tx auctiondb.Transactor, key string) (bool, error) {
	_, err := auctiondb.GetProcessedEvent(tx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, auctiondb.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func validateKey(key string) error {
	if _, err := uuid.Parse(key); err != nil {
		return errors.Wrapf(ErrInvalidIdempotencyKey, "%q", key)
	}
	return nil
}

func getListing(tx auctiondb.Transactor, id uint64) (*auctiondb.Listing, error) {
	listing, err := auctiondb.GetListing(tx, id)
	if errors.Is(err, auctiondb.ErrNotFound) {
		return nil, errors.Wrapf(ErrListingNotFound, "listing %d", id)
	}
	return listing, err
}

func getSettlementRequest(tx auctiondb.Transactor, id string) (*auctiondb.SettlementRequest, error) {
	req, err := auctiondb.GetSettlementRequest(tx, id)
	if errors.Is(err, auctiondb.ErrNotFound) {
		return nil, errors.Wrapf(ErrUnknownRequest, "request %s", id)
	}
	return req, err
}
