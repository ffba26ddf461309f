package auction

import (
	"time"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/timelock"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "APPLIED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeDropped   Outcome = "DROPPED"
	// OutcomeRejected is recorded when a callback was consumed by a failure
	// transition, such as a fulfillment mismatch.
	OutcomeRejected Outcome = "REJECTED"
)

// RevealedBid is the view of a bid that winner selection works over.
type RevealedBid struct {
	BidID             uint64          `json:"bid_id"`
	Bidder            chain.Principal `json:"bidder"`
	Amount            uint64          `json:"amount"`
	SubmittedAtHeight uint64          `json:"submitted_at_height"`
}

type CreateListingParams struct {
	Owner         chain.Principal
	ItemName      string
	Description   string
	ImageURL      string
	MinimumAmount uint64
	RevealHeight  uint64
	EndHeight     uint64
}

type SubmitBidParams struct {
	ListingID uint64
	Bidder    chain.Principal
	Envelope  *timelock.Envelope
}

type PaymentParams struct {
	ListingID        uint64
	Payer            chain.Principal
	SourceChain      uint64
	DestinationChain uint64
	SourceAmount     uint64
	ExpectedAmount   uint64
	SolverFee        uint64
}

// SettlementView is a settlement request plus its staleness at read time.
type SettlementView struct {
	*auctiondb.SettlementRequest
	Stale bool `json:"stale"`
}

// SolverGateway carries initiated settlement requests to the settlement
// network. Results come back through the Coordinator's fulfillment
// callbacks.
type SolverGateway interface {
	Submit(req *auctiondb.SettlementRequest) error
}

// DecryptionRequester registers a submitted envelope with the decryption
// network.
type DecryptionRequester interface {
	RequestDecryption(env *timelock.Envelope) error
}

// HeightSource reports the reference chain's current height. The
// coordinator reads it before opening a storage transaction, never inside
// one.
type HeightSource interface {
	LastHeight() uint64
}

type Config struct {
	Network                 *chain.Network
	StaleAfter              time.Duration
	IntegrityAlertThreshold int
	AutoSelectWinners       bool
	Clock                   func() time.Time
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.StaleAfter == 0 {
		out.StaleAfter = 30 * time.Minute
	}
	if out.IntegrityAlertThreshold == 0 {
		out.IntegrityAlertThreshold = 3
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return &out
}
