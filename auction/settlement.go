package auction

import (
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/bio"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
)

// SettlementTracker moves payment requests from Pending to Fulfilled or
// Failed. Callers hold the listing's lock and pass an open transaction.
type SettlementTracker struct {
	network    *chain.Network
	staleAfter time.Duration
}

func NewSettlementTracker(network *chain.Network, staleAfter time.Duration) *SettlementTracker {
	return &SettlementTracker{
		network:    network,
		staleAfter: staleAfter,
	}
}

// RequestID derives a request's ID from its listing, payer and per-listing
// nonce, so a replayed initiation maps to the same ID.
func RequestID(listingID uint64, payer chain.Principal, nonce uint64) string {
	return crypto.Keccak256Hash(
		bio.Uint64BE(listingID),
		payer.Bytes(),
		bio.Uint64BE(nonce),
	).Hex()
}

func (s *SettlementTracker) Initiate(tx auctiondb.Transactor, listing *auctiondb.Listing, p *PaymentParams, atHeight uint64, now time.Time) (*auctiondb.SettlementRequest, error) {
	for _, id := range []uint64{p.SourceChain, p.DestinationChain} {
		if !s.network.HasChain(id) {
			return nil, errors.Wrapf(ErrUnsupportedChain, "chain %d", id)
		}
	}
	if listing.State == auctiondb.ListingSettled {
		return nil, errors.WithStack(ErrAlreadySettled)
	}
	if listing.State != auctiondb.ListingEnded {
		return nil, errors.WithStack(ErrNotEnded)
	}
	if listing.Winner == "" || p.Payer != listing.Winner {
		return nil, errors.WithStack(ErrNotWinner)
	}

	live, err := auctiondb.GetLiveSettlementRequest(tx, listing.ID)
	if err == nil {
		if live.State == auctiondb.SettlementFulfilled {
			return nil, errors.WithStack(ErrAlreadySettled)
		}
		return nil, errors.Wrapf(ErrInFlight, "request %s", live.ID)
	}
	if !errors.Is(err, auctiondb.ErrNotFound) {
		return nil, err
	}

	if err := checkTerms(p.SourceChain, p.DestinationChain, p.SourceAmount, p.ExpectedAmount, p.SolverFee); err != nil {
		return nil, err
	}
	if p.ExpectedAmount < *listing.WinningAmount {
		return nil, errors.Wrapf(
			ErrInsufficientAmount,
			"expected amount %d below winning amount %d",
			p.ExpectedAmount,
			*listing.WinningAmount,
		)
	}

	nonce, err := auctiondb.CountSettlementRequests(tx, listing.ID)
	if err != nil {
		return nil, err
	}
	req := &auctiondb.SettlementRequest{
		ID:                RequestID(listing.ID, p.Payer, nonce),
		ListingID:         listing.ID,
		Nonce:             nonce,
		Payer:             p.Payer,
		Payee:             listing.Owner,
		SourceAmount:      p.SourceAmount,
		ExpectedAmount:    p.ExpectedAmount,
		SolverFee:         p.SolverFee,
		SourceChain:       p.SourceChain,
		DestinationChain:  p.DestinationChain,
		State:             auctiondb.SettlementPending,
		RequestedAt:       now.UTC().Truncate(time.Second),
		RequestedAtHeight: atHeight,
	}
	if err := auctiondb.CreateSettlementRequest(tx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// MarkFulfilled completes a Pending request. A report that pays less than
// expected, or a request whose terms break the fee invariant, moves the
// request to Failed and returns ErrFulfillmentMismatch; the caller must
// commit in that case.
func (s *SettlementTracker) MarkFulfilled(tx auctiondb.Transactor, req *auctiondb.SettlementRequest, actualAmount uint64, now time.Time) error {
	if err := checkTransition(req); err != nil {
		return err
	}

	var reason string
	if err := checkTerms(req.SourceChain, req.DestinationChain, req.SourceAmount, req.ExpectedAmount, req.SolverFee); err != nil {
		reason = "fee invariant violated: " + err.Error()
	} else if actualAmount < req.ExpectedAmount {
		reason = fmt.Sprintf("actual amount %d below expected amount %d", actualAmount, req.ExpectedAmount)
	}

	if reason != "" {
		if err := s.fail(tx, req, reason, now); err != nil {
			return err
		}
		return errors.Wrap(ErrFulfillmentMismatch, reason)
	}

	ts := now.UTC().Truncate(time.Second)
	req.State = auctiondb.SettlementFulfilled
	req.ActualAmount = &actualAmount
	req.FulfilledAt = &ts
	return auctiondb.UpdateSettlementRequest(tx, req)
}

// MarkFailed ends a Pending request without retrying it. The listing may
// start a fresh request afterward.
func (s *SettlementTracker) MarkFailed(tx auctiondb.Transactor, req *auctiondb.SettlementRequest, reason string, now time.Time) error {
	if err := checkTransition(req); err != nil {
		return err
	}
	return s.fail(tx, req, reason, now)
}

func (s *SettlementTracker) IsStale(req *auctiondb.SettlementRequest, now time.Time) bool {
	return req.State == auctiondb.SettlementPending && now.Sub(req.RequestedAt) > s.staleAfter
}

func (s *SettlementTracker) View(req *auctiondb.SettlementRequest, now time.Time) *SettlementView {
	return &SettlementView{
		SettlementRequest: req,
		Stale:             s.IsStale(req, now),
	}
}

func (s *SettlementTracker) fail(tx auctiondb.Transactor, req *auctiondb.SettlementRequest, reason string, now time.Time) error {
	ts := now.UTC().Truncate(time.Second)
	req.State = auctiondb.SettlementFailed
	req.FailureReason = reason
	req.FailedAt = &ts
	return auctiondb.UpdateSettlementRequest(tx, req)
}

func checkTransition(req *auctiondb.SettlementRequest) error {
	switch req.State {
	case auctiondb.SettlementFulfilled:
		return errors.WithStack(ErrAlreadyFulfilled)
	case auctiondb.SettlementFailed:
		return errors.WithStack(ErrAlreadyFailed)
	default:
		return nil
	}
}

// checkTerms enforces sourceAmount >= expectedAmount + solverFee across
// chains, and sourceAmount == expectedAmount with no fee on one chain.
func checkTerms(sourceChain, destChain, sourceAmount, expectedAmount, solverFee uint64) error {
	if sourceChain == destChain {
		if solverFee != 0 {
			return errors.WithStack(ErrSolverFeeNotAllowed)
		}
		if sourceAmount != expectedAmount {
			return errors.Wrapf(
				ErrInsufficientAmount,
				"source amount %d must equal expected amount %d",
				sourceAmount,
				expectedAmount,
			)
		}
		return nil
	}

	if expectedAmount > math.MaxUint64-solverFee || sourceAmount < expectedAmount+solverFee {
		return errors.Wrapf(
			ErrInsufficientAmount,
			"source amount %d below expected amount %d plus solver fee %d",
			sourceAmount,
			expectedAmount,
			solverFee,
		)
	}
	return nil
}
