package auction

import (
	"bytes"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
)

// BidLedger stores sealed bids and applies their reveals. Callers hold the
// listing's lock and pass an open transaction.
type BidLedger struct {
	codec timelock.Codec
}

func NewBidLedger(codec timelock.Codec) *BidLedger {
	return &BidLedger{
		codec: codec,
	}
}

func (b *BidLedger) Submit(tx auctiondb.Transactor, listing *auctiondb.Listing, bidder chain.Principal, env *timelock.Envelope, atHeight uint64) (*auctiondb.Bid, error) {
	if listing.State != auctiondb.ListingActive {
		return nil, errors.WithStack(ErrListingNotActive)
	}
	if env == nil {
		return nil, errors.WithStack(ErrMalformedEnvelope)
	}
	if env.TargetHeight != listing.RevealHeight {
		return nil, errors.Wrapf(
			ErrEnvelopeHeightMismatch,
			"envelope height %d, reveal height %d",
			env.TargetHeight,
			listing.RevealHeight,
		)
	}
	if !b.codec.Validate(env, listing.RevealHeight) {
		return nil, errors.WithStack(ErrMalformedEnvelope)
	}
	if atHeight >= listing.RevealHeight {
		return nil, errors.WithStack(ErrBiddingClosed)
	}
	if bidder == listing.Owner {
		return nil, errors.WithStack(ErrOwnerCannotBid)
	}

	ref := env.Ref()
	_, err := auctiondb.GetBidByEnvelopeRef(tx, ref)
	if err == nil {
		return nil, errors.WithStack(ErrDuplicateEnvelope)
	}
	if !errors.Is(err, auctiondb.ErrNotFound) {
		return nil, err
	}

	bid := &auctiondb.Bid{
		ListingID:         listing.ID,
		Bidder:            bidder,
		Envelope:          env,
		EnvelopeRef:       ref,
		SubmittedAtHeight: atHeight,
	}
	if err := auctiondb.CreateBid(tx, bid); err != nil {
		return nil, err
	}

	listing.TotalBids++
	if err := auctiondb.UpdateListing(tx, listing); err != nil {
		return nil, err
	}
	return bid, nil
}

// ApplyReveal records a bid's decrypted amount. Minimum amounts are not
// checked here. A reveal of a listing that already closed is stored as
// late. Reapplying the same cleartext is a duplicate; a different one is
// rejected and the stored amount is kept.
func (b *BidLedger) ApplyReveal(tx auctiondb.Transactor, listing *auctiondb.Listing, bid *auctiondb.Bid, amount uint64, cleartext []byte, atHeight uint64) (Outcome, error) {
	if bid.Revealed {
		if bytes.Equal(bid.Cleartext, cleartext) {
			return OutcomeDuplicate, nil
		}
		return "", errors.WithStack(ErrAlreadyRevealed)
	}

	late := listing.State != auctiondb.ListingActive
	if err := auctiondb.RevealBid(tx, bid.ID, amount, cleartext, atHeight, late); err != nil {
		if errors.Is(err, auctiondb.ErrBidAlreadyRevealed) {
			return "", errors.WithStack(ErrAlreadyRevealed)
		}
		return "", err
	}

	bid.Revealed = true
	bid.RevealedAmount = &amount
	bid.Cleartext = cleartext
	bid.RevealedAtHeight = &atHeight
	bid.Late = late
	return OutcomeApplied, nil
}

// RevealedBidsFor returns the listing's selectable bids ordered by
// submission height, then bid ID.
func (b *BidLedger) RevealedBidsFor(tx auctiondb.Transactor, listingID uint64) ([]*RevealedBid, error) {
	bids, err := auctiondb.ListRevealedBids(tx, listingID)
	if err != nil {
		return nil, err
	}
	out := make([]*RevealedBid, len(bids))
	for i, bid := range bids {
		out[i] = &RevealedBid{
			BidID:             bid.ID,
			Bidder:            bid.Bidder,
			Amount:            *bid.RevealedAmount,
			SubmittedAtHeight: bid.SubmittedAtHeight,
		}
	}
	return out, nil
}
