package auction

import (
	"math"
	"strings"
	"time"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
)

const (
	MaxItemNameLen    = 256
	MaxDescriptionLen = 4096
)

// ListingStore owns the listing lifecycle:
//
//	Active --[end height reached, selectWinner]--> Ended
//	Active --[cancel, zero bids]--> Cancelled
//	Ended --[payment confirmed]--> Settled
type ListingStore struct{}

func (s *ListingStore) Create(tx auctiondb.Transactor, p *CreateListingParams, currentHeight uint64, now time.Time) (*auctiondb.Listing, error) {
	if p.RevealHeight >= p.EndHeight ||
		p.RevealHeight <= currentHeight ||
		p.EndHeight > math.MaxInt64 {
		return nil, errors.Wrapf(
			ErrInvalidWindow,
			"reveal %d, end %d, current %d",
			p.RevealHeight,
			p.EndHeight,
			currentHeight,
		)
	}
	itemName := strings.TrimSpace(p.ItemName)
	if itemName == "" || len(itemName) > MaxItemNameLen {
		return nil, errors.Wrap(ErrInvalidListing, "item name must be 1-256 characters")
	}
	if len(p.Description) > MaxDescriptionLen {
		return nil, errors.Wrap(ErrInvalidListing, "description too long")
	}

	listing := &auctiondb.Listing{
		Owner:           p.Owner,
		ItemName:        itemName,
		Description:     p.Description,
		ImageURL:        p.ImageURL,
		MinimumAmount:   p.MinimumAmount,
		RevealHeight:    p.RevealHeight,
		EndHeight:       p.EndHeight,
		State:           auctiondb.ListingActive,
		CreatedAtHeight: currentHeight,
		CreatedAt:       now.UTC().Truncate(time.Second),
	}
	if err := auctiondb.CreateListing(tx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// SelectWinner ends the listing. When there are no bids, or none qualify,
// the listing still moves to Ended with no winner and the matching outcome
// error is returned alongside it; the caller must commit in that case.
func (s *ListingStore) SelectWinner(tx auctiondb.Transactor, listing *auctiondb.Listing, currentHeight uint64, bids []*RevealedBid) (*auctiondb.Listing, error) {
	if listing.State != auctiondb.ListingActive {
		return nil, errors.WithStack(ErrAlreadyFinalized)
	}
	if currentHeight < listing.EndHeight {
		return nil, errors.Wrapf(ErrTooEarly, "end height %d, current %d", listing.EndHeight, currentHeight)
	}

	listing.State = auctiondb.ListingEnded
	listing.EndedAtHeight = &currentHeight

	var outcome error
	if listing.TotalBids == 0 {
		outcome = errors.WithStack(ErrNoBids)
	} else if winner, err := SelectWinner(bids, listing.MinimumAmount); err != nil {
		outcome = err
	} else {
		amount := winner.Amount
		bidID := winner.BidID
		listing.Winner = winner.Bidder
		listing.WinningAmount = &amount
		listing.WinningBidID = &bidID
	}

	if err := auctiondb.UpdateListing(tx, listing); err != nil {
		return nil, err
	}
	return listing, outcome
}

func (s *ListingStore) RecordPayment(tx auctiondb.Transactor, listing *auctiondb.Listing) error {
	if listing.State == auctiondb.ListingSettled {
		return errors.WithStack(ErrAlreadySettled)
	}
	if listing.State != auctiondb.ListingEnded {
		return errors.WithStack(ErrNotEnded)
	}
	listing.State = auctiondb.ListingSettled
	listing.PaymentReceived = true
	return auctiondb.UpdateListing(tx, listing)
}

func (s *ListingStore) Cancel(tx auctiondb.Transactor, listing *auctiondb.Listing, caller chain.Principal) error {
	if caller != listing.Owner {
		return errors.WithStack(ErrNotOwner)
	}
	if listing.State != auctiondb.ListingActive {
		return errors.WithStack(ErrAlreadyFinalized)
	}
	if listing.TotalBids > 0 {
		return errors.WithStack(ErrHasBids)
	}
	listing.State = auctiondb.ListingCancelled
	return auctiondb.UpdateListing(tx, listing)
}
