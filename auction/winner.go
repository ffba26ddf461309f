package auction

import "github.com/pkg/errors"

// SelectWinner picks the highest revealed amount at or above minimum. Ties
// go to the earliest submission height, then the lowest bid ID, so the
// result does not depend on the order of bids.
func SelectWinner(bids []*RevealedBid, minimum uint64) (*RevealedBid, error) {
	var best *RevealedBid
	for _, bid := range bids {
		if bid.Amount < minimum {
			continue
		}
		if best == nil || outranks(bid, best) {
			best = bid
		}
	}
	if best == nil {
		return nil, errors.WithStack(ErrNoQualifyingBid)
	}
	return best, nil
}

func outranks(a, b *RevealedBid) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	if a.SubmittedAtHeight != b.SubmittedAtHeight {
		return a.SubmittedAtHeight < b.SubmittedAtHeight
	}
	return a.BidID < b.BidID
}
