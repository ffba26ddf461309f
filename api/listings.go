package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
)

func (a *API) HandleListingsGET(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &auctiondb.ListingFilter{
		State:  auctiondb.ListingState(q.Get("state")),
		Count:  GetIntFromQuery(q, "count", 50),
		Offset: GetIntFromQuery(q, "offset", 0),
	}
	if filter.State != "" && !filter.State.Valid() {
		MarshalErrorJSON(w, errors.Wrapf(auction.ErrInvalidRequest, "unknown state %q", filter.State))
		return
	}
	if owner := q.Get("owner"); owner != "" {
		p, err := parsePrincipal(owner)
		if err != nil {
			MarshalErrorJSON(w, err)
			return
		}
		filter.Owner = p
	}

	listings, err := a.node.Coordinator().ListListings(filter)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &ListingsRes{Listings: listings})
}

func (a *API) HandleListingsPOST(w http.ResponseWriter, r *http.Request) {
	req := new(CreateListingReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	owner, err := parsePrincipal(req.Owner)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}

	listing, err := a.node.Coordinator().CreateListing(&auction.CreateListingParams{
		Owner:         owner,
		ItemName:      req.ItemName,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		MinimumAmount: req.MinimumAmount,
		RevealHeight:  req.RevealHeight,
		EndHeight:     req.EndHeight,
	})
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, listing)
}

func (a *API) HandleListingGET(w http.ResponseWriter, r *http.Request) {
	listing, err := a.node.Coordinator().GetListing(uint64Var(r, "listingID"))
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, listing)
}

func (a *API) HandleListingBidsGET(w http.ResponseWriter, r *http.Request) {
	bids, err := a.node.Coordinator().ListBids(uint64Var(r, "listingID"))
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &BidsRes{Bids: bids})
}

func (a *API) HandleListingBidsPOST(w http.ResponseWriter, r *http.Request) {
	req := new(SubmitBidReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	bidder, err := parsePrincipal(req.Bidder)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	env, err := timelock.NewEnvelopeFromBytes(req.Envelope)
	if err != nil {
		MarshalErrorJSON(w, errors.Wrap(auction.ErrMalformedEnvelope, err.Error()))
		return
	}

	bid, err := a.node.Coordinator().SubmitBid(&auction.SubmitBidParams{
		ListingID: uint64Var(r, "listingID"),
		Bidder:    bidder,
		Envelope:  env,
	})
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, bid)
}

func (a *API) HandleSealPOST(w http.ResponseWriter, r *http.Request) {
	req := new(SealBidReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	env, err := a.node.Coordinator().SealBid(uint64Var(r, "listingID"), req.Amount)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &SealBidRes{
		Envelope:    env,
		EnvelopeRef: env.Ref(),
	})
}

func (a *API) HandleWinnerGET(w http.ResponseWriter, r *http.Request) {
	winner, err := a.node.Coordinator().RecomputeWinner(uint64Var(r, "listingID"))
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, winner)
}

func (a *API) HandleSelectWinnerPOST(w http.ResponseWriter, r *http.Request) {
	listing, err := a.node.Coordinator().SelectWinner(uint64Var(r, "listingID"))
	res := &SelectWinnerRes{
		Listing: listing,
	}
	switch {
	case err == nil:
	case errors.Is(err, auction.ErrNoBids), errors.Is(err, auction.ErrNoQualifyingBid):
		res.Outcome = auction.CodeOf(err)
	default:
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, res)
}

func (a *API) HandleCancelPOST(w http.ResponseWriter, r *http.Request) {
	req := new(CancelListingReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	caller, err := parsePrincipal(req.Caller)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	listing, err := a.node.Coordinator().CancelListing(uint64Var(r, "listingID"), caller)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, listing)
}

func (a *API) HandleBidGET(w http.ResponseWriter, r *http.Request) {
	bid, err := a.node.Coordinator().GetBid(uint64Var(r, "bidID"))
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, bid)
}

func (a *API) HandleBidderBidsGET(w http.ResponseWriter, r *http.Request) {
	bidder, err := parsePrincipal(mux.Vars(r)["bidder"])
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	q := r.URL.Query()
	bids, err := a.node.Coordinator().ListBidsByBidder(
		bidder,
		GetIntFromQuery(q, "count", 50),
		GetIntFromQuery(q, "offset", 0),
	)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &BidsRes{Bids: bids})
}
