package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/testutil"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	baseSepolia  = 84532
	avaxFuji     = 43113
)

type recordingSolver struct {
	reqs []*auctiondb.SettlementRequest
	mtx  sync.Mutex
}

func (r *recordingSolver) Submit(req *auctiondb.SettlementRequest) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recordingSolver) count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.reqs)
}

type fakeClock struct {
	now time.Time
	mtx sync.Mutex
}

func (f *fakeClock) Now() time.Time {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.now = f.now.Add(d)
}

type harness struct {
	t       *testing.T
	engine  *auctiondb.Engine
	dn      *timelock.DevNetwork
	height  *FixedHeight
	solver  *recordingSolver
	clock   *fakeClock
	coord   *Coordinator
	network *chain.Network
}

func newHarness(t *testing.T, mutators ...func(cfg *Config)) *harness {
	engine := testutil.NewEngine(t)
	dn, err := timelock.NewDevNetwork(testMnemonic)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		engine:  engine,
		dn:      dn,
		height:  NewFixedHeight(1),
		solver:  new(recordingSolver),
		clock:   &fakeClock{now: time.Unix(1700000000, 0).UTC()},
		network: chain.NetworkTestnet,
	}
	cfg := &Config{
		Network: h.network,
		Clock:   h.clock.Now,
	}
	for _, m := range mutators {
		m(cfg)
	}
	coord, err := NewCoordinator(engine, dn.Codec(), h.height, h.solver, cfg)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) createListing(minimum, reveal, end uint64) *auctiondb.Listing {
	listing, err := h.coord.CreateListing(&CreateListingParams{
		Owner:         testutil.Alice,
		ItemName:      "vintage lamp",
		Description:   "brass, working",
		MinimumAmount: minimum,
		RevealHeight:  reveal,
		EndHeight:     end,
	})
	require.NoError(h.t, err)
	return listing
}

func (h *harness) bid(listingID uint64, bidder chain.Principal, amount uint64) *auctiondb.Bid {
	env, err := h.coord.SealBid(listingID, amount)
	require.NoError(h.t, err)
	bid, err := h.coord.SubmitBid(&SubmitBidParams{
		ListingID: listingID,
		Bidder:    bidder,
		Envelope:  env,
	})
	require.NoError(h.t, err)
	return bid
}

func (h *harness) decrypt(bid *auctiondb.Bid) ([]byte, *timelock.Proof) {
	cleartext, proof, err := h.dn.Decrypt(bid.Envelope, h.height.LastHeight())
	require.NoError(h.t, err)
	return cleartext, proof
}

func (h *harness) reveal(bid *auctiondb.Bid) (Outcome, error) {
	cleartext, proof := h.decrypt(bid)
	return h.coord.OnDecryptionDelivered(uuid.NewString(), bid.EnvelopeRef, cleartext, proof)
}

func (h *harness) mustReveal(bids ...*auctiondb.Bid) {
	for _, bid := range bids {
		outcome, err := h.reveal(bid)
		require.NoError(h.t, err)
		require.Equal(h.t, OutcomeApplied, outcome)
	}
}

// endedListing runs a listing to Ended with Bob winning at amount.
func (h *harness) endedListing(amount uint64) *auctiondb.Listing {
	h.height.Set(1)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, amount)
	h.height.Set(50)
	h.mustReveal(bob)
	h.height.Set(100)
	ended, err := h.coord.SelectWinner(listing.ID)
	require.NoError(h.t, err)
	require.Equal(h.t, testutil.Bob, ended.Winner)
	return ended
}

func (h *harness) crossChainPayment(listingID uint64, source, expected, fee uint64) *PaymentParams {
	return &PaymentParams{
		ListingID:        listingID,
		Payer:            testutil.Bob,
		SourceChain:      baseSepolia,
		DestinationChain: avaxFuji,
		SourceAmount:     source,
		ExpectedAmount:   expected,
		SolverFee:        fee,
	}
}
