package auction

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/testutil"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCoordinator_CreateListing(t *testing.T) {
	h := newHarness(t)
	h.height.Set(10)

	tests := []struct {
		name   string
		reveal uint64
		end    uint64
		item   string
		err    error
	}{
		{"valid", 50, 100, "lamp", nil},
		{"reveal equals end", 100, 100, "lamp", ErrInvalidWindow},
		{"reveal after end", 101, 100, "lamp", ErrInvalidWindow},
		{"reveal at current height", 10, 100, "lamp", ErrInvalidWindow},
		{"reveal in the past", 5, 100, "lamp", ErrInvalidWindow},
		{"end out of range", 50, math.MaxUint64, "lamp", ErrInvalidWindow},
		{"empty item name", 50, 100, "   ", ErrInvalidListing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := h.coord.CreateListing(&CreateListingParams{
				Owner:         testutil.Alice,
				ItemName:      tt.item,
				MinimumAmount: 100,
				RevealHeight:  tt.reveal,
				EndHeight:     tt.end,
			})
			if tt.err != nil {
				testutil.RequireErrorIs(t, err, tt.err)
				require.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, auctiondb.ListingActive, listing.State)
			require.EqualValues(t, 10, listing.CreatedAtHeight)
			require.Equal(t, 0, listing.TotalBids)
			require.Empty(t, listing.Winner)
		})
	}
}

func TestCoordinator_SubmitBid(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)

	t.Run("envelope bound to another height", func(t *testing.T) {
		env, err := h.dn.Codec().Bind(150, 51)
		require.NoError(t, err)
		_, err = h.coord.SubmitBid(&SubmitBidParams{
			ListingID: listing.ID,
			Bidder:    testutil.Bob,
			Envelope:  env,
		})
		testutil.RequireErrorIs(t, err, ErrEnvelopeHeightMismatch)
	})

	t.Run("owner cannot bid", func(t *testing.T) {
		env, err := h.coord.SealBid(listing.ID, 150)
		require.NoError(t, err)
		_, err = h.coord.SubmitBid(&SubmitBidParams{
			ListingID: listing.ID,
			Bidder:    testutil.Alice,
			Envelope:  env,
		})
		testutil.RequireErrorIs(t, err, ErrOwnerCannotBid)
	})

	t.Run("duplicate envelope", func(t *testing.T) {
		env, err := h.coord.SealBid(listing.ID, 150)
		require.NoError(t, err)
		_, err = h.coord.SubmitBid(&SubmitBidParams{
			ListingID: listing.ID,
			Bidder:    testutil.Bob,
			Envelope:  env,
		})
		require.NoError(t, err)
		_, err = h.coord.SubmitBid(&SubmitBidParams{
			ListingID: listing.ID,
			Bidder:    testutil.Carol,
			Envelope:  env,
		})
		testutil.RequireErrorIs(t, err, ErrDuplicateEnvelope)
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := h.coord.SealBid(999, 150)
		testutil.RequireErrorIs(t, err, ErrListingNotFound)
		require.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("bidding closes at the reveal height", func(t *testing.T) {
		env, err := h.coord.SealBid(listing.ID, 150)
		require.NoError(t, err)
		h.height.Set(50)
		defer h.height.Set(10)
		_, err = h.coord.SubmitBid(&SubmitBidParams{
			ListingID: listing.ID,
			Bidder:    testutil.Bob,
			Envelope:  env,
		})
		testutil.RequireErrorIs(t, err, ErrBiddingClosed)
	})

	got, err := h.coord.GetListing(listing.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.TotalBids)
	bids, err := h.coord.ListBids(listing.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.False(t, bids[0].Revealed)
	require.Nil(t, bids[0].RevealedAmount)
}

func TestCoordinator_WinnerSelected(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)

	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	carol := h.bid(listing.ID, testutil.Carol, 120)

	h.height.Set(51)
	h.mustReveal(bob, carol)

	revealed, err := h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.True(t, revealed.Revealed)
	require.EqualValues(t, 150, *revealed.RevealedAmount)
	require.EqualValues(t, 51, *revealed.RevealedAtHeight)
	require.False(t, revealed.Late)

	h.height.Set(99)
	_, err = h.coord.SelectWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrTooEarly)

	h.height.Set(100)
	ended, err := h.coord.SelectWinner(listing.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingEnded, ended.State)
	require.Equal(t, testutil.Bob, ended.Winner)
	require.EqualValues(t, 150, *ended.WinningAmount)
	require.Equal(t, bob.ID, *ended.WinningBidID)
	require.EqualValues(t, 100, *ended.EndedAtHeight)
	require.Equal(t, 2, ended.TotalBids)

	_, err = h.coord.SelectWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrAlreadyFinalized)

	recomputed, err := h.coord.RecomputeWinner(listing.ID)
	require.NoError(t, err)
	require.Equal(t, *ended.WinningBidID, recomputed.BidID)
}

func TestCoordinator_NoQualifyingBid(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)

	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 80)
	carol := h.bid(listing.ID, testutil.Carol, 90)
	h.height.Set(50)
	h.mustReveal(bob, carol)

	h.height.Set(100)
	ended, err := h.coord.SelectWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrNoQualifyingBid)
	require.Equal(t, auctiondb.ListingEnded, ended.State)
	require.Empty(t, ended.Winner)
	require.Nil(t, ended.WinningAmount)

	stored, err := h.coord.GetListing(listing.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingEnded, stored.State)

	_, err = h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 110, 100, 10))
	testutil.RequireErrorIs(t, err, ErrNotWinner)
}

func TestCoordinator_NoBids(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)

	h.height.Set(100)
	ended, err := h.coord.SelectWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrNoBids)
	require.Equal(t, auctiondb.ListingEnded, ended.State)
	require.Empty(t, ended.Winner)
}

func TestCoordinator_LateReveal(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)

	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)

	h.height.Set(100)
	_, err := h.coord.SelectWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrNoQualifyingBid)

	h.mustReveal(bob)
	stored, err := h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.True(t, stored.Revealed)
	require.True(t, stored.Late)

	_, err = h.coord.RecomputeWinner(listing.ID)
	testutil.RequireErrorIs(t, err, ErrNoQualifyingBid)
	ended, err := h.coord.GetListing(listing.ID)
	require.NoError(t, err)
	require.Empty(t, ended.Winner)
}

func TestCoordinator_DuplicateReveal(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	h.height.Set(50)

	cleartext, proof := h.decrypt(bob)
	key := uuid.NewString()
	outcome, err := h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = h.coord.OnDecryptionDelivered(uuid.NewString(), bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	_, blind, err := timelock.DecodeCleartext(cleartext)
	require.NoError(t, err)
	forged := timelock.EncodeCleartext(999, blind)
	_, err = h.coord.OnDecryptionDelivered(uuid.NewString(), bob.EnvelopeRef, forged, h.dn.Attest(bob.EnvelopeRef, forged, 50))
	testutil.RequireErrorIs(t, err, ErrEnvelopeMismatch)

	stored, err := h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.EqualValues(t, 150, *stored.RevealedAmount)
	require.Equal(t, 1, h.coord.IntegrityCounts()["EnvelopeMismatch"])
}

func TestCoordinator_DecryptionIntegrity(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	h.height.Set(50)
	cleartext, proof := h.decrypt(bob)

	key := uuid.NewString()
	early := h.dn.Attest(bob.EnvelopeRef, cleartext, 49)
	_, err := h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, early)
	testutil.RequireErrorIs(t, err, ErrHeightNotReached)
	require.Equal(t, KindExternalIntegrity, KindOf(err))

	mnemonic, err := timelock.GenerateDevMnemonic()
	require.NoError(t, err)
	other, err := timelock.NewDevNetwork(mnemonic)
	require.NoError(t, err)
	_, err = h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, other.Attest(bob.EnvelopeRef, cleartext, 50))
	testutil.RequireErrorIs(t, err, ErrMalformedProof)

	require.Equal(t, map[string]int{
		"HeightNotReached": 1,
		"MalformedProof":   1,
	}, h.coord.IntegrityCounts())

	stored, err := h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.False(t, stored.Revealed)

	// Rejected deliveries are not recorded, so the key is still usable.
	outcome, err := h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestCoordinator_CallbackKeys(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.OnDecryptionDelivered("not-a-uuid", gcrypto.Blake256([]byte("ref")), nil, nil)
	testutil.RequireErrorIs(t, err, ErrInvalidIdempotencyKey)
	_, err = h.coord.OnFulfillment("", "0x00", 1)
	testutil.RequireErrorIs(t, err, ErrInvalidIdempotencyKey)

	outcome, err := h.coord.OnDecryptionDelivered(uuid.NewString(), gcrypto.Blake256([]byte("ref")), nil, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, outcome)

	outcome, err = h.coord.OnFulfillment(uuid.NewString(), "0xdeadbeef", 100)
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, outcome)

	outcome, err = h.coord.OnFulfillmentFailed(uuid.NewString(), "0xdeadbeef", "nope")
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, outcome)
}

func TestCoordinator_ProcessedKeysSurviveRestart(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	h.height.Set(50)

	cleartext, proof := h.decrypt(bob)
	key := uuid.NewString()
	outcome, err := h.coord.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	restarted, err := NewCoordinator(h.engine, h.dn.Codec(), h.height, h.solver, &Config{
		Network: h.network,
	})
	require.NoError(t, err)
	outcome, err = restarted.OnDecryptionDelivered(key, bob.EnvelopeRef, cleartext, proof)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
}

func TestCoordinator_Resume(t *testing.T) {
	h := newHarness(t)
	paid := h.endedListing(150)
	req, err := h.coord.InitiatePayment(h.crossChainPayment(paid.ID, 160, 150, 10))
	require.NoError(t, err)

	open := h.createListing(100, 150, 200)
	h.height.Set(110)
	bob := h.bid(open.ID, testutil.Bob, 150)
	carol := h.bid(open.ID, testutil.Carol, 120)

	dn, err := timelock.NewDevNetwork(testMnemonic)
	require.NoError(t, err)
	gateway := new(recordingSolver)
	restarted, err := NewCoordinator(h.engine, dn.Codec(), h.height, gateway, &Config{
		Network: h.network,
		Clock:   h.clock.Now,
	})
	require.NoError(t, err)
	restarted.SetDecryptionRequester(dn)
	dn.SetDeliverFunc(func(key string, ref gcrypto.Hash, cleartext []byte, proof *timelock.Proof) error {
		_, err := restarted.OnDecryptionDelivered(key, ref, cleartext, proof)
		return err
	})

	require.NoError(t, restarted.Resume())
	require.Equal(t, 2, dn.PendingCount())
	require.Equal(t, 1, gateway.count())
	require.Equal(t, req.ID, gateway.reqs[0].ID)

	h.height.Set(150)
	dn.OnHeight(150)
	require.Zero(t, dn.PendingCount())
	for _, bid := range []*auctiondb.Bid{bob, carol} {
		stored, err := restarted.GetBid(bid.ID)
		require.NoError(t, err)
		require.True(t, stored.Revealed)
	}

	_, err = restarted.OnFulfillment(uuid.NewString(), req.ID, 150)
	require.NoError(t, err)
	resumed := new(recordingSolver)
	again, err := NewCoordinator(h.engine, dn.Codec(), h.height, resumed, &Config{
		Network: h.network,
	})
	require.NoError(t, err)
	require.NoError(t, again.Resume())
	require.Zero(t, resumed.count())
}

func TestCoordinator_DecryptionCallback(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	h.height.Set(50)
	cleartext, proof := h.decrypt(bob)

	tests := []struct {
		name  string
		key   string
		proof []byte
		err   error
	}{
		{"bad key and bad proof", "not-a-uuid", []byte{0x01}, ErrInvalidIdempotencyKey},
		{"bad key and good proof", "", proof.Bytes(), ErrInvalidIdempotencyKey},
		{"truncated proof", uuid.NewString(), []byte{0x01}, ErrMalformedProof},
		{"empty proof", uuid.NewString(), nil, ErrMalformedProof},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.coord.OnDecryptionCallback(tt.key, bob.EnvelopeRef, cleartext, tt.proof)
			testutil.RequireErrorIs(t, err, tt.err)
		})
	}
	require.Equal(t, map[string]int{"MalformedProof": 2}, h.coord.IntegrityCounts())

	outcome, err := h.coord.OnDecryptionCallback(uuid.NewString(), bob.EnvelopeRef, cleartext, proof.Bytes())
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestCoordinator_DecryptionNetwork(t *testing.T) {
	h := newHarness(t)
	h.coord.SetDecryptionRequester(h.dn)
	h.dn.SetDeliverFunc(func(key string, ref gcrypto.Hash, cleartext []byte, proof *timelock.Proof) error {
		_, err := h.coord.OnDecryptionDelivered(key, ref, cleartext, proof)
		return err
	})

	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	bob := h.bid(listing.ID, testutil.Bob, 150)
	require.Equal(t, 1, h.dn.PendingCount())

	h.dn.OnHeight(49)
	stored, err := h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.False(t, stored.Revealed)

	h.height.Set(50)
	h.dn.OnHeight(50)
	require.Equal(t, 0, h.dn.PendingCount())
	stored, err = h.coord.GetBid(bob.ID)
	require.NoError(t, err)
	require.True(t, stored.Revealed)
	require.EqualValues(t, 150, *stored.RevealedAmount)
}

func TestCoordinator_CancelListing(t *testing.T) {
	h := newHarness(t)
	withBids := h.createListing(100, 50, 100)
	empty := h.createListing(100, 50, 100)

	h.height.Set(10)
	h.bid(withBids.ID, testutil.Bob, 150)

	_, err := h.coord.CancelListing(empty.ID, testutil.Bob)
	testutil.RequireErrorIs(t, err, ErrNotOwner)
	_, err = h.coord.CancelListing(withBids.ID, testutil.Alice)
	testutil.RequireErrorIs(t, err, ErrHasBids)

	cancelled, err := h.coord.CancelListing(empty.ID, testutil.Alice)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingCancelled, cancelled.State)

	_, err = h.coord.CancelListing(empty.ID, testutil.Alice)
	testutil.RequireErrorIs(t, err, ErrAlreadyFinalized)

	env, err := h.coord.SealBid(empty.ID, 150)
	require.NoError(t, err)
	_, err = h.coord.SubmitBid(&SubmitBidParams{
		ListingID: empty.ID,
		Bidder:    testutil.Bob,
		Envelope:  env,
	})
	testutil.RequireErrorIs(t, err, ErrListingNotActive)
}

func TestCoordinator_ConcurrentBids(t *testing.T) {
	h := newHarness(t)
	var listings []*auctiondb.Listing
	for i := 0; i < 3; i++ {
		listings = append(listings, h.createListing(100, 50, 100))
	}
	h.height.Set(10)

	var g errgroup.Group
	for _, listing := range listings {
		listingID := listing.ID
		for i := 0; i < 5; i++ {
			amount := uint64(100 + i)
			g.Go(func() error {
				env, err := h.coord.SealBid(listingID, amount)
				if err != nil {
					return err
				}
				_, err = h.coord.SubmitBid(&SubmitBidParams{
					ListingID: listingID,
					Bidder:    testutil.Bob,
					Envelope:  env,
				})
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, listing := range listings {
		stored, err := h.coord.GetListing(listing.ID)
		require.NoError(t, err)
		require.Equal(t, 5, stored.TotalBids)
		bids, err := h.coord.ListBids(listing.ID)
		require.NoError(t, err)
		require.Len(t, bids, 5)
	}
	require.Equal(t, 0, h.coord.locks.size())
}

func TestCoordinator_AutoSelect(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.AutoSelectWinners = true
	})
	won := h.createListing(100, 50, 100)
	unbid := h.createListing(100, 50, 100)
	later := h.createListing(100, 50, 200)

	h.height.Set(10)
	bob := h.bid(won.ID, testutil.Bob, 150)
	h.height.Set(50)
	h.mustReveal(bob)

	h.height.Set(100)
	h.coord.OnHeight(100)

	stored, err := h.coord.GetListing(won.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingEnded, stored.State)
	require.Equal(t, testutil.Bob, stored.Winner)

	stored, err = h.coord.GetListing(unbid.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingEnded, stored.State)
	require.Empty(t, stored.Winner)

	stored, err = h.coord.GetListing(later.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingActive, stored.State)

	require.NoError(t, h.coord.SelectEndedListings(100))
}

func TestCoordinator_InitiatePayment(t *testing.T) {
	h := newHarness(t)
	listing := h.createListing(100, 50, 100)
	h.height.Set(10)
	h.bid(listing.ID, testutil.Bob, 150)

	_, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	testutil.RequireErrorIs(t, err, ErrNotEnded)

	h.height.Set(50)
	bids, err := h.coord.ListBids(listing.ID)
	require.NoError(t, err)
	h.mustReveal(bids[0])
	h.height.Set(100)
	_, err = h.coord.SelectWinner(listing.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		params *PaymentParams
		err    error
	}{
		{
			"not the winner",
			&PaymentParams{ListingID: listing.ID, Payer: testutil.Carol, SourceChain: baseSepolia, DestinationChain: avaxFuji, SourceAmount: 160, ExpectedAmount: 150, SolverFee: 10},
			ErrNotWinner,
		},
		{
			"unsupported chain",
			&PaymentParams{ListingID: listing.ID, Payer: testutil.Bob, SourceChain: 1, DestinationChain: avaxFuji, SourceAmount: 160, ExpectedAmount: 150, SolverFee: 10},
			ErrUnsupportedChain,
		},
		{
			"source does not cover fee",
			h.crossChainPayment(listing.ID, 100, 95, 10),
			ErrInsufficientAmount,
		},
		{
			"expected below winning amount",
			h.crossChainPayment(listing.ID, 110, 100, 10),
			ErrInsufficientAmount,
		},
		{
			"fee overflow",
			h.crossChainPayment(listing.ID, math.MaxUint64, math.MaxUint64, 1),
			ErrInsufficientAmount,
		},
		{
			"same chain with fee",
			&PaymentParams{ListingID: listing.ID, Payer: testutil.Bob, SourceChain: baseSepolia, DestinationChain: baseSepolia, SourceAmount: 160, ExpectedAmount: 150, SolverFee: 10},
			ErrSolverFeeNotAllowed,
		},
		{
			"same chain with mismatched amounts",
			&PaymentParams{ListingID: listing.ID, Payer: testutil.Bob, SourceChain: baseSepolia, DestinationChain: baseSepolia, SourceAmount: 160, ExpectedAmount: 150},
			ErrInsufficientAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.coord.InitiatePayment(tt.params)
			testutil.RequireErrorIs(t, err, tt.err)
		})
	}
	require.Equal(t, 0, h.solver.count())

	req, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)
	require.Equal(t, RequestID(listing.ID, testutil.Bob, 0), req.ID)
	require.Equal(t, auctiondb.SettlementPending, req.State)
	require.Equal(t, testutil.Alice, req.Payee)
	require.EqualValues(t, 100, req.RequestedAtHeight)
	require.True(t, req.CrossChain())
	require.Equal(t, 1, h.solver.count())

	_, err = h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	testutil.RequireErrorIs(t, err, ErrInFlight)
	require.Equal(t, 1, h.solver.count())
}

func TestCoordinator_Fulfillment(t *testing.T) {
	h := newHarness(t)
	listing := h.endedListing(150)

	req, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)

	key := uuid.NewString()
	outcome, err := h.coord.OnFulfillment(key, req.ID, 151)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = h.coord.OnFulfillment(key, req.ID, 151)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	_, err = h.coord.OnFulfillment(uuid.NewString(), req.ID, 151)
	testutil.RequireErrorIs(t, err, ErrAlreadyFulfilled)

	view, err := h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.SettlementFulfilled, view.State)
	require.EqualValues(t, 151, *view.ActualAmount)
	require.NotNil(t, view.FulfilledAt)
	require.False(t, view.Stale)

	settled, err := h.coord.GetListing(listing.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingSettled, settled.State)
	require.True(t, settled.PaymentReceived)

	_, err = h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	testutil.RequireErrorIs(t, err, ErrAlreadySettled)
}

func TestCoordinator_SameChainFulfillment(t *testing.T) {
	h := newHarness(t)
	listing := h.endedListing(150)

	req, err := h.coord.InitiatePayment(&PaymentParams{
		ListingID:        listing.ID,
		Payer:            testutil.Bob,
		SourceChain:      baseSepolia,
		DestinationChain: baseSepolia,
		SourceAmount:     150,
		ExpectedAmount:   150,
	})
	require.NoError(t, err)
	require.False(t, req.CrossChain())

	outcome, err := h.coord.OnFulfillment(uuid.NewString(), req.ID, 150)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestCoordinator_FulfillmentMismatch(t *testing.T) {
	h := newHarness(t)
	listing := h.endedListing(150)

	req, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)

	key := uuid.NewString()
	outcome, err := h.coord.OnFulfillment(key, req.ID, 140)
	testutil.RequireErrorIs(t, err, ErrFulfillmentMismatch)
	require.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, 1, h.coord.IntegrityCounts()["FulfillmentMismatch"])

	outcome, err = h.coord.OnFulfillment(key, req.ID, 150)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	view, err := h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.SettlementFailed, view.State)
	require.Contains(t, view.FailureReason, "below expected")
	require.Nil(t, view.ActualAmount)

	stored, err := h.coord.GetListing(listing.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.ListingEnded, stored.State)
	require.False(t, stored.PaymentReceived)

	retry, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)
	require.NotEqual(t, req.ID, retry.ID)
	require.EqualValues(t, 1, retry.Nonce)
	require.Equal(t, RequestID(listing.ID, testutil.Bob, 1), retry.ID)

	views, err := h.coord.ListSettlements(listing.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
}

func TestCoordinator_FulfillmentFailed(t *testing.T) {
	h := newHarness(t)
	listing := h.endedListing(150)

	req, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)

	outcome, err := h.coord.OnFulfillmentFailed(uuid.NewString(), req.ID, "no liquidity")
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	view, err := h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.SettlementFailed, view.State)
	require.Equal(t, "no liquidity", view.FailureReason)
	require.NotNil(t, view.FailedAt)

	key := uuid.NewString()
	outcome, err = h.coord.OnFulfillment(key, req.ID, 150)
	testutil.RequireErrorIs(t, err, ErrLateFulfillment)
	require.Equal(t, KindExternalIntegrity, KindOf(err))
	require.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, map[string]int{"LateFulfillment": 1}, h.coord.IntegrityCounts())

	outcome, err = h.coord.OnFulfillment(key, req.ID, 150)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	view, err = h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, auctiondb.SettlementFailed, view.State)
	require.Nil(t, view.ActualAmount)

	_, err = h.coord.OnFulfillmentFailed(uuid.NewString(), req.ID, "again")
	testutil.RequireErrorIs(t, err, ErrAlreadyFailed)

	_, err = h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)
}

func TestCoordinator_StaleSettlements(t *testing.T) {
	h := newHarness(t)
	listing := h.endedListing(150)

	req, err := h.coord.InitiatePayment(h.crossChainPayment(listing.ID, 160, 150, 10))
	require.NoError(t, err)

	stale, err := h.coord.ListStaleSettlements()
	require.NoError(t, err)
	require.Empty(t, stale)

	h.clock.Advance(31 * time.Minute)
	view, err := h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.True(t, view.Stale)
	stale, err = h.coord.ListStaleSettlements()
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, req.ID, stale[0].ID)

	failed, err := h.coord.MarkFailed(req.ID, "timed out")
	require.NoError(t, err)
	require.Equal(t, auctiondb.SettlementFailed, failed.State)

	_, err = h.coord.MarkFailed(req.ID, "timed out")
	testutil.RequireErrorIs(t, err, ErrAlreadyFailed)
	_, err = h.coord.MarkFailed("0xdeadbeef", "timed out")
	testutil.RequireErrorIs(t, err, ErrUnknownRequest)

	outcome, err := h.coord.OnFulfillment(uuid.NewString(), req.ID, 150)
	testutil.RequireErrorIs(t, err, ErrLateFulfillment)
	require.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, 1, h.coord.IntegrityCounts()["LateFulfillment"])

	stale, err = h.coord.ListStaleSettlements()
	require.NoError(t, err)
	require.Empty(t, stale)

	view, err = h.coord.GetSettlementRequest(req.ID)
	require.NoError(t, err)
	require.False(t, view.Stale)
}
