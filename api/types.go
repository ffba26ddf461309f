package api

import (
	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/gjson"
	"github.com/kurumiimari/sealdex/timelock"
)

type HeightRes struct {
	Height uint64 `json:"height"`
}

type MineReq struct {
	Count uint64 `json:"count"`
}

type CreateListingReq struct {
	Owner         string `json:"owner"`
	ItemName      string `json:"item_name"`
	Description   string `json:"description"`
	ImageURL      string `json:"image_url"`
	MinimumAmount uint64 `json:"minimum_amount"`
	RevealHeight  uint64 `json:"reveal_height"`
	EndHeight     uint64 `json:"end_height"`
}

type ListingsRes struct {
	Listings []*auctiondb.Listing `json:"listings"`
}

type SealBidReq struct {
	Amount uint64 `json:"amount"`
}

type SealBidRes struct {
	Envelope    *timelock.Envelope `json:"envelope"`
	EnvelopeRef gcrypto.Hash       `json:"envelope_ref"`
}

type SubmitBidReq struct {
	Bidder   string           `json:"bidder"`
	Envelope gjson.ByteString `json:"envelope"`
}

type BidsRes struct {
	Bids []*auctiondb.Bid `json:"bids"`
}

type SelectWinnerRes struct {
	Listing *auctiondb.Listing `json:"listing"`
	// Outcome is empty when a winner was selected, otherwise NoBids or
	// NoQualifyingBid.
	Outcome string `json:"outcome,omitempty"`
}

type CancelListingReq struct {
	Caller string `json:"caller"`
}

type InitiatePaymentReq struct {
	Payer            string `json:"payer"`
	SourceChain      uint64 `json:"source_chain"`
	DestinationChain uint64 `json:"destination_chain"`
	SourceAmount     uint64 `json:"source_amount"`
	ExpectedAmount   uint64 `json:"expected_amount"`
	SolverFee        uint64 `json:"solver_fee"`
}

type SettlementsRes struct {
	Settlements []*auction.SettlementView `json:"settlements"`
}

type FailSettlementReq struct {
	Reason string `json:"reason"`
}

type DecryptionCallbackReq struct {
	Key         string           `json:"key"`
	EnvelopeRef gcrypto.Hash     `json:"envelope_ref"`
	Cleartext   gjson.ByteString `json:"cleartext"`
	Proof       gjson.ByteString `json:"proof"`
}

type FulfillmentCallbackReq struct {
	Key          string `json:"key"`
	RequestID    string `json:"request_id"`
	ActualAmount uint64 `json:"actual_amount"`
}

type FulfillmentFailureCallbackReq struct {
	Key       string `json:"key"`
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

type CallbackRes struct {
	Outcome auction.Outcome `json:"outcome"`
}
