package auction

import (
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindStateConflict     Kind = "STATE_CONFLICT"
	KindExternalIntegrity Kind = "EXTERNAL_INTEGRITY"
	KindNotFound          Kind = "NOT_FOUND"
	// KindStaleness is reported through SettlementView.Stale; no command
	// fails with it.
	KindStaleness Kind = "STALENESS"
	KindInternal  Kind = "INTERNAL"
)

// Error is a named, classified failure. Sentinels are compared by identity
// with errors.Is, so they survive wrapping.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, code string, msg string) *Error {
	return &Error{
		Kind: kind,
		Code: code,
		Msg:  msg,
	}
}

var (
	ErrInvalidWindow          = newError(KindValidation, "InvalidWindow", "reveal height must be below end height and both above the current height")
	ErrInvalidListing         = newError(KindValidation, "InvalidListing", "invalid listing")
	ErrEnvelopeHeightMismatch = newError(KindValidation, "EnvelopeHeightMismatch", "envelope target height does not match listing reveal height")
	ErrMalformedEnvelope      = newError(KindValidation, "MalformedEnvelope", "malformed envelope")
	ErrBiddingClosed          = newError(KindValidation, "BiddingClosed", "bidding closed at the reveal height")
	ErrOwnerCannotBid         = newError(KindValidation, "OwnerCannotBid", "listing owner cannot bid")
	ErrInsufficientAmount     = newError(KindValidation, "InsufficientAmount", "insufficient settlement amount")
	ErrSolverFeeNotAllowed    = newError(KindValidation, "SolverFeeNotAllowed", "same-chain settlements carry no solver fee")
	ErrUnsupportedChain       = newError(KindValidation, "UnsupportedChain", "unsupported settlement chain")
	ErrInvalidIdempotencyKey  = newError(KindValidation, "InvalidIdempotencyKey", "idempotency key must be a UUID")
	ErrInvalidPrincipal       = newError(KindValidation, "InvalidPrincipal", "invalid principal")
	ErrInvalidRequest         = newError(KindValidation, "InvalidRequest", "invalid request")

	ErrListingNotActive  = newError(KindStateConflict, "ListingNotActive", "listing is not active")
	ErrAlreadyRevealed   = newError(KindStateConflict, "AlreadyRevealed", "bid already revealed")
	ErrTooEarly          = newError(KindStateConflict, "TooEarly", "listing end height not reached")
	ErrAlreadyFinalized  = newError(KindStateConflict, "AlreadyFinalized", "listing is no longer active")
	ErrNoBids            = newError(KindStateConflict, "NoBids", "listing ended with no bids")
	ErrNoQualifyingBid   = newError(KindStateConflict, "NoQualifyingBid", "listing ended with no bid at or above the minimum")
	ErrNotEnded          = newError(KindStateConflict, "NotEnded", "listing has not ended")
	ErrAlreadySettled    = newError(KindStateConflict, "AlreadySettled", "listing already settled")
	ErrInFlight          = newError(KindStateConflict, "InFlight", "a settlement request is already in flight")
	ErrAlreadyFulfilled  = newError(KindStateConflict, "AlreadyFulfilled", "settlement request already fulfilled")
	ErrAlreadyFailed     = newError(KindStateConflict, "AlreadyFailed", "settlement request already failed")
	ErrNotOwner          = newError(KindStateConflict, "NotOwner", "caller does not own the listing")
	ErrNotWinner         = newError(KindStateConflict, "NotWinner", "payer is not the listing winner")
	ErrHasBids           = newError(KindStateConflict, "HasBids", "listing has bids")
	ErrDuplicateEnvelope = newError(KindStateConflict, "DuplicateEnvelope", "envelope already submitted")

	ErrMalformedProof      = newError(KindExternalIntegrity, "MalformedProof", "malformed decryption proof")
	ErrHeightNotReached    = newError(KindExternalIntegrity, "HeightNotReached", "decryption claimed before the reveal height")
	ErrEnvelopeMismatch    = newError(KindExternalIntegrity, "EnvelopeMismatch", "cleartext does not match envelope")
	ErrFulfillmentMismatch = newError(KindExternalIntegrity, "FulfillmentMismatch", "fulfillment violates the settlement terms")
	ErrLateFulfillment     = newError(KindExternalIntegrity, "LateFulfillment", "settlement paid after it was marked failed")

	ErrListingNotFound = newError(KindNotFound, "ListingNotFound", "listing not found")
	ErrBidNotFound     = newError(KindNotFound, "BidNotFound", "bid not found")
	ErrUnknownRequest  = newError(KindNotFound, "UnknownRequest", "unknown settlement request")
)

// KindOf classifies err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}

func codecError(err error) error {
	switch {
	case errors.Is(err, timelock.ErrHeightNotReached):
		return errors.WithStack(ErrHeightNotReached)
	case errors.Is(err, timelock.ErrMalformedProof):
		return errors.WithStack(ErrMalformedProof)
	case errors.Is(err, timelock.ErrEnvelopeMismatch):
		return errors.WithStack(ErrEnvelopeMismatch)
	case errors.Is(err, timelock.ErrMalformedEnvelope):
		return errors.WithStack(ErrMalformedEnvelope)
	default:
		return err
	}
}
