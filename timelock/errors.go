package timelock

import "github.com/pkg/errors"

var (
	ErrHeightNotReached  = errors.New("proof claims decryption before target height")
	ErrMalformedProof    = errors.New("malformed decryption proof")
	ErrEnvelopeMismatch  = errors.New("cleartext does not match envelope")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
