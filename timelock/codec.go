package timelock

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec seals bid amounts to a reveal height and recognizes cleartexts
// delivered by the decryption network. It never decrypts.
type Codec interface {
	Bind(amount uint64, targetHeight uint64) (*Envelope, error)
	Validate(env *Envelope, expectedHeight uint64) bool
	Accept(env *Envelope, cleartext []byte, proof *Proof) (uint64, error)
}

// KeySchedule yields the symmetric key the decryption network releases at
// a given height.
type KeySchedule interface {
	HeightKey(height uint64) ([]byte, error)
}

type BlindCodec struct {
	keys     KeySchedule
	attestor *btcec.PublicKey
}

var _ Codec = (*BlindCodec)(nil)

func NewBlindCodec(keys KeySchedule, attestor *btcec.PublicKey) *BlindCodec {
	return &BlindCodec{
		keys:     keys,
		attestor: attestor,
	}
}

func (c *BlindCodec) Bind(amount uint64, targetHeight uint64) (*Envelope, error) {
	key, err := c.keys.HeightKey(targetHeight)
	if err != nil {
		return nil, errors.Wrap(err, "error getting height key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "error initializing cipher")
	}

	cleartext := EncodeCleartext(amount, RandBytes(BlindSize))
	env := &Envelope{
		Version:      EnvelopeVersion,
		TargetHeight: targetHeight,
		Commitment:   commitmentFor(targetHeight, cleartext),
		Nonce:        RandBytes(NonceSize),
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, cleartext, additionalData(targetHeight, env.Commitment))
	return env, nil
}

func (c *BlindCodec) Validate(env *Envelope, expectedHeight uint64) bool {
	if env == nil {
		return false
	}
	return env.Version == EnvelopeVersion &&
		env.TargetHeight == expectedHeight &&
		len(env.Commitment) == 32 &&
		len(env.Nonce) == NonceSize &&
		len(env.Ciphertext) == CiphertextSize
}

func (c *BlindCodec) Accept(env *Envelope, cleartext []byte, proof *Proof) (uint64, error) {
	if env == nil || !c.Validate(env, env.TargetHeight) {
		return 0, errors.WithStack(ErrMalformedEnvelope)
	}
	if proof == nil || !proof.Verify(c.attestor, env.Ref(), cleartext) {
		return 0, errors.WithStack(ErrMalformedProof)
	}
	if proof.DecryptedAtHeight < env.TargetHeight {
		return 0, errors.Wrapf(
			ErrHeightNotReached,
			"decrypted at %d, target %d",
			proof.DecryptedAtHeight,
			env.TargetHeight,
		)
	}
	amount, _, err := DecodeCleartext(cleartext)
	if err != nil {
		return 0, err
	}
	if !commitmentFor(env.TargetHeight, cleartext).Equal(env.Commitment) {
		return 0, errors.WithStack(ErrEnvelopeMismatch)
	}
	return amount, nil
}
