package timelock

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/kurumiimari/sealdex/bio"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	EnvelopeVersion = 1
	NonceSize       = chacha20poly1305.NonceSizeX
	BlindSize       = 32
	CleartextSize   = 8 + BlindSize
	CiphertextSize  = CleartextSize + chacha20poly1305.Overhead
)

// Envelope is a sealed bid amount bound to the reference-chain height at
// which it becomes decryptable. The commitment lets a delivered cleartext
// be checked without decrypting anything locally.
type Envelope struct {
	Version      uint8
	TargetHeight uint64
	Commitment   gcrypto.Hash
	Nonce        []byte
	Ciphertext   []byte
}

func (e *Envelope) Encode(w io.Writer) error {
	g := bio.NewGuardWriter(w)
	bio.WriteByte(g, e.Version)
	bio.WriteUint64LE(g, e.TargetHeight)
	g.Write(e.Commitment)
	g.Write(e.Nonce)
	bio.WriteVarBytes(g, e.Ciphertext)
	return errors.WithStack(g.Err)
}

func (e *Envelope) Decode(r io.Reader) error {
	g := bio.NewGuardReader(r)
	version, _ := bio.ReadByte(g)
	targetHeight, _ := bio.ReadUint64LE(g)
	commitment, _ := bio.ReadFixedBytes(g, gcrypto.HashSize)
	nonce, _ := bio.ReadFixedBytes(g, NonceSize)
	ct, _ := bio.ReadVarBytes(g)
	if g.Err != nil {
		return errors.Wrap(ErrMalformedEnvelope, g.Err.Error())
	}
	if version != EnvelopeVersion {
		return errors.Wrapf(ErrMalformedEnvelope, "unknown version %d", version)
	}

	e.Version = version
	e.TargetHeight = targetHeight
	e.Commitment = commitment
	e.Nonce = nonce
	e.Ciphertext = ct
	return nil
}

func (e *Envelope) Bytes() []byte {
	buf := new(bytes.Buffer)
	if err := e.Encode(buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Ref identifies the envelope to the decryption network.
func (e *Envelope) Ref() gcrypto.Hash {
	return gcrypto.Blake256(e.Bytes())
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(e.Bytes()))
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var h string
	if err := json.Unmarshal(b, &h); err != nil {
		return errors.WithStack(err)
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return errors.Wrap(ErrMalformedEnvelope, "invalid hex")
	}
	env, err := NewEnvelopeFromBytes(raw)
	if err != nil {
		return err
	}
	*e = *env
	return nil
}

func NewEnvelopeFromBytes(b []byte) (*Envelope, error) {
	r := bytes.NewReader(b)
	env := new(Envelope)
	if err := env.Decode(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrap(ErrMalformedEnvelope, "trailing bytes")
	}
	return env, nil
}

func EncodeCleartext(amount uint64, blind []byte) []byte {
	out := make([]byte, 0, CleartextSize)
	out = append(out, bio.Uint64LE(amount)...)
	return append(out, blind...)
}

func DecodeCleartext(cleartext []byte) (uint64, []byte, error) {
	if len(cleartext) != CleartextSize {
		return 0, nil, errors.Wrapf(ErrEnvelopeMismatch, "cleartext must be %d bytes", CleartextSize)
	}
	r := bytes.NewReader(cleartext)
	amount, _ := bio.ReadUint64LE(r)
	return amount, cleartext[8:], nil
}

func commitmentFor(targetHeight uint64, cleartext []byte) gcrypto.Hash {
	return gcrypto.Blake256(bio.Uint64LE(targetHeight), cleartext)
}

func additionalData(targetHeight uint64, commitment gcrypto.Hash) []byte {
	return append(bio.Uint64LE(targetHeight), commitment...)
}
