package timelock

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/kurumiimari/sealdex/bio"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/pkg/errors"
)

// Proof is the decryption network's attestation that cleartext was
// produced for an envelope once the chain reached DecryptedAtHeight.
type Proof struct {
	DecryptedAtHeight uint64
	Signature         []byte
}

func (p *Proof) Bytes() []byte {
	buf := new(bytes.Buffer)
	g := bio.NewGuardWriter(buf)
	bio.WriteUint64LE(g, p.DecryptedAtHeight)
	bio.WriteVarBytes(g, p.Signature)
	if g.Err != nil {
		panic(g.Err)
	}
	return buf.Bytes()
}

func NewProofFromBytes(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)
	g := bio.NewGuardReader(r)
	height, _ := bio.ReadUint64LE(g)
	sig, _ := bio.ReadVarBytes(g)
	if g.Err != nil {
		return nil, errors.Wrap(ErrMalformedProof, g.Err.Error())
	}
	if r.Len() != 0 {
		return nil, errors.Wrap(ErrMalformedProof, "trailing bytes")
	}
	return &Proof{
		DecryptedAtHeight: height,
		Signature:         sig,
	}, nil
}

func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(p.Bytes()))
}

func (p *Proof) UnmarshalJSON(b []byte) error {
	var h string
	if err := json.Unmarshal(b, &h); err != nil {
		return errors.WithStack(err)
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return errors.Wrap(ErrMalformedProof, "invalid hex")
	}
	proof, err := NewProofFromBytes(raw)
	if err != nil {
		return err
	}
	*p = *proof
	return nil
}

func ProofDigest(ref gcrypto.Hash, cleartext []byte, height uint64) gcrypto.Hash {
	return gcrypto.Blake256(ref, cleartext, bio.Uint64LE(height))
}

func SignProof(key *btcec.PrivateKey, ref gcrypto.Hash, cleartext []byte, height uint64) *Proof {
	sig := ecdsa.Sign(key, ProofDigest(ref, cleartext, height))
	return &Proof{
		DecryptedAtHeight: height,
		Signature:         sig.Serialize(),
	}
}

func (p *Proof) Verify(pub *btcec.PublicKey, ref gcrypto.Hash, cleartext []byte) bool {
	sig, err := ecdsa.ParseDERSignature(p.Signature)
	if err != nil {
		return false
	}
	return sig.Verify(ProofDigest(ref, cleartext, p.DecryptedAtHeight), pub)
}
