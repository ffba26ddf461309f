package timelock

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestNetwork(t *testing.T) *DevNetwork {
	dn, err := NewDevNetwork(testMnemonic)
	require.NoError(t, err)
	return dn
}

func TestBindValidate(t *testing.T) {
	t.Parallel()
	codec := newTestNetwork(t).Codec()

	env, err := codec.Bind(150, 50)
	require.NoError(t, err)
	require.True(t, codec.Validate(env, 50))
	require.False(t, codec.Validate(env, 51))
	require.False(t, codec.Validate(nil, 50))

	env2, err := codec.Bind(150, 50)
	require.NoError(t, err)
	require.NotEqual(t, env.Bytes(), env2.Bytes())
	require.False(t, env.Ref().Equal(env2.Ref()))
}

func TestEnvelopeEncoding(t *testing.T) {
	t.Parallel()
	codec := newTestNetwork(t).Codec()

	env, err := codec.Bind(42, 100)
	require.NoError(t, err)
	decoded, err := NewEnvelopeFromBytes(env.Bytes())
	require.NoError(t, err)
	require.Equal(t, env, decoded)

	j, err := json.Marshal(env)
	require.NoError(t, err)
	fromJ := new(Envelope)
	require.NoError(t, json.Unmarshal(j, fromJ))
	require.True(t, env.Ref().Equal(fromJ.Ref()))

	_, err = NewEnvelopeFromBytes(append(env.Bytes(), 0x00))
	require.True(t, errors.Is(err, ErrMalformedEnvelope))
	_, err = NewEnvelopeFromBytes(env.Bytes()[:20])
	require.True(t, errors.Is(err, ErrMalformedEnvelope))

	bad := env.Bytes()
	bad[0] = 9
	_, err = NewEnvelopeFromBytes(bad)
	require.True(t, errors.Is(err, ErrMalformedEnvelope))
}

func TestAccept(t *testing.T) {
	t.Parallel()
	dn := newTestNetwork(t)
	codec := dn.Codec()

	env, err := codec.Bind(150, 50)
	require.NoError(t, err)

	_, _, err = dn.Decrypt(env, 49)
	require.True(t, errors.Is(err, ErrHeightNotReached))

	cleartext, proof, err := dn.Decrypt(env, 52)
	require.NoError(t, err)

	amount, err := codec.Accept(env, cleartext, proof)
	require.NoError(t, err)
	require.EqualValues(t, 150, amount)

	t.Run("early proof", func(t *testing.T) {
		early := dn.Attest(env.Ref(), cleartext, 49)
		_, err := codec.Accept(env, cleartext, early)
		require.True(t, errors.Is(err, ErrHeightNotReached))
	})

	t.Run("wrong cleartext", func(t *testing.T) {
		forged := EncodeCleartext(999, cleartext[8:])
		_, err := codec.Accept(env, forged, dn.Attest(env.Ref(), forged, 52))
		require.True(t, errors.Is(err, ErrEnvelopeMismatch))

		_, err = codec.Accept(env, forged[:10], dn.Attest(env.Ref(), forged[:10], 52))
		require.True(t, errors.Is(err, ErrEnvelopeMismatch))
	})

	t.Run("proof for different cleartext", func(t *testing.T) {
		forged := EncodeCleartext(999, cleartext[8:])
		_, err := codec.Accept(env, forged, proof)
		require.True(t, errors.Is(err, ErrMalformedProof))
	})

	t.Run("foreign attestor", func(t *testing.T) {
		mnemonic, err := GenerateDevMnemonic()
		require.NoError(t, err)
		other, err := NewDevNetwork(mnemonic)
		require.NoError(t, err)
		_, err = codec.Accept(env, cleartext, other.Attest(env.Ref(), cleartext, 52))
		require.True(t, errors.Is(err, ErrMalformedProof))
	})

	t.Run("garbage signature", func(t *testing.T) {
		_, err := codec.Accept(env, cleartext, &Proof{DecryptedAtHeight: 52, Signature: []byte{0x01}})
		require.True(t, errors.Is(err, ErrMalformedProof))
		_, err = codec.Accept(env, cleartext, nil)
		require.True(t, errors.Is(err, ErrMalformedProof))
	})
}

func TestProofEncoding(t *testing.T) {
	t.Parallel()
	dn := newTestNetwork(t)
	proof := dn.Attest(gcrypto.Blake256([]byte("ref")), []byte("clear"), 7)

	decoded, err := NewProofFromBytes(proof.Bytes())
	require.NoError(t, err)
	require.Equal(t, proof, decoded)

	_, err = NewProofFromBytes([]byte{0x01, 0x02})
	require.True(t, errors.Is(err, ErrMalformedProof))
}

func TestDevNetworkDelivery(t *testing.T) {
	t.Parallel()
	dn := newTestNetwork(t)
	codec := dn.Codec()

	type delivery struct {
		key    string
		amount uint64
	}
	var mtx sync.Mutex
	var delivered []delivery
	envs := make(map[string]*Envelope)
	dn.SetDeliverFunc(func(key string, ref gcrypto.Hash, cleartext []byte, proof *Proof) error {
		amount, err := codec.Accept(envs[ref.String()], cleartext, proof)
		require.NoError(t, err)
		mtx.Lock()
		delivered = append(delivered, delivery{key, amount})
		mtx.Unlock()
		return nil
	})

	early, err := codec.Bind(10, 20)
	require.NoError(t, err)
	late, err := codec.Bind(30, 40)
	require.NoError(t, err)
	for _, env := range []*Envelope{early, late} {
		envs[env.Ref().String()] = env
		require.NoError(t, dn.RequestDecryption(env))
	}

	dn.OnHeight(19)
	require.Empty(t, delivered)
	require.Equal(t, 2, dn.PendingCount())

	dn.OnHeight(25)
	require.Equal(t, []delivery{{DeliveryKey(early.Ref()), 10}}, delivered)

	dn.OnHeight(25)
	require.Len(t, delivered, 1)

	dn.OnHeight(41)
	require.Len(t, delivered, 2)
	require.EqualValues(t, 30, delivered[1].amount)
	require.Equal(t, 0, dn.PendingCount())
}

func TestDevNetworkDeterministic(t *testing.T) {
	t.Parallel()
	a := newTestNetwork(t)
	b := newTestNetwork(t)
	require.True(t, a.AttestorKey().IsEqual(b.AttestorKey()))

	env, err := a.Codec().Bind(5, 3)
	require.NoError(t, err)
	cleartext, proof, err := b.Decrypt(env, 3)
	require.NoError(t, err)
	amount, err := a.Codec().Accept(env, cleartext, proof)
	require.NoError(t, err)
	require.EqualValues(t, 5, amount)

	_, err = NewDevNetwork("not a mnemonic")
	require.True(t, errors.Is(err, ErrInvalidMnemonic))
}

func TestEnvelopeFile(t *testing.T) {
	t.Parallel()
	env, err := newTestNetwork(t).Codec().Bind(77, 12)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	require.NoError(t, WriteEnvelopeFile(&EnvelopeFile{
		ListingID: 3,
		Amount:    77,
		Envelope:  env,
	}, buf))
	require.True(t, strings.HasPrefix(buf.String(), V1EnvelopeFileMagic+"\n"))

	f, err := ReadEnvelopeFile(buf)
	require.NoError(t, err)
	require.EqualValues(t, 3, f.ListingID)
	require.EqualValues(t, 77, f.Amount)
	require.True(t, env.Ref().Equal(f.Envelope.Ref()))

	tests := []string{
		"",
		"SOMETHING_ELSE:1.0.0\n{}",
		V1EnvelopeFileMagic + "\n{\"bad\": \"juju\"}",
		V1EnvelopeFileMagic + "\nnot json",
	}
	for _, in := range tests {
		_, err := ReadEnvelopeFile(strings.NewReader(in))
		require.True(t, errors.Is(err, ErrMalformedEnvelopeFile), in)
	}
}
