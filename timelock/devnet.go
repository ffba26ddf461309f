package timelock

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/kurumiimari/sealdex/bio"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/log"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	devAttestationChild = bip32.FirstHardenedChild
	devMasterChild      = bip32.FirstHardenedChild + 1
)

var (
	devLogger = log.ModuleLogger("dev-decryption")

	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// DeliverFunc receives a decryption result. key is stable across
// redeliveries of the same envelope.
type DeliverFunc func(key string, ref gcrypto.Hash, cleartext []byte, proof *Proof) error

// DevNetwork stands in for the threshold decryption network. It derives
// height keys and its attestation key from a BIP39 mnemonic, and releases
// registered envelopes once the chain reaches their target height.
type DevNetwork struct {
	attestKey *btcec.PrivateKey
	master    []byte
	pending   map[string]*Envelope
	deliver   DeliverFunc
	mtx       sync.Mutex
}

func GenerateDevMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", errors.WithStack(err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return mnemonic, nil
}

func NewDevNetwork(mnemonic string) (*DevNetwork, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMnemonic, err.Error())
	}
	mk, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving master key")
	}
	attestChild, err := mk.NewChildKey(devAttestationChild)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving attestation key")
	}
	masterChild, err := mk.NewChildKey(devMasterChild)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving height key secret")
	}

	attestKey, _ := btcec.PrivKeyFromBytes(attestChild.Key)
	return &DevNetwork{
		attestKey: attestKey,
		master:    masterChild.Key,
		pending:   make(map[string]*Envelope),
	}, nil
}

func (d *DevNetwork) HeightKey(height uint64) ([]byte, error) {
	return gcrypto.KeyedBlake256(d.master, bio.Uint64LE(height)), nil
}

func (d *DevNetwork) AttestorKey() *btcec.PublicKey {
	return d.attestKey.PubKey()
}

func (d *DevNetwork) Codec() *BlindCodec {
	return NewBlindCodec(d, d.AttestorKey())
}

func (d *DevNetwork) SetDeliverFunc(f DeliverFunc) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.deliver = f
}

// RequestDecryption registers an envelope for release at its target height.
func (d *DevNetwork) RequestDecryption(env *Envelope) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.pending[env.Ref().String()] = env
	return nil
}

func (d *DevNetwork) PendingCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.pending)
}

// Decrypt opens env as the network would at height.
func (d *DevNetwork) Decrypt(env *Envelope, height uint64) ([]byte, *Proof, error) {
	if height < env.TargetHeight {
		return nil, nil, errors.WithStack(ErrHeightNotReached)
	}
	key, err := d.HeightKey(env.TargetHeight)
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	cleartext, err := aead.Open(nil, env.Nonce, env.Ciphertext, additionalData(env.TargetHeight, env.Commitment))
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformedEnvelope, "decryption failed")
	}
	return cleartext, d.Attest(env.Ref(), cleartext, height), nil
}

func (d *DevNetwork) Attest(ref gcrypto.Hash, cleartext []byte, height uint64) *Proof {
	return SignProof(d.attestKey, ref, cleartext, height)
}

// OnHeight delivers every registered envelope whose target height has been
// reached. Each envelope is delivered once; delivery errors are logged.
func (d *DevNetwork) OnHeight(height uint64) {
	d.mtx.Lock()
	deliver := d.deliver
	var due []*Envelope
	for ref, env := range d.pending {
		if env.TargetHeight > height {
			continue
		}
		due = append(due, env)
		delete(d.pending, ref)
	}
	d.mtx.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].TargetHeight < due[j].TargetHeight
	})

	for _, env := range due {
		ref := env.Ref()
		cleartext, proof, err := d.Decrypt(env, height)
		if err != nil {
			devLogger.Warning("error decrypting envelope", "ref", ref.String(), "err", err)
			continue
		}
		if deliver == nil {
			devLogger.Warning("no delivery target, dropping decryption", "ref", ref.String())
			continue
		}
		if err := deliver(DeliveryKey(ref), ref, cleartext, proof); err != nil {
			devLogger.Warning("error delivering decryption", "ref", ref.String(), "err", err)
		}
	}
}

// DeliveryKey is the idempotency key used for an envelope's decryption
// callback.
func DeliveryKey(ref gcrypto.Hash) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, ref).String()
}
