package gcrypto

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const HashSize = 32

var ErrInvalidHashLength = errors.New("hash must be 32 bytes")

// Hash is a 32-byte digest that serializes as hex in JSON and SQL.
type Hash []byte

func NewHashFromHex(in string) (Hash, error) {
	buf, err := hex.DecodeString(in)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hash hex")
	}
	if len(buf) != HashSize {
		return nil, ErrInvalidHashLength
	}
	return buf, nil
}

func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0x00 {
			return false
		}
	}
	return true
}

func (h Hash) String() string {
	return hex.EncodeToString(h)
}

func (h Hash) Equal(other Hash) bool {
	return bytes.Equal(h, other)
}

func (h Hash) MarshalJSON() ([]byte, error) {
	if len(h) == 0 {
		return json.Marshal(nil)
	}
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var hexStr *string
	if err := json.Unmarshal(b, &hexStr); err != nil {
		return errors.WithStack(err)
	}
	if hexStr == nil {
		*h = nil
		return nil
	}
	buf, err := hex.DecodeString(*hexStr)
	if err != nil {
		return errors.WithStack(err)
	}
	*h = buf
	return nil
}

func (h Hash) Value() (driver.Value, error) {
	if len(h) == 0 {
		return nil, nil
	}
	return hex.EncodeToString(h), nil
}

func (h *Hash) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		*h = nil
	case string:
		buf, err := hex.DecodeString(t)
		if err != nil {
			return errors.WithStack(err)
		}
		*h = buf
	case []byte:
		buf, err := hex.DecodeString(string(t))
		if err != nil {
			return errors.WithStack(err)
		}
		*h = buf
	default:
		return errors.Errorf("cannot scan %v into hash", reflect.TypeOf(src))
	}

	return nil
}

func Blake256(in ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, b := range in {
		h.Write(b)
	}
	return h.Sum(nil)
}

// KeyedBlake256 is blake2b-256 in MAC mode. Keys longer than 64 bytes panic.
func KeyedBlake256(key []byte, in ...[]byte) Hash {
	h, err := blake2b.New256(key)
	if err != nil {
		panic(err)
	}
	for _, b := range in {
		h.Write(b)
	}
	return h.Sum(nil)
}
