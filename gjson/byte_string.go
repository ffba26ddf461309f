package gjson

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// ByteString is a byte slice that is hex encoded in JSON and stored as a
// blob in SQL.
type ByteString []byte

func (b ByteString) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func (b *ByteString) UnmarshalJSON(buf []byte) error {
	var h string
	if err := json.Unmarshal(buf, &h); err != nil {
		return errors.WithStack(err)
	}
	bs, err := hex.DecodeString(h)
	if err != nil {
		return errors.WithStack(err)
	}
	*b = bs
	return nil
}

func (b ByteString) Value() (driver.Value, error) {
	return []byte(b), nil
}

func (b *ByteString) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		*b = nil
	case []byte:
		*b = append([]byte(nil), t...)
	default:
		return errors.Errorf("cannot scan %v into byte string", reflect.TypeOf(src))
	}
	return nil
}
