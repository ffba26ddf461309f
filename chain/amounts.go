package chain

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits converts a human-readable token amount such as "12.5" into
// the token's smallest unit.
func ToBaseUnits(amount string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "%q", amount)
	}
	if d.IsNegative() {
		return 0, errors.Wrap(ErrInvalidAmount, "amount is negative")
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, errors.Wrapf(ErrInvalidAmount, "more than %d decimal places", decimals)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, errors.Wrap(ErrInvalidAmount, "amount overflows")
	}
	return bi.Uint64(), nil
}

func FromBaseUnits(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).StringFixed(decimals)
}
