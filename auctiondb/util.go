package auctiondb

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Amounts are stored as the int64 bit pattern of their uint64 value so the
// full range survives the driver.
func amountArg(v uint64) int64 {
	return int64(v)
}

func nullAmountArg(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func scanNullAmount(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	out := uint64(v.Int64)
	return &out
}

func nullHeightArg(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func scanNullHeight(v sql.NullInt64) *uint64 {
	return scanNullAmount(v)
}

func nullTimeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func scanNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(ErrNotFound)
	}
	return errors.WithStack(err)
}

func pageArgs(count, offset int) (int, int) {
	if count <= 0 {
		count = 50
	}
	if offset < 0 {
		offset = 0
	}
	return count, offset
}
