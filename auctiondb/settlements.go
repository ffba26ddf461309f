package auctiondb

import (
	"database/sql"
	"time"

	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
)

const settlementSelect = `
SELECT
	id,
	listing_id,
	nonce,
	payer,
	payee,
	source_amount,
	expected_amount,
	solver_fee,
	actual_amount,
	source_chain,
	destination_chain,
	state,
	failure_reason,
	requested_at,
	requested_at_height,
	fulfilled_at,
	failed_at
FROM settlement_requests
`

type SettlementState string

const (
	SettlementPending   SettlementState = "PENDING"
	SettlementFulfilled SettlementState = "FULFILLED"
	SettlementFailed    SettlementState = "FAILED"
)

type SettlementRequest struct {
	ID                string          `json:"id"`
	ListingID         uint64          `json:"listing_id"`
	Nonce             uint64          `json:"nonce"`
	Payer             chain.Principal `json:"payer"`
	Payee             chain.Principal `json:"payee"`
	SourceAmount      uint64          `json:"source_amount"`
	ExpectedAmount    uint64          `json:"expected_amount"`
	SolverFee         uint64          `json:"solver_fee"`
	ActualAmount      *uint64         `json:"actual_amount"`
	SourceChain       uint64          `json:"source_chain"`
	DestinationChain  uint64          `json:"destination_chain"`
	State             SettlementState `json:"state"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	RequestedAt       time.Time       `json:"requested_at"`
	RequestedAtHeight uint64          `json:"requested_at_height"`
	FulfilledAt       *time.Time      `json:"fulfilled_at"`
	FailedAt          *time.Time      `json:"failed_at"`
}

func (s *SettlementRequest) CrossChain() bool {
	return s.SourceChain != s.DestinationChain
}

func CreateSettlementRequest(tx Transactor, s *SettlementRequest) error {
	_, err := tx.Exec(`
INSERT INTO settlement_requests(
	id,
	listing_id,
	nonce,
	payer,
	payee,
	source_amount,
	expected_amount,
	solver_fee,
	source_chain,
	destination_chain,
	state,
	requested_at,
	requested_at_height
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		s.ID,
		s.ListingID,
		s.Nonce,
		s.Payer,
		s.Payee,
		amountArg(s.SourceAmount),
		amountArg(s.ExpectedAmount),
		amountArg(s.SolverFee),
		s.SourceChain,
		s.DestinationChain,
		s.State,
		s.RequestedAt.Unix(),
		s.RequestedAtHeight,
	)
	return errors.WithStack(err)
}

func GetSettlementRequest(tx Transactor, id string) (*SettlementRequest, error) {
	row := tx.QueryRow(settlementQuery("WHERE id = ?"), id)
	if err := row.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return scanSettlementRow(row)
}

// GetLiveSettlementRequest returns the listing's non-Failed request, if
// any. There is at most one.
func GetLiveSettlementRequest(tx Transactor, listingID uint64) (*SettlementRequest, error) {
	row := tx.QueryRow(settlementQuery("WHERE listing_id = ? AND state != ?"), listingID, SettlementFailed)
	if err := row.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return scanSettlementRow(row)
}

func CountSettlementRequests(tx Transactor, listingID uint64) (uint64, error) {
	var count uint64
	row := tx.QueryRow("SELECT COUNT(*) FROM settlement_requests WHERE listing_id = ?", listingID)
	if err := row.Scan(&count); err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

func ListSettlementRequests(tx Transactor, listingID uint64) ([]*SettlementRequest, error) {
	rows, err := tx.Query(settlementQuery("WHERE listing_id = ? ORDER BY nonce ASC"), listingID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanSettlementRows(rows)
}

// ListPendingSettlementsBefore returns Pending requests made before cutoff,
// oldest first.
func ListPendingSettlementsBefore(tx Transactor, cutoff time.Time) ([]*SettlementRequest, error) {
	rows, err := tx.Query(
		settlementQuery("WHERE state = ? AND requested_at < ? ORDER BY requested_at ASC, id ASC"),
		SettlementPending,
		cutoff.Unix(),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanSettlementRows(rows)
}

func ListPendingSettlementRequests(tx Transactor) ([]*SettlementRequest, error) {
	rows, err := tx.Query(
		settlementQuery("WHERE state = ? ORDER BY requested_at ASC, id ASC"),
		SettlementPending,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanSettlementRows(rows)
}

func UpdateSettlementRequest(tx Transactor, s *SettlementRequest) error {
	res, err := tx.Exec(`
UPDATE settlement_requests SET
	state = ?,
	actual_amount = ?,
	failure_reason = ?,
	fulfilled_at = ?,
	failed_at = ?
WHERE id = ?
`,
		s.State,
		nullAmountArg(s.ActualAmount),
		s.FailureReason,
		nullTimeArg(s.FulfilledAt),
		nullTimeArg(s.FailedAt),
		s.ID,
	)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errors.WithStack(ErrNotFound)
	}
	return nil
}

func scanSettlementRows(rows *sql.Rows) ([]*SettlementRequest, error) {
	defer rows.Close()
	var out []*SettlementRequest
	for rows.Next() {
		s, err := scanSettlementRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

func scanSettlementRow(scanner Scanner) (*SettlementRequest, error) {
	s := new(SettlementRequest)
	var sourceAmount, expectedAmount, solverFee int64
	var actualAmount sql.NullInt64
	var requestedAt int64
	var fulfilledAt, failedAt sql.NullInt64

	err := scanner.Scan(
		&s.ID,
		&s.ListingID,
		&s.Nonce,
		&s.Payer,
		&s.Payee,
		&sourceAmount,
		&expectedAmount,
		&solverFee,
		&actualAmount,
		&s.SourceChain,
		&s.DestinationChain,
		&s.State,
		&s.FailureReason,
		&requestedAt,
		&s.RequestedAtHeight,
		&fulfilledAt,
		&failedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	s.SourceAmount = uint64(sourceAmount)
	s.ExpectedAmount = uint64(expectedAmount)
	s.SolverFee = uint64(solverFee)
	s.ActualAmount = scanNullAmount(actualAmount)
	s.RequestedAt = time.Unix(requestedAt, 0).UTC()
	s.FulfilledAt = scanNullTime(fulfilledAt)
	s.FailedAt = scanNullTime(failedAt)
	return s, nil
}

func settlementQuery(suffix string) string {
	return settlementSelect + " " + suffix
}
