package auctiondb

import (
	"database/sql"
	"time"

	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
)

const listingSelect = `
SELECT
	id,
	owner,
	item_name,
	description,
	image_url,
	minimum_amount,
	reveal_height,
	end_height,
	state,
	winner,
	winning_amount,
	winning_bid_id,
	total_bids,
	payment_received,
	created_at_height,
	ended_at_height,
	created_at
FROM listings
`

type ListingState string

const (
	ListingActive    ListingState = "ACTIVE"
	ListingEnded     ListingState = "ENDED"
	ListingSettled   ListingState = "SETTLED"
	ListingCancelled ListingState = "CANCELLED"
)

func (s ListingState) Valid() bool {
	switch s {
	case ListingActive, ListingEnded, ListingSettled, ListingCancelled:
		return true
	default:
		return false
	}
}

type Listing struct {
	ID              uint64          `json:"id"`
	Owner           chain.Principal `json:"owner"`
	ItemName        string          `json:"item_name"`
	Description     string          `json:"description"`
	ImageURL        string          `json:"image_url"`
	MinimumAmount   uint64          `json:"minimum_amount"`
	RevealHeight    uint64          `json:"reveal_height"`
	EndHeight       uint64          `json:"end_height"`
	State           ListingState    `json:"state"`
	Winner          chain.Principal `json:"winner,omitempty"`
	WinningAmount   *uint64         `json:"winning_amount"`
	WinningBidID    *uint64         `json:"winning_bid_id"`
	TotalBids       int             `json:"total_bids"`
	PaymentReceived bool            `json:"payment_received"`
	CreatedAtHeight uint64          `json:"created_at_height"`
	EndedAtHeight   *uint64         `json:"ended_at_height"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ListingFilter struct {
	Owner  chain.Principal
	State  ListingState
	Count  int
	Offset int
}

func CreateListing(tx Transactor, l *Listing) error {
	res, err := tx.Exec(`
INSERT INTO listings(
	owner,
	item_name,
	description,
	image_url,
	minimum_amount,
	reveal_height,
	end_height,
	state,
	created_at_height,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		l.Owner,
		l.ItemName,
		l.Description,
		l.ImageURL,
		amountArg(l.MinimumAmount),
		l.RevealHeight,
		l.EndHeight,
		l.State,
		l.CreatedAtHeight,
		l.CreatedAt.Unix(),
	)
	if err != nil {
		return errors.WithStack(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.WithStack(err)
	}
	l.ID = uint64(id)
	return nil
}

func GetListing(tx Transactor, id uint64) (*Listing, error) {
	row := tx.QueryRow(listingQuery("WHERE id = ?"), id)
	if err := row.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return scanListingRow(row)
}

// UpdateListing writes the fields that change across lifecycle transitions.
func UpdateListing(tx Transactor, l *Listing) error {
	res, err := tx.Exec(`
UPDATE listings SET
	state = ?,
	winner = ?,
	winning_amount = ?,
	winning_bid_id = ?,
	total_bids = ?,
	payment_received = ?,
	ended_at_height = ?
WHERE id = ?
`,
		l.State,
		sql.NullString{String: string(l.Winner), Valid: l.Winner != ""},
		nullAmountArg(l.WinningAmount),
		nullHeightArg(l.WinningBidID),
		l.TotalBids,
		l.PaymentReceived,
		nullHeightArg(l.EndedAtHeight),
		l.ID,
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

func ListListings(tx Transactor, filter *ListingFilter) ([]*Listing, error) {
	count, offset := pageArgs(filter.Count, filter.Offset)
	where := "WHERE 1 = 1"
	var args []interface{}
	if filter.Owner != "" {
		where += " AND owner = ?"
		args = append(args, filter.Owner)
	}
	if filter.State != "" {
		where += " AND state = ?"
		args = append(args, filter.State)
	}
	args = append(args, count, offset)

	rows, err := tx.Query(listingQuery(where+" ORDER BY id DESC LIMIT ? OFFSET ?"), args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanListingRows(rows)
}

// ListEndedActiveListings returns Active listings whose end height has been
// reached, oldest first.
func ListEndedActiveListings(tx Transactor, height uint64) ([]*Listing, error) {
	rows, err := tx.Query(
		listingQuery("WHERE state = ? AND end_height <= ? ORDER BY id ASC"),
		ListingActive,
		height,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanListingRows(rows)
}

func CountListings(tx Transactor) (int, error) {
	var count int
	row := tx.QueryRow("SELECT COUNT(*) FROM listings")
	if err := row.Scan(&count); err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

func scanListingRows(rows *sql.Rows) ([]*Listing, error) {
	defer rows.Close()
	var out []*Listing
	for rows.Next() {
		l, err := scanListingRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

func scanListingRow(scanner Scanner) (*Listing, error) {
	l := new(Listing)
	var minimumAmount int64
	var winner sql.NullString
	var winningAmount sql.NullInt64
	var winningBidID sql.NullInt64
	var endedAtHeight sql.NullInt64
	var createdAt int64

	err := scanner.Scan(
		&l.ID,
		&l.Owner,
		&l.ItemName,
		&l.Description,
		&l.ImageURL,
		&minimumAmount,
		&l.RevealHeight,
		&l.EndHeight,
		&l.State,
		&winner,
		&winningAmount,
		&winningBidID,
		&l.TotalBids,
		&l.PaymentReceived,
		&l.CreatedAtHeight,
		&endedAtHeight,
		&createdAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	l.MinimumAmount = uint64(minimumAmount)
	l.Winner = chain.Principal(winner.String)
	l.WinningAmount = scanNullAmount(winningAmount)
	l.WinningBidID = scanNullHeight(winningBidID)
	l.EndedAtHeight = scanNullHeight(endedAtHeight)
	l.CreatedAt = time.Unix(createdAt, 0).UTC()
	return l, nil
}

func listingQuery(suffix string) string {
	return listingSelect + " " + suffix
}
