package auctiondb

import (
	"database/sql"

	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
)

const bidSelect = `
SELECT
	id,
	listing_id,
	bidder,
	envelope,
	envelope_ref,
	revealed,
	revealed_amount,
	cleartext,
	submitted_at_height,
	revealed_at_height,
	late
FROM bids
`

var ErrBidAlreadyRevealed = errors.New("bid already revealed")

type Bid struct {
	ID                uint64             `json:"id"`
	ListingID         uint64             `json:"listing_id"`
	Bidder            chain.Principal    `json:"bidder"`
	Envelope          *timelock.Envelope `json:"envelope"`
	EnvelopeRef       gcrypto.Hash       `json:"envelope_ref"`
	Revealed          bool               `json:"revealed"`
	RevealedAmount    *uint64            `json:"revealed_amount"`
	Cleartext         []byte             `json:"-"`
	SubmittedAtHeight uint64             `json:"submitted_at_height"`
	RevealedAtHeight  *uint64            `json:"revealed_at_height"`
	// Late is set when the reveal arrived after the listing closed. Late
	// bids are kept but never considered for winner selection.
	Late bool `json:"late"`
}

func CreateBid(tx Transactor, b *Bid) error {
	res, err := tx.Exec(`
INSERT INTO bids(
	listing_id,
	bidder,
	envelope,
	envelope_ref,
	target_height,
	submitted_at_height
) VALUES (?, ?, ?, ?, ?, ?)
`,
		b.ListingID,
		b.Bidder,
		b.Envelope.Bytes(),
		b.EnvelopeRef,
		b.Envelope.TargetHeight,
		b.SubmittedAtHeight,
	)
	if err != nil {
		return errors.WithStack(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.WithStack(err)
	}
	b.ID = uint64(id)
	return nil
}

func GetBid(tx Transactor, id uint64) (*Bid, error) {
	row := tx.QueryRow(bidQuery("WHERE id = ?"), id)
	if err := row.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRow(row)
}

func GetBidByEnvelopeRef(tx Transactor, ref gcrypto.Hash) (*Bid, error) {
	row := tx.QueryRow(bidQuery("WHERE envelope_ref = ?"), ref)
	if err := row.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRow(row)
}

func ListBidsForListing(tx Transactor, listingID uint64) ([]*Bid, error) {
	rows, err := tx.Query(
		bidQuery("WHERE listing_id = ? ORDER BY submitted_at_height ASC, id ASC"),
		listingID,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRows(rows)
}

// ListRevealedBids returns a listing's revealed, non-late bids ordered by
// submission height, then ID.
func ListRevealedBids(tx Transactor, listingID uint64) ([]*Bid, error) {
	rows, err := tx.Query(
		bidQuery("WHERE listing_id = ? AND revealed = TRUE AND late = FALSE ORDER BY submitted_at_height ASC, id ASC"),
		listingID,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRows(rows)
}

// ListUnrevealedBids returns every bid still waiting for its decryption,
// oldest first.
func ListUnrevealedBids(tx Transactor) ([]*Bid, error) {
	rows, err := tx.Query(bidQuery("WHERE revealed = FALSE ORDER BY id ASC"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRows(rows)
}

func ListBidsByBidder(tx Transactor, bidder chain.Principal, count, offset int) ([]*Bid, error) {
	count, offset = pageArgs(count, offset)
	rows, err := tx.Query(
		bidQuery("WHERE bidder = ? ORDER BY id DESC LIMIT ? OFFSET ?"),
		bidder,
		count,
		offset,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return scanBidRows(rows)
}

// RevealBid sets a bid's amount. It fails with ErrBidAlreadyRevealed rather
// than overwrite an existing reveal.
func RevealBid(tx Transactor, id uint64, amount uint64, cleartext []byte, height uint64, late bool) error {
	res, err := tx.Exec(`
UPDATE bids SET
	revealed = TRUE,
	revealed_amount = ?,
	cleartext = ?,
	revealed_at_height = ?,
	late = ?
WHERE id = ? AND revealed = FALSE
`,
		amountArg(amount),
		cleartext,
		height,
		late,
		id,
	)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errors.WithStack(ErrBidAlreadyRevealed)
	}
	return nil
}

func scanBidRows(rows *sql.Rows) ([]*Bid, error) {
	defer rows.Close()
	var out []*Bid
	for rows.Next() {
		b, err := scanBidRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

func scanBidRow(scanner Scanner) (*Bid, error) {
	b := new(Bid)
	var envelope []byte
	var revealedAmount sql.NullInt64
	var revealedAtHeight sql.NullInt64

	err := scanner.Scan(
		&b.ID,
		&b.ListingID,
		&b.Bidder,
		&envelope,
		&b.EnvelopeRef,
		&b.Revealed,
		&revealedAmount,
		&b.Cleartext,
		&b.SubmittedAtHeight,
		&revealedAtHeight,
		&b.Late,
	)
	if err != nil {
		return nil, notFound(err)
	}

	env, err := timelock.NewEnvelopeFromBytes(envelope)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt envelope for bid %d", b.ID)
	}
	b.Envelope = env
	b.RevealedAmount = scanNullAmount(revealedAmount)
	b.RevealedAtHeight = scanNullHeight(revealedAtHeight)
	return b, nil
}

func bidQuery(suffix string) string {
	return bidSelect + " " + suffix
}
