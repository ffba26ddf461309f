package auctiondb

import (
	"time"

	"github.com/kurumiimari/sealdex/log"
	"github.com/pkg/errors"
)

var logger = log.ModuleLogger("migrations")

const CreateMigrationsQuery = `
CREATE TABLE IF NOT EXISTS migrations (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	name VARCHAR NOT NULL,
	applied_at INTEGER NOT NULL
);
`

type Migration struct {
	Query string
	Name  string
}

var Migrations = []*Migration{
	{
		Query: `
CREATE TABLE listings (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	owner VARCHAR(42) NOT NULL,
	item_name VARCHAR NOT NULL,
	description VARCHAR NOT NULL DEFAULT '',
	image_url VARCHAR NOT NULL DEFAULT '',
	minimum_amount INTEGER NOT NULL,
	reveal_height INTEGER NOT NULL,
	end_height INTEGER NOT NULL,
	state VARCHAR NOT NULL,
	winner VARCHAR(42),
	winning_amount INTEGER,
	winning_bid_id INTEGER,
	total_bids INTEGER NOT NULL DEFAULT 0,
	payment_received BOOLEAN NOT NULL DEFAULT FALSE,
	created_at_height INTEGER NOT NULL,
	ended_at_height INTEGER,
	created_at INTEGER NOT NULL,
	CHECK (reveal_height < end_height)
);

CREATE INDEX idx_listings_owner ON listings(owner);
CREATE INDEX idx_listings_state_end_height ON listings(state, end_height);
`,
		Name: "create_listings",
	},
	{
		Query: `
CREATE TABLE bids (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	listing_id INTEGER NOT NULL,
	bidder VARCHAR(42) NOT NULL,
	envelope BLOB NOT NULL,
	envelope_ref VARCHAR(64) NOT NULL,
	target_height INTEGER NOT NULL,
	revealed BOOLEAN NOT NULL DEFAULT FALSE,
	revealed_amount INTEGER,
	cleartext BLOB,
	submitted_at_height INTEGER NOT NULL,
	revealed_at_height INTEGER,
	late BOOLEAN NOT NULL DEFAULT FALSE,
	CHECK ((revealed = 0 AND revealed_amount IS NULL) OR (revealed = 1 AND revealed_amount IS NOT NULL)),
	FOREIGN KEY (listing_id) REFERENCES listings(id)
);

CREATE UNIQUE INDEX idx_uniq_bids_envelope_ref ON bids(envelope_ref);
CREATE INDEX idx_bids_listing_id ON bids(listing_id, submitted_at_height, id);
CREATE INDEX idx_bids_bidder ON bids(bidder);
`,
		Name: "create_bids",
	},
	{
		Query: `
CREATE TABLE settlement_requests (
	id VARCHAR(66) NOT NULL PRIMARY KEY,
	listing_id INTEGER NOT NULL,
	nonce INTEGER NOT NULL,
	payer VARCHAR(42) NOT NULL,
	payee VARCHAR(42) NOT NULL,
	source_amount INTEGER NOT NULL,
	expected_amount INTEGER NOT NULL,
	solver_fee INTEGER NOT NULL,
	actual_amount INTEGER,
	source_chain INTEGER NOT NULL,
	destination_chain INTEGER NOT NULL,
	state VARCHAR NOT NULL,
	failure_reason VARCHAR NOT NULL DEFAULT '',
	requested_at INTEGER NOT NULL,
	requested_at_height INTEGER NOT NULL,
	fulfilled_at INTEGER,
	failed_at INTEGER,
	FOREIGN KEY (listing_id) REFERENCES listings(id)
);

CREATE UNIQUE INDEX idx_uniq_settlement_requests_listing_nonce ON settlement_requests(listing_id, nonce);
CREATE UNIQUE INDEX idx_uniq_settlement_requests_in_flight ON settlement_requests(listing_id) WHERE state != 'FAILED';
CREATE INDEX idx_settlement_requests_state_requested_at ON settlement_requests(state, requested_at);
`,
		Name: "create_settlement_requests",
	},
	{
		Query: `
CREATE TABLE processed_events (
	idempotency_key VARCHAR(36) NOT NULL PRIMARY KEY,
	kind VARCHAR NOT NULL,
	ref VARCHAR NOT NULL,
	outcome VARCHAR NOT NULL,
	processed_at INTEGER NOT NULL
);
`,
		Name: "create_processed_events",
	},
	{
		Query: `
CREATE TABLE height_checkpoints (
	height INTEGER NOT NULL PRIMARY KEY,
	hash VARCHAR NOT NULL
);
`,
		Name: "create_height_checkpoints",
	},
}

func MigrateDB(engine *Engine) error {
	return engine.Transaction(func(tx Transactor) error {
		logger.Debug("creating migrations table")
		_, err := tx.Exec(CreateMigrationsQuery)
		if err != nil {
			return errors.WithStack(err)
		}

		migRow := tx.QueryRow("SELECT COALESCE(MAX(id), 0) FROM migrations")
		if migRow.Err() != nil {
			return errors.WithStack(migRow.Err())
		}
		var latestMigID int
		if err := migRow.Scan(&latestMigID); err != nil {
			return errors.WithStack(err)
		}

		if latestMigID == len(Migrations) {
			logger.Info("migrations up to date")
			return nil
		}

		logger.Info("running migrations")
		for i := latestMigID; i < len(Migrations); i++ {
			mig := Migrations[i]
			logger.Debug("executing migration", "name", mig.Name, "version", i)
			if err := ExecMigration(tx, mig); err != nil {
				return err
			}
		}
		logger.Info("successfully migrated database")
		return nil
	})
}

func ExecMigration(tx Transactor, migration *Migration) error {
	if _, err := tx.Exec(migration.Query); err != nil {
		return errors.Wrapf(err, "error executing migration %s", migration.Name)
	}
	_, err := tx.Exec(
		"INSERT INTO migrations (name, applied_at) VALUES (?, ?)",
		migration.Name,
		time.Now().Unix(),
	)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
