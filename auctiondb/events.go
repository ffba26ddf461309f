package auctiondb

import (
	"time"

	"github.com/pkg/errors"
)

type EventKind string

const (
	EventDecryption         EventKind = "DECRYPTION"
	EventFulfillment        EventKind = "FULFILLMENT"
	EventFulfillmentFailure EventKind = "FULFILLMENT_FAILURE"
)

// ProcessedEvent records an external callback that changed state, keyed by
// its idempotency key.
type ProcessedEvent struct {
	Key         string    `json:"key"`
	Kind        EventKind `json:"kind"`
	Ref         string    `json:"ref"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}

func RecordProcessedEvent(tx Transactor, e *ProcessedEvent) error {
	_, err := tx.Exec(
		"INSERT INTO processed_events(idempotency_key, kind, ref, outcome, processed_at) VALUES (?, ?, ?, ?, ?)",
		e.Key,
		e.Kind,
		e.Ref,
		e.Outcome,
		e.ProcessedAt.Unix(),
	)
	return errors.WithStack(err)
}

func GetProcessedEvent(tx Transactor, key string) (*ProcessedEvent, error) {
	e := new(ProcessedEvent)
	var processedAt int64
	row := tx.QueryRow(
		"SELECT idempotency_key, kind, ref, outcome, processed_at FROM processed_events WHERE idempotency_key = ?",
		key,
	)
	if err := row.Scan(&e.Key, &e.Kind, &e.Ref, &e.Outcome, &processedAt); err != nil {
		return nil, notFound(err)
	}
	e.ProcessedAt = time.Unix(processedAt, 0).UTC()
	return e, nil
}

func ListProcessedEventKeys(tx Transactor) ([]string, error) {
	rows, err := tx.Query("SELECT idempotency_key FROM processed_events")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.WithStack(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return keys, nil
}
