package auctiondb

import (
	"database/sql"
	"path"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const DBFilename = "sealdex.db"

var ErrNotFound = errors.New("not found")

type Engine struct {
	db  *sql.DB
	mtx sync.RWMutex
}

type Scanner interface {
	Scan(dest ...interface{}) error
}

type Querier interface {
	Query(q string, args ...interface{}) (*sql.Rows, error)
	QueryRow(q string, args ...interface{}) *sql.Row
	Exec(q string, args ...interface{}) (sql.Result, error)
}

type Transactor interface {
	Querier
}

func NewEngine(dbPath string) (*Engine, error) {
	dsn := "file:" + path.Join(dbPath, DBFilename) + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening DB")
	}
	return &Engine{
		db: db,
	}, nil
}

// Transaction runs cb in a read-write transaction. Writers are serialized;
// cb's changes are committed only if it returns nil.
func (e *Engine) Transaction(cb func(tx Transactor) error) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.run(cb)
}

// View runs cb in a transaction that may run alongside other readers. cb
// must not write.
func (e *Engine) View(cb func(tx Transactor) error) error {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.run(cb)
}

func (e *Engine) Close() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return errors.WithStack(e.db.Close())
}

func (e *Engine) run(cb func(tx Transactor) error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}

	childTx := &transactor{tx: tx}
	if err := cb(childTx); err != nil {
		cbErr := err
		if err := tx.Rollback(); err != nil {
			panic("error rolling back transaction!")
		}
		return cbErr
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	return nil
}

type transactor struct {
	tx *sql.Tx
}

func (t transactor) Query(q string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.Query(q, args...)
}

func (t transactor) QueryRow(q string, args ...interface{}) *sql.Row {
	return t.tx.QueryRow(q, args...)
}

func (t transactor) Exec(q string, args ...interface{}) (sql.Result, error) {
	return t.tx.Exec(q, args...)
}
