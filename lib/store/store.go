// Package store defines the interface for database implementations to the broker service.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// DB defines required methods for the broker's persistence gateway. It is the only writer to the
// wallet tables; handlers never touch a database connection directly so tests can substitute the
// whole gateway.
type DB interface {
	// WithTxn runs fn inside a single database transaction serialized per txid: two concurrent
	// invocations for the same txid never interleave, invocations for different txids may.
	WithTxn(ctx context.Context, txid string, fn func(Txn) error) error

	// UpsertStatus saves the heartbeat snapshot for st.Type, creating the row when absent.
	UpsertStatus(ctx context.Context, st WalletStatus) error

	// GetStatus returns the latest heartbeat snapshot for the coin.
	GetStatus(ctx context.Context, coin string) (WalletStatus, error)

	// AddAddress saves an address to user mapping if the address does not already exist.
	AddAddress(ctx context.Context, a WalletAddress) error
}

// Txn is the set of operations available inside a WithTxn callback. All of them are atomic with
// the enclosing transaction: if the callback returns an error nothing is persisted.
type Txn interface {
	// GetTx returns the TxObserved row for the txid, or ErrDataNotFound.
	GetTx(txid string) (WalletTx, error)
	// UpsertTxRow inserts or updates the TxObserved row for tx.TxID.
	UpsertTxRow(tx WalletTx) error
	// GetJob returns the job keyed by the txid, or ErrDataNotFound.
	GetJob(job string) (WalletJob, error)
	// InsertJob saves a new job row.
	InsertJob(j WalletJob) error
	// UpdateJob overwrites the job row keyed by j.Job.
	UpdateJob(j WalletJob) error
	// FindAddress returns the user mapping for the address, or ErrAddrNotFound.
	FindAddress(address string) (WalletAddress, error)
	// InsertCreditRow saves a TxCredit row. A second insert for the same (txid, user) returns
	// ErrDuplicateCredit.
	InsertCreditRow(tx WalletTx) error
	// GetOrInitBalance returns the user's balance row, creating it at zero when absent.
	GetOrInitBalance(userID string) (WalletBalance, error)
	// AddToBalance adds amount to the user's balance row.
	AddToBalance(userID string, amount decimal.Decimal) error
}

// Errors returned
var (
	ErrAddrNotFound    = errors.New("address was not found in store")
	ErrDataNotFound    = errors.New("data was not found in store")
	ErrDuplicateCredit = errors.New("credit row already exists for this txid and user")
)
