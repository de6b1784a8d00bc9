// Package repository persists accounts, fee transactions and ledger entries.
//
// All balance and status mutations happen through a Tx obtained from
// Store.Atomic, which commits every write made by the callback or none of
// them.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/campuspay/backend/internal/models"
)

var (
	// ErrNoRows is returned when a lookup matches nothing.
	ErrNoRows = errors.New("no rows")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
	// ErrConflict is returned when the scope lost a race with another
	// concurrent scope or ran out of time. The whole scope was rolled back.
	ErrConflict = errors.New("write conflict")
	// ErrUnavailable wraps store faults unrelated to the data itself.
	ErrUnavailable = errors.New("store unavailable")
)

// Tx is the set of reads and writes available inside an atomic scope.
// Reads through a Tx lock the returned rows until the scope ends.
type Tx interface {
	LockAccount(ctx context.Context, ownerID string) (*models.Account, error)
	InsertAccount(ctx context.Context, account *models.Account) error
	// UpdateBalance writes account.Balance if account.Version still matches
	// the stored row, then bumps account.Version.
	UpdateBalance(ctx context.Context, account *models.Account) error
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error

	InsertTransaction(ctx context.Context, txn *models.FeeTransaction) error
	LockTransaction(ctx context.Context, id string) (*models.FeeTransaction, error)
	MarkApproved(ctx context.Context, id string, at time.Time) error

	AdminExists(ctx context.Context, adminID string) (bool, error)
	// EarliestAdmin returns the id of the first registered admin.
	EarliestAdmin(ctx context.Context) (string, error)
}

// TransactionFilter selects fee transactions for read-only listings.
// Exactly one of SenderID or ParticipantID is expected to be set.
type TransactionFilter struct {
	SenderID      string
	ParticipantID string
}

// Store is the shared data store behind the ledger.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAccount(ctx context.Context, ownerID string) (*models.Account, error)
	GetTransaction(ctx context.Context, id string) (*models.FeeTransaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.FeeTransaction, error)
	ListEntries(ctx context.Context, ownerID string, limit int) ([]models.LedgerEntry, error)
	Ping(ctx context.Context) error
}
