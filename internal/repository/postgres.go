package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campuspay/backend/internal/models"
	"github.com/lib/pq"
)

// Postgres error codes that mean "lost a race, try again".
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement timeout)
}

type PostgresStore struct {
	db           *sql.DB
	scopeTimeout time.Duration
}

// NewPostgresStore wraps db. A zero scopeTimeout leaves the caller's
// context deadline in charge.
func NewPostgresStore(db *sql.DB, scopeTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, scopeTimeout: scopeTimeout}
}

// Atomic runs fn inside a SERIALIZABLE transaction. Any error from fn or
// from commit rolls the transaction back.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.scopeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.scopeTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(ctx, err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, balance, is_admin_collection, version, updated_at
		FROM accounts
		WHERE owner_id = $1`, ownerID).Scan(&account.OwnerID, &account.Balance, &account.IsAdminCollection, &account.Version, &account.UpdatedAt)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &account, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.FeeTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, amount, fee_type, status, created_at, approved_at
		FROM fee_transactions
		WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return txn, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.FeeTransaction, error) {
	query := `
		SELECT id, sender_id, receiver_id, amount, fee_type, status, created_at, approved_at
		FROM fee_transactions
		WHERE sender_id = $1
		ORDER BY created_at DESC`
	arg := filter.SenderID
	if filter.ParticipantID != "" {
		query = `
		SELECT id, sender_id, receiver_id, amount, fee_type, status, created_at, approved_at
		FROM fee_transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC`
		arg = filter.ParticipantID
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	transactions := []models.FeeTransaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(ctx, err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	return transactions, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, ownerID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, owner_id, entry_type, amount, balance_after, created_at
		FROM ledger_entries
		WHERE owner_id = $1
		ORDER BY id DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Reference, &e.OwnerID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, classify(ctx, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	return entries, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(ctx, err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) LockAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	var account models.Account
	err := t.tx.QueryRowContext(ctx, `
		SELECT owner_id, balance, is_admin_collection, version, updated_at
		FROM accounts
		WHERE owner_id = $1
		FOR UPDATE`, ownerID).Scan(&account.OwnerID, &account.Balance, &account.IsAdminCollection, &account.Version, &account.UpdatedAt)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &account, nil
}

func (t *postgresTx) InsertAccount(ctx context.Context, account *models.Account) error {
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now()
	}
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (owner_id, balance, is_admin_collection, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (owner_id) DO NOTHING`,
		account.OwnerID, account.Balance, account.IsAdminCollection, account.UpdatedAt)
	if err != nil {
		return classify(ctx, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify(ctx, err)
	}
	if rowsAffected == 0 {
		return ErrDuplicate
	}
	account.Version = 1
	return nil
}

func (t *postgresTx) UpdateBalance(ctx context.Context, account *models.Account) error {
	now := time.Now()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE owner_id = $3 AND version = $4`,
		account.Balance, now, account.OwnerID, account.Version)
	if err != nil {
		return classify(ctx, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify(ctx, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrConflict, account.OwnerID)
	}

	account.Version++
	account.UpdatedAt = now
	return nil
}

func (t *postgresTx) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (reference, owner_id, entry_type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.Reference, entry.OwnerID, entry.EntryType, entry.Amount, entry.BalanceAfter, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, txn *models.FeeTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO fee_transactions (id, sender_id, receiver_id, amount, fee_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.ID, txn.SenderID, txn.ReceiverID, txn.Amount, txn.FeeType, txn.Status, txn.CreatedAt)
	if err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (t *postgresTx) LockTransaction(ctx context.Context, id string) (*models.FeeTransaction, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, amount, fee_type, status, created_at, approved_at
		FROM fee_transactions
		WHERE id = $1
		FOR UPDATE`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return txn, nil
}

func (t *postgresTx) MarkApproved(ctx context.Context, id string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE fee_transactions
		SET status = $1, approved_at = $2
		WHERE id = $3 AND status = $4`,
		models.TransactionApproved, at, id, models.TransactionPending)
	if err != nil {
		return classify(ctx, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify(ctx, err)
	}
	if rowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

func (t *postgresTx) AdminExists(ctx context.Context, adminID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)`, adminID).Scan(&exists)
	if err != nil {
		return false, classify(ctx, err)
	}
	return exists, nil
}

func (t *postgresTx) EarliestAdmin(ctx context.Context) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM admins ORDER BY created_at ASC, id ASC LIMIT 1`).Scan(&id)
	if err != nil {
		return "", classify(ctx, err)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.FeeTransaction, error) {
	var txn models.FeeTransaction
	var approvedAt sql.NullTime
	if err := row.Scan(&txn.ID, &txn.SenderID, &txn.ReceiverID, &txn.Amount, &txn.FeeType, &txn.Status, &txn.CreatedAt, &approvedAt); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		txn.ApprovedAt = &t
	}
	return &txn, nil
}

// classify maps driver errors onto the package sentinels so callers never
// need to import lib/pq.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if retryableCodes[pqErr.Code] {
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
		if pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
