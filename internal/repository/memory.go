package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campuspay/backend/internal/models"
)

// MemoryStore is an in-process Store with first-committer-wins optimistic
// concurrency: every scope works on a private copy of the data and commits
// only if no other scope committed writes since it started. A losing scope
// gets ErrConflict and none of its writes are applied.
type MemoryStore struct {
	mu       sync.Mutex
	version  uint64
	accounts map[string]models.Account
	txns     map[string]models.FeeTransaction
	entries  []models.LedgerEntry
	admins   []memoryAdmin
}

type memoryAdmin struct {
	id        string
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]models.Account),
		txns:     make(map[string]models.FeeTransaction),
	}
}

// AddAdmin registers an admin principal. Admin identities live with the
// auth layer in production; this exists so the fee-admin lookup has data.
func (s *MemoryStore) AddAdmin(id string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append(s.admins, memoryAdmin{id: id, createdAt: createdAt})
	sort.SliceStable(s.admins, func(i, j int) bool {
		return s.admins[i].createdAt.Before(s.admins[j].createdAt)
	})
}

// Seed stores an account outside of any scope.
func (s *MemoryStore) Seed(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.Version == 0 {
		account.Version = 1
	}
	s.accounts[account.OwnerID] = account
	s.version++
}

// Accounts returns a copy of every stored account.
func (s *MemoryStore) Accounts() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	s.mu.Lock()
	tx := &memoryTx{
		accounts: make(map[string]models.Account, len(s.accounts)),
		txns:     make(map[string]models.FeeTransaction, len(s.txns)),
		admins:   append([]memoryAdmin(nil), s.admins...),
		nextID:   int64(len(s.entries)) + 1,
	}
	for k, v := range s.accounts {
		tx.accounts[k] = v
	}
	for k, v := range s.txns {
		tx.txns[k] = v
	}
	startVersion := s.version
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !tx.dirty {
		return nil
	}
	if s.version != startVersion {
		return ErrConflict
	}
	s.accounts = tx.accounts
	s.txns = tx.txns
	s.entries = append(s.entries, tx.entries...)
	s.version++
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[ownerID]
	if !ok {
		return nil, ErrNoRows
	}
	return &account, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return nil, ErrNoRows
	}
	return &txn, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.FeeTransaction{}
	for _, txn := range s.txns {
		switch {
		case filter.ParticipantID != "":
			if txn.SenderID != filter.ParticipantID && txn.ReceiverID != filter.ParticipantID {
				continue
			}
		case txn.SenderID != filter.SenderID:
			continue
		}
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, ownerID string, limit int) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.LedgerEntry{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].OwnerID == ownerID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

type memoryTx struct {
	accounts map[string]models.Account
	txns     map[string]models.FeeTransaction
	entries  []models.LedgerEntry
	admins   []memoryAdmin
	nextID   int64
	dirty    bool
}

func (t *memoryTx) LockAccount(ctx context.Context, ownerID string) (*models.Account, error) {
	account, ok := t.accounts[ownerID]
	if !ok {
		return nil, ErrNoRows
	}
	return &account, nil
}

func (t *memoryTx) InsertAccount(ctx context.Context, account *models.Account) error {
	if _, ok := t.accounts[account.OwnerID]; ok {
		return ErrDuplicate
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now()
	}
	account.Version = 1
	t.accounts[account.OwnerID] = *account
	t.dirty = true
	return nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, account *models.Account) error {
	stored, ok := t.accounts[account.OwnerID]
	if !ok || stored.Version != account.Version {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrConflict, account.OwnerID)
	}
	if account.Balance.IsNegative() {
		return fmt.Errorf("%w: balance check violated for account %s", ErrUnavailable, account.OwnerID)
	}
	account.Version++
	account.UpdatedAt = time.Now()
	t.accounts[account.OwnerID] = *account
	t.dirty = true
	return nil
}

func (t *memoryTx) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.ID = t.nextID
	t.nextID++
	t.entries = append(t.entries, *entry)
	t.dirty = true
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *models.FeeTransaction) error {
	if _, ok := t.txns[txn.ID]; ok {
		return ErrDuplicate
	}
	t.txns[txn.ID] = *txn
	t.dirty = true
	return nil
}

func (t *memoryTx) LockTransaction(ctx context.Context, id string) (*models.FeeTransaction, error) {
	txn, ok := t.txns[id]
	if !ok {
		return nil, ErrNoRows
	}
	return &txn, nil
}

func (t *memoryTx) MarkApproved(ctx context.Context, id string, at time.Time) error {
	txn, ok := t.txns[id]
	if !ok || txn.Status != models.TransactionPending {
		return ErrNoRows
	}
	txn.Status = models.TransactionApproved
	txn.ApprovedAt = &at
	t.txns[id] = txn
	t.dirty = true
	return nil
}

func (t *memoryTx) AdminExists(ctx context.Context, adminID string) (bool, error) {
	for _, a := range t.admins {
		if a.id == adminID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) EarliestAdmin(ctx context.Context) (string, error) {
	if len(t.admins) == 0 {
		return "", ErrNoRows
	}
	return t.admins[0].id, nil
}
