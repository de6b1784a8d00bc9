package services

import (
	"context"
	"errors"

	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/repository"
	"github.com/shopspring/decimal"
)

// AccountStore owns balance records. Every mutation runs inside the
// caller's atomic scope and appends a ledger entry next to the new balance.
type AccountStore struct {
	store repository.Store
}

func NewAccountStore(store repository.Store) *AccountStore {
	return &AccountStore{store: store}
}

func (a *AccountStore) GetBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	account, err := a.store.GetAccount(ctx, ownerID)
	if errors.Is(err, repository.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, mapStoreError(err)
	}
	return account.Balance, nil
}

// Lock reads and locks the account for the rest of the scope.
func (a *AccountStore) Lock(ctx context.Context, tx repository.Tx, ownerID string) (*models.Account, error) {
	account, err := tx.LockAccount(ctx, ownerID)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, ErrNotFound
	}
	return account, err
}

func (a *AccountStore) Credit(ctx context.Context, tx repository.Tx, ownerID string, amount decimal.Decimal, reference string) (*models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	account, err := a.Lock(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, tx, account, amount, models.EntryCredit, reference)
}

func (a *AccountStore) Debit(ctx context.Context, tx repository.Tx, ownerID string, amount decimal.Decimal, reference string) (*models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	account, err := a.Lock(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}
	return a.apply(ctx, tx, account, amount.Neg(), models.EntryDebit, reference)
}

// ProvisionIfAbsent returns the owner's account, creating a zero-balance one
// first if none exists. Two scopes racing to create the same account both
// end up with the single stored row. An existing account of the other kind
// is never reused.
func (a *AccountStore) ProvisionIfAbsent(ctx context.Context, tx repository.Tx, ownerID string, isAdminCollection bool) (*models.Account, error) {
	account := &models.Account{
		OwnerID:           ownerID,
		Balance:           decimal.Zero,
		IsAdminCollection: isAdminCollection,
	}
	err := tx.InsertAccount(ctx, account)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, err
	}

	existing, err := a.Lock(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	if existing.IsAdminCollection != isAdminCollection {
		return nil, ErrAccountKindMismatch
	}
	return existing, nil
}

func (a *AccountStore) apply(ctx context.Context, tx repository.Tx, account *models.Account, delta decimal.Decimal, entryType, reference string) (*models.Account, error) {
	account.Balance = account.Balance.Add(delta)
	if err := tx.UpdateBalance(ctx, account); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		Reference:    reference,
		OwnerID:      account.OwnerID,
		EntryType:    entryType,
		Amount:       delta.Abs(),
		BalanceAfter: account.Balance,
	}
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	return account, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}
