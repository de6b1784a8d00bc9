package services

import (
	"context"
	"errors"
	"time"

	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionLedger records fee movements and their pending -> approved
// lifecycle.
type TransactionLedger struct {
	store    repository.Store
	accounts *AccountStore
}

func NewTransactionLedger(store repository.Store, accounts *AccountStore) *TransactionLedger {
	return &TransactionLedger{store: store, accounts: accounts}
}

// CreatePending stores a new pending record and returns its id. Both
// parties must already hold an account.
func (l *TransactionLedger) CreatePending(ctx context.Context, tx repository.Tx, senderID, receiverID string, amount decimal.Decimal, feeType string) (string, error) {
	if err := validateAmount(amount); err != nil {
		return "", err
	}
	if _, err := l.accounts.Lock(ctx, tx, senderID); err != nil {
		return "", err
	}
	if _, err := l.accounts.Lock(ctx, tx, receiverID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrRecipientNotFound
		}
		return "", err
	}

	txn := &models.FeeTransaction{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		FeeType:    feeType,
		Status:     models.TransactionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

// Pending locks the record and checks it can still be approved.
func (l *TransactionLedger) Pending(ctx context.Context, tx repository.Tx, transactionID string) (*models.FeeTransaction, error) {
	txn, err := tx.LockTransaction(ctx, transactionID)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !txn.IsPending() {
		return nil, ErrAlreadyApproved
	}
	return txn, nil
}

// Approve flips a pending record to approved. A second call for the same id
// fails with ErrAlreadyApproved.
func (l *TransactionLedger) Approve(ctx context.Context, tx repository.Tx, transactionID string) (*models.FeeTransaction, error) {
	txn, err := l.Pending(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}

	approvedAt := time.Now().UTC()
	if err := tx.MarkApproved(ctx, transactionID, approvedAt); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrAlreadyApproved
		}
		return nil, err
	}

	txn.Status = models.TransactionApproved
	txn.ApprovedAt = &approvedAt
	return txn, nil
}

func (l *TransactionLedger) Get(ctx context.Context, transactionID string) (*models.FeeTransaction, error) {
	txn, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return txn, nil
}

func (l *TransactionLedger) ListBySender(ctx context.Context, ownerID string) ([]models.FeeTransaction, error) {
	txns, err := l.store.ListTransactions(ctx, repository.TransactionFilter{SenderID: ownerID})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return txns, nil
}

func (l *TransactionLedger) ListByParticipant(ctx context.Context, ownerID string) ([]models.FeeTransaction, error) {
	txns, err := l.store.ListTransactions(ctx, repository.TransactionFilter{ParticipantID: ownerID})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return txns, nil
}
