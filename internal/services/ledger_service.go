package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/campuspay/backend/internal/audit"
	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultStatementLimit = 50
	maxStatementLimit     = 200
	unlabelledFeeType     = "Unspecified"
)

// TransferResult is returned by a successful transfer
type TransferResult struct {
	Reference       string          `json:"reference" example:"6f1c1b7e-3f0e-4b8f-9a55-0f0b4c7a2d11"`
	SenderBalance   decimal.Decimal `json:"senderBalance" swaggertype:"string" example:"700.00"`
	ReceiverBalance decimal.Decimal `json:"receiverBalance" swaggertype:"string" example:"300.00"`
}

// FeeInitiation is returned when a fee payment is accepted and awaiting approval
type FeeInitiation struct {
	TransactionID    string          `json:"transactionId" example:"6f1c1b7e-3f0e-4b8f-9a55-0f0b4c7a2d11"`
	RemainingBalance decimal.Decimal `json:"remainingBalance" swaggertype:"string" example:"300.00"`
	AdminID          string          `json:"adminId" example:"admin-1"`
}

// FeeApproval is returned when a pending fee is credited to the collection account
type FeeApproval struct {
	Transaction models.FeeTransaction `json:"transaction"`
	Account     models.Account        `json:"adminAccount"`
}

// PaidFee is the latest approved payment for one fee type
type PaidFee struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string"`
	ApprovedAt    time.Time       `json:"approvedAt"`
}

// PaymentStatus summarises a user's fee payments
type PaymentStatus struct {
	Paid    map[string]PaidFee      `json:"paid"`
	Pending []models.FeeTransaction `json:"pending"`
}

// LedgerService exposes the balance-affecting operations of the ledger.
type LedgerService struct {
	accounts    *AccountStore
	ledger      *TransactionLedger
	coordinator *SettlementCoordinator
	admins      *FeeAdminResolver
	audit       *audit.AuditLogger
	store       repository.Store
	logger      *zap.SugaredLogger
}

func NewLedgerService(store repository.Store, feeAdminID string, logger *zap.Logger, auditLogger *audit.AuditLogger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(logger)
	}
	accounts := NewAccountStore(store)
	return &LedgerService{
		accounts:    accounts,
		ledger:      NewTransactionLedger(store, accounts),
		coordinator: NewSettlementCoordinator(store, logger),
		admins:      NewFeeAdminResolver(feeAdminID),
		audit:       auditLogger,
		store:       store,
		logger:      logger.Sugar(),
	}
}

func (s *LedgerService) GetBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	return s.accounts.GetBalance(ctx, ownerID)
}

// Transfer moves amount from one user account to another. The receiver must
// already have an account.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (*TransferResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}

	result := &TransferResult{Reference: uuid.NewString()}
	err := s.coordinator.Execute(ctx, "transfer", func(ctx context.Context, tx repository.Tx) error {
		// Lock accounts in consistent order to prevent deadlocks
		locked := make(map[string]*models.Account, 2)
		for _, id := range lockOrder(fromID, toID) {
			account, err := tx.LockAccount(ctx, id)
			if errors.Is(err, repository.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			locked[id] = account
		}

		sender, ok := locked[fromID]
		if !ok {
			return ErrNotFound
		}
		if sender.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if _, ok := locked[toID]; !ok {
			return ErrRecipientNotFound
		}

		debited, err := s.accounts.Debit(ctx, tx, fromID, amount, result.Reference)
		if err != nil {
			return err
		}
		credited, err := s.accounts.Credit(ctx, tx, toID, amount, result.Reference)
		if err != nil {
			return err
		}

		result.SenderBalance = debited.Balance
		result.ReceiverBalance = credited.Balance
		return nil
	}, attribute.String("ledger.from", fromID), attribute.String("ledger.to", toID), attribute.String("ledger.amount", amount.String()))
	if err != nil {
		s.audit.LogError(result.Reference, fromID, amount, err)
		return nil, err
	}

	s.logger.Infof("[LEDGER] Transfer %s: %s -> %s amount %s", result.Reference, fromID, toID, amount.StringFixed(2))
	s.audit.LogTransfer(result.Reference, fromID, toID, amount)
	return result, nil
}

// InitiateFeeSettlement debits the user now and records a pending fee owed
// to the fee-collecting admin. The admin is credited only on approval.
func (s *LedgerService) InitiateFeeSettlement(ctx context.Context, userID string, amount decimal.Decimal, feeType string) (*FeeInitiation, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	var result FeeInitiation
	err := s.coordinator.Execute(ctx, "initiate_fee", func(ctx context.Context, tx repository.Tx) error {
		user, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		adminID, err := s.admins.Resolve(ctx, tx)
		if err != nil {
			return err
		}
		if adminID == userID {
			return ErrSameAccount
		}
		if _, err := s.accounts.ProvisionIfAbsent(ctx, tx, adminID, true); err != nil {
			return err
		}

		txnID, err := s.ledger.CreatePending(ctx, tx, userID, adminID, amount, feeType)
		if err != nil {
			return err
		}
		debited, err := s.accounts.Debit(ctx, tx, userID, amount, txnID)
		if err != nil {
			return err
		}

		result = FeeInitiation{TransactionID: txnID, RemainingBalance: debited.Balance, AdminID: adminID}
		return nil
	}, attribute.String("ledger.user", userID), attribute.String("ledger.amount", amount.String()), attribute.String("ledger.fee_type", feeType))
	if err != nil {
		s.audit.LogError("", userID, amount, err)
		return nil, err
	}

	s.logger.Infof("[LEDGER] Fee %s initiated by %s for %s, remaining %s", result.TransactionID, userID, amount.StringFixed(2), result.RemainingBalance.StringFixed(2))
	s.audit.LogFeeInitiated(result.TransactionID, userID, result.AdminID, amount)
	return &result, nil
}

// ApproveFeeSettlement credits the admin collection account with a pending
// fee and marks it approved. Approval succeeds at most once per transaction.
func (s *LedgerService) ApproveFeeSettlement(ctx context.Context, transactionID string) (*FeeApproval, error) {
	var result FeeApproval
	var amount decimal.Decimal
	err := s.coordinator.Execute(ctx, "approve_fee", func(ctx context.Context, tx repository.Tx) error {
		txn, err := s.ledger.Pending(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		amount = txn.Amount
		if _, err := s.accounts.ProvisionIfAbsent(ctx, tx, txn.ReceiverID, true); err != nil {
			return err
		}
		account, err := s.accounts.Credit(ctx, tx, txn.ReceiverID, txn.Amount, txn.ID)
		if err != nil {
			return err
		}
		approved, err := s.ledger.Approve(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		result = FeeApproval{Transaction: *approved, Account: *account}
		return nil
	}, attribute.String("ledger.transaction_id", transactionID))
	if err != nil {
		s.audit.LogError(transactionID, "", amount, err)
		return nil, err
	}

	s.logger.Infof("[LEDGER] Fee %s approved, %s credited %s", transactionID, result.Account.OwnerID, result.Transaction.Amount.StringFixed(2))
	s.audit.LogFeeApproved(transactionID, result.Account.OwnerID, result.Transaction.Amount)
	return &result, nil
}

// ListTransactions returns every fee record the owner sent or received,
// newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string) ([]models.FeeTransaction, error) {
	return s.ledger.ListByParticipant(ctx, ownerID)
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (*models.FeeTransaction, error) {
	return s.ledger.Get(ctx, transactionID)
}

// PaymentStatus reports, per fee type, the latest approved payment made by
// the user along with everything still pending.
func (s *LedgerService) PaymentStatus(ctx context.Context, userID string) (*PaymentStatus, error) {
	txns, err := s.ledger.ListBySender(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &PaymentStatus{
		Paid:    make(map[string]PaidFee),
		Pending: []models.FeeTransaction{},
	}
	for _, txn := range txns {
		if txn.IsPending() {
			status.Pending = append(status.Pending, txn)
			continue
		}
		if txn.ApprovedAt == nil {
			continue
		}

		feeType := txn.FeeType
		if feeType == "" {
			feeType = unlabelledFeeType
		}
		if current, ok := status.Paid[feeType]; ok && !txn.ApprovedAt.After(current.ApprovedAt) {
			continue
		}
		status.Paid[feeType] = PaidFee{
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			ApprovedAt:    *txn.ApprovedAt,
		}
	}
	sort.SliceStable(status.Pending, func(i, j int) bool {
		return status.Pending[i].CreatedAt.After(status.Pending[j].CreatedAt)
	})
	return status, nil
}

// Statement returns the owner's most recent ledger entries, newest first.
func (s *LedgerService) Statement(ctx context.Context, ownerID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultStatementLimit
	}
	if limit > maxStatementLimit {
		limit = maxStatementLimit
	}
	entries, err := s.store.ListEntries(ctx, ownerID, limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return entries, nil
}

func lockOrder(a, b string) []string {
	if a > b {
		return []string{b, a}
	}
	return []string{a, b}
}
