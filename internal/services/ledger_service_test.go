package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/campuspay/backend/internal/audit"
	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

const testAdmin = "admin-1"

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestLedger(t *testing.T, feeAdminID string) (*LedgerService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddAdmin(testAdmin, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewLedgerService(store, feeAdminID, zaptest.NewLogger(t), nil), store
}

func seed(store *repository.MemoryStore, ownerID, balance string) {
	store.Seed(models.Account{OwnerID: ownerID, Balance: money(balance)})
}

func balanceOf(t *testing.T, store repository.Store, ownerID string) decimal.Decimal {
	t.Helper()
	account, err := store.GetAccount(context.Background(), ownerID)
	require.NoError(t, err)
	return account.Balance
}

func totalBalance(store *repository.MemoryStore) decimal.Decimal {
	total := decimal.Zero
	for _, account := range store.Accounts() {
		total = total.Add(account.Balance)
	}
	return total
}

// pendingTotal is money debited from users but not yet credited to an admin.
func pendingTotal(t *testing.T, store *repository.MemoryStore) decimal.Decimal {
	t.Helper()
	txns, err := store.ListTransactions(context.Background(), repository.TransactionFilter{ParticipantID: testAdmin})
	require.NoError(t, err)
	total := decimal.Zero
	for _, txn := range txns {
		if txn.IsPending() {
			total = total.Add(txn.Amount)
		}
	}
	return total
}

func TestLedgerService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves money and keeps the sum", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "500.00")
		seed(store, "bob", "20.50")

		result, err := service.Transfer(ctx, "alice", "bob", money("120.25"))

		require.NoError(t, err)
		assert.NotEmpty(t, result.Reference)
		assert.True(t, result.SenderBalance.Equal(money("379.75")))
		assert.True(t, result.ReceiverBalance.Equal(money("140.75")))
		assert.True(t, totalBalance(store).Equal(money("520.50")))

		entries, err := service.Statement(ctx, "alice", 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.EntryDebit, entries[0].EntryType)
		assert.Equal(t, result.Reference, entries[0].Reference)
		assert.True(t, entries[0].BalanceAfter.Equal(money("379.75")))
	})

	t.Run("insufficient funds leaves both balances untouched", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "100")
		seed(store, "bob", "0")

		_, err := service.Transfer(ctx, "alice", "bob", money("150"))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, balanceOf(t, store, "alice").Equal(money("100")))
		assert.True(t, balanceOf(t, store, "bob").IsZero())
	})

	t.Run("funds are checked before the recipient", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "100")

		_, err := service.Transfer(ctx, "alice", "ghost", money("150"))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, balanceOf(t, store, "alice").Equal(money("100")))
	})

	t.Run("unknown recipient is not provisioned", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "100")

		_, err := service.Transfer(ctx, "alice", "zed", money("10"))

		assert.ErrorIs(t, err, ErrRecipientNotFound)
		_, err = store.GetAccount(ctx, "zed")
		assert.ErrorIs(t, err, repository.ErrNoRows)
		assert.True(t, balanceOf(t, store, "alice").Equal(money("100")))
	})

	t.Run("unknown sender", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "bob", "100")

		_, err := service.Transfer(ctx, "aaron", "bob", money("10"))

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects transfers to self", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "100")

		_, err := service.Transfer(ctx, "alice", "alice", money("10"))

		assert.ErrorIs(t, err, ErrSameAccount)
	})

	t.Run("rejects invalid amounts", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "alice", "100")
		seed(store, "bob", "100")

		for _, v := range []string{"0", "-5", "0.001", "10.999"} {
			_, err := service.Transfer(ctx, "alice", "bob", money(v))
			assert.ErrorIs(t, err, ErrInvalidAmount, v)
		}
		assert.True(t, totalBalance(store).Equal(money("200")))
	})
}

func TestLedgerService_ConcurrentTransfersConserveValue(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	owners := []string{"u1", "u2", "u3", "u4"}
	for _, owner := range owners {
		seed(store, owner, "100.00")
	}
	before := totalBalance(store)

	var g errgroup.Group
	results := make([]error, 200)
	for i := range results {
		from := owners[i%len(owners)]
		to := owners[(i+1)%len(owners)]
		g.Go(func() error {
			_, results[i] = service.Transfer(ctx, from, to, money("7.35"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, err := range results {
		if err != nil {
			assert.True(t, errors.Is(err, ErrConflictRetry) || errors.Is(err, ErrInsufficientFunds), err.Error())
		}
	}
	assert.True(t, totalBalance(store).Equal(before))
	for _, account := range store.Accounts() {
		assert.False(t, account.Balance.IsNegative(), account.OwnerID)
	}
}

func TestLedgerService_FeeSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	seed(store, "student", "500")

	initiated, err := service.InitiateFeeSettlement(ctx, "student", money("300"), "Tuition Fee")
	require.NoError(t, err)
	assert.Equal(t, testAdmin, initiated.AdminID)
	assert.True(t, initiated.RemainingBalance.Equal(money("200")))

	// debited now, admin account provisioned but not yet credited
	assert.True(t, balanceOf(t, store, "student").Equal(money("200")))
	assert.True(t, balanceOf(t, store, testAdmin).IsZero())
	txn, err := service.GetTransaction(ctx, initiated.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, txn.Status)
	assert.Nil(t, txn.ApprovedAt)
	assert.True(t, totalBalance(store).Add(pendingTotal(t, store)).Equal(money("500")))

	approval, err := service.ApproveFeeSettlement(ctx, initiated.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionApproved, approval.Transaction.Status)
	require.NotNil(t, approval.Transaction.ApprovedAt)
	assert.True(t, approval.Account.Balance.Equal(money("300")))
	assert.True(t, approval.Account.IsAdminCollection)
	assert.True(t, balanceOf(t, store, testAdmin).Equal(money("300")))

	_, err = service.ApproveFeeSettlement(ctx, initiated.TransactionID)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.True(t, balanceOf(t, store, testAdmin).Equal(money("300")))
	assert.True(t, totalBalance(store).Equal(money("500")))

	txns, err := service.ListTransactions(ctx, "student")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Tuition Fee", txns[0].FeeType)
}

func TestLedgerService_InitiateFeeSettlementFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient funds", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "student", "100")

		_, err := service.InitiateFeeSettlement(ctx, "student", money("150"), "")

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, balanceOf(t, store, "student").Equal(money("100")))
		_, err = store.GetAccount(ctx, testAdmin)
		assert.ErrorIs(t, err, repository.ErrNoRows)
	})

	t.Run("no admin registered", func(t *testing.T) {
		store := repository.NewMemoryStore()
		seed(store, "student", "100")
		service := NewLedgerService(store, "", zaptest.NewLogger(t), nil)

		_, err := service.InitiateFeeSettlement(ctx, "student", money("10"), "")

		assert.ErrorIs(t, err, ErrNoAdminConfigured)
		assert.True(t, balanceOf(t, store, "student").Equal(money("100")))
	})

	t.Run("configured admin must exist", func(t *testing.T) {
		service, store := newTestLedger(t, "bursar")
		seed(store, "student", "100")

		_, err := service.InitiateFeeSettlement(ctx, "student", money("10"), "")

		assert.ErrorIs(t, err, ErrNoAdminConfigured)
	})

	t.Run("configured admin wins over the earliest one", func(t *testing.T) {
		service, store := newTestLedger(t, "bursar")
		store.AddAdmin("bursar", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		seed(store, "student", "100")

		result, err := service.InitiateFeeSettlement(ctx, "student", money("10"), "")

		require.NoError(t, err)
		assert.Equal(t, "bursar", result.AdminID)
	})

	t.Run("unknown user", func(t *testing.T) {
		service, _ := newTestLedger(t, "")

		_, err := service.InitiateFeeSettlement(ctx, "ghost", money("10"), "")

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid amount", func(t *testing.T) {
		service, store := newTestLedger(t, "")
		seed(store, "student", "100")

		_, err := service.InitiateFeeSettlement(ctx, "student", money("0"), "")

		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedgerService_ApproveUnknownTransaction(t *testing.T) {
	service, _ := newTestLedger(t, "")

	_, err := service.ApproveFeeSettlement(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerService_ConcurrentProvisioningCreatesOneAccount(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	students := make([]string, 16)
	for i := range students {
		students[i] = fmt.Sprintf("student-%02d", i)
		seed(store, students[i], "1000")
	}

	var g errgroup.Group
	results := make([]error, len(students))
	for i, student := range students {
		g.Go(func() error {
			_, results[i] = service.InitiateFeeSettlement(ctx, student, money("25"), "Library Fee")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConflictRetry)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	admins := 0
	for _, account := range store.Accounts() {
		if account.OwnerID == testAdmin {
			admins++
			assert.True(t, account.IsAdminCollection)
			assert.True(t, account.Balance.IsZero())
		}
	}
	assert.Equal(t, 1, admins)
	assert.True(t, totalBalance(store).Add(pendingTotal(t, store)).Equal(money("16000")))
}

func TestLedgerService_ConcurrentApprovalIsSingleUse(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	seed(store, "student", "500")

	initiated, err := service.InitiateFeeSettlement(ctx, "student", money("200"), "Development Fee")
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]error, 12)
	for i := range results {
		g.Go(func() error {
			_, results[i] = service.ApproveFeeSettlement(ctx, initiated.TransactionID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	approved := 0
	for _, err := range results {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrAlreadyApproved), errors.Is(err, ErrConflictRetry):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.True(t, balanceOf(t, store, testAdmin).Equal(money("200")))
	assert.True(t, totalBalance(store).Equal(money("500")))
}

// failingApprovalStore commits nothing once MarkApproved fails.
type failingApprovalStore struct {
	*repository.MemoryStore
}

func (s failingApprovalStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.MemoryStore.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, failingApprovalTx{Tx: tx})
	})
}

type failingApprovalTx struct {
	repository.Tx
}

func (failingApprovalTx) MarkApproved(ctx context.Context, id string, at time.Time) error {
	return fmt.Errorf("%w: injected fault", repository.ErrUnavailable)
}

func TestLedgerService_ApproveFaultRollsBackCredit(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	seed(store, "student", "500")

	initiated, err := service.InitiateFeeSettlement(ctx, "student", money("300"), "")
	require.NoError(t, err)

	faulty := NewLedgerService(failingApprovalStore{store}, "", zaptest.NewLogger(t), nil)
	_, err = faulty.ApproveFeeSettlement(ctx, initiated.TransactionID)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, balanceOf(t, store, testAdmin).IsZero())
	txn, err := store.GetTransaction(ctx, initiated.TransactionID)
	require.NoError(t, err)
	assert.True(t, txn.IsPending())

	_, err = service.ApproveFeeSettlement(ctx, initiated.TransactionID)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, store, testAdmin).Equal(money("300")))
}

func TestLedgerService_PaymentStatus(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, "")
	seed(store, "student", "100000")

	first, err := service.InitiateFeeSettlement(ctx, "student", money("50000"), "Tuition Fee")
	require.NoError(t, err)
	_, err = service.ApproveFeeSettlement(ctx, first.TransactionID)
	require.NoError(t, err)

	second, err := service.InitiateFeeSettlement(ctx, "student", money("2000"), "Tuition Fee")
	require.NoError(t, err)
	_, err = service.ApproveFeeSettlement(ctx, second.TransactionID)
	require.NoError(t, err)

	pending, err := service.InitiateFeeSettlement(ctx, "student", money("3000"), "Laboratory Fee")
	require.NoError(t, err)

	status, err := service.PaymentStatus(ctx, "student")
	require.NoError(t, err)

	require.Contains(t, status.Paid, "Tuition Fee")
	assert.Equal(t, second.TransactionID, status.Paid["Tuition Fee"].TransactionID)
	assert.NotContains(t, status.Paid, "Laboratory Fee")
	require.Len(t, status.Pending, 1)
	assert.Equal(t, pending.TransactionID, status.Pending[0].ID)
}

func TestLedgerService_RejectedOperationsAuditRequestedAmount(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	store := repository.NewMemoryStore()
	store.AddAdmin(testAdmin, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	service := NewLedgerService(store, "", zaptest.NewLogger(t), audit.NewAuditLogger(zap.New(core)))
	seed(store, "alice", "100")
	seed(store, "bob", "0")

	_, err := service.Transfer(ctx, "alice", "bob", money("150"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = service.InitiateFeeSettlement(ctx, "alice", money("120.50"), "Tuition Fee")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	failures := logs.FilterField(zap.String("event_type", audit.EventError)).All()
	require.Len(t, failures, 2)
	assert.Equal(t, "150.00", failures[0].ContextMap()["amount"])
	assert.Equal(t, "120.50", failures[1].ContextMap()["amount"])
}

func TestAccountStore_ProvisionIfAbsentRejectsPlainAccount(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seed(store, testAdmin, "42")
	accounts := NewAccountStore(store)

	err := store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := accounts.ProvisionIfAbsent(ctx, tx, testAdmin, true)
		return err
	})
	assert.ErrorIs(t, err, ErrAccountKindMismatch)

	service := NewLedgerService(store, testAdmin, zaptest.NewLogger(t), nil)
	seed(store, "student", "500")
	_, err = service.InitiateFeeSettlement(ctx, "student", money("100"), "Tuition Fee")
	assert.ErrorIs(t, err, ErrAccountKindMismatch)
	assert.True(t, balanceOf(t, store, "student").Equal(money("500")))
	assert.True(t, balanceOf(t, store, testAdmin).Equal(money("42")))
}

func TestAccountStore_ProvisionIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	store.Seed(models.Account{OwnerID: testAdmin, Balance: money("42"), IsAdminCollection: true})
	accounts := NewAccountStore(store)

	err := store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := accounts.ProvisionIfAbsent(ctx, tx, testAdmin, true)
		require.NoError(t, err)
		assert.True(t, existing.Balance.Equal(money("42")))

		created, err := accounts.ProvisionIfAbsent(ctx, tx, "admin-2", true)
		require.NoError(t, err)
		again, err := accounts.ProvisionIfAbsent(ctx, tx, "admin-2", true)
		require.NoError(t, err)
		assert.Equal(t, created.OwnerID, again.OwnerID)
		assert.True(t, again.Balance.IsZero())
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, store.Accounts(), 2)
}

func TestAccountStore_CreditAndDebitRules(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seed(store, "alice", "10")
	accounts := NewAccountStore(store)

	err := store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := accounts.Credit(ctx, tx, "alice", money("0"), "r")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = accounts.Debit(ctx, tx, "alice", money("10.01"), "r")
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		_, err = accounts.Debit(ctx, tx, "nobody", money("1"), "r")
		assert.ErrorIs(t, err, ErrNotFound)

		account, err := accounts.Debit(ctx, tx, "alice", money("10"), "r")
		require.NoError(t, err)
		assert.True(t, account.Balance.IsZero())
		return nil
	})
	require.NoError(t, err)

	balance, err := accounts.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	_, err = accounts.GetBalance(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
