package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee transaction statuses. pending is the only non-terminal state.
const (
	TransactionPending  = "pending"
	TransactionApproved = "approved"
)

// FeeTransaction records a fee payment from a user to the fee-collecting
// admin. The sender is debited when the record is created; the receiver is
// credited when it is approved.
type FeeTransaction struct {
	ID         string          `json:"id" db:"id"`
	SenderID   string          `json:"sender" db:"sender_id"`
	ReceiverID string          `json:"receiver" db:"receiver_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount" swaggertype:"string"`
	FeeType    string          `json:"feeType,omitempty" db:"fee_type"`
	Status     string          `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	ApprovedAt *time.Time      `json:"approvedAt,omitempty" db:"approved_at"`
}

func (t *FeeTransaction) IsPending() bool {
	return t.Status == TransactionPending
}
