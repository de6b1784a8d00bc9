package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry directions
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// Account holds the balance of a single principal. Admin collection
// accounts receive approved fee settlements.
type Account struct {
	OwnerID           string          `json:"ownerId" db:"owner_id"`
	Balance           decimal.Decimal `json:"balance" db:"balance" swaggertype:"string"`
	IsAdminCollection bool            `json:"isAdminCollectionAccount" db:"is_admin_collection"`
	Version           int             `json:"-" db:"version"` // for optimistic locking
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// LedgerEntry is one side of a balance movement, written in the same
// atomic scope as the balance change it records.
type LedgerEntry struct {
	ID           int64           `json:"id" db:"id"`
	Reference    string          `json:"reference" db:"reference"`
	OwnerID      string          `json:"ownerId" db:"owner_id"`
	EntryType    string          `json:"entryType" db:"entry_type"` // DEBIT or CREDIT
	Amount       decimal.Decimal `json:"amount" db:"amount" swaggertype:"string"`
	BalanceAfter decimal.Decimal `json:"balanceAfter" db:"balance_after" swaggertype:"string"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}
