package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/campuspay/backend/internal/repository"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrNotFound          = errors.New("account or transaction not found")
	ErrRecipientNotFound = errors.New("recipient account not found")
	ErrSameAccount       = errors.New("sender and receiver must be different accounts")
	ErrAlreadyApproved   = errors.New("transaction is not pending")
	ErrNoAdminConfigured = errors.New("no fee-collecting admin is configured")
	// ErrAccountKindMismatch means an owner's stored account is not of the
	// kind (user or admin collection) the operation needs.
	ErrAccountKindMismatch = errors.New("account exists with a different account kind")
	ErrConflictRetry       = errors.New("concurrent update detected, retry the request")
	ErrStoreUnavailable    = errors.New("ledger store unavailable")
)

// ErrNotPending is the same condition as ErrAlreadyApproved.
var ErrNotPending = ErrAlreadyApproved

var domainErrors = []error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrNotFound,
	ErrRecipientNotFound,
	ErrSameAccount,
	ErrAlreadyApproved,
	ErrNoAdminConfigured,
	ErrAccountKindMismatch,
	ErrConflictRetry,
	ErrStoreUnavailable,
}

// mapStoreError turns whatever came out of an atomic scope into one of the
// exported sentinels. Domain errors pass through untouched; anything else is
// a store fault and is reported opaquely.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	for _, domainErr := range domainErrors {
		if errors.Is(err, domainErr) {
			return domainErr
		}
	}

	switch {
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, context.DeadlineExceeded):
		return ErrConflictRetry
	case errors.Is(err, repository.ErrNoRows):
		return ErrNotFound
	default:
		return ErrStoreUnavailable
	}
}

// HTTPStatus returns the response code for a service error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrRecipientNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrAccountKindMismatch),
		errors.Is(err, ErrConflictRetry):
		return http.StatusConflict
	case errors.Is(err, ErrNoAdminConfigured),
		errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
