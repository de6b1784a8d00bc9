package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/campuspay/backend/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusBadRequest},
		{ErrSameAccount, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrRecipientNotFound, http.StatusNotFound},
		{ErrAlreadyApproved, http.StatusConflict},
		{ErrConflictRetry, http.StatusConflict},
		{ErrAccountKindMismatch, http.StatusConflict},
		{ErrNoAdminConfigured, http.StatusServiceUnavailable},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ErrInsufficientFunds), http.StatusBadRequest},
		{errors.New("surprise"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestMapStoreError(t *testing.T) {
	assert.NoError(t, mapStoreError(nil))
	assert.Equal(t, ErrInsufficientFunds, mapStoreError(fmt.Errorf("scope: %w", ErrInsufficientFunds)))
	assert.Equal(t, ErrConflictRetry, mapStoreError(fmt.Errorf("%w: 40001", repository.ErrConflict)))
	assert.Equal(t, ErrConflictRetry, mapStoreError(repository.ErrDuplicate))
	assert.Equal(t, ErrConflictRetry, mapStoreError(context.DeadlineExceeded))
	assert.Equal(t, ErrNotFound, mapStoreError(repository.ErrNoRows))

	// store faults never leak their cause
	mapped := mapStoreError(fmt.Errorf("%w: dial tcp 10.0.0.5:5432", repository.ErrUnavailable))
	assert.Equal(t, ErrStoreUnavailable, mapped)
	assert.NotContains(t, mapped.Error(), "10.0.0.5")
}
