package services

import (
	"context"
	"errors"

	"github.com/campuspay/backend/internal/repository"
)

// FeeAdminResolver picks the admin whose collection account receives fees:
// the configured id when set, otherwise the earliest registered admin.
type FeeAdminResolver struct {
	configuredID string
}

func NewFeeAdminResolver(configuredID string) *FeeAdminResolver {
	return &FeeAdminResolver{configuredID: configuredID}
}

func (r *FeeAdminResolver) Resolve(ctx context.Context, tx repository.Tx) (string, error) {
	if r.configuredID != "" {
		exists, err := tx.AdminExists(ctx, r.configuredID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", ErrNoAdminConfigured
		}
		return r.configuredID, nil
	}

	adminID, err := tx.EarliestAdmin(ctx)
	if errors.Is(err, repository.ErrNoRows) {
		return "", ErrNoAdminConfigured
	}
	if err != nil {
		return "", err
	}
	return adminID, nil
}
