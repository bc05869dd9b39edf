package auth

import (
	"context"
	"database/sql"
	"errors"

	masterdatarepo "cashdesk-cloud/internal/masterdata/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates the resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates the resource was not found.
	ErrNotFound = errors.New("resource not found")
)

// RegisterTenantChecker validates register (till) tenant ownership.
type RegisterTenantChecker interface {
	EnsureRegisterTenant(ctx context.Context, tenantID, registerID string) error
}

// RegisterChecker checks register ownership using masterdata.
type RegisterChecker struct {
	repo *masterdatarepo.RegisterRepository
}

// NewRegisterChecker constructs a RegisterChecker.
func NewRegisterChecker(db *sql.DB) *RegisterChecker {
	if db == nil {
		return nil
	}
	return &RegisterChecker{repo: masterdatarepo.NewRegisterRepository(db)}
}

// EnsureRegisterTenant verifies the register belongs to the tenant.
func (c *RegisterChecker) EnsureRegisterTenant(ctx context.Context, tenantID, registerID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || registerID == "" {
		return nil
	}
	register, err := c.repo.Get(ctx, registerID)
	if err != nil {
		return err
	}
	if register == nil {
		return ErrNotFound
	}
	if register.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
