package masterdata

import (
	"context"
	"errors"
	"time"
)

// Register represents one till (cash register) in masterdata. Sessions open
// against a register; a register belongs to exactly one tenant.
type Register struct {
	ID        string
	TenantID  string
	Name      string
	Location  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks register invariants.
func (r Register) Validate() error {
	if r.ID == "" {
		return errors.New("register: empty id")
	}
	if r.TenantID == "" {
		return errors.New("register: empty tenant id")
	}
	if r.Name == "" {
		return errors.New("register: empty name")
	}
	return nil
}

// RegisterRepository manages register persistence.
type RegisterRepository interface {
	Get(ctx context.Context, id string) (*Register, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Register, error)
	Save(ctx context.Context, register *Register) error
}
