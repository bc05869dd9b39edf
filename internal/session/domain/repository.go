package session

import "context"

// Repository persists till sessions.
type Repository interface {
	// Get loads one session.
	Get(ctx context.Context, tenantID, id string) (*Session, error)

	// Create persists a freshly opened session. It fails with
	// ErrRegisterBusy when the register already has an open session.
	Create(ctx context.Context, sess *Session) error

	// Update persists a close.
	Update(ctx context.Context, sess *Session) error

	// FindOpenByRegister returns the register's open session, nil when
	// there is none.
	FindOpenByRegister(ctx context.Context, tenantID, registerID string) (*Session, error)

	// ListByTenant returns the tenant's sessions, newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Session, error)
}
