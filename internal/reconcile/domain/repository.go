package reconcile

import (
	"context"

	"github.com/shopspring/decimal"
)

// ListFilter narrows ledger projections. Zero values mean "any".
type ListFilter struct {
	SessionID SessionID
	Status    SettlementStatus
	Routine   string
}

// Repository persists protocol ledgers and their settlement history.
//
// AppendEvent and ReassignSession are version-checked writes: both compare
// the stored version against the aggregate's and return ErrVersionConflict
// when another writer got there first. AppendEvent persists the last
// appended event together with the new status and gate flag as one atomic
// unit, so a reader never observes a partial settlement.
type Repository interface {
	// Get loads one ledger with its events and line items.
	Get(ctx context.Context, tenantID string, id LedgerID) (*Ledger, error)

	// CreateBatch persists freshly aggregated ledgers.
	CreateBatch(ctx context.Context, ledgers []*Ledger) error

	// OpenProtocols reports which of the given protocol keys already have
	// an unresolved ledger for the tenant and routine. Used for import
	// dedup: within one reconciliation context a key resolves to exactly
	// one open ledger.
	OpenProtocols(ctx context.Context, tenantID, routine string, keys []string) (map[string]bool, error)

	// AppendEvent persists the outcome of ApplyPayment on the given
	// ledger: its newest event, derived status and gate flag, atomically
	// and version-checked.
	AppendEvent(ctx context.Context, led *Ledger) error

	// ReassignSession persists a migration write, version-checked.
	ReassignSession(ctx context.Context, led *Ledger) error

	// ListUnresolved returns every PENDING/PARTIAL ledger of the tenant.
	ListUnresolved(ctx context.Context, tenantID string) ([]*Ledger, error)

	// List returns the tenant's ledgers matching the filter.
	List(ctx context.Context, tenantID string, filter ListFilter) ([]*Ledger, error)

	// SumEventsBySession returns the exact total collected under a
	// session, across every ledger. Used for the session close
	// arithmetic.
	SumEventsBySession(ctx context.Context, tenantID string, session SessionID) (decimal.Decimal, error)

	// Delete removes a ledger; its events and line items go with it.
	Delete(ctx context.Context, tenantID string, id LedgerID) error
}
