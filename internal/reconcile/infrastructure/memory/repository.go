package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// Repository is an in-memory ledger store for tests and local runs. Each
// write holds the store lock for its whole critical section, so event
// append, status and gate flag land as one atomic unit, as the postgres
// implementation does with a transaction.
type Repository struct {
	mu      sync.RWMutex
	ledgers map[reconcile.LedgerID]reconcile.LedgerState
}

// NewRepository constructs an empty store.
func NewRepository() *Repository {
	return &Repository{ledgers: make(map[reconcile.LedgerID]reconcile.LedgerState)}
}

// Get loads one ledger.
func (r *Repository) Get(ctx context.Context, tenantID string, id reconcile.LedgerID) (*reconcile.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.ledgers[id]
	if !ok || state.TenantID != tenantID {
		return nil, reconcile.ErrLedgerNotFound
	}
	return reconcile.RehydrateLedger(state), nil
}

// CreateBatch persists freshly aggregated ledgers.
func (r *Repository) CreateBatch(ctx context.Context, ledgers []*reconcile.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, led := range ledgers {
		if led == nil {
			return reconcile.ErrNilLedger
		}
		state := led.State()
		state.Version = 1
		r.ledgers[state.ID] = state
		led.MarkPersisted()
	}
	return nil
}

// OpenProtocols reports which keys already have an unresolved ledger.
func (r *Repository) OpenProtocols(ctx context.Context, tenantID, routine string, keys []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}
	open := make(map[string]bool)
	for _, state := range r.ledgers {
		if state.TenantID != tenantID || state.Routine != routine {
			continue
		}
		if !reconcile.Unresolved(state.Status) {
			continue
		}
		if wanted[state.ProtocolKey] {
			open[state.ProtocolKey] = true
		}
	}
	return open, nil
}

// AppendEvent persists the outcome of ApplyPayment, version-checked.
func (r *Repository) AppendEvent(ctx context.Context, led *reconcile.Ledger) error {
	if led == nil {
		return reconcile.ErrNilLedger
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.ledgers[led.ID()]
	if !ok {
		return reconcile.ErrLedgerNotFound
	}
	if stored.Version != led.Version() {
		return reconcile.ErrVersionConflict
	}
	state := led.State()
	state.Version = stored.Version + 1
	r.ledgers[state.ID] = state
	led.MarkPersisted()
	return nil
}

// ReassignSession persists a migration write, version-checked.
func (r *Repository) ReassignSession(ctx context.Context, led *reconcile.Ledger) error {
	if led == nil {
		return reconcile.ErrNilLedger
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.ledgers[led.ID()]
	if !ok {
		return reconcile.ErrLedgerNotFound
	}
	if stored.Version != led.Version() {
		return reconcile.ErrVersionConflict
	}
	stored.OwningSession = led.OwningSession()
	stored.Version++
	r.ledgers[stored.ID] = stored
	led.MarkPersisted()
	return nil
}

// ListUnresolved returns every PENDING/PARTIAL ledger of the tenant.
func (r *Repository) ListUnresolved(ctx context.Context, tenantID string) ([]*reconcile.Ledger, error) {
	return r.list(tenantID, reconcile.ListFilter{}, true)
}

// List returns the tenant's ledgers matching the filter.
func (r *Repository) List(ctx context.Context, tenantID string, filter reconcile.ListFilter) ([]*reconcile.Ledger, error) {
	return r.list(tenantID, filter, false)
}

func (r *Repository) list(tenantID string, filter reconcile.ListFilter, unresolvedOnly bool) ([]*reconcile.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*reconcile.Ledger
	for _, state := range r.ledgers {
		if state.TenantID != tenantID {
			continue
		}
		if filter.SessionID != "" && state.OwningSession != filter.SessionID {
			continue
		}
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		if filter.Routine != "" && state.Routine != filter.Routine {
			continue
		}
		if unresolvedOnly && !reconcile.Unresolved(state.Status) {
			continue
		}
		result = append(result, reconcile.RehydrateLedger(state))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt().Equal(result[j].CreatedAt()) {
			return result[i].CreatedAt().Before(result[j].CreatedAt())
		}
		return result[i].ID() < result[j].ID()
	})
	return result, nil
}

// SumEventsBySession returns the exact total collected under a session.
func (r *Repository) SumEventsBySession(ctx context.Context, tenantID string, session reconcile.SessionID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, state := range r.ledgers {
		if state.TenantID != tenantID {
			continue
		}
		for _, ev := range state.Events {
			if ev.SessionID == session {
				total = total.Add(ev.Amount)
			}
		}
	}
	return total, nil
}

// Delete removes a ledger with its events and line items.
func (r *Repository) Delete(ctx context.Context, tenantID string, id reconcile.LedgerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.ledgers[id]
	if !ok || state.TenantID != tenantID {
		return reconcile.ErrLedgerNotFound
	}
	delete(r.ledgers, id)
	return nil
}
