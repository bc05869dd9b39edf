package memory

import (
	"context"
	"sort"
	"sync"

	session "cashdesk-cloud/internal/session/domain"
)

// Repository is an in-memory session store for tests and local runs.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]session.State
}

// NewRepository constructs an empty store.
func NewRepository() *Repository {
	return &Repository{sessions: make(map[string]session.State)}
}

// Get loads one session.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[id]
	if !ok || state.TenantID != tenantID {
		return nil, session.ErrSessionNotFound
	}
	return session.Rehydrate(state), nil
}

// Create persists a freshly opened session.
func (r *Repository) Create(ctx context.Context, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := sess.State()
	for _, existing := range r.sessions {
		if existing.TenantID == state.TenantID &&
			existing.RegisterID == state.RegisterID &&
			existing.Status == session.StatusOpen {
			return session.ErrRegisterBusy
		}
	}
	r.sessions[state.ID] = state
	return nil
}

// Update persists a close.
func (r *Repository) Update(ctx context.Context, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := sess.State()
	if _, ok := r.sessions[state.ID]; !ok {
		return session.ErrSessionNotFound
	}
	r.sessions[state.ID] = state
	return nil
}

// FindOpenByRegister returns the register's open session, nil when none.
func (r *Repository) FindOpenByRegister(ctx context.Context, tenantID, registerID string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, state := range r.sessions {
		if state.TenantID == tenantID && state.RegisterID == registerID && state.Status == session.StatusOpen {
			return session.Rehydrate(state), nil
		}
	}
	return nil, nil
}

// ListByTenant returns the tenant's sessions, newest first.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*session.Session
	for _, state := range r.sessions {
		if state.TenantID == tenantID {
			result = append(result, session.Rehydrate(state))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenedAt().After(result[j].OpenedAt())
	})
	return result, nil
}

// IsClosed reports whether a session is closed. Unknown sessions count as
// closed so orphaned ledgers are picked up by migration.
func (r *Repository) IsClosed(ctx context.Context, tenantID, sessionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[sessionID]
	if !ok || state.TenantID != tenantID {
		return true, nil
	}
	return state.Status == session.StatusClosed, nil
}
