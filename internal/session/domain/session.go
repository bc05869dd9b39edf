package session

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a till session.
type Status string

const (
	// StatusOpen means the session is collecting payments.
	StatusOpen Status = "OPEN"
	// StatusClosed means the session has been balanced and closed.
	StatusClosed Status = "CLOSED"
)

var (
	// ErrSessionNotFound is returned when a session id resolves to nothing.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionClosed is returned when mutating a closed session.
	ErrSessionClosed = errors.New("session: already closed")
	// ErrRegisterBusy is returned when the register already has an open session.
	ErrRegisterBusy = errors.New("session: register already has an open session")
	// ErrNegativeFloat is returned when the opening float is negative.
	ErrNegativeFloat = errors.New("session: negative opening float")
)

// Session is one open/close cycle of a till register. Closing records the
// counted drawer balance next to the system-computed one; the difference is
// stored, never judged. Closing a session does not finalize its ledgers.
type Session struct {
	id         string
	tenantID   string
	registerID string
	status     Status

	openedBy     string
	openingFloat decimal.Decimal
	openedAt     time.Time

	closedBy        string
	closedAt        *time.Time
	countedBalance  decimal.Decimal
	expectedBalance decimal.Decimal
	difference      decimal.Decimal
}

// State is the flat persisted form of a session.
type State struct {
	ID              string
	TenantID        string
	RegisterID      string
	Status          Status
	OpenedBy        string
	OpeningFloat    decimal.Decimal
	OpenedAt        time.Time
	ClosedBy        string
	ClosedAt        *time.Time
	CountedBalance  decimal.Decimal
	ExpectedBalance decimal.Decimal
	Difference      decimal.Decimal
}

// Open creates a new open session.
func Open(id, tenantID, registerID, openedBy string, openingFloat decimal.Decimal, now time.Time) (*Session, error) {
	if id == "" || tenantID == "" || registerID == "" {
		return nil, errors.New("session: missing identity")
	}
	if openingFloat.IsNegative() {
		return nil, ErrNegativeFloat
	}
	return &Session{
		id:           id,
		tenantID:     tenantID,
		registerID:   registerID,
		status:       StatusOpen,
		openedBy:     openedBy,
		openingFloat: openingFloat,
		openedAt:     now.UTC(),
	}, nil
}

// Rehydrate rebuilds a session from its persisted state.
func Rehydrate(s State) *Session {
	return &Session{
		id:              s.ID,
		tenantID:        s.TenantID,
		registerID:      s.RegisterID,
		status:          s.Status,
		openedBy:        s.OpenedBy,
		openingFloat:    s.OpeningFloat,
		openedAt:        s.OpenedAt,
		closedBy:        s.ClosedBy,
		closedAt:        s.ClosedAt,
		countedBalance:  s.CountedBalance,
		expectedBalance: s.ExpectedBalance,
		difference:      s.Difference,
	}
}

// State returns the flat persisted form.
func (s *Session) State() State {
	return State{
		ID:              s.id,
		TenantID:        s.tenantID,
		RegisterID:      s.registerID,
		Status:          s.status,
		OpenedBy:        s.openedBy,
		OpeningFloat:    s.openingFloat,
		OpenedAt:        s.openedAt,
		ClosedBy:        s.closedBy,
		ClosedAt:        s.closedAt,
		CountedBalance:  s.countedBalance,
		ExpectedBalance: s.expectedBalance,
		Difference:      s.difference,
	}
}

// Close balances and closes the session. Collected is the total received
// under the session; the expected balance is the opening float plus
// collected, and the difference is counted minus expected.
func (s *Session) Close(closedBy string, counted, collected decimal.Decimal, now time.Time) error {
	if s.status == StatusClosed {
		return ErrSessionClosed
	}
	closedAt := now.UTC()
	s.status = StatusClosed
	s.closedBy = closedBy
	s.closedAt = &closedAt
	s.countedBalance = counted
	s.expectedBalance = s.openingFloat.Add(collected)
	s.difference = counted.Sub(s.expectedBalance)
	return nil
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// TenantID returns the owning tenant.
func (s *Session) TenantID() string { return s.tenantID }

// RegisterID returns the till register.
func (s *Session) RegisterID() string { return s.registerID }

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// OpenedBy returns the opening operator.
func (s *Session) OpenedBy() string { return s.openedBy }

// OpeningFloat returns the cash placed in the drawer at open.
func (s *Session) OpeningFloat() decimal.Decimal { return s.openingFloat }

// OpenedAt returns the opening time.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// ClosedBy returns the closing operator.
func (s *Session) ClosedBy() string { return s.closedBy }

// ClosedAt returns the closing time, nil while open.
func (s *Session) ClosedAt() *time.Time { return s.closedAt }

// CountedBalance returns the drawer balance counted at close.
func (s *Session) CountedBalance() decimal.Decimal { return s.countedBalance }

// ExpectedBalance returns the system-computed balance at close.
func (s *Session) ExpectedBalance() decimal.Decimal { return s.expectedBalance }

// Difference returns counted minus expected.
func (s *Session) Difference() decimal.Decimal { return s.difference }

// IsClosed reports whether the session is closed.
func (s *Session) IsClosed() bool { return s.status == StatusClosed }
