package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
	"cashdesk-cloud/internal/observability/metrics"
	"cashdesk-cloud/internal/session/application/events"
	session "cashdesk-cloud/internal/session/domain"
)

// Migrator reassigns unresolved ledgers into a freshly opened session.
type Migrator interface {
	MigrateUnresolved(ctx context.Context, tenantID, toSession string) (int, error)
}

// CollectedReader reports the total received under a session.
type CollectedReader interface {
	CollectedInSession(ctx context.Context, tenantID, sessionID string) (decimal.Decimal, error)
}

// EventPublisher hands session lifecycle events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Service drives the till session lifecycle. Opening a session migrates the
// tenant's unresolved ledgers into it; closing records the drawer count
// against the computed balance and never touches ledgers.
type Service struct {
	repo      session.Repository
	migrator  Migrator
	collected CollectedReader
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// NewService constructs the service.
func NewService(repo session.Repository, migrator Migrator, collected CollectedReader, publisher EventPublisher, logger *log.Logger, now func() time.Time, newID func() string) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      repo,
		migrator:  migrator,
		collected: collected,
		publisher: publisher,
		logger:    logger,
		now:       now,
		newID:     newID,
	}
}

// OpenInput is one session open request.
type OpenInput struct {
	RegisterID   string
	OpenedBy     string
	OpeningFloat string
}

// OpenResult reports the opened session and how many unresolved ledgers
// were migrated into it.
type OpenResult struct {
	Session       View `json:"session"`
	MigratedCount int  `json:"migrated_count"`
}

// Open opens a session on a register and migrates unresolved ledgers into
// it. One open session per register is enforced by the repository.
func (s *Service) Open(ctx context.Context, tenantID string, in OpenInput) (OpenResult, error) {
	openingFloat, err := money.ParseStrict(in.OpeningFloat)
	if err != nil {
		return OpenResult{}, fmt.Errorf("session open: %w", err)
	}

	now := s.now()
	sess, err := session.Open(s.newID(), tenantID, in.RegisterID, in.OpenedBy, openingFloat, now)
	if err != nil {
		return OpenResult{}, err
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return OpenResult{}, err
	}

	migrated := 0
	if s.migrator != nil {
		migrated, err = s.migrator.MigrateUnresolved(ctx, tenantID, sess.ID())
		if err != nil {
			// The session is open; a migration failure is logged and
			// left for the next open.
			if s.logger != nil {
				s.logger.Printf("session open migration tenant=%s session=%s: %v", tenantID, sess.ID(), err)
			}
		}
	}

	metrics.IncSessionLifecycle("open")
	s.publish(ctx, events.SessionOpened{
		SessionID:     sess.ID(),
		TenantID:      tenantID,
		RegisterID:    sess.RegisterID(),
		OpenedBy:      sess.OpenedBy(),
		MigratedCount: migrated,
		OccurredAt:    now.UTC(),
	})
	if s.logger != nil {
		s.logger.Printf("session opened tenant=%s session=%s register=%s migrated=%d",
			tenantID, sess.ID(), sess.RegisterID(), migrated)
	}
	return OpenResult{Session: BuildView(sess), MigratedCount: migrated}, nil
}

// CloseInput is one session close request.
type CloseInput struct {
	ClosedBy       string
	CountedBalance string
}

// Close balances and closes a session. The expected balance is the opening
// float plus everything collected under the session.
func (s *Service) Close(ctx context.Context, tenantID, sessionID string, in CloseInput) (View, error) {
	counted, err := money.ParseStrict(in.CountedBalance)
	if err != nil {
		return View{}, fmt.Errorf("session close: %w", err)
	}

	sess, err := s.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return View{}, err
	}

	collected := decimal.Zero
	if s.collected != nil {
		collected, err = s.collected.CollectedInSession(ctx, tenantID, sessionID)
		if err != nil {
			return View{}, fmt.Errorf("session close: collected total: %w", err)
		}
	}

	now := s.now()
	if err := sess.Close(in.ClosedBy, counted, collected, now); err != nil {
		return View{}, err
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return View{}, err
	}

	metrics.IncSessionLifecycle("close")
	s.publish(ctx, events.SessionClosed{
		SessionID:       sess.ID(),
		TenantID:        tenantID,
		RegisterID:      sess.RegisterID(),
		ClosedBy:        sess.ClosedBy(),
		CountedBalance:  money.Format(sess.CountedBalance()),
		ExpectedBalance: money.Format(sess.ExpectedBalance()),
		Difference:      money.Format(sess.Difference()),
		OccurredAt:      now.UTC(),
	})
	if s.logger != nil {
		s.logger.Printf("session closed tenant=%s session=%s difference=%s",
			tenantID, sess.ID(), money.Format(sess.Difference()))
	}
	return BuildView(sess), nil
}

// Get returns one session view.
func (s *Service) Get(ctx context.Context, tenantID, sessionID string) (View, error) {
	sess, err := s.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return View{}, err
	}
	return BuildView(sess), nil
}

// List returns the tenant's sessions, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]View, error) {
	sessions, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, BuildView(sess))
	}
	return views, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Printf("publish session event: %v", err)
	}
}

// View is the session read model.
type View struct {
	ID              string     `json:"id"`
	RegisterID      string     `json:"register_id"`
	Status          string     `json:"status"`
	OpenedBy        string     `json:"opened_by"`
	OpeningFloat    string     `json:"opening_float"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedBy        string     `json:"closed_by,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CountedBalance  string     `json:"counted_balance,omitempty"`
	ExpectedBalance string     `json:"expected_balance,omitempty"`
	Difference      string     `json:"difference,omitempty"`
}

// BuildView derives the read model from a session.
func BuildView(sess *session.Session) View {
	view := View{
		ID:           sess.ID(),
		RegisterID:   sess.RegisterID(),
		Status:       string(sess.Status()),
		OpenedBy:     sess.OpenedBy(),
		OpeningFloat: money.Format(sess.OpeningFloat()),
		OpenedAt:     sess.OpenedAt(),
	}
	if sess.IsClosed() {
		view.ClosedBy = sess.ClosedBy()
		view.ClosedAt = sess.ClosedAt()
		view.CountedBalance = money.Format(sess.CountedBalance())
		view.ExpectedBalance = money.Format(sess.ExpectedBalance())
		view.Difference = money.Format(sess.Difference())
	}
	return view
}
