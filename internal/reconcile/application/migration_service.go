package application

import (
	"context"
	"errors"
	"log"

	"cashdesk-cloud/internal/observability/metrics"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// SessionStateReader answers whether a session is closed. Implemented by
// the session context's repository.
type SessionStateReader interface {
	IsClosed(ctx context.Context, tenantID, sessionID string) (bool, error)
}

// MigrationService moves unresolved ledgers out of closed sessions into a
// newly opened one. Monetary fields and status never change; only the
// owning session does.
type MigrationService struct {
	repo     reconcile.Repository
	sessions SessionStateReader
	logger   *log.Logger
}

// NewMigrationService constructs the service.
func NewMigrationService(repo reconcile.Repository, sessions SessionStateReader, logger *log.Logger) *MigrationService {
	return &MigrationService{repo: repo, sessions: sessions, logger: logger}
}

// MigrateUnresolved reassigns every PENDING/PARTIAL ledger of the tenant
// whose owning session is closed to the target session. A version conflict
// on one ledger is retried once against a fresh copy, then logged and
// skipped; one stuck ledger never aborts the run.
func (s *MigrationService) MigrateUnresolved(ctx context.Context, tenantID, toSession string) (int, error) {
	if tenantID == "" {
		return 0, reconcile.ErrEmptyTenantID
	}
	ledgers, err := s.repo.ListUnresolved(ctx, tenantID)
	if err != nil {
		metrics.ObserveMigration(metrics.ResultError)
		return 0, err
	}

	moved := 0
	skipped := 0
	to := reconcile.SessionID(toSession)
	for _, led := range ledgers {
		if led.OwningSession() == to {
			continue
		}
		closed, err := s.sessions.IsClosed(ctx, tenantID, string(led.OwningSession()))
		if err != nil {
			metrics.ObserveMigration(metrics.ResultError)
			return moved, err
		}
		if !closed {
			continue
		}

		if ok := s.move(ctx, tenantID, led, to); ok {
			moved++
		} else {
			skipped++
		}
	}

	metrics.ObserveMigration(metrics.ResultSuccess)
	metrics.AddMigratedLedgers(metrics.MigrationMoved, moved)
	metrics.AddMigratedLedgers(metrics.MigrationSkipped, skipped)
	if s.logger != nil {
		s.logger.Printf("migration tenant=%s to=%s moved=%d skipped=%d", tenantID, toSession, moved, skipped)
	}
	return moved, nil
}

func (s *MigrationService) move(ctx context.Context, tenantID string, led *reconcile.Ledger, to reconcile.SessionID) bool {
	if err := s.reassign(ctx, led, to); err == nil {
		return true
	} else if !errors.Is(err, reconcile.ErrVersionConflict) {
		s.logSkip(led, err)
		return false
	}

	// Lost the race; reload once and retry. The ledger may have settled
	// or moved in the meantime.
	fresh, err := s.repo.Get(ctx, tenantID, led.ID())
	if err != nil {
		s.logSkip(led, err)
		return false
	}
	if !reconcile.Unresolved(fresh.Status()) || fresh.OwningSession() == to {
		return false
	}
	if err := s.reassign(ctx, fresh, to); err != nil {
		s.logSkip(fresh, &reconcile.MigrationConflictError{LedgerID: fresh.ID()})
		return false
	}
	return true
}

func (s *MigrationService) reassign(ctx context.Context, led *reconcile.Ledger, to reconcile.SessionID) error {
	if err := led.ReassignSession(to); err != nil {
		return err
	}
	return s.repo.ReassignSession(ctx, led)
}

func (s *MigrationService) logSkip(led *reconcile.Ledger, err error) {
	if s.logger != nil {
		s.logger.Printf("migration skip ledger=%s: %v", led.ID(), err)
	}
}
