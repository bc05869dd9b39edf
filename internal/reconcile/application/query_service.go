package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// QueryService serves ledger read models. OVERDUE is derived here, at read
// time, from the stored status and due date.
type QueryService struct {
	repo reconcile.Repository
	now  func() time.Time
}

// NewQueryService constructs the service.
func NewQueryService(repo reconcile.Repository, now func() time.Time) *QueryService {
	if now == nil {
		now = time.Now
	}
	return &QueryService{repo: repo, now: now}
}

// ListFilter narrows List. Status accepts OVERDUE, which has no stored
// counterpart and is matched against the derived status.
type ListFilter struct {
	SessionID string
	Status    string
	Routine   string
}

// List returns the tenant's ledgers matching the filter, without history.
func (s *QueryService) List(ctx context.Context, tenantID string, filter ListFilter) ([]LedgerView, error) {
	stored := reconcile.ListFilter{
		SessionID: reconcile.SessionID(filter.SessionID),
		Routine:   filter.Routine,
	}
	derived := reconcile.SettlementStatus(filter.Status)
	switch derived {
	case reconcile.StatusOverdue:
		// Stored filter stays open; overdue is decided per ledger below.
	default:
		stored.Status = derived
	}

	ledgers, err := s.repo.List(ctx, tenantID, stored)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]LedgerView, 0, len(ledgers))
	for _, led := range ledgers {
		if derived == reconcile.StatusOverdue && led.EffectiveStatus(now) != reconcile.StatusOverdue {
			continue
		}
		views = append(views, BuildLedgerView(led, now, false))
	}
	return views, nil
}

// Get returns one ledger with its full history.
func (s *QueryService) Get(ctx context.Context, tenantID, id string) (LedgerView, error) {
	led, err := s.repo.Get(ctx, tenantID, reconcile.LedgerID(id))
	if err != nil {
		return LedgerView{}, err
	}
	return BuildLedgerView(led, s.now(), true), nil
}

// GetLedger returns the aggregate itself, for exports that need the
// structured history.
func (s *QueryService) GetLedger(ctx context.Context, tenantID, id string) (*reconcile.Ledger, error) {
	return s.repo.Get(ctx, tenantID, reconcile.LedgerID(id))
}

// ListBySession returns the aggregates collected under a session.
func (s *QueryService) ListBySession(ctx context.Context, tenantID, sessionID string) ([]*reconcile.Ledger, error) {
	return s.repo.List(ctx, tenantID, reconcile.ListFilter{SessionID: reconcile.SessionID(sessionID)})
}

// CollectedInSession is the exact total received under a session.
func (s *QueryService) CollectedInSession(ctx context.Context, tenantID, sessionID string) (decimal.Decimal, error) {
	return s.repo.SumEventsBySession(ctx, tenantID, reconcile.SessionID(sessionID))
}
