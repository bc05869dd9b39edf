package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
	"cashdesk-cloud/internal/observability/metrics"
	"cashdesk-cloud/internal/reconcile/application/events"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// EventPublisher hands domain events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// PaymentService applies settlement events to ledgers. Per-ledger keyed
// locking serializes concurrent payments in-process; the repository's
// version check catches writers from other processes.
type PaymentService struct {
	repo      reconcile.Repository
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[reconcile.LedgerID]*sync.Mutex
}

// NewPaymentService constructs the service.
func NewPaymentService(repo reconcile.Repository, publisher EventPublisher, logger *log.Logger, now func() time.Time) *PaymentService {
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       now,
		locks:     make(map[reconcile.LedgerID]*sync.Mutex),
	}
}

// ApplyInput is one payment request. Full requests ignore Amount and settle
// the remaining balance.
type ApplyInput struct {
	LedgerID   string
	Amount     string
	Full       bool
	Method     string
	RecordedBy string
	SessionID  string
	Note       string
}

// Apply validates and records one payment, returning the derived snapshot.
// Exactly the call that settles the ledger publishes LedgerSettled; the
// publish happens after the settlement is durably committed, so a delivery
// failure never reverts it.
func (s *PaymentService) Apply(ctx context.Context, tenantID string, in ApplyInput) (LedgerView, error) {
	started := s.now()
	view, err := s.apply(ctx, tenantID, in)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObservePaymentApply(outcome, s.now().Sub(started))
	return view, err
}

func (s *PaymentService) apply(ctx context.Context, tenantID string, in ApplyInput) (LedgerView, error) {
	if tenantID == "" {
		return LedgerView{}, reconcile.ErrEmptyTenantID
	}
	id := reconcile.LedgerID(in.LedgerID)

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	led, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return LedgerView{}, err
	}

	amount := decimal.Zero
	if in.Full {
		amount = led.BalanceRemaining()
	} else {
		amount, err = money.ParseStrict(in.Amount)
		if err != nil {
			return LedgerView{}, fmt.Errorf("payment: %w", err)
		}
	}

	now := s.now().UTC()
	_, fired, err := led.ApplyPayment(reconcile.PaymentInput{
		Amount:     amount,
		Method:     in.Method,
		RecordedBy: in.RecordedBy,
		SessionID:  reconcile.SessionID(in.SessionID),
		Note:       in.Note,
		At:         now,
	})
	if err != nil {
		return LedgerView{}, err
	}

	if err := s.repo.AppendEvent(ctx, led); err != nil {
		if errors.Is(err, reconcile.ErrVersionConflict) && s.logger != nil {
			s.logger.Printf("payment version conflict ledger=%s", id)
		}
		return LedgerView{}, err
	}

	if fired {
		metrics.IncSettlementGate()
		s.publishSettled(ctx, led, now)
	}
	return BuildLedgerView(led, now, true), nil
}

// SettleInput is one batch settlement request: every targeted ledger
// receives its full remaining balance.
type SettleInput struct {
	LedgerIDs  []string
	Method     string
	RecordedBy string
	SessionID  string
	Note       string
}

// SettleBatch settles each targeted ledger in full. Ledgers are processed
// independently; the first failure aborts the rest and reports which ledger
// failed.
func (s *PaymentService) SettleBatch(ctx context.Context, tenantID string, in SettleInput) ([]LedgerView, error) {
	if len(in.LedgerIDs) == 0 {
		return nil, errors.New("payment: no ledgers to settle")
	}
	views := make([]LedgerView, 0, len(in.LedgerIDs))
	for _, id := range in.LedgerIDs {
		view, err := s.Apply(ctx, tenantID, ApplyInput{
			LedgerID:   id,
			Full:       true,
			Method:     in.Method,
			RecordedBy: in.RecordedBy,
			SessionID:  in.SessionID,
			Note:       in.Note,
		})
		if err != nil {
			return views, fmt.Errorf("payment: settle ledger %s: %w", id, err)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *PaymentService) publishSettled(ctx context.Context, led *reconcile.Ledger, settledAt time.Time) {
	if s.publisher == nil {
		return
	}
	taxes := make(map[string]string)
	for field, v := range led.TaxBreakdown() {
		taxes[field] = money.Format(v)
	}
	event := events.LedgerSettled{
		LedgerID:     string(led.ID()),
		TenantID:     led.TenantID(),
		Routine:      led.Routine(),
		ProtocolKey:  led.ProtocolKey(),
		SessionID:    string(led.OwningSession()),
		AmountDue:    money.Format(led.AmountDue()),
		TaxBreakdown: taxes,
		SettledAt:    settledAt,
		OccurredAt:   settledAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Printf("publish settled event ledger=%s: %v", led.ID(), err)
	}
}

func (s *PaymentService) lockFor(id reconcile.LedgerID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
