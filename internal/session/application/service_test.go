package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	reconcileapp "cashdesk-cloud/internal/reconcile/application"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
	reconcilememory "cashdesk-cloud/internal/reconcile/infrastructure/memory"
	"cashdesk-cloud/internal/session/application/events"
	session "cashdesk-cloud/internal/session/domain"
	"cashdesk-cloud/internal/session/infrastructure/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	sessions *memory.Repository
	ledgers  *reconcilememory.Repository
	payments *reconcileapp.PaymentService
	pub      *recordingPublisher
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := memory.NewRepository()
	ledgers := reconcilememory.NewRepository()
	migrator := reconcileapp.NewMigrationService(ledgers, sessions, nil)
	queries := reconcileapp.NewQueryService(ledgers, nil)
	pub := &recordingPublisher{}

	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("ses-%d", n)
	}
	return &fixture{
		sessions: sessions,
		ledgers:  ledgers,
		payments: reconcileapp.NewPaymentService(ledgers, nil, nil, nil),
		pub:      pub,
		service:  NewService(sessions, migrator, queries, pub, nil, nil, newID),
	}
}

func (f *fixture) seedLedger(t *testing.T, id, owning, due string) {
	t.Helper()
	led, err := reconcile.NewLedger(reconcile.LedgerID(id), "tenant-a", reconcile.SessionID(owning), nil, reconcile.Draft{
		Routine:     "cart",
		ProtocolKey: "key-" + id,
		Quantity:    1,
		AmountDue:   decimal.RequireFromString(due),
	}, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := f.ledgers.CreateBatch(context.Background(), []*reconcile.Ledger{led}); err != nil {
		t.Fatalf("create ledger: %v", err)
	}
}

func TestOpenMigratesUnresolvedLedgers(t *testing.T) {
	f := newFixture(t)
	f.seedLedger(t, "led-1", "ses-gone", "40.00")
	f.seedLedger(t, "led-2", "ses-gone", "15.00")

	result, err := f.service.Open(context.Background(), "tenant-a", OpenInput{
		RegisterID:   "reg-1",
		OpenedBy:     "alice",
		OpeningFloat: "100.00",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if result.MigratedCount != 2 {
		t.Fatalf("migrated = %d, want 2", result.MigratedCount)
	}
	if result.Session.Status != string(session.StatusOpen) {
		t.Fatalf("status = %s, want OPEN", result.Session.Status)
	}

	ledgers, err := f.ledgers.ListUnresolved(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, led := range ledgers {
		if string(led.OwningSession()) != result.Session.ID {
			t.Fatalf("ledger %s not migrated: session=%s", led.ID(), led.OwningSession())
		}
	}

	opened, ok := f.pub.events[0].(events.SessionOpened)
	if !ok {
		t.Fatalf("first event = %T, want SessionOpened", f.pub.events[0])
	}
	if opened.MigratedCount != 2 {
		t.Fatalf("event migrated = %d, want 2", opened.MigratedCount)
	}
}

func TestOpenSecondSessionOnBusyRegister(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Open(context.Background(), "tenant-a", OpenInput{
		RegisterID:   "reg-1",
		OpenedBy:     "alice",
		OpeningFloat: "50.00",
	}); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := f.service.Open(context.Background(), "tenant-a", OpenInput{
		RegisterID:   "reg-1",
		OpenedBy:     "bob",
		OpeningFloat: "50.00",
	})
	if !errors.Is(err, session.ErrRegisterBusy) {
		t.Fatalf("err = %v, want ErrRegisterBusy", err)
	}
}

func TestCloseComputesDifference(t *testing.T) {
	f := newFixture(t)
	f.seedLedger(t, "led-1", "ses-gone", "80.00")

	result, err := f.service.Open(context.Background(), "tenant-a", OpenInput{
		RegisterID:   "reg-1",
		OpenedBy:     "alice",
		OpeningFloat: "100.00",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sessionID := result.Session.ID

	if _, err := f.payments.Apply(context.Background(), "tenant-a", reconcileapp.ApplyInput{
		LedgerID:  "led-1",
		Amount:    "30.00",
		Method:    "cash",
		SessionID: sessionID,
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	view, err := f.service.Close(context.Background(), "tenant-a", sessionID, CloseInput{
		ClosedBy:       "alice",
		CountedBalance: "125.00",
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if view.ExpectedBalance != "130.00" {
		t.Fatalf("expected = %s, want 130.00", view.ExpectedBalance)
	}
	if view.Difference != "-5.00" {
		t.Fatalf("difference = %s, want -5.00", view.Difference)
	}
	if view.Status != string(session.StatusClosed) {
		t.Fatalf("status = %s, want CLOSED", view.Status)
	}

	// Closing never touches the ledger: it stays open on the closed session
	// for the next migration run.
	led, err := f.ledgers.Get(context.Background(), "tenant-a", "led-1")
	if err != nil {
		t.Fatalf("ledger reload: %v", err)
	}
	if led.Status() != reconcile.StatusPartial {
		t.Fatalf("ledger status = %s, want PARTIAL", led.Status())
	}

	if _, err := f.service.Close(context.Background(), "tenant-a", sessionID, CloseInput{
		ClosedBy:       "alice",
		CountedBalance: "125.00",
	}); !errors.Is(err, session.ErrSessionClosed) {
		t.Fatalf("second close err = %v, want ErrSessionClosed", err)
	}

	var closed *events.SessionClosed
	for _, event := range f.pub.events {
		if evt, ok := event.(events.SessionClosed); ok {
			closed = &evt
		}
	}
	if closed == nil {
		t.Fatalf("SessionClosed not published")
	}
	if closed.Difference != "-5.00" {
		t.Fatalf("event difference = %s, want -5.00", closed.Difference)
	}
}
