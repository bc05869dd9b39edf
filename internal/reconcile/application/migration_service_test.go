package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	reconcile "cashdesk-cloud/internal/reconcile/domain"
	"cashdesk-cloud/internal/reconcile/infrastructure/memory"
	session "cashdesk-cloud/internal/session/domain"
	sessionmemory "cashdesk-cloud/internal/session/infrastructure/memory"
)

func seedMigrationLedger(t *testing.T, repo *memory.Repository, id, owning, due string) *reconcile.Ledger {
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
	if err := repo.CreateBatch(context.Background(), []*reconcile.Ledger{led}); err != nil {
		t.Fatalf("create: %v", err)
	}
	return led
}

func TestMigrateUnresolvedMovesOnlyClosedSessions(t *testing.T) {
	ledgerRepo := memory.NewRepository()
	sessionRepo := sessionmemory.NewRepository()
	svc := NewMigrationService(ledgerRepo, sessionRepo, nil)

	now := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	open, err := session.Open("ses-open", "tenant-a", "reg-2", "bob", decimal.RequireFromString("100.00"), now)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := sessionRepo.Create(context.Background(), open); err != nil {
		t.Fatalf("create session: %v", err)
	}

	orphan := seedMigrationLedger(t, ledgerRepo, "led-orphan", "ses-gone", "40.00")
	busy := seedMigrationLedger(t, ledgerRepo, "led-busy", "ses-open", "10.00")
	settled := seedMigrationLedger(t, ledgerRepo, "led-done", "ses-gone", "5.00")
	already := seedMigrationLedger(t, ledgerRepo, "led-target", "ses-new", "7.00")

	payments := NewPaymentService(ledgerRepo, nil, nil, nil)
	if _, err := payments.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(settled.ID()),
		Full:      true,
		SessionID: "ses-gone",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	moved, err := svc.MigrateUnresolved(context.Background(), "tenant-a", "ses-new")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	check := func(id reconcile.LedgerID, wantSession string) {
		t.Helper()
		led, err := ledgerRepo.Get(context.Background(), "tenant-a", id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if string(led.OwningSession()) != wantSession {
			t.Fatalf("ledger %s session = %s, want %s", id, led.OwningSession(), wantSession)
		}
	}
	check(orphan.ID(), "ses-new")
	check(busy.ID(), "ses-open")
	check(settled.ID(), "ses-gone")
	check(already.ID(), "ses-new")
}

func TestMigrateKeepsMonetaryFields(t *testing.T) {
	ledgerRepo := memory.NewRepository()
	sessionRepo := sessionmemory.NewRepository()
	svc := NewMigrationService(ledgerRepo, sessionRepo, nil)

	led := seedMigrationLedger(t, ledgerRepo, "led-1", "ses-old", "60.00")
	payments := NewPaymentService(ledgerRepo, nil, nil, nil)
	if _, err := payments.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(led.ID()),
		Amount:    "20.00",
		SessionID: "ses-old",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := svc.MigrateUnresolved(context.Background(), "tenant-a", "ses-new"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fresh, err := ledgerRepo.Get(context.Background(), "tenant-a", led.ID())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := fresh.AmountDue().StringFixed(2); got != "60.00" {
		t.Fatalf("amount due = %s, want 60.00", got)
	}
	if got := fresh.AmountReceived().StringFixed(2); got != "20.00" {
		t.Fatalf("amount received = %s, want 20.00", got)
	}
	if fresh.Status() != reconcile.StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", fresh.Status())
	}
	// The event history stays with its recording session.
	if got := string(fresh.Events()[0].SessionID); got != "ses-old" {
		t.Fatalf("event session = %s, want ses-old", got)
	}
}
