package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/reconcile/application/events"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
	"cashdesk-cloud/internal/reconcile/infrastructure/memory"
)

type capturingPublisher struct {
	mu      sync.Mutex
	settled []events.LedgerSettled
}

func (p *capturingPublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evt, ok := event.(events.LedgerSettled); ok {
		p.settled = append(p.settled, evt)
	}
	return nil
}

func (p *capturingPublisher) settledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.settled)
}

func seedLedger(t *testing.T, repo *memory.Repository, tenantID, due string) reconcile.LedgerID {
	t.Helper()
	amount, err := decimal.NewFromString(due)
	if err != nil {
		t.Fatalf("parse due: %v", err)
	}
	led, err := reconcile.NewLedger("led-test-1", tenantID, "ses-old", nil, reconcile.Draft{
		Routine:     "cart",
		ProtocolKey: "2024-000123",
		Description: "cart - registration",
		Quantity:    1,
		AmountDue:   amount,
	}, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := repo.CreateBatch(context.Background(), []*reconcile.Ledger{led}); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return led.ID()
}

func TestApplyPartialThenFullSettles(t *testing.T) {
	repo := memory.NewRepository()
	pub := &capturingPublisher{}
	svc := NewPaymentService(repo, pub, nil, nil)
	id := seedLedger(t, repo, "tenant-a", "100.00")

	view, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Amount:    "40.00",
		Method:    "cash",
		SessionID: "ses-1",
	})
	if err != nil {
		t.Fatalf("partial apply: %v", err)
	}
	if view.Status != string(reconcile.StatusPartial) {
		t.Fatalf("status after partial = %s, want PARTIAL", view.Status)
	}
	if view.BalanceRemaining != "60.00" {
		t.Fatalf("balance = %s, want 60.00", view.BalanceRemaining)
	}
	if pub.settledCount() != 0 {
		t.Fatalf("settled published after partial payment")
	}

	view, err = svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Full:      true,
		Method:    "card",
		SessionID: "ses-1",
	})
	if err != nil {
		t.Fatalf("full apply: %v", err)
	}
	if view.Status != string(reconcile.StatusSettled) {
		t.Fatalf("status after full = %s, want SETTLED", view.Status)
	}
	if !view.InvoiceTriggered {
		t.Fatalf("invoice gate not fired on settlement")
	}
	if pub.settledCount() != 1 {
		t.Fatalf("settled events = %d, want 1", pub.settledCount())
	}
	if pub.settled[0].ProtocolKey != "2024-000123" {
		t.Fatalf("settled protocol = %s", pub.settled[0].ProtocolKey)
	}
}

func TestApplyOverpaymentReportsBalance(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewPaymentService(repo, &capturingPublisher{}, nil, nil)
	id := seedLedger(t, repo, "tenant-a", "50.00")

	if _, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Amount:    "30.00",
		SessionID: "ses-1",
	}); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	_, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Amount:    "30.00",
		SessionID: "ses-1",
	})
	var overpay *reconcile.OverpaymentError
	if !errors.As(err, &overpay) {
		t.Fatalf("err = %v, want OverpaymentError", err)
	}
	if overpay.Balance.StringFixed(2) != "20.00" {
		t.Fatalf("reported balance = %s, want 20.00", overpay.Balance.StringFixed(2))
	}
}

func TestApplyRejectsSettledLedger(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewPaymentService(repo, &capturingPublisher{}, nil, nil)
	id := seedLedger(t, repo, "tenant-a", "10.00")

	if _, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Full:      true,
		SessionID: "ses-1",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	_, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
		LedgerID:  string(id),
		Amount:    "1.00",
		SessionID: "ses-1",
	})
	if !errors.Is(err, reconcile.ErrAlreadySettled) {
		t.Fatalf("err = %v, want ErrAlreadySettled", err)
	}
}

func TestConcurrentApplySettlesExactlyOnce(t *testing.T) {
	repo := memory.NewRepository()
	pub := &capturingPublisher{}
	svc := NewPaymentService(repo, pub, nil, nil)
	id := seedLedger(t, repo, "tenant-a", "100.00")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), "tenant-a", ApplyInput{
				LedgerID:  string(id),
				Amount:    "5.00",
				Method:    "cash",
				SessionID: "ses-1",
			})
			if err != nil {
				t.Errorf("concurrent apply: %v", err)
			}
		}()
	}
	wg.Wait()

	led, err := repo.Get(context.Background(), "tenant-a", id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if led.Status() != reconcile.StatusSettled {
		t.Fatalf("status = %s, want SETTLED", led.Status())
	}
	if got := led.AmountReceived().StringFixed(2); got != "100.00" {
		t.Fatalf("amount received = %s, want 100.00", got)
	}
	if len(led.Events()) != workers {
		t.Fatalf("events = %d, want %d", len(led.Events()), workers)
	}
	if pub.settledCount() != 1 {
		t.Fatalf("settled events = %d, want exactly 1", pub.settledCount())
	}
}

func TestSettleBatchSettlesAllTargets(t *testing.T) {
	repo := memory.NewRepository()
	pub := &capturingPublisher{}
	svc := NewPaymentService(repo, pub, nil, nil)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	var batch []*reconcile.Ledger
	for i, due := range []string{"10.00", "25.50", "3.99"} {
		led, err := reconcile.NewLedger(reconcile.LedgerID("led-batch-"+string(rune('a'+i))), "tenant-a", "ses-old", nil, reconcile.Draft{
			Routine:     "cart",
			ProtocolKey: "2024-10000" + string(rune('0'+i)),
			Quantity:    1,
			AmountDue:   decimal.RequireFromString(due),
		}, now)
		if err != nil {
			t.Fatalf("new ledger: %v", err)
		}
		batch = append(batch, led)
		ids = append(ids, string(led.ID()))
	}
	if err := repo.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	views, err := svc.SettleBatch(context.Background(), "tenant-a", SettleInput{
		LedgerIDs: ids,
		Method:    "cash",
		SessionID: "ses-1",
	})
	if err != nil {
		t.Fatalf("settle batch: %v", err)
	}
	if len(views) != len(ids) {
		t.Fatalf("views = %d, want %d", len(views), len(ids))
	}
	for _, view := range views {
		if view.Status != string(reconcile.StatusSettled) {
			t.Fatalf("ledger %s status = %s, want SETTLED", view.ID, view.Status)
		}
	}
	if pub.settledCount() != len(ids) {
		t.Fatalf("settled events = %d, want %d", pub.settledCount(), len(ids))
	}
}
