package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLedgerPartialThenSettle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	led, err := NewLedger("led-1", "tenant-a", "sess-1", nil, Draft{
		Routine:      "notary",
		ProtocolKey:  "P1",
		AmountDue:    dec("100.00"),
		TaxBreakdown: map[string]decimal.Decimal{"iss": dec("5.00")},
	}, now)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	if led.Status() != StatusPending {
		t.Fatalf("fresh ledger status = %s, want PENDING", led.Status())
	}

	ev, fired, err := led.ApplyPayment(PaymentInput{Amount: dec("40.00"), Method: "cash", RecordedBy: "op-1", SessionID: "sess-1", At: now})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if fired {
		t.Fatal("partial payment must not fire the settlement gate")
	}
	if ev.Seq != 1 {
		t.Fatalf("first event seq = %d, want 1", ev.Seq)
	}
	if led.Status() != StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", led.Status())
	}
	if got := led.BalanceRemaining().StringFixed(2); got != "60.00" {
		t.Fatalf("balance = %s, want 60.00", got)
	}
	if got := led.PercentSettled().StringFixed(2); got != "40.00" {
		t.Fatalf("percent settled = %s, want 40.00", got)
	}

	ev, fired, err = led.ApplyPayment(PaymentInput{Amount: dec("60.00"), Method: "card", RecordedBy: "op-2", SessionID: "sess-2", At: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if !fired {
		t.Fatal("exact settling payment must fire the gate")
	}
	if ev.Seq != 2 {
		t.Fatalf("second event seq = %d, want 2", ev.Seq)
	}
	if led.Status() != StatusSettled {
		t.Fatalf("status = %s, want SETTLED", led.Status())
	}
	if !led.InvoiceTriggered() {
		t.Fatal("gate flag must be set after settlement")
	}
	if got := led.AmountDue().StringFixed(2); got != "100.00" {
		t.Fatalf("amount due changed to %s", got)
	}
}

func TestLedgerRejectsOverpayment(t *testing.T) {
	led := mustLedger(t, "100.00")
	if _, _, err := led.ApplyPayment(payment("70.00")); err != nil {
		t.Fatalf("first payment: %v", err)
	}

	_, _, err := led.ApplyPayment(payment("30.01"))
	var over *OverpaymentError
	if !errors.As(err, &over) {
		t.Fatalf("err = %v, want OverpaymentError", err)
	}
	if got := over.Balance.StringFixed(2); got != "30.00" {
		t.Fatalf("reported balance = %s, want 30.00", got)
	}
	if len(led.Events()) != 1 {
		t.Fatal("rejected payment must not append an event")
	}
	if led.Status() != StatusPartial {
		t.Fatalf("status after rejection = %s, want PARTIAL", led.Status())
	}
}

func TestLedgerRejectsNonPositiveAndSettledPayments(t *testing.T) {
	led := mustLedger(t, "50.00")
	if _, _, err := led.ApplyPayment(payment("0")); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("zero amount err = %v, want ErrNonPositiveAmount", err)
	}
	if _, _, err := led.ApplyPayment(payment("-1.00")); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("negative amount err = %v, want ErrNonPositiveAmount", err)
	}

	if _, _, err := led.ApplyPayment(payment("50.00")); err != nil {
		t.Fatalf("settling payment: %v", err)
	}
	if _, _, err := led.ApplyPayment(payment("1.00")); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("payment on settled ledger err = %v, want ErrAlreadySettled", err)
	}
}

func TestLedgerGateFiresExactlyOnce(t *testing.T) {
	led := mustLedger(t, "10.00")
	_, fired, err := led.ApplyPayment(payment("10.00"))
	if err != nil || !fired {
		t.Fatalf("settling payment fired=%v err=%v", fired, err)
	}
	// A rehydrated settled ledger must never re-fire.
	again := RehydrateLedger(led.State())
	if _, _, err := again.ApplyPayment(payment("0.01")); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("err = %v, want ErrAlreadySettled", err)
	}
	if !again.InvoiceTriggered() {
		t.Fatal("gate flag lost across rehydration")
	}
}

func TestLedgerReassignSession(t *testing.T) {
	led := mustLedger(t, "20.00")
	if err := led.ReassignSession("sess-9"); err != nil {
		t.Fatalf("ReassignSession: %v", err)
	}
	if led.OwningSession() != "sess-9" {
		t.Fatalf("owning session = %s, want sess-9", led.OwningSession())
	}
	if got := led.AmountDue().StringFixed(2); got != "20.00" {
		t.Fatalf("migration touched amount due: %s", got)
	}

	if _, _, err := led.ApplyPayment(payment("20.00")); err != nil {
		t.Fatalf("settling payment: %v", err)
	}
	if err := led.ReassignSession("sess-10"); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("settled ledger moved: err = %v, want ErrAlreadySettled", err)
	}
}

func TestLedgerCloneIsDetached(t *testing.T) {
	led := mustLedger(t, "30.00")
	clone := led.Clone()
	if _, _, err := clone.ApplyPayment(payment("30.00")); err != nil {
		t.Fatalf("payment on clone: %v", err)
	}
	if led.Status() != StatusPending {
		t.Fatalf("original status = %s after mutating the clone, want PENDING", led.Status())
	}
	taxes := led.TaxBreakdown()
	taxes["iss"] = dec("999.00")
	if got := led.TaxBreakdown()["iss"].StringFixed(2); got != "1.00" {
		t.Fatalf("tax breakdown mutated through accessor copy: %s", got)
	}
}

func TestLedgerVersionBumpsOnPersist(t *testing.T) {
	led := mustLedger(t, "10.00")
	if led.Version() != 0 || !led.IsNew() {
		t.Fatalf("fresh ledger version=%d isNew=%v", led.Version(), led.IsNew())
	}
	led.MarkPersisted()
	if led.Version() != 1 || led.IsNew() {
		t.Fatalf("after persist version=%d isNew=%v", led.Version(), led.IsNew())
	}
}

func mustLedger(t *testing.T, due string) *Ledger {
	t.Helper()
	led, err := NewLedger("led-1", "tenant-a", "sess-1", nil, Draft{
		Routine:      "notary",
		ProtocolKey:  "P1",
		AmountDue:    dec(due),
		TaxBreakdown: map[string]decimal.Decimal{"iss": dec("1.00")},
	}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return led
}

func payment(amount string) PaymentInput {
	return PaymentInput{
		Amount:     dec(amount),
		Method:     "cash",
		RecordedBy: "op-1",
		SessionID:  "sess-1",
		At:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}
