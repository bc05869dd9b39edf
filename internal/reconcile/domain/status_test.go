package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		received string
		due      string
		want     SettlementStatus
	}{
		{"nothing received", "0", "100.00", StatusPending},
		{"partially received", "40.00", "100.00", StatusPartial},
		{"fully received", "100.00", "100.00", StatusSettled},
		{"exact at scale two", "100.10", "100.10", StatusSettled},
		{"one cent short", "99.99", "100.00", StatusPartial},
		{"zero due zero received", "0", "0", StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(dec(tc.received), dec(tc.due))
			if got != tc.want {
				t.Fatalf("DeriveStatus(%s, %s) = %s, want %s", tc.received, tc.due, got, tc.want)
			}
		})
	}
}

func TestEffectiveStatusOverlaysOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	if got := EffectiveStatus(StatusPartial, &past, now); got != StatusOverdue {
		t.Fatalf("past due partial = %s, want OVERDUE", got)
	}
	if got := EffectiveStatus(StatusPending, &future, now); got != StatusPending {
		t.Fatalf("future due pending = %s, want PENDING", got)
	}
	if got := EffectiveStatus(StatusSettled, &past, now); got != StatusSettled {
		t.Fatalf("settled ledger = %s, want SETTLED regardless of due date", got)
	}
	if got := EffectiveStatus(StatusPartial, nil, now); got != StatusPartial {
		t.Fatalf("no due date = %s, want PARTIAL", got)
	}
}

func TestUnresolved(t *testing.T) {
	if !Unresolved(StatusPending) || !Unresolved(StatusPartial) {
		t.Fatal("pending and partial ledgers must be unresolved")
	}
	if Unresolved(StatusSettled) {
		t.Fatal("settled ledgers must not be unresolved")
	}
}
