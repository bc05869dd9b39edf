package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus is the stored settlement state of a ledger.
type SettlementStatus string

const (
	// StatusPending means no settlement event has been recorded yet.
	StatusPending SettlementStatus = "PENDING"
	// StatusPartial means some, but not all, of the amount due was received.
	StatusPartial SettlementStatus = "PARTIAL"
	// StatusSettled means the amount received equals the amount due. Terminal.
	StatusSettled SettlementStatus = "SETTLED"
	// StatusOverdue is a read-time view over PENDING/PARTIAL ledgers whose
	// due date has passed. It is never stored.
	StatusOverdue SettlementStatus = "OVERDUE"
)

// DeriveStatus computes the stored status purely from the received and due
// sums. Equality is exact decimal equality. A ledger with no received amount
// is PENDING even when the amount due is zero, since events carry strictly
// positive amounts.
func DeriveStatus(received, due decimal.Decimal) SettlementStatus {
	switch {
	case received.IsZero():
		return StatusPending
	case received.Equal(due):
		return StatusSettled
	default:
		return StatusPartial
	}
}

// IsOverdue reports whether an unsettled ledger is past its due date.
func IsOverdue(status SettlementStatus, dueDate *time.Time, now time.Time) bool {
	if status == StatusSettled || dueDate == nil {
		return false
	}
	return now.After(*dueDate)
}

// EffectiveStatus is the status surfaced to readers: OVERDUE overlays
// PENDING/PARTIAL when the due date has passed, and reverts to the base
// status once the ledger settles.
func EffectiveStatus(status SettlementStatus, dueDate *time.Time, now time.Time) SettlementStatus {
	if IsOverdue(status, dueDate, now) {
		return StatusOverdue
	}
	return status
}

// Unresolved reports whether a ledger still accepts payments and is subject
// to cross-session migration.
func Unresolved(status SettlementStatus) bool {
	return status == StatusPending || status == StatusPartial
}
