package reconcile

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrLedgerNotFound is returned when a ledger id resolves to nothing.
	ErrLedgerNotFound = errors.New("reconcile: ledger not found")
	// ErrNilLedger is returned when persisting a nil ledger.
	ErrNilLedger = errors.New("reconcile: nil ledger")
	// ErrAlreadySettled is returned when a payment targets a settled ledger.
	ErrAlreadySettled = errors.New("reconcile: ledger already settled")
	// ErrNonPositiveAmount is returned when a payment amount is not > 0.
	ErrNonPositiveAmount = errors.New("reconcile: payment amount must be greater than zero")
	// ErrNegativeAmountDue is returned when aggregation yields a negative total.
	ErrNegativeAmountDue = errors.New("reconcile: negative amount due")
	// ErrEmptyTenantID is returned when the tenant id is missing.
	ErrEmptyTenantID = errors.New("reconcile: empty tenant id")
	// ErrVersionConflict is returned when an optimistic write lost the race.
	ErrVersionConflict = errors.New("reconcile: ledger version conflict")
)

// MissingKeyError reports a money-bearing row without a protocol key.
// Aggregation fails the whole batch; the row index points at the offender.
type MissingKeyError struct {
	RowIndex int
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("reconcile: row %d has no protocol key", e.RowIndex)
}

// OverpaymentError reports a payment exceeding the remaining balance. It
// carries the balance observed under the ledger lock so the caller can
// correct the input.
type OverpaymentError struct {
	LedgerID  LedgerID
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("reconcile: payment %s exceeds remaining balance %s on ledger %s",
		e.Requested.StringFixed(2), e.Balance.StringFixed(2), e.LedgerID)
}

// MigrationConflictError reports a ledger whose owning session changed
// between selection and write during migration.
type MigrationConflictError struct {
	LedgerID LedgerID
}

func (e *MigrationConflictError) Error() string {
	return fmt.Sprintf("reconcile: migration conflict on ledger %s", e.LedgerID)
}
