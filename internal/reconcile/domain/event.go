package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEvent is one append-only entry in a ledger's settlement history.
// Seq is the per-ledger sequence, starting at 1. Events are never mutated;
// deleting a ledger removes its events with it.
type SettlementEvent struct {
	Seq        int
	LedgerID   LedgerID
	Amount     decimal.Decimal
	Method     string
	RecordedBy string
	SessionID  SessionID
	RecordedAt time.Time
	Note       string
}

// LineItem is one source row kept as a read-only child of the ledger it fed.
// Line items exist for receipts and projections only and never influence the
// settlement state.
type LineItem struct {
	Seq         int
	Description string
	PayerName   string
	ActDate     string
	Amount      decimal.Decimal
	Taxes       map[string]decimal.Decimal
}
