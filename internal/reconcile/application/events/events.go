package events

import "time"

// LedgerSettled is published exactly once per ledger, on the first
// transition to SETTLED. It carries everything the invoicing side needs:
// the full amount due and the immutable tax breakdown, formatted at two
// decimal places, plus the settlement moment.
type LedgerSettled struct {
	LedgerID     string            `json:"ledger_id"`
	TenantID     string            `json:"tenant_id"`
	Routine      string            `json:"routine"`
	ProtocolKey  string            `json:"protocol_key"`
	SessionID    string            `json:"session_id"`
	AmountDue    string            `json:"amount_due"`
	TaxBreakdown map[string]string `json:"tax_breakdown"`
	SettledAt    time.Time         `json:"settled_at"`
	OccurredAt   time.Time         `json:"occurred_at"`
}
