package events

import "time"

// SessionOpened is published after a till session opens and unresolved
// ledgers have been migrated into it.
type SessionOpened struct {
	SessionID     string    `json:"session_id"`
	TenantID      string    `json:"tenant_id"`
	RegisterID    string    `json:"register_id"`
	OpenedBy      string    `json:"opened_by"`
	MigratedCount int       `json:"migrated_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SessionClosed is published when a till session closes, carrying the close
// arithmetic.
type SessionClosed struct {
	SessionID       string    `json:"session_id"`
	TenantID        string    `json:"tenant_id"`
	RegisterID      string    `json:"register_id"`
	ClosedBy        string    `json:"closed_by"`
	CountedBalance  string    `json:"counted_balance"`
	ExpectedBalance string    `json:"expected_balance"`
	Difference      string    `json:"difference"`
	OccurredAt      time.Time `json:"occurred_at"`
}
