package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
)

// LedgerID is the identity of a protocol ledger.
type LedgerID string

// SessionID identifies the till session a ledger is collected under. The
// session lifecycle itself lives in its own context; the ledger only holds
// the reference.
type SessionID string

// Ledger is the aggregate root of the reconciliation domain: one external
// protocol, its fixed amount due and tax breakdown, and the append-only
// history of settlement events recorded against it. Monetary fields are
// immutable after creation; only the event list, the derived status, the
// invoice gate flag and the owning session ever change.
type Ledger struct {
	id          LedgerID
	tenantID    string
	routine     string
	protocolKey string

	description  string
	payerName    string
	originStatus string
	quantity     int

	amountDue    decimal.Decimal
	taxBreakdown map[string]decimal.Decimal
	dueDate      *time.Time

	owningSession    SessionID
	status           SettlementStatus
	invoiceTriggered bool

	version   int64
	isNew     bool
	createdAt time.Time

	events []SettlementEvent
	items  []LineItem
}

// PaymentInput is the caller-supplied portion of a settlement event.
type PaymentInput struct {
	Amount     decimal.Decimal
	Method     string
	RecordedBy string
	SessionID  SessionID
	Note       string
	At         time.Time
}

// LedgerState is the flat persisted form of a ledger, used to rehydrate
// aggregates from storage and to hand them back.
type LedgerState struct {
	ID               LedgerID
	TenantID         string
	Routine          string
	ProtocolKey      string
	Description      string
	PayerName        string
	OriginStatus     string
	Quantity         int
	AmountDue        decimal.Decimal
	TaxBreakdown     map[string]decimal.Decimal
	DueDate          *time.Time
	OwningSession    SessionID
	Status           SettlementStatus
	InvoiceTriggered bool
	Version          int64
	CreatedAt        time.Time
	Events           []SettlementEvent
	Items            []LineItem
}

// NewLedger creates a fresh ledger from an aggregation draft. The amount due
// and tax breakdown are fixed here and never change afterwards.
func NewLedger(id LedgerID, tenantID string, session SessionID, dueDate *time.Time, draft Draft, now time.Time) (*Ledger, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	if draft.AmountDue.IsNegative() {
		return nil, ErrNegativeAmountDue
	}
	l := &Ledger{
		id:           id,
		tenantID:     tenantID,
		routine:      draft.Routine,
		protocolKey:  draft.ProtocolKey,
		description:  draft.Description,
		payerName:    draft.PayerName,
		originStatus: draft.OriginStatus,
		quantity:     draft.Quantity,
		amountDue:    draft.AmountDue,
		taxBreakdown: cloneTaxes(draft.TaxBreakdown),
		dueDate:      dueDate,
		owningSession: session,
		status:        StatusPending,
		isNew:         true,
		createdAt:     now.UTC(),
		items:         append([]LineItem(nil), draft.Items...),
	}
	return l, nil
}

// RehydrateLedger rebuilds a ledger from its persisted state.
func RehydrateLedger(s LedgerState) *Ledger {
	return &Ledger{
		id:               s.ID,
		tenantID:         s.TenantID,
		routine:          s.Routine,
		protocolKey:      s.ProtocolKey,
		description:      s.Description,
		payerName:        s.PayerName,
		originStatus:     s.OriginStatus,
		quantity:         s.Quantity,
		amountDue:        s.AmountDue,
		taxBreakdown:     cloneTaxes(s.TaxBreakdown),
		dueDate:          s.DueDate,
		owningSession:    s.OwningSession,
		status:           s.Status,
		invoiceTriggered: s.InvoiceTriggered,
		version:          s.Version,
		createdAt:        s.CreatedAt,
		events:           append([]SettlementEvent(nil), s.Events...),
		items:            append([]LineItem(nil), s.Items...),
	}
}

// State returns the flat persisted form of the ledger.
func (l *Ledger) State() LedgerState {
	return LedgerState{
		ID:               l.id,
		TenantID:         l.tenantID,
		Routine:          l.routine,
		ProtocolKey:      l.protocolKey,
		Description:      l.description,
		PayerName:        l.payerName,
		OriginStatus:     l.originStatus,
		Quantity:         l.quantity,
		AmountDue:        l.amountDue,
		TaxBreakdown:     cloneTaxes(l.taxBreakdown),
		DueDate:          l.dueDate,
		OwningSession:    l.owningSession,
		Status:           l.status,
		InvoiceTriggered: l.invoiceTriggered,
		Version:          l.version,
		CreatedAt:        l.createdAt,
		Events:           append([]SettlementEvent(nil), l.events...),
		Items:            append([]LineItem(nil), l.items...),
	}
}

// ApplyPayment validates and records one settlement event. It returns the
// appended event and whether this payment crossed the settlement gate, i.e.
// whether exactly this call moved the ledger to SETTLED for the first time.
// The caller is responsible for persisting the mutation atomically.
func (l *Ledger) ApplyPayment(in PaymentInput) (SettlementEvent, bool, error) {
	if l.status == StatusSettled {
		return SettlementEvent{}, false, ErrAlreadySettled
	}
	if !in.Amount.IsPositive() {
		return SettlementEvent{}, false, ErrNonPositiveAmount
	}
	balance := l.BalanceRemaining()
	if in.Amount.GreaterThan(balance) {
		return SettlementEvent{}, false, &OverpaymentError{
			LedgerID:  l.id,
			Requested: in.Amount,
			Balance:   balance,
		}
	}

	ev := SettlementEvent{
		Seq:        len(l.events) + 1,
		LedgerID:   l.id,
		Amount:     in.Amount,
		Method:     in.Method,
		RecordedBy: in.RecordedBy,
		SessionID:  in.SessionID,
		RecordedAt: in.At.UTC(),
		Note:       in.Note,
	}
	l.events = append(l.events, ev)
	l.status = DeriveStatus(l.AmountReceived(), l.amountDue)

	fired := false
	if l.status == StatusSettled && !l.invoiceTriggered {
		l.invoiceTriggered = true
		fired = true
	}
	return ev, fired, nil
}

// ReassignSession moves an unresolved ledger to a new owning session. It is
// the migration write: settled ledgers never move and monetary fields are
// untouched.
func (l *Ledger) ReassignSession(to SessionID) error {
	if l.status == StatusSettled {
		return ErrAlreadySettled
	}
	l.owningSession = to
	return nil
}

// AmountReceived is the exact sum of all recorded settlement events.
func (l *Ledger) AmountReceived() decimal.Decimal {
	total := decimal.Zero
	for _, ev := range l.events {
		total = total.Add(ev.Amount)
	}
	return total
}

// BalanceRemaining is the amount due minus the amount received. Never
// negative while the invariants hold.
func (l *Ledger) BalanceRemaining() decimal.Decimal {
	return l.amountDue.Sub(l.AmountReceived())
}

// PercentSettled is received over due as a 0..100 value at two decimal
// places. A zero amount due settles at 0 percent.
func (l *Ledger) PercentSettled() decimal.Decimal {
	if l.amountDue.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return l.AmountReceived().Mul(hundred).DivRound(l.amountDue, money.Scale)
}

// EffectiveStatus overlays OVERDUE on the stored status at read time.
func (l *Ledger) EffectiveStatus(now time.Time) SettlementStatus {
	return EffectiveStatus(l.status, l.dueDate, now)
}

// ID returns the ledger identity.
func (l *Ledger) ID() LedgerID { return l.id }

// TenantID returns the owning tenant.
func (l *Ledger) TenantID() string { return l.tenantID }

// Routine returns the import routine the ledger came from.
func (l *Ledger) Routine() string { return l.routine }

// ProtocolKey returns the normalized external protocol key.
func (l *Ledger) ProtocolKey() string { return l.protocolKey }

// Description returns the consolidated description.
func (l *Ledger) Description() string { return l.description }

// PayerName returns the payer recorded on the first source row.
func (l *Ledger) PayerName() string { return l.payerName }

// OriginStatus returns the status string carried by the source system.
func (l *Ledger) OriginStatus() string { return l.originStatus }

// Quantity returns the consolidated act quantity.
func (l *Ledger) Quantity() int { return l.quantity }

// AmountDue returns the fixed total due.
func (l *Ledger) AmountDue() decimal.Decimal { return l.amountDue }

// TaxBreakdown returns a copy of the fixed per-tax totals.
func (l *Ledger) TaxBreakdown() map[string]decimal.Decimal { return cloneTaxes(l.taxBreakdown) }

// DueDate returns the optional due date.
func (l *Ledger) DueDate() *time.Time { return l.dueDate }

// OwningSession returns the session currently collecting this ledger.
func (l *Ledger) OwningSession() SessionID { return l.owningSession }

// Status returns the stored settlement status.
func (l *Ledger) Status() SettlementStatus { return l.status }

// InvoiceTriggered reports whether the settlement gate has fired.
func (l *Ledger) InvoiceTriggered() bool { return l.invoiceTriggered }

// Version returns the optimistic concurrency counter.
func (l *Ledger) Version() int64 { return l.version }

// CreatedAt returns the creation time.
func (l *Ledger) CreatedAt() time.Time { return l.createdAt }

// Events returns a copy of the settlement history in sequence order.
func (l *Ledger) Events() []SettlementEvent { return append([]SettlementEvent(nil), l.events...) }

// Items returns a copy of the source line items.
func (l *Ledger) Items() []LineItem { return append([]LineItem(nil), l.items...) }

// IsNew reports whether the ledger was freshly created.
func (l *Ledger) IsNew() bool { return l.isNew }

// MarkPersisted records a successful write: clears the new flag and bumps
// the version to match the store.
func (l *Ledger) MarkPersisted() {
	if l != nil {
		l.isNew = false
		l.version++
	}
}

// Clone returns a detached deep copy marked as persisted.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := RehydrateLedger(l.State())
	return c
}

func cloneTaxes(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
