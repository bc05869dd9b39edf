package application

import (
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// LedgerView is the derived read model handed to interfaces: stored fields
// plus the computed amounts and the effective (overdue-aware) status, all
// money formatted at two decimal places.
type LedgerView struct {
	ID               string            `json:"id"`
	Routine          string            `json:"routine"`
	ProtocolKey      string            `json:"protocol_key"`
	Description      string            `json:"description"`
	PayerName        string            `json:"payer_name,omitempty"`
	OriginStatus     string            `json:"origin_status,omitempty"`
	Quantity         int               `json:"quantity"`
	AmountDue        string            `json:"amount_due"`
	AmountReceived   string            `json:"amount_received"`
	BalanceRemaining string            `json:"balance_remaining"`
	PercentSettled   string            `json:"percent_settled"`
	TaxBreakdown     map[string]string `json:"tax_breakdown"`
	Status           string            `json:"status"`
	DueDate          *time.Time        `json:"due_date,omitempty"`
	OwningSession    string            `json:"owning_session"`
	InvoiceTriggered bool              `json:"invoice_triggered"`
	CreatedAt        time.Time         `json:"created_at"`
	Events           []EventView       `json:"events,omitempty"`
	Items            []ItemView        `json:"items,omitempty"`
}

// EventView is one settlement event in a read model.
type EventView struct {
	Seq        int       `json:"seq"`
	Amount     string    `json:"amount"`
	Method     string    `json:"method"`
	RecordedBy string    `json:"recorded_by"`
	SessionID  string    `json:"session_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Note       string    `json:"note,omitempty"`
}

// ItemView is one line item in a read model.
type ItemView struct {
	Seq         int               `json:"seq"`
	Description string            `json:"description,omitempty"`
	PayerName   string            `json:"payer_name,omitempty"`
	ActDate     string            `json:"act_date,omitempty"`
	Amount      string            `json:"amount"`
	Taxes       map[string]string `json:"taxes,omitempty"`
}

// BuildLedgerView derives the read model from a ledger at the given moment.
// withHistory controls whether events and items are included.
func BuildLedgerView(led *reconcile.Ledger, now time.Time, withHistory bool) LedgerView {
	view := LedgerView{
		ID:               string(led.ID()),
		Routine:          led.Routine(),
		ProtocolKey:      led.ProtocolKey(),
		Description:      led.Description(),
		PayerName:        led.PayerName(),
		OriginStatus:     led.OriginStatus(),
		Quantity:         led.Quantity(),
		AmountDue:        money.Format(led.AmountDue()),
		AmountReceived:   money.Format(led.AmountReceived()),
		BalanceRemaining: money.Format(led.BalanceRemaining()),
		PercentSettled:   led.PercentSettled().StringFixed(2),
		TaxBreakdown:     formatTaxes(led.TaxBreakdown()),
		Status:           string(led.EffectiveStatus(now)),
		DueDate:          led.DueDate(),
		OwningSession:    string(led.OwningSession()),
		InvoiceTriggered: led.InvoiceTriggered(),
		CreatedAt:        led.CreatedAt(),
	}
	if !withHistory {
		return view
	}
	for _, ev := range led.Events() {
		view.Events = append(view.Events, EventView{
			Seq:        ev.Seq,
			Amount:     money.Format(ev.Amount),
			Method:     ev.Method,
			RecordedBy: ev.RecordedBy,
			SessionID:  string(ev.SessionID),
			RecordedAt: ev.RecordedAt,
			Note:       ev.Note,
		})
	}
	for _, item := range led.Items() {
		view.Items = append(view.Items, ItemView{
			Seq:         item.Seq,
			Description: item.Description,
			PayerName:   item.PayerName,
			ActDate:     item.ActDate,
			Amount:      money.Format(item.Amount),
			Taxes:       formatTaxes(item.Taxes),
		})
	}
	return view
}

func formatTaxes(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = money.Format(v)
	}
	return out
}
