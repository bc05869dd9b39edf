package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// Repository is the Postgres ledger store. Ledgers, settlement events and
// line items live in three tables; settlement writes run in one
// transaction with an optimistic version check on the ledger row.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const ledgerColumns = `
id, tenant_id, routine, protocol_key, description, payer_name, origin_status,
quantity, amount_due, tax_breakdown, due_date, owning_session, status,
invoice_triggered, version, created_at`

// Get loads one ledger with its events and line items.
func (r *Repository) Get(ctx context.Context, tenantID string, id reconcile.LedgerID) (*reconcile.Ledger, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT`+ledgerColumns+`
FROM ledgers
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, string(id))
	state, err := scanLedger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reconcile.ErrLedgerNotFound
		}
		return nil, err
	}
	if state.Events, err = r.loadEvents(ctx, id); err != nil {
		return nil, err
	}
	if state.Items, err = r.loadItems(ctx, id); err != nil {
		return nil, err
	}
	return reconcile.RehydrateLedger(state), nil
}

// CreateBatch persists freshly aggregated ledgers with their line items in
// one transaction.
func (r *Repository) CreateBatch(ctx context.Context, ledgers []*reconcile.Ledger) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, led := range ledgers {
		if led == nil {
			return reconcile.ErrNilLedger
		}
		state := led.State()
		taxes, err := marshalTaxes(state.TaxBreakdown)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO ledgers (
	id, tenant_id, routine, protocol_key, description, payer_name,
	origin_status, quantity, amount_due, tax_breakdown, due_date,
	owning_session, status, invoice_triggered, version, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1,$15
)`,
			string(state.ID), state.TenantID, state.Routine, state.ProtocolKey,
			state.Description, state.PayerName, state.OriginStatus, state.Quantity,
			state.AmountDue, taxes, state.DueDate, string(state.OwningSession),
			string(state.Status), state.InvoiceTriggered, state.CreatedAt)
		if err != nil {
			return fmt.Errorf("ledger repo: insert %s: %w", state.ID, err)
		}

		for _, item := range state.Items {
			itemTaxes, err := marshalTaxes(item.Taxes)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO ledger_items (
	ledger_id, seq, description, payer_name, act_date, amount, taxes
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, string(state.ID), item.Seq, item.Description, item.PayerName, item.ActDate, item.Amount, itemTaxes)
			if err != nil {
				return fmt.Errorf("ledger repo: insert item %s/%d: %w", state.ID, item.Seq, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, led := range ledgers {
		led.MarkPersisted()
	}
	return nil
}

// OpenProtocols reports which keys already have an unresolved ledger for
// the tenant and routine.
func (r *Repository) OpenProtocols(ctx context.Context, tenantID, routine string, keys []string) (map[string]bool, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	open := make(map[string]bool)
	if len(keys) == 0 {
		return open, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT protocol_key
FROM ledgers
WHERE tenant_id = $1
  AND routine = $2
  AND status IN ('PENDING', 'PARTIAL')
  AND protocol_key = ANY($3)`, tenantID, routine, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		open[key] = true
	}
	return open, rows.Err()
}

// AppendEvent persists the newest settlement event together with the new
// status and gate flag. The version check and both writes share one
// transaction, so readers never observe a partial settlement.
func (r *Repository) AppendEvent(ctx context.Context, led *reconcile.Ledger) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if led == nil {
		return reconcile.ErrNilLedger
	}
	events := led.Events()
	if len(events) == 0 {
		return errors.New("ledger repo: no event to append")
	}
	last := events[len(events)-1]

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE ledgers
SET status = $1,
	invoice_triggered = $2,
	version = version + 1
WHERE tenant_id = $3 AND id = $4 AND version = $5`,
		string(led.Status()), led.InvoiceTriggered(),
		led.TenantID(), string(led.ID()), led.Version())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reconcile.ErrVersionConflict
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO settlement_events (
	ledger_id, seq, amount, method, recorded_by, session_id, recorded_at, note
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, string(led.ID()), last.Seq, last.Amount, last.Method, last.RecordedBy,
		string(last.SessionID), last.RecordedAt, last.Note)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	led.MarkPersisted()
	return nil
}

// ReassignSession persists a migration write, version-checked.
func (r *Repository) ReassignSession(ctx context.Context, led *reconcile.Ledger) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if led == nil {
		return reconcile.ErrNilLedger
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE ledgers
SET owning_session = $1,
	version = version + 1
WHERE tenant_id = $2 AND id = $3 AND version = $4 AND status IN ('PENDING', 'PARTIAL')`,
		string(led.OwningSession()), led.TenantID(), string(led.ID()), led.Version())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reconcile.ErrVersionConflict
	}
	led.MarkPersisted()
	return nil
}

// ListUnresolved returns every PENDING/PARTIAL ledger of the tenant.
func (r *Repository) ListUnresolved(ctx context.Context, tenantID string) ([]*reconcile.Ledger, error) {
	return r.listWhere(ctx, tenantID, `AND status IN ('PENDING', 'PARTIAL')`, nil)
}

// List returns the tenant's ledgers matching the filter.
func (r *Repository) List(ctx context.Context, tenantID string, filter reconcile.ListFilter) ([]*reconcile.Ledger, error) {
	where := ""
	var args []any
	next := 2
	if filter.SessionID != "" {
		where += fmt.Sprintf(" AND owning_session = $%d", next)
		args = append(args, string(filter.SessionID))
		next++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", next)
		args = append(args, string(filter.Status))
		next++
	}
	if filter.Routine != "" {
		where += fmt.Sprintf(" AND routine = $%d", next)
		args = append(args, filter.Routine)
	}
	return r.listWhere(ctx, tenantID, where, args)
}

func (r *Repository) listWhere(ctx context.Context, tenantID, where string, args []any) ([]*reconcile.Ledger, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := `
SELECT` + ledgerColumns + `
FROM ledgers
WHERE tenant_id = $1 ` + where + `
ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, append([]any{tenantID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*reconcile.Ledger
	for rows.Next() {
		state, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		if state.Events, err = r.loadEvents(ctx, state.ID); err != nil {
			return nil, err
		}
		result = append(result, reconcile.RehydrateLedger(state))
	}
	return result, rows.Err()
}

// SumEventsBySession returns the exact total collected under a session.
func (r *Repository) SumEventsBySession(ctx context.Context, tenantID string, session reconcile.SessionID) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Zero, errors.New("ledger repo: nil db")
	}
	var total decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, `
SELECT SUM(e.amount)
FROM settlement_events e
JOIN ledgers l ON l.id = e.ledger_id
WHERE l.tenant_id = $1 AND e.session_id = $2`, tenantID, string(session)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// Delete removes a ledger; events and line items cascade via foreign keys.
func (r *Repository) Delete(ctx context.Context, tenantID string, id reconcile.LedgerID) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
DELETE FROM ledgers
WHERE tenant_id = $1 AND id = $2`, tenantID, string(id))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reconcile.ErrLedgerNotFound
	}
	return nil
}

func (r *Repository) loadEvents(ctx context.Context, id reconcile.LedgerID) ([]reconcile.SettlementEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT seq, amount, method, recorded_by, session_id, recorded_at, note
FROM settlement_events
WHERE ledger_id = $1
ORDER BY seq ASC`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []reconcile.SettlementEvent
	for rows.Next() {
		ev := reconcile.SettlementEvent{LedgerID: id}
		var sessionID string
		if err := rows.Scan(&ev.Seq, &ev.Amount, &ev.Method, &ev.RecordedBy, &sessionID, &ev.RecordedAt, &ev.Note); err != nil {
			return nil, err
		}
		ev.SessionID = reconcile.SessionID(sessionID)
		ev.RecordedAt = ev.RecordedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *Repository) loadItems(ctx context.Context, id reconcile.LedgerID) ([]reconcile.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT seq, description, payer_name, act_date, amount, taxes
FROM ledger_items
WHERE ledger_id = $1
ORDER BY seq ASC`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []reconcile.LineItem
	for rows.Next() {
		var item reconcile.LineItem
		var taxes []byte
		if err := rows.Scan(&item.Seq, &item.Description, &item.PayerName, &item.ActDate, &item.Amount, &taxes); err != nil {
			return nil, err
		}
		if item.Taxes, err = unmarshalTaxes(taxes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (reconcile.LedgerState, error) {
	var state reconcile.LedgerState
	var id, owningSession, status string
	var taxes []byte
	var dueDate sql.NullTime
	if err := row.Scan(
		&id,
		&state.TenantID,
		&state.Routine,
		&state.ProtocolKey,
		&state.Description,
		&state.PayerName,
		&state.OriginStatus,
		&state.Quantity,
		&state.AmountDue,
		&taxes,
		&dueDate,
		&owningSession,
		&status,
		&state.InvoiceTriggered,
		&state.Version,
		&state.CreatedAt,
	); err != nil {
		return reconcile.LedgerState{}, err
	}
	state.ID = reconcile.LedgerID(id)
	state.OwningSession = reconcile.SessionID(owningSession)
	state.Status = reconcile.SettlementStatus(status)
	if dueDate.Valid {
		t := dueDate.Time.UTC()
		state.DueDate = &t
	}
	state.CreatedAt = state.CreatedAt.UTC()
	var err error
	if state.TaxBreakdown, err = unmarshalTaxes(taxes); err != nil {
		return reconcile.LedgerState{}, err
	}
	return state, nil
}

func marshalTaxes(in map[string]decimal.Decimal) ([]byte, error) {
	out := make(map[string]string, len(in))
	for field, v := range in {
		out[field] = money.Format(v)
	}
	return json.Marshal(out)
}

func unmarshalTaxes(data []byte) (map[string]decimal.Decimal, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for field, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[field] = d
	}
	return out, nil
}
