package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/auth"
)

const timeLayout = time.RFC3339

// CollectionsHandler serves settlement event report queries: every payment
// recorded under the tenant in a time window, joined with its ledger.
type CollectionsHandler struct {
	db *sql.DB
}

// NewCollectionsHandler constructs a CollectionsHandler.
func NewCollectionsHandler(db *sql.DB) *CollectionsHandler {
	return &CollectionsHandler{db: db}
}

// ServeHTTP handles GET /api/v1/reports/collections.
func (h *CollectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "tenant is required", http.StatusForbidden)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	rows, err := queryCollections(r.Context(), h.db, tenantID, sessionID, from, to)
	if err != nil {
		http.Error(w, "query collections error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// ExportCollectionsCSVHandler serves collection report CSV exports.
type ExportCollectionsCSVHandler struct {
	db *sql.DB
}

// NewExportCollectionsCSVHandler constructs a ExportCollectionsCSVHandler.
func NewExportCollectionsCSVHandler(db *sql.DB) *ExportCollectionsCSVHandler {
	return &ExportCollectionsCSVHandler{db: db}
}

// ServeHTTP handles GET /api/v1/exports/collections.csv.
func (h *ExportCollectionsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "tenant is required", http.StatusForbidden)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	rows, err := queryCollections(r.Context(), h.db, tenantID, sessionID, from, to)
	if err != nil {
		http.Error(w, "query collections error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"ledger_id",
		"seq",
		"protocol_key",
		"routine",
		"amount",
		"method",
		"recorded_by",
		"session_id",
		"recorded_at",
	})
	for _, row := range rows {
		_ = writer.Write([]string{
			row.LedgerID,
			strconv.Itoa(row.Seq),
			row.ProtocolKey,
			row.Routine,
			row.Amount,
			row.Method,
			row.RecordedBy,
			row.SessionID,
			row.RecordedAt.Format(timeLayout),
		})
	}
	writer.Flush()
}

type collectionRow struct {
	LedgerID    string    `json:"ledger_id"`
	Seq         int       `json:"seq"`
	ProtocolKey string    `json:"protocol_key"`
	Routine     string    `json:"routine"`
	Amount      string    `json:"amount"`
	Method      string    `json:"method"`
	RecordedBy  string    `json:"recorded_by"`
	SessionID   string    `json:"session_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func queryCollections(ctx context.Context, db *sql.DB, tenantID, sessionID string, from, to time.Time) ([]collectionRow, error) {
	query := `
SELECT
	e.ledger_id,
	e.seq,
	l.protocol_key,
	l.routine,
	e.amount,
	e.method,
	e.recorded_by,
	e.session_id,
	e.recorded_at
FROM settlement_events e
JOIN ledgers l ON l.id = e.ledger_id
WHERE l.tenant_id = $1
	AND e.recorded_at >= $2
	AND e.recorded_at < $3`
	args := []any{tenantID, from.UTC(), to.UTC()}
	if sessionID != "" {
		query += `
	AND e.session_id = $4`
		args = append(args, sessionID)
	}
	query += `
ORDER BY e.recorded_at ASC, e.ledger_id ASC, e.seq ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []collectionRow
	for rows.Next() {
		var row collectionRow
		var amount decimal.Decimal
		if err := rows.Scan(
			&row.LedgerID,
			&row.Seq,
			&row.ProtocolKey,
			&row.Routine,
			&amount,
			&row.Method,
			&row.RecordedBy,
			&row.SessionID,
			&row.RecordedAt,
		); err != nil {
			return nil, err
		}
		row.Amount = amount.StringFixed(2)
		row.RecordedAt = row.RecordedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
