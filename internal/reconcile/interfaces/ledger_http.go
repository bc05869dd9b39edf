package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/observability/metrics"
	"cashdesk-cloud/internal/reconcile/application"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// LedgerHandler serves ledger read models and the receipt export.
type LedgerHandler struct {
	queries *application.QueryService
}

// NewLedgerHandler constructs a handler.
func NewLedgerHandler(queries *application.QueryService) (*LedgerHandler, error) {
	if queries == nil {
		return nil, errors.New("ledger handler: nil query service")
	}
	return &LedgerHandler{queries: queries}, nil
}

// ServeHTTP handles /api/v1/ledgers and subroutes.
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/ledgers":
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/ledgers/"):
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/ledgers/")
		if id, ok := strings.CutSuffix(rest, "/receipt.pdf"); ok {
			h.handleReceipt(w, r, id)
			return
		}
		if strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleGet(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *LedgerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	query := r.URL.Query()
	views, err := h.queries.List(r.Context(), tenantID, application.ListFilter{
		SessionID: query.Get("session_id"),
		Status:    query.Get("status"),
		Routine:   query.Get("routine"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *LedgerHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := auth.TenantIDFromContext(r.Context())
	view, err := h.queries.Get(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, reconcile.ErrLedgerNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (h *LedgerHandler) handleReceipt(w http.ResponseWriter, r *http.Request, id string) {
	started := time.Now()
	tenantID := auth.TenantIDFromContext(r.Context())
	led, err := h.queries.GetLedger(r.Context(), tenantID, id)
	if err != nil {
		metrics.ObserveLedgerExport("pdf", metrics.ResultError, time.Since(started))
		if errors.Is(err, reconcile.ErrLedgerNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := BuildReceiptPDF(led)
	if err != nil {
		metrics.ObserveLedgerExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, "receipt export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveLedgerExport("pdf", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+id+`.pdf"`)
	_, _ = w.Write(data)
}
