package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cashdesk-cloud/internal/audit"
	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/observability/metrics"
	"cashdesk-cloud/internal/session/application"
	session "cashdesk-cloud/internal/session/domain"
)

// BookExporter renders the XLSX ledger book for a session.
type BookExporter interface {
	BuildSessionBook(ctx context.Context, tenantID, sessionID string) ([]byte, error)
}

// Handler provides till session HTTP endpoints.
type Handler struct {
	service         *application.Service
	registerChecker auth.RegisterTenantChecker
	book            BookExporter
	auditLogger     audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, registerChecker auth.RegisterTenantChecker, book BookExporter, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("session handler: nil service")
	}
	return &Handler{service: service, registerChecker: registerChecker, book: book, auditLogger: auditLogger}, nil
}

type openRequest struct {
	RegisterID   string `json:"register_id"`
	OpenedBy     string `json:"opened_by,omitempty"`
	OpeningFloat string `json:"opening_float"`
}

type closeRequest struct {
	ClosedBy       string `json:"closed_by,omitempty"`
	CountedBalance string `json:"counted_balance"`
}

// ServeHTTP handles /api/v1/sessions and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/sessions":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/sessions/open":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleOpen(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/sessions/"):
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
		if id, ok := strings.CutSuffix(rest, "/close"); ok {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.handleClose(w, r, id)
			return
		}
		if id, ok := strings.CutSuffix(rest, "/book.xlsx"); ok {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.handleBook(w, r, id)
			return
		}
		if strings.Contains(rest, "/") || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleGet(w, r, rest)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req openRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RegisterID == "" {
		http.Error(w, "register_id is required", http.StatusBadRequest)
		return
	}
	if req.OpeningFloat == "" {
		http.Error(w, "opening_float is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && h.registerChecker != nil {
		if err := h.registerChecker.EnsureRegisterTenant(r.Context(), tenantID, req.RegisterID); err != nil {
			respondTenantError(w, err)
			return
		}
	}

	openedBy := req.OpenedBy
	if openedBy == "" {
		openedBy = auth.SubjectFromContext(r.Context())
	}
	result, err := h.service.Open(r.Context(), tenantID, application.OpenInput{
		RegisterID:   req.RegisterID,
		OpenedBy:     openedBy,
		OpeningFloat: req.OpeningFloat,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)

	h.logAudit(r, tenantID, "session.open", result.Session.ID, map[string]any{
		"register_id":    req.RegisterID,
		"migrated_count": result.MigratedCount,
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req closeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.CountedBalance == "" {
		http.Error(w, "counted_balance is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	closedBy := req.ClosedBy
	if closedBy == "" {
		closedBy = auth.SubjectFromContext(r.Context())
	}
	view, err := h.service.Close(r.Context(), tenantID, id, application.CloseInput{
		ClosedBy:       closedBy,
		CountedBalance: req.CountedBalance,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)

	h.logAudit(r, tenantID, "session.close", id, map[string]any{
		"counted_balance":  view.CountedBalance,
		"expected_balance": view.ExpectedBalance,
		"difference":       view.Difference,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := auth.TenantIDFromContext(r.Context())
	view, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	views, err := h.service.List(r.Context(), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request, id string) {
	if h.book == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	started := time.Now()
	tenantID := auth.TenantIDFromContext(r.Context())
	if _, err := h.service.Get(r.Context(), tenantID, id); err != nil {
		metrics.ObserveLedgerExport("xlsx", metrics.ResultError, time.Since(started))
		respondSessionError(w, err)
		return
	}
	data, err := h.book.BuildSessionBook(r.Context(), tenantID, id)
	if err != nil {
		metrics.ObserveLedgerExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, "ledger book export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveLedgerExport("xlsx", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-book-`+id+`.xlsx"`)
	_, _ = w.Write(data)
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, session.ErrRegisterBusy),
		errors.Is(err, session.ErrSessionClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func respondTenantError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, auth.ErrTenantMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "tenant check failed", http.StatusInternalServerError)
}

func (h *Handler) logAudit(r *http.Request, tenantID, action, sessionID string, meta map[string]any) {
	if h.auditLogger == nil || tenantID == "" {
		return
	}
	encoded, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "session",
		ResourceID:   sessionID,
		SessionID:    sessionID,
		Metadata:     encoded,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
