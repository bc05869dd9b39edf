package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"cashdesk-cloud/internal/audit"
	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/reconcile/application"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// ImportHandler provides the reconciliation import endpoint.
type ImportHandler struct {
	service     *application.ImportService
	auditLogger audit.Logger
}

// NewImportHandler constructs a handler.
func NewImportHandler(service *application.ImportService, auditLogger audit.Logger) (*ImportHandler, error) {
	if service == nil {
		return nil, errors.New("import handler: nil service")
	}
	return &ImportHandler{service: service, auditLogger: auditLogger}, nil
}

type importRequest struct {
	Routine   string              `json:"routine"`
	SessionID string              `json:"session_id"`
	DueDate   string              `json:"due_date,omitempty"`
	Rows      []map[string]string `json:"rows"`
}

// ServeHTTP handles POST /api/v1/imports.
func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/imports" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req importRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Routine == "" {
		http.Error(w, "routine is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			http.Error(w, "due_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		parsed = parsed.UTC()
		dueDate = &parsed
	}

	rows := make([]reconcile.RawRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, reconcile.RawRow(row))
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	result, err := h.service.Run(r.Context(), tenantID, application.ImportInput{
		Routine:   req.Routine,
		SessionID: req.SessionID,
		DueDate:   dueDate,
		Rows:      rows,
	})
	if err != nil {
		var missing *reconcile.MissingKeyError
		if errors.As(err, &missing) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, reconcile.ErrEmptyTenantID) || errors.Is(err, reconcile.ErrNegativeAmountDue) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)

	h.logAudit(r, tenantID, req.Routine, req.SessionID, result)
}

func (h *ImportHandler) logAudit(r *http.Request, tenantID, routine, sessionID string, result application.ImportResult) {
	if h.auditLogger == nil || tenantID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"routine": routine,
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "import.run",
		ResourceType: "import",
		ResourceID:   routine,
		SessionID:    sessionID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
