package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cashdesk-cloud/internal/audit"
	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/reconcile/application"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// PaymentHandler provides the payment and batch settlement endpoints.
type PaymentHandler struct {
	service     *application.PaymentService
	auditLogger audit.Logger
}

// NewPaymentHandler constructs a handler.
func NewPaymentHandler(service *application.PaymentService, auditLogger audit.Logger) (*PaymentHandler, error) {
	if service == nil {
		return nil, errors.New("payment handler: nil service")
	}
	return &PaymentHandler{service: service, auditLogger: auditLogger}, nil
}

type paymentRequest struct {
	LedgerID   string `json:"ledger_id"`
	Amount     string `json:"amount,omitempty"`
	Full       bool   `json:"full,omitempty"`
	Method     string `json:"method"`
	RecordedBy string `json:"recorded_by,omitempty"`
	SessionID  string `json:"session_id"`
	Note       string `json:"note,omitempty"`
}

type settleRequest struct {
	LedgerIDs  []string `json:"ledger_ids"`
	Method     string   `json:"method"`
	RecordedBy string   `json:"recorded_by,omitempty"`
	SessionID  string   `json:"session_id"`
	Note       string   `json:"note,omitempty"`
}

// ServeHTTP handles POST /api/v1/payments and /api/v1/payments/settle.
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/payments":
		h.handleApply(w, r)
	case "/api/v1/payments/settle":
		h.handleSettle(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PaymentHandler) handleApply(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.LedgerID == "" {
		http.Error(w, "ledger_id is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if !req.Full && req.Amount == "" {
		http.Error(w, "amount is required unless full is set", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	recordedBy := req.RecordedBy
	if recordedBy == "" {
		recordedBy = auth.SubjectFromContext(r.Context())
	}
	view, err := h.service.Apply(r.Context(), tenantID, application.ApplyInput{
		LedgerID:   req.LedgerID,
		Amount:     req.Amount,
		Full:       req.Full,
		Method:     req.Method,
		RecordedBy: recordedBy,
		SessionID:  req.SessionID,
		Note:       req.Note,
	})
	if err != nil {
		respondPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)

	h.logAudit(r, tenantID, "payment.apply", req.LedgerID, req.SessionID, map[string]any{
		"amount": req.Amount,
		"full":   req.Full,
		"method": req.Method,
		"status": view.Status,
	})
}

func (h *PaymentHandler) handleSettle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req settleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.LedgerIDs) == 0 {
		http.Error(w, "ledger_ids is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	recordedBy := req.RecordedBy
	if recordedBy == "" {
		recordedBy = auth.SubjectFromContext(r.Context())
	}
	views, err := h.service.SettleBatch(r.Context(), tenantID, application.SettleInput{
		LedgerIDs:  req.LedgerIDs,
		Method:     req.Method,
		RecordedBy: recordedBy,
		SessionID:  req.SessionID,
		Note:       req.Note,
	})
	if err != nil {
		respondPaymentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)

	h.logAudit(r, tenantID, "payment.settle_batch", "", req.SessionID, map[string]any{
		"ledger_ids": req.LedgerIDs,
		"method":     req.Method,
		"settled":    len(views),
	})
}

// respondPaymentError maps domain failures onto HTTP statuses. Overpayment
// responses carry the observed balance so the caller can correct the input.
func respondPaymentError(w http.ResponseWriter, err error) {
	var overpay *reconcile.OverpaymentError
	if errors.As(err, &overpay) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "payment exceeds remaining balance",
			"ledger_id":         string(overpay.LedgerID),
			"requested":         overpay.Requested.StringFixed(2),
			"balance_remaining": overpay.Balance.StringFixed(2),
		})
		return
	}
	switch {
	case errors.Is(err, reconcile.ErrLedgerNotFound):
		http.Error(w, "ledger not found", http.StatusNotFound)
	case errors.Is(err, reconcile.ErrAlreadySettled),
		errors.Is(err, reconcile.ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, reconcile.ErrNonPositiveAmount),
		errors.Is(err, reconcile.ErrEmptyTenantID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (h *PaymentHandler) logAudit(r *http.Request, tenantID, action, ledgerID, sessionID string, meta map[string]any) {
	if h.auditLogger == nil || tenantID == "" {
		return
	}
	encoded, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "ledger",
		ResourceID:   ledgerID,
		SessionID:    sessionID,
		Metadata:     encoded,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
