package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cashdesk-cloud/internal/audit"
	"cashdesk-cloud/internal/auth"
	masterdata "cashdesk-cloud/internal/masterdata/domain"
)

// Handler provides cash register master data endpoints.
type Handler struct {
	repo        masterdata.RegisterRepository
	auditLogger audit.Logger
	now         func() time.Time
}

// NewHandler constructs a handler.
func NewHandler(repo masterdata.RegisterRepository, auditLogger audit.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("registers handler: nil repository")
	}
	return &Handler{repo: repo, auditLogger: auditLogger, now: time.Now}, nil
}

// ServeHTTP handles /api/v1/registers and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/registers":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSave(w, r, "")
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/api/v1/registers/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/registers/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodPut:
			h.handleSave(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	registers, err := h.repo.ListByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(registers)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := auth.TenantIDFromContext(r.Context())
	register, err := h.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if register == nil || (tenantID != "" && register.TenantID != tenantID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(register)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var register masterdata.Register
	if err := json.Unmarshal(body, &register); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if id != "" {
		register.ID = id
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" {
		if register.TenantID != "" && register.TenantID != tenantID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		register.TenantID = tenantID
	}
	if err := register.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := h.now().UTC()
	if register.CreatedAt.IsZero() {
		register.CreatedAt = now
	}
	register.UpdatedAt = now
	if err := h.repo.Save(r.Context(), &register); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(register)

	h.logAudit(r, tenantID, register.ID)
}

func (h *Handler) logAudit(r *http.Request, tenantID, registerID string) {
	if h.auditLogger == nil || tenantID == "" {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "register.save",
		ResourceType: "register",
		ResourceID:   registerID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
