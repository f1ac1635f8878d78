package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/guard"
	"github.com/learngate/apiserver/internal/services"
	"github.com/learngate/apiserver/types"
)

// ApprovalHandler exposes the approval workflow over HTTP. Every route
// requires an authenticated caller; the service re-checks decision
// authority itself, so the role guard on decide is presentation only.
type ApprovalHandler struct {
	approvals *services.ApprovalService
}

func NewApprovalHandler(approvals *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// ApprovalRouter registers approval routes on the given router.
func ApprovalRouter(r chi.Router, handler *ApprovalHandler, documents *DocumentHandler) {
	r.Use(guard.Middleware(guard.Policy{RequireAuth: true}))

	r.Post("/", handler.Submit)
	r.Get("/", handler.List)
	r.Get("/{id}", handler.Get)
	r.Post("/{id}/cancel", handler.Cancel)

	decider := guard.Middleware(guard.Policy{
		RequireAuth:  true,
		AllowedRoles: []string{types.RoleSuperAdmin, types.RoleSuperModerator},
	})
	r.With(decider).Post("/{id}/decide", handler.Decide)

	r.Post("/{id}/documents", documents.Upload)
	r.Get("/{id}/documents", documents.List)
	r.Get("/{id}/documents/{filename}", documents.Download)
}

// SubmitApprovalRequest is the submit request payload.
type SubmitApprovalRequest struct {
	ApprovalType       string `json:"approval_type"`
	RequestedRole      string `json:"requested_role"`
	RequestedAdminType string `json:"requested_admin_type,omitempty"`
	Institution        string `json:"institution,omitempty"`
	Reason             string `json:"reason"`
	AdditionalInfo     string `json:"additional_info,omitempty"`
	Priority           string `json:"priority,omitempty"`
}

// DecideRequest is the decide request payload.
type DecideRequest struct {
	Action    string `json:"action"`
	Notes     string `json:"notes"`
	AdminType string `json:"adminType,omitempty"`
}

// ApprovalListResponse is the list envelope.
type ApprovalListResponse struct {
	Approvals  []types.ApprovalRequest `json:"approvals"`
	Pagination services.Pagination     `json:"pagination"`
}

// DecideResponse wraps a decided request with a human-readable message.
type DecideResponse struct {
	Message  string                `json:"message"`
	Approval types.ApprovalRequest `json:"approval"`
}

// Submit files a new approval request for the authenticated caller.
func (h *ApprovalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.approvals.Submit(r.Context(), actor, services.SubmitInput{
		ApprovalType:       req.ApprovalType,
		RequestedRole:      req.RequestedRole,
		RequestedAdminType: req.RequestedAdminType,
		Institution:        req.Institution,
		Reason:             req.Reason,
		AdditionalInfo:     req.AdditionalInfo,
		Priority:           req.Priority,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns approval requests visible to the caller, paginated.
// Non-deciding callers only ever see their own requests.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, pageSize, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	approvals, pagination, err := h.approvals.List(r.Context(), actor, services.ListInput{
		ApprovalType: r.URL.Query().Get("type"),
		Status:       r.URL.Query().Get("status"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	if approvals == nil {
		approvals = []types.ApprovalRequest{}
	}
	writeJSON(w, http.StatusOK, ApprovalListResponse{Approvals: approvals, Pagination: pagination})
}

// Get returns a single approval request.
func (h *ApprovalHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := h.approvals.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Decide approves or rejects a pending request.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	decided, err := h.approvals.Decide(r.Context(), actor, chi.URLParam(r, "id"), req.Action, req.Notes, req.AdminType)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DecideResponse{
		Message:  "request " + decided.Status,
		Approval: decided,
	})
}

// Cancel withdraws the caller's own pending request.
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cancelled, err := h.approvals.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}
