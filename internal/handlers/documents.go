package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/services"
	"github.com/learngate/apiserver/internal/storage"
	"github.com/learngate/apiserver/types"
)

// DocumentHandler serves evidence documents attached to approval
// requests. Visibility follows the request itself: the requester and
// deciding authorities can read, and only the requester can upload, and
// only while the request is still pending.
type DocumentHandler struct {
	approvals *services.ApprovalService
	documents *storage.Documents
}

func NewDocumentHandler(approvals *services.ApprovalService, documents *storage.Documents) *DocumentHandler {
	return &DocumentHandler{approvals: approvals, documents: documents}
}

// loadRequest fetches the approval request with the caller's visibility
// rules applied. A false return means the response is already written.
func (h *DocumentHandler) loadRequest(w http.ResponseWriter, r *http.Request) (types.User, types.ApprovalRequest, bool) {
	actor, ok := auth.FromContext(r.Context()).User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, types.ApprovalRequest{}, false
	}
	req, err := h.approvals.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return types.User{}, types.ApprovalRequest{}, false
	}
	return actor, req, true
}

// Upload attaches a document to a pending request. The body is the raw
// document; the filename comes from the query string.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}
	if req.UserID != actor.ID {
		writeError(w, http.StatusForbidden, "only the requester may attach documents")
		return
	}
	if req.Terminal() {
		writeError(w, http.StatusConflict, "request is already "+req.Status)
		return
	}

	filename := r.URL.Query().Get("filename")
	body := http.MaxBytesReader(w, r.Body, storage.MaxDocumentBytes)
	defer body.Close()

	err := h.documents.Save(r.Context(), req.ID, filename, body, r.ContentLength, r.Header.Get("Content-Type"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "document uploaded"})
}

// List returns the documents attached to a request.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	_, req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	infos, err := h.documents.ForRequest(r.Context(), req.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if infos == nil {
		infos = []storage.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": infos})
}

// Download streams a single attached document.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	_, req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	rc, err := h.documents.Open(r.Context(), req.ID, chi.URLParam(r, "filename"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
