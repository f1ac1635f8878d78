package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/guard"
)

// InstitutionHandler exposes the caller's institution enrollment data.
// The settings store is externally owned; these routes only read it.
type InstitutionHandler struct{}

func NewInstitutionHandler() *InstitutionHandler {
	return &InstitutionHandler{}
}

// InstitutionRouter registers institution routes on the given router.
func InstitutionRouter(r chi.Router, handler *InstitutionHandler) {
	authed := guard.Middleware(guard.Policy{RequireAuth: true})
	enrolled := guard.Middleware(guard.Policy{
		RequireAuth:                 true,
		RequireInstitutionFunctions: true,
	})

	r.With(authed).Get("/status", handler.Status)
	r.With(enrolled).Get("/settings", handler.Settings)
}

// Status reports whether institution functions are enabled for the caller.
func (h *InstitutionHandler) Status(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{
		"institution_functions_enabled": authCtx.HasInstitutionFunctions(r.Context()),
	})
}

// Settings returns the full institution record. The enrollment guard has
// already run, so a missing record here means the flag flipped between
// the guard check and this read; answer with the prompt code either way.
func (h *InstitutionHandler) Settings(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	settings, ok := authCtx.InstitutionData(r.Context())
	if !ok || !settings.InstitutionFunctionsEnabled {
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error: "institution functions are not enabled",
			Code:  "institution_functions_required",
		})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
