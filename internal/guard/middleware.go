package guard

import (
	"encoding/json"
	"net/http"

	"github.com/learngate/apiserver/internal/auth"
)

// Middleware enforces a Policy on an HTTP route. The server resolves the
// session before routing, so the Loading state never occurs here; the
// denial payload names what is required without revealing which condition
// failed.
func Middleware(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.FromContext(r.Context())

			state := State{
				Resolved:      true,
				Authenticated: authCtx.IsAuthenticated(),
			}
			if role, ok := authCtx.UserRole(); ok {
				state.Role = role
			}
			if policy.RequireInstitutionFunctions {
				state.InstitutionEnabled = authCtx.HasInstitutionFunctions(r.Context())
			}

			switch Evaluate(policy, state) {
			case Deny:
				respond(w, http.StatusForbidden, map[string]any{
					"error":         "access denied",
					"requiredRoles": policy.AllowedRoles,
				})
			case AlreadyAuthenticated:
				respond(w, http.StatusConflict, map[string]any{
					"error": "already signed in",
				})
			case InstitutionPrompt:
				respond(w, http.StatusForbidden, map[string]any{
					"error": "institution functions must be enabled for this area",
					"code":  "institution_functions_required",
				})
			case Render:
				next.ServeHTTP(w, r)
			default:
				respond(w, http.StatusServiceUnavailable, map[string]any{
					"error": "session not resolved",
				})
			}
		})
	}
}

func respond(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
