// Package guard decides, per navigation or request, whether protected
// content is served. The decision table is pure: it holds no state of its
// own and re-evaluating the same inputs yields the same outcome.
package guard

// Policy is the per-route protection configuration.
type Policy struct {
	// RequireAuth demands a signed-in identity. When false the route is
	// a guest-only surface (login, registration) and an authenticated
	// visitor is bounced instead.
	RequireAuth bool

	// AllowedRoles restricts the route to the named roles. Empty means
	// any authenticated role is acceptable.
	AllowedRoles []string

	// RequireInstitutionFunctions additionally demands the institution
	// feature flag, with a dedicated prompt on failure.
	RequireInstitutionFunctions bool
}

// State is the snapshot of auth-context facts a decision is made from.
type State struct {
	// Resolved is false while session resolution has not completed.
	Resolved bool

	// Authenticated mirrors the auth context's IsAuthenticated.
	Authenticated bool

	// Role is the active user's role; empty when anonymous.
	Role string

	// InstitutionEnabled mirrors HasInstitutionFunctions.
	InstitutionEnabled bool
}

// Decision is the single outcome of evaluating a policy against a state.
type Decision int

const (
	// Loading: resolution pending, no decision made yet.
	Loading Decision = iota

	// Deny: access refused; the response names the required roles but
	// not whether auth or role was the failing condition.
	Deny

	// AlreadyAuthenticated: a guest-only route visited while signed in.
	AlreadyAuthenticated

	// InstitutionPrompt: signed in and role-eligible, but the
	// institution feature flag is off.
	InstitutionPrompt

	// Render: serve the requested content.
	Render
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Deny:
		return "deny"
	case AlreadyAuthenticated:
		return "already_authenticated"
	case InstitutionPrompt:
		return "institution_prompt"
	case Render:
		return "render"
	}
	return "unknown"
}

// Evaluate maps every (policy, state) pair to exactly one Decision.
func Evaluate(policy Policy, state State) Decision {
	if !state.Resolved {
		return Loading
	}
	if policy.RequireAuth && !state.Authenticated {
		return Deny
	}
	if !policy.RequireAuth && state.Authenticated {
		return AlreadyAuthenticated
	}
	if policy.RequireAuth && len(policy.AllowedRoles) > 0 && !roleAllowed(policy.AllowedRoles, state.Role) {
		return Deny
	}
	if policy.RequireInstitutionFunctions && !state.InstitutionEnabled {
		return InstitutionPrompt
	}
	return Render
}

func roleAllowed(allowed []string, role string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
