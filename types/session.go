package types

// SessionKind discriminates the three session variants.
type SessionKind string

const (
	// SessionAnonymous is the unauthenticated state.
	SessionAnonymous SessionKind = "anonymous"

	// SessionUser is an ordinary authenticated platform user.
	SessionUser SessionKind = "user"

	// SessionSuperAdmin is the separately-privileged tier.
	SessionSuperAdmin SessionKind = "super_admin"
)

// Session is the normalized identity resolved from the persisted session
// slots. Exactly one variant holds at a time: either Kind is
// SessionAnonymous and User/Token are zero, or both are set.
type Session struct {
	Kind  SessionKind `json:"kind"`
	User  User        `json:"user,omitempty"`
	Token string      `json:"-"`
}

// Anonymous is the zero-privilege session.
func Anonymous() Session {
	return Session{Kind: SessionAnonymous}
}

// Authenticated reports whether the session carries a signed-in identity.
func (s Session) Authenticated() bool {
	return s.Kind != SessionAnonymous
}
