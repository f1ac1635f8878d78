package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/learngate/apiserver/types"
)

// Context is the single source of truth for the active session of one
// client. Every accessor is total: missing or corrupt underlying data
// degrades to the no-privilege answer rather than failing.
type Context struct {
	store    SlotStore
	settings SettingsReader
	clientID string
	session  types.Session
}

// ContextForUser builds an auth context for a request authenticated by a
// bearer token alone, without persisted slots. Login is unavailable on
// such a context; Logout only resets the in-memory session.
func ContextForUser(user types.User, token string, settings SettingsReader) *Context {
	kind := types.SessionUser
	if user.IsSuperAdmin {
		kind = types.SessionSuperAdmin
	}
	return &Context{
		settings: settings,
		session:  types.Session{Kind: kind, User: user, Token: token},
	}
}

// Session returns the resolved session value.
func (c *Context) Session() types.Session {
	return c.session
}

// IsAuthenticated reports whether any identity is signed in.
func (c *Context) IsAuthenticated() bool {
	return c.session.Authenticated()
}

// User returns the active user, if any.
func (c *Context) User() (types.User, bool) {
	if !c.session.Authenticated() {
		return types.User{}, false
	}
	return c.session.User, true
}

// UserRole returns the active user's role.
func (c *Context) UserRole() (string, bool) {
	if !c.session.Authenticated() {
		return "", false
	}
	return c.session.User.Role, true
}

// UserName returns the active user's display name.
func (c *Context) UserName() (string, bool) {
	if !c.session.Authenticated() {
		return "", false
	}
	return c.session.User.Name, true
}

// UserEmail returns the active user's email address.
func (c *Context) UserEmail() (string, bool) {
	if !c.session.Authenticated() {
		return "", false
	}
	return c.session.User.Email, true
}

// UserPhone returns the active user's phone number.
func (c *Context) UserPhone() (string, bool) {
	if !c.session.Authenticated() {
		return "", false
	}
	return c.session.User.Phone, true
}

// HasRole reports whether the active user holds exactly the given role.
// Always false when anonymous.
func (c *Context) HasRole(role string) bool {
	if !c.session.Authenticated() {
		return false
	}
	return c.session.User.Role == role
}

// HasAnyRole reports whether the active user's role is in the given set.
// Always false when anonymous or for an empty set.
func (c *Context) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the active user carries the capability tag.
func (c *Context) HasPermission(perm string) bool {
	if !c.session.Authenticated() {
		return false
	}
	return c.session.User.HasPermission(perm)
}

// HasInstitutionFunctions reports whether the institution feature flag is
// enabled for the active user. False when anonymous, unset, or unreadable.
func (c *Context) HasInstitutionFunctions(ctx context.Context) bool {
	settings, ok := c.InstitutionData(ctx)
	return ok && settings.InstitutionFunctionsEnabled
}

// InstitutionData returns the active user's institution settings, if
// present and well-formed.
func (c *Context) InstitutionData(ctx context.Context) (types.InstitutionSettings, bool) {
	if !c.session.Authenticated() || c.settings == nil {
		return types.InstitutionSettings{}, false
	}
	return c.settings.Institution(ctx, c.session.User.ID)
}

// Login signs in an ordinary user and persists the pair into the ordinary
// slots so a later Resolve reproduces this session.
func (c *Context) Login(ctx context.Context, user types.User, token string) error {
	return c.login(ctx, types.SessionUser, user, token, slotUserToken, slotUserData)
}

// LoginSuperAdmin signs in a super-admin tier user into the super-admin
// slot pair.
func (c *Context) LoginSuperAdmin(ctx context.Context, user types.User, token string) error {
	return c.login(ctx, types.SessionSuperAdmin, user, token, slotSuperToken, slotSuperData)
}

func (c *Context) login(ctx context.Context, kind types.SessionKind, user types.User, token string, tokenSlot, userSlot string) error {
	if c.store == nil || c.clientID == "" {
		return errors.New("auth: no session slots for this context")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, slotKey(c.clientID, tokenSlot), token); err != nil {
		return err
	}
	if err := c.store.Set(ctx, slotKey(c.clientID, userSlot), string(raw)); err != nil {
		// Do not leave a dangling token behind.
		_ = c.store.Delete(ctx, slotKey(c.clientID, tokenSlot))
		return err
	}
	c.session = types.Session{Kind: kind, User: user, Token: token}
	return nil
}

// Logout resets the session to Anonymous and clears all four persisted
// slots plus session-scoped settings, regardless of which identity class
// was active. Cleanup failures are logged, never propagated.
func (c *Context) Logout(ctx context.Context) {
	c.session = types.Anonymous()
	if c.clientID == "" {
		return
	}
	if err := c.store.Delete(ctx, allSlotKeys(c.clientID)...); err != nil {
		log.Printf("auth: logout cleanup failed: %v", err)
	}
}
