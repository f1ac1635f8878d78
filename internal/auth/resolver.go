package auth

import (
	"context"
	"encoding/json"
	"log"

	"github.com/learngate/apiserver/types"
)

// Resolver turns the persisted session slots for a client into a
// normalized Session. It never fails: corrupt or half-written slot state
// is cleared and degrades to Anonymous.
type Resolver struct {
	store    SlotStore
	settings SettingsReader
}

func NewResolver(store SlotStore, settings SettingsReader) *Resolver {
	return &Resolver{store: store, settings: settings}
}

// Settings exposes the institution settings reader, for callers that build
// slot-less auth contexts from bearer tokens.
func (r *Resolver) Settings() SettingsReader {
	return r.settings
}

// Resolve probes the super-admin slot pair first, then the ordinary pair.
// A pair only counts when both slots are present and the user payload
// parses; anything else is corrupt state, which clears all slots and
// resolves to Anonymous.
func (r *Resolver) Resolve(ctx context.Context, clientID string) *Context {
	authCtx := &Context{
		store:    r.store,
		settings: r.settings,
		clientID: clientID,
		session:  types.Anonymous(),
	}
	if clientID == "" {
		return authCtx
	}

	saToken, saUser, saState := r.probePair(ctx, clientID, slotSuperToken, slotSuperData)
	token, user, ordState := r.probePair(ctx, clientID, slotUserToken, slotUserData)

	if saState == pairCorrupt || ordState == pairCorrupt {
		r.clear(ctx, clientID)
		return authCtx
	}

	switch {
	case saState == pairPresent:
		authCtx.session = types.Session{Kind: types.SessionSuperAdmin, User: saUser, Token: saToken}
	case ordState == pairPresent:
		authCtx.session = types.Session{Kind: types.SessionUser, User: user, Token: token}
	}
	return authCtx
}

type pairState int

const (
	pairAbsent pairState = iota
	pairPresent
	pairCorrupt
)

func (r *Resolver) probePair(ctx context.Context, clientID, tokenSlot, userSlot string) (string, types.User, pairState) {
	token, tokenOK, err := r.store.Get(ctx, slotKey(clientID, tokenSlot))
	if err != nil {
		log.Printf("auth: slot read failed for %s: %v", tokenSlot, err)
		return "", types.User{}, pairAbsent
	}
	raw, userOK, err := r.store.Get(ctx, slotKey(clientID, userSlot))
	if err != nil {
		log.Printf("auth: slot read failed for %s: %v", userSlot, err)
		return "", types.User{}, pairAbsent
	}

	if !tokenOK && !userOK {
		return "", types.User{}, pairAbsent
	}
	// A dangling token without a user (or vice versa) is corrupt state.
	if tokenOK != userOK {
		return "", types.User{}, pairCorrupt
	}

	var user types.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return "", types.User{}, pairCorrupt
	}
	if token == "" || user.ID == 0 {
		return "", types.User{}, pairCorrupt
	}
	return token, user, pairPresent
}

func (r *Resolver) clear(ctx context.Context, clientID string) {
	if err := r.store.Delete(ctx, allSlotKeys(clientID)...); err != nil {
		log.Printf("auth: slot cleanup failed: %v", err)
	}
}
