package auth

import (
	"context"
	"testing"

	"github.com/learngate/apiserver/types"
)

func authenticatedContext(t *testing.T, user types.User) (*Context, *MemorySlotStore, *MemorySettingsReader) {
	t.Helper()
	store := NewMemorySlotStore()
	settings := NewMemorySettingsReader()
	resolver := NewResolver(store, settings)

	authCtx := resolver.Resolve(context.Background(), testClientID)
	if err := authCtx.Login(context.Background(), user, "token-x"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return authCtx, store, settings
}

func TestAccessorsAnonymous(t *testing.T) {
	resolver := NewResolver(NewMemorySlotStore(), NewMemorySettingsReader())
	authCtx := resolver.Resolve(context.Background(), testClientID)

	if authCtx.IsAuthenticated() {
		t.Fatalf("expected unauthenticated")
	}
	if _, ok := authCtx.UserRole(); ok {
		t.Fatalf("expected no role when anonymous")
	}
	if _, ok := authCtx.UserName(); ok {
		t.Fatalf("expected no name when anonymous")
	}
	if _, ok := authCtx.UserEmail(); ok {
		t.Fatalf("expected no email when anonymous")
	}
	if _, ok := authCtx.UserPhone(); ok {
		t.Fatalf("expected no phone when anonymous")
	}
	if authCtx.HasRole(types.RoleStudent) {
		t.Fatalf("expected HasRole false when anonymous")
	}
	if authCtx.HasAnyRole(types.RoleStudent, types.RoleAdmin) {
		t.Fatalf("expected HasAnyRole false when anonymous")
	}
	if authCtx.HasPermission(types.PermApproveAdmins) {
		t.Fatalf("expected HasPermission false when anonymous")
	}
	if authCtx.HasInstitutionFunctions(context.Background()) {
		t.Fatalf("expected institution functions off when anonymous")
	}
	if _, ok := authCtx.InstitutionData(context.Background()); ok {
		t.Fatalf("expected no institution data when anonymous")
	}
}

func TestAccessorsAuthenticated(t *testing.T) {
	user := types.User{
		ID:       3,
		Username: "nadia",
		Name:     "Nadia O.",
		Email:    "nadia@example.edu",
		Phone:    "+220555",
		Role:     types.RoleModerator,
	}
	authCtx, _, _ := authenticatedContext(t, user)

	if role, ok := authCtx.UserRole(); !ok || role != types.RoleModerator {
		t.Fatalf("unexpected role: %q ok=%v", role, ok)
	}
	if name, ok := authCtx.UserName(); !ok || name != "Nadia O." {
		t.Fatalf("unexpected name: %q ok=%v", name, ok)
	}
	if email, ok := authCtx.UserEmail(); !ok || email != "nadia@example.edu" {
		t.Fatalf("unexpected email: %q ok=%v", email, ok)
	}
	if phone, ok := authCtx.UserPhone(); !ok || phone != "+220555" {
		t.Fatalf("unexpected phone: %q ok=%v", phone, ok)
	}
}

func TestHasRoleAgreesWithSingletonHasAnyRole(t *testing.T) {
	roles := []string{
		types.RoleStudent,
		types.RoleModerator,
		types.RoleAdmin,
		types.RoleSuperAdmin,
		types.RoleSuperModerator,
	}

	for _, actual := range roles {
		authCtx, _, _ := authenticatedContext(t, types.User{ID: 5, Role: actual})
		for _, probe := range roles {
			if authCtx.HasRole(probe) != authCtx.HasAnyRole(probe) {
				t.Fatalf("HasRole and singleton HasAnyRole disagree for actual=%s probe=%s", actual, probe)
			}
		}
	}

	// Anonymous sessions must agree as well.
	anon := NewResolver(NewMemorySlotStore(), NewMemorySettingsReader()).
		Resolve(context.Background(), testClientID)
	for _, probe := range roles {
		if anon.HasRole(probe) != anon.HasAnyRole(probe) {
			t.Fatalf("HasRole and singleton HasAnyRole disagree when anonymous for %s", probe)
		}
	}
}

func TestInstitutionFunctions(t *testing.T) {
	user := types.User{ID: 4, Role: types.RoleStudent}
	authCtx, _, settings := authenticatedContext(t, user)

	if authCtx.HasInstitutionFunctions(context.Background()) {
		t.Fatalf("expected institution functions off with no settings")
	}

	settings.Put(4, types.InstitutionSettings{
		InstitutionFunctionsEnabled: true,
		InstitutionName:             "Unity College",
	})
	if !authCtx.HasInstitutionFunctions(context.Background()) {
		t.Fatalf("expected institution functions on")
	}
	data, ok := authCtx.InstitutionData(context.Background())
	if !ok || data.InstitutionName != "Unity College" {
		t.Fatalf("unexpected institution data: %+v ok=%v", data, ok)
	}
}

func TestLogoutClearsEverySlot(t *testing.T) {
	for _, super := range []bool{false, true} {
		store := NewMemorySlotStore()
		resolver := NewResolver(store, NewMemorySettingsReader())
		authCtx := resolver.Resolve(context.Background(), testClientID)

		user := types.User{ID: 2, Role: types.RoleSuperAdmin, IsSuperAdmin: true}
		var err error
		if super {
			err = authCtx.LoginSuperAdmin(context.Background(), user, "token-sa")
		} else {
			err = authCtx.Login(context.Background(), types.User{ID: 2, Role: types.RoleStudent}, "token-a")
		}
		if err != nil {
			t.Fatalf("login (super=%v): %v", super, err)
		}
		// Session-scoped settings must be cleared too.
		if err := store.Set(context.Background(), slotKey(testClientID, slotSettings), `{"theme":"dark"}`); err != nil {
			t.Fatalf("seed settings slot: %v", err)
		}

		authCtx.Logout(context.Background())

		if authCtx.IsAuthenticated() {
			t.Fatalf("expected unauthenticated after logout (super=%v)", super)
		}
		if n := slotCount(t, store); n != 0 {
			t.Fatalf("expected all slots cleared after logout (super=%v), %d remain", super, n)
		}
		if resolver.Resolve(context.Background(), testClientID).IsAuthenticated() {
			t.Fatalf("expected anonymous resolve after logout (super=%v)", super)
		}
	}
}

func TestSuperAdminLoginPopulatesSeparateSlots(t *testing.T) {
	store := NewMemorySlotStore()
	resolver := NewResolver(store, NewMemorySettingsReader())
	authCtx := resolver.Resolve(context.Background(), testClientID)

	sa := types.User{ID: 1, Role: types.RoleSuperAdmin, IsSuperAdmin: true}
	if err := authCtx.LoginSuperAdmin(context.Background(), sa, "token-sa"); err != nil {
		t.Fatalf("super-admin login: %v", err)
	}

	if _, ok, _ := store.Get(context.Background(), slotKey(testClientID, slotUserToken)); ok {
		t.Fatalf("ordinary token slot should stay empty after super-admin login")
	}
	if _, ok, _ := store.Get(context.Background(), slotKey(testClientID, slotSuperToken)); !ok {
		t.Fatalf("super-admin token slot should be populated")
	}
	if resolver.Resolve(context.Background(), testClientID).Session().Kind != types.SessionSuperAdmin {
		t.Fatalf("expected super-admin session on resolve")
	}
}
