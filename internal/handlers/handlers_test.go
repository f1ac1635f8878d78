package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/services"
	"github.com/learngate/apiserver/internal/store"
	"github.com/learngate/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "handlers-test-secret"

type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user.ID = r.seq
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

type fakeApprovalRepo struct {
	mu       sync.Mutex
	seq      int
	requests map[string]types.ApprovalRequest
	users    *fakeUserRepo
}

func newFakeApprovalRepo(users *fakeUserRepo) *fakeApprovalRepo {
	return &fakeApprovalRepo{requests: map[string]types.ApprovalRequest{}, users: users}
}

func (r *fakeApprovalRepo) Create(ctx context.Context, req types.ApprovalRequest) (types.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	req.ID = fmt.Sprintf("req-%d", r.seq)
	req.CreatedAt = time.Now()
	r.requests[req.ID] = req
	return req, nil
}

func (r *fakeApprovalRepo) Get(ctx context.Context, id string) (types.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return types.ApprovalRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (r *fakeApprovalRepo) List(ctx context.Context, filter store.ApprovalFilter) ([]types.ApprovalRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []types.ApprovalRequest
	for _, req := range r.requests {
		if filter.ApprovalType != "" && req.ApprovalType != filter.ApprovalType {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.UserID != 0 && req.UserID != filter.UserID {
			continue
		}
		matched = append(matched, req)
	}
	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *fakeApprovalRepo) Decide(ctx context.Context, id, status, notes string, reviewedBy int, change *store.RoleChange) (types.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return types.ApprovalRequest{}, store.ErrNotFound
	}
	if req.Status != types.StatusPending {
		return types.ApprovalRequest{}, store.ErrNotPending
	}
	now := time.Now()
	req.Status = status
	req.Notes = notes
	req.ReviewedBy = reviewedBy
	req.ReviewedAt = &now
	r.requests[id] = req

	if change != nil {
		user, err := r.users.GetByID(ctx, change.UserID)
		if err != nil {
			return types.ApprovalRequest{}, err
		}
		user.Role = change.Role
		user.AdminType = change.AdminType
		user.IsSuperAdmin = change.IsSuperAdmin
		user.IsVerified = change.IsVerified
		user.VerificationStatus = change.VerificationStatus
		if _, err := r.users.Update(ctx, user); err != nil {
			return types.ApprovalRequest{}, err
		}
	}
	return req, nil
}

func (r *fakeApprovalRepo) Cancel(ctx context.Context, id string) (types.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return types.ApprovalRequest{}, store.ErrNotFound
	}
	if req.Status != types.StatusPending {
		return types.ApprovalRequest{}, store.ErrNotPending
	}
	now := time.Now()
	req.Status = types.StatusCancelled
	req.ReviewedAt = &now
	r.requests[id] = req
	return req, nil
}

type testEnv struct {
	server   *httptest.Server
	users    *fakeUserRepo
	settings *auth.MemorySettingsReader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	approvals := newFakeApprovalRepo(users)
	settings := auth.NewMemorySettingsReader()
	resolver := auth.NewResolver(auth.NewMemorySlotStore(), settings)

	userService := services.NewUserService(users)
	approvalService := services.NewApprovalService(approvals, nil)

	authHandler := NewAuthHandler(userService, resolver, testSecret)
	approvalHandler := NewApprovalHandler(approvalService)
	documentHandler := NewDocumentHandler(approvalService, nil)
	institutionHandler := NewInstitutionHandler()

	router := chi.NewRouter()
	router.Use(authHandler.SessionMiddleware)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.Route("/approvals", func(r chi.Router) {
		ApprovalRouter(r, approvalHandler, documentHandler)
	})
	router.Route("/institution", func(r chi.Router) {
		InstitutionRouter(r, institutionHandler)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, users: users, settings: settings}
}

func (e *testEnv) seedUser(t *testing.T, user types.User, password string) types.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user.PasswordHash = string(hashed)
	user.IsActive = true
	created, err := e.users.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return created
}

func (e *testEnv) do(t *testing.T, method, path, token, sessionID string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(sessionIDHeader, sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func (e *testEnv) login(t *testing.T, path, username, password, sessionID string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, path, "", sessionID, LoginRequest{
		Username: username,
		Password: password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	var parsed AuthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if parsed.Token == "" {
		t.Fatalf("missing token in login response")
	}
	return parsed.Token
}

func TestRegisterThenMe(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/auth/register", "", "", RegisterRequest{
		Username: "newuser",
		Email:    "newuser@example.com",
		Name:     "New User",
		Password: "secret123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	var created AuthResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if created.User.Role != types.RoleStudent {
		t.Fatalf("new accounts must start as students, got %q", created.User.Role)
	}

	resp, body = env.do(t, http.MethodGet, "/auth/me", created.Token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", resp.StatusCode, body)
	}
	var me MeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me.User.Username != "newuser" {
		t.Fatalf("unexpected user %q", me.User.Username)
	}
	if me.SessionKind != string(types.SessionUser) {
		t.Fatalf("unexpected session kind %q", me.SessionKind)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "alice", Email: "alice@example.com", Name: "Alice", Role: types.RoleStudent}, "rightpass")

	resp, _ := env.do(t, http.MethodPost, "/auth/login", "", "", LoginRequest{
		Username: "alice",
		Password: "wrongpass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", "", LoginRequest{
		Username: "nobody",
		Password: "whatever",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", resp.StatusCode)
	}
}

func TestSuperAdminLoginRejectsOrdinaryAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "alice", Email: "alice@example.com", Name: "Alice", Role: types.RoleStudent}, "pass")

	resp, _ := env.do(t, http.MethodPost, "/auth/superadmin/login", "", "", LoginRequest{
		Username: "alice",
		Password: "pass",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestOrdinaryLoginRejectsSuperAdminAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{
		Username: "root", Email: "root@example.com", Name: "Root",
		Role: types.RoleSuperAdmin, IsSuperAdmin: true,
	}, "pass")

	resp, _ := env.do(t, http.MethodPost, "/auth/login", "", "", LoginRequest{
		Username: "root",
		Password: "pass",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSessionSlotsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "alice", Email: "alice@example.com", Name: "Alice", Role: types.RoleStudent}, "pass")

	const sessionID = "client-abc"
	env.login(t, "/auth/login", "alice", "pass", sessionID)

	// No bearer token; identity comes from the persisted slots alone.
	resp, body := env.do(t, http.MethodGet, "/auth/me", "", sessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me via session status %d: %s", resp.StatusCode, body)
	}

	// Signing in again while a session is live is a guest-only route.
	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", sessionID, LoginRequest{
		Username: "alice",
		Password: "pass",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second login, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/auth/logout", "", sessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/auth/me", "", sessionID, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestApprovalLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "student", Email: "s@example.com", Name: "Student", Role: types.RoleStudent}, "pass")
	env.seedUser(t, types.User{
		Username: "root", Email: "root@example.com", Name: "Root",
		Role: types.RoleSuperAdmin, IsSuperAdmin: true,
		Permissions: []string{types.PermApproveAdmins, types.PermApproveModerators},
	}, "pass")

	studentToken := env.login(t, "/auth/login", "student", "pass", "")
	rootToken := env.login(t, "/auth/superadmin/login", "root", "pass", "")

	resp, body := env.do(t, http.MethodPost, "/approvals", studentToken, "", SubmitApprovalRequest{
		ApprovalType:  types.ApprovalModeratorVerification,
		RequestedRole: types.RoleModerator,
		Reason:        "active in the course forums",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", resp.StatusCode, body)
	}
	var submitted types.ApprovalRequest
	if err := json.Unmarshal(body, &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.Status != types.StatusPending {
		t.Fatalf("expected pending, got %q", submitted.Status)
	}

	// The requester's role never lets them decide; the guard answers first.
	resp, _ = env.do(t, http.MethodPost, "/approvals/"+submitted.ID+"/decide", studentToken, "", DecideRequest{
		Action: "approve",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-deciding role, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/approvals/"+submitted.ID+"/decide", rootToken, "", DecideRequest{
		Action: "approve",
		Notes:  "looks good",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decide status %d: %s", resp.StatusCode, body)
	}
	var decided DecideResponse
	if err := json.Unmarshal(body, &decided); err != nil {
		t.Fatalf("decode decide response: %v", err)
	}
	if decided.Approval.Status != types.StatusApproved {
		t.Fatalf("expected approved, got %q", decided.Approval.Status)
	}

	// Approval mutates the user record in the same operation.
	promoted, err := env.users.GetByUsername(context.Background(), "student")
	if err != nil {
		t.Fatalf("reload promoted user: %v", err)
	}
	if promoted.Role != types.RoleModerator {
		t.Fatalf("expected moderator after approval, got %q", promoted.Role)
	}

	// Deciding a settled request conflicts.
	resp, _ = env.do(t, http.MethodPost, "/approvals/"+submitted.ID+"/decide", rootToken, "", DecideRequest{
		Action: "reject",
		Notes:  "changed my mind",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for settled request, got %d", resp.StatusCode)
	}
}

func TestApprovalListEnvelope(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "student", Email: "s@example.com", Name: "Student", Role: types.RoleStudent}, "pass")
	studentToken := env.login(t, "/auth/login", "student", "pass", "")

	for i := 0; i < 3; i++ {
		resp, body := env.do(t, http.MethodPost, "/approvals", studentToken, "", SubmitApprovalRequest{
			ApprovalType:  types.ApprovalRoleUpgrade,
			RequestedRole: types.RoleModerator,
			Reason:        "please",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit %d status %d: %s", i, resp.StatusCode, body)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/approvals?page=1&limit=2", studentToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", resp.StatusCode, body)
	}
	var listed ApprovalListResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Approvals) != 2 {
		t.Fatalf("expected 2 approvals on page, got %d", len(listed.Approvals))
	}
	if listed.Pagination.TotalCount != 3 || !listed.Pagination.HasNextPage {
		t.Fatalf("unexpected pagination: %+v", listed.Pagination)
	}

	resp, _ = env.do(t, http.MethodGet, "/approvals?page=0", studentToken, "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid page, got %d", resp.StatusCode)
	}
}

func TestApprovalListTypeFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, types.User{Username: "student", Email: "s@example.com", Name: "Student", Role: types.RoleStudent}, "pass")
	studentToken := env.login(t, "/auth/login", "student", "pass", "")

	submissions := []SubmitApprovalRequest{
		{ApprovalType: types.ApprovalRoleUpgrade, RequestedRole: types.RoleModerator, Reason: "please"},
		{ApprovalType: types.ApprovalModeratorVerification, RequestedRole: types.RoleModerator, Reason: "active in forums"},
	}
	for _, submission := range submissions {
		resp, body := env.do(t, http.MethodPost, "/approvals", studentToken, "", submission)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit %s status %d: %s", submission.ApprovalType, resp.StatusCode, body)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/approvals?type="+types.ApprovalRoleUpgrade, studentToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filtered list status %d: %s", resp.StatusCode, body)
	}
	var listed ApprovalListResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode filtered list: %v", err)
	}
	if listed.Pagination.TotalCount != 1 || len(listed.Approvals) != 1 {
		t.Fatalf("expected exactly 1 role_upgrade request, got %d (total %d)",
			len(listed.Approvals), listed.Pagination.TotalCount)
	}
	if listed.Approvals[0].ApprovalType != types.ApprovalRoleUpgrade {
		t.Fatalf("unexpected approval type %q", listed.Approvals[0].ApprovalType)
	}

	resp, _ = env.do(t, http.MethodGet, "/approvals?type=not_a_type", studentToken, "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/approvals?status="+types.StatusPending, studentToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status-filtered list status %d: %s", resp.StatusCode, body)
	}
	listed = ApprovalListResponse{}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode status-filtered list: %v", err)
	}
	if listed.Pagination.TotalCount != 2 {
		t.Fatalf("expected both pending requests, got total %d", listed.Pagination.TotalCount)
	}
}

func TestInstitutionRoutes(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, types.User{Username: "student", Email: "s@example.com", Name: "Student", Role: types.RoleStudent}, "pass")
	token := env.login(t, "/auth/login", "student", "pass", "")

	resp, body := env.do(t, http.MethodGet, "/institution/status", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status %d: %s", resp.StatusCode, body)
	}
	var status map[string]bool
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["institution_functions_enabled"] {
		t.Fatalf("expected institution functions disabled by default")
	}

	resp, body = env.do(t, http.MethodGet, "/institution/settings", token, "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without enrollment, got %d", resp.StatusCode)
	}
	var denial ErrorResponse
	if err := json.Unmarshal(body, &denial); err != nil {
		t.Fatalf("decode denial: %v", err)
	}
	if denial.Code != "institution_functions_required" {
		t.Fatalf("unexpected denial code %q", denial.Code)
	}

	env.settings.Put(user.ID, types.InstitutionSettings{
		InstitutionFunctionsEnabled: true,
		InstitutionName:             "Learngate University",
	})

	resp, body = env.do(t, http.MethodGet, "/institution/settings", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settings status %d: %s", resp.StatusCode, body)
	}
	var settings types.InstitutionSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.InstitutionName != "Learngate University" {
		t.Fatalf("unexpected institution %q", settings.InstitutionName)
	}
}

func TestAnonymousApprovalAccessDenied(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/approvals", "", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous list, got %d", resp.StatusCode)
	}
}
