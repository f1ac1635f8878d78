package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/guard"
	"github.com/learngate/apiserver/internal/services"
	"github.com/learngate/apiserver/internal/store"
	"github.com/learngate/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler provides registration, login for both identity classes,
// logout, and the current-session endpoint.
type AuthHandler struct {
	userService *services.UserService
	resolver    *auth.Resolver
	secret      []byte
	tokenTTL    time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, resolver *auth.Resolver, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		resolver:    resolver,
		secret:      []byte(jwtSecret),
		tokenTTL:    defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	guestOnly := guard.Middleware(guard.Policy{RequireAuth: false})

	r.With(guestOnly).Post("/register", handler.Register)
	r.With(guestOnly).Post("/login", handler.Login)
	r.With(guestOnly).Post("/superadmin/login", handler.SuperAdminLogin)
	r.Post("/logout", handler.Logout)
	r.With(guard.Middleware(guard.Policy{RequireAuth: true})).Get("/me", handler.Me)
}

// SessionMiddleware resolves the caller's identity once per request and
// stows the auth context for the guard and the handlers. Slot-backed
// sessions (X-Session-ID) are tried first, then the bearer token. An
// unidentified request proceeds anonymously; route guards decide access.
func (h *AuthHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := h.resolveRequest(r)
		ctx := auth.WithContext(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) resolveRequest(r *http.Request) *auth.Context {
	clientID := strings.TrimSpace(r.Header.Get(sessionIDHeader))
	if clientID != "" {
		authCtx := h.resolver.Resolve(r.Context(), clientID)
		if authCtx.IsAuthenticated() {
			return authCtx
		}
	}

	tokenString, err := bearerToken(r)
	if err != nil {
		return h.resolver.Resolve(r.Context(), clientID)
	}
	subject, err := parseTokenSubject(tokenString, h.secret)
	if err != nil {
		return h.resolver.Resolve(r.Context(), clientID)
	}
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		return h.resolver.Resolve(r.Context(), clientID)
	}
	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil || !user.IsActive {
		return h.resolver.Resolve(r.Context(), clientID)
	}
	return auth.ContextForUser(user, tokenString, h.resolver.Settings())
}

// Register creates a new student account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if _, err := h.userService.GetByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "username already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Username:           req.Username,
		Email:              req.Email,
		Name:               req.Name,
		Phone:              strings.TrimSpace(req.Phone),
		Role:               types.RoleStudent,
		VerificationStatus: types.VerificationPending,
		IsActive:           true,
		PasswordHash:       string(hashed),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	h.persistSession(r, user, token)
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login verifies credentials for an ordinary user and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if user.IsSuperAdmin {
		// Super-admin tier accounts sign in through their own endpoint
		// so the elevated slot pair is the only one they occupy.
		writeError(w, http.StatusForbidden, "use the super admin sign-in")
		return
	}
	h.persistSession(r, user, token)
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// SuperAdminLogin verifies credentials for the separately-privileged tier
// and populates the super-admin session slots.
func (h *AuthHandler) SuperAdminLogin(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !user.IsSuperAdmin {
		writeError(w, http.StatusForbidden, "not a super admin account")
		return
	}
	h.persistSession(r, user, token)
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request) (types.User, string, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return types.User{}, "", false
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return types.User{}, "", false
	}

	user, err := h.userService.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return types.User{}, "", false
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return types.User{}, "", false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return types.User{}, "", false
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "account is deactivated")
		return types.User{}, "", false
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return types.User{}, "", false
	}
	return user, token, true
}

// persistSession writes the session slots for clients that sent a session
// id, so a later resolve reproduces this login.
func (h *AuthHandler) persistSession(r *http.Request, user types.User, token string) {
	clientID := strings.TrimSpace(r.Header.Get(sessionIDHeader))
	if clientID == "" {
		return
	}
	authCtx := h.resolver.Resolve(r.Context(), clientID)
	if user.IsSuperAdmin {
		_ = authCtx.LoginSuperAdmin(r.Context(), user, token)
		return
	}
	_ = authCtx.Login(r.Context(), user, token)
}

// Logout clears the caller's session slots. It always succeeds, whatever
// identity class was active and whatever state the slots are in.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.Header.Get(sessionIDHeader))
	if clientID != "" {
		authCtx := h.resolver.Resolve(r.Context(), clientID)
		authCtx.Logout(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// Me returns the current authenticated user and session kind.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	user, ok := authCtx.User()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		User:        user,
		SessionKind: string(authCtx.Session().Kind),
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type MeResponse struct {
	User        types.User `json:"user"`
	SessionKind string     `json:"session_kind"`
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
