package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/session"
	"parley/cmd/security/password"
)

// Handler wires the HTTP auth endpoints to the identity store and the
// session service.
type Handler struct {
	log       *slog.Logger
	cfg       Config
	users     identity.Store
	sessions  *session.Service
	passwords password.Config
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, passwords password.Config) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("authapi: nil user store")
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	return &Handler{
		log:       log,
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		passwords: passwords,
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/change-password", h.handleChangePassword)
	mux.HandleFunc("/auth/check-username", h.handleCheckUsername)
	mux.HandleFunc("/users", h.handleUsers)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := identity.NormalizeUsername(req.Username)
	if !validUsername(username) {
		writeError(w, http.StatusBadRequest, "invalid_request", "username must be 3-32 characters of letters, digits, '_', '-' or '.'")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid_request", "password does not meet the length policy")
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusConflict, "username_taken", "username is already taken")
			return
		}
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.register.ok", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(user)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := identity.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Login(ctx, now, username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAuthenticationFailed):
			loginAttempts.WithLabelValues("failure").Inc()
			h.log.Info("auth.login.fail", "username", username)
			writeUnauthorized(w)
		case errors.Is(err, session.ErrStoreUnavailable):
			h.log.Error("auth.login.store.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	user, err := h.users.UserByUsername(ctx, username)
	if err != nil {
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	loginAttempts.WithLabelValues("success").Inc()
	h.log.Info("auth.login.ok", "user_id", user.ID)

	h.setRefreshCookie(w, issued.RefreshSecret, now, issued.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		User: toUserResponse(user),
		Token: tokenResponse{
			AccessToken:     issued.AccessToken,
			AccessExpiresAt: issued.AccessExpiresAt,
		},
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// The refresh cookie is the only transport for the secret.
	secret, _ := h.refreshSecretFromCookie(r)
	if secret == "" {
		refreshRejections.Inc()
		writeUnauthorized(w)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Rotate(ctx, now, secret)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionRejected):
			refreshRejections.Inc()
			h.log.Info("auth.refresh.rejected")
			h.clearRefreshCookie(w)
			writeUnauthorized(w)
		case errors.Is(err, session.ErrStoreUnavailable):
			h.log.Error("auth.refresh.store.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	refreshRotations.Inc()

	h.setRefreshCookie(w, issued.RefreshSecret, now, issued.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, refreshResponse{
		Token: tokenResponse{
			AccessToken:     issued.AccessToken,
			AccessExpiresAt: issued.AccessExpiresAt,
		},
	})
}

// handleLogout clears the refresh cookie. The server-side record is left
// to expire or be displaced by the next login; the access token stays
// valid until its own expiry.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword replaces the caller's password after re-verifying
// the current one. All refresh sessions of the user are revoked so that
// stolen refresh cookies die with the old credential; the caller must log
// in again to obtain a new session.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user, ok := IdentityFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	ua, err := h.users.UserAuthByUsername(ctx, user.Username)
	if err != nil {
		h.log.Error("auth.change_password.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	verified, err := h.passwords.Verify(ua.PasswordHash, req.CurrentPassword)
	if err != nil || !verified {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "current password is incorrect")
		return
	}

	hash, err := h.passwords.Hash(req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid_request", "password does not meet the length policy")
		default:
			h.log.Error("auth.change_password.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	if err := h.users.UpdatePassword(ctx, ua.User.ID, hash); err != nil {
		h.log.Error("auth.change_password.update.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if err := h.sessions.RevokeSessions(ctx, now, ua.User.ID); err != nil {
		h.log.Error("auth.change_password.revoke.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	passwordChanges.Inc()
	h.log.Info("auth.change_password.ok", "user_id", ua.User.ID)

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	username := identity.NormalizeUsername(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username is required")
		return
	}

	exists, err := h.users.UsernameExists(r.Context(), username)
	if err != nil {
		h.log.Error("auth.check_username.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, checkUsernameResponse{Exists: exists})
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := IdentityFrom(r.Context()); !ok {
		writeUnauthorized(w)
		return
	}

	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.log.Error("auth.users.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := usersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user, ok := IdentityFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

// ---- helpers ----

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func validUsername(normalized string) bool {
	if len(normalized) < 3 || len(normalized) > 32 {
		return false
	}
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}
