package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-api/internal/auth"
	"expense-api/internal/lib/logger"
	"expense-api/internal/models"
	"expense-api/internal/services"
	"expense-api/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	log          *slog.Logger
	db           *storage.DB
	users        *services.Directory
	categories   *services.Categories
	ledger       *services.Ledger
	budgets      *services.Budgets
	sessionTTL   time.Duration
	secureCookie bool
}

// Options configures NewHandlers.
type Options struct {
	Secret             string
	FrontendURL        string
	SessionTTL         time.Duration
	VerificationMaxAge time.Duration
	SecureCookie       bool
}

// NewHandlers wires the services on top of db.
func NewHandlers(log *slog.Logger, db *storage.DB, opts Options) *Handlers {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = SessionDuration
	}
	verifier := services.NewVerifier(opts.Secret, opts.VerificationMaxAge)
	return &Handlers{
		log:          log,
		db:           db,
		users:        services.NewDirectory(log, db, verifier, opts.FrontendURL),
		categories:   services.NewCategories(log, db),
		ledger:       services.NewLedger(log, db),
		budgets:      services.NewBudgets(log, db),
		sessionTTL:   opts.SessionTTL,
		secureCookie: opts.SecureCookie,
	}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// sessionToken returns the session token from the cookie or, failing that,
// from an Authorization: Bearer header.
func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return bearerToken(r), false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		sessionInfo, err := h.db.ValidateSessionWithInfo(r.Context(), token)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				h.log.Error("failed to validate session", logger.Err(err), slog.String("request_id", middleware.GetReqID(r.Context())))
			}
			if fromCookie {
				h.clearSessionCookie(w)
			}
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		// Rolling session: renew once past the halfway point so active users
		// stay logged in while idle sessions still expire.
		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < h.sessionTTL/2 {
			if err := h.db.RenewSession(r.Context(), token, now.Add(h.sessionTTL)); err != nil {
				h.log.Warn("failed to renew session", slog.Int64("user_id", sessionInfo.User.ID), logger.Err(err))
			} else if fromCookie {
				h.setSessionCookie(w, token)
			}
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Register creates an account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	reg, err := h.users.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeError(w, r, err, "Registration failed")
		return
	}

	resp := map[string]any{
		"message": "User registered",
		"user_id": reg.User.ID,
	}
	if reg.VerificationLink != "" {
		resp["verification_link"] = reg.VerificationLink
	}
	writeJSON(w, http.StatusCreated, resp)
}

// VerifyEmail redeems the token from the query string.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, r, err, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email verified",
		"user_id": u.ID,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and opens a session. The token is returned in the
// body for API clients and set as a cookie for browsers.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), username, req.Password)
	if err != nil {
		h.writeError(w, r, err, "Login failed")
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.writeError(w, r, err, "Login failed")
		return
	}
	if err := h.db.CreateSession(r.Context(), token, user.ID, time.Now().Add(h.sessionTTL)); err != nil {
		h.writeError(w, r, err, "Login failed")
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user_id": user.ID,
		"token":   token,
	})
}

// Logout ends the current session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := sessionToken(r)
	if err := h.db.DeleteSession(r.Context(), token); err != nil {
		h.log.Warn("failed to delete session", logger.Err(err))
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// DeleteAccount removes the signed-in user and everything the user owns.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		h.writeError(w, r, err, "Failed to delete account")
		return
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}

// Health reports whether the database is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Error("health check failed", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeBody(r, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	writeServiceError(h.log, w, r, err, fallback)
}

// writeServiceError maps a service error onto a status code. Server-side
// failures are logged and answered with fallback only.
func writeServiceError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(fallback,
			logger.Err(err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		writeJSONError(w, status, fallback)
		return
	}

	msg := services.PublicMessage(err)
	if msg == "" {
		msg = fallback
	}
	writeJSONError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), services.IsTokenError(err):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid "+strings.ReplaceAll(name, "_", " "))
		return 0, false
	}
	return id, true
}

// scalar accepts a JSON string, number or boolean and keeps its text, so
// "150", 150 and 150.0 all reach validation the same way. null is empty.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = scalar(v)
	default:
		*s = scalar(b)
	}
	return nil
}

func (s scalar) String() string {
	return strings.TrimSpace(string(s))
}

// optionalID parses an id field that may be absent.
func optionalID(field string, s scalar) (*int64, error) {
	if s.String() == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s.String(), 10, 64)
	if err != nil {
		return nil, &services.FormatError{Field: field, Err: err}
	}
	return &id, nil
}
