// Package httptransport is the thin HTTP layer over the authentication
// service. Handlers decode, validate and delegate; business rules stay in the
// service. The session cookie carries only the opaque session id, never the
// raw tokens.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"portico/internal/identity/models"
	"portico/internal/identity/service"
	"portico/internal/identity/token"
	"portico/internal/platform/middleware"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
	"portico/pkg/platform/httputil"
	"portico/pkg/validation"
)

// AuthService defines the authentication operations the handlers delegate to.
type AuthService interface {
	SignIn(ctx context.Context, email, password, originIP, userAgent string) (*service.Result, error)
	Refresh(ctx context.Context, email, presented, originIP string) (*service.Result, error)
	SignOut(ctx context.Context, session *models.Session, originIP string) error
	ForgotPassword(ctx context.Context, email, originIP string) error
	ValidateResetToken(ctx context.Context, resetToken string) error
	ResetPassword(ctx context.Context, resetToken, newPassword, originIP string) error
	VerifyEmail(ctx context.Context, verificationToken, password, originIP string) error
}

// SessionResolver turns the opaque cookie value back into a session record.
type SessionResolver interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// ClaimsParser reads identity claims out of a stored access token. The
// refresh flow tolerates an expired token; only the signature must hold.
type ClaimsParser interface {
	ParseExpired(tokenString string) (*token.AccessClaims, error)
}

const defaultCookieName = "portico_session"

// Handler handles the authentication endpoints.
type Handler struct {
	auth     AuthService
	sessions SessionResolver
	claims   ClaimsParser
	logger   *slog.Logger

	cookieName   string
	cookieMaxAge int
	secureCookie bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithCookie overrides the session cookie name and lifetime in seconds.
func WithCookie(name string, maxAge int) HandlerOption {
	return func(h *Handler) {
		if name != "" {
			h.cookieName = name
		}
		if maxAge > 0 {
			h.cookieMaxAge = maxAge
		}
	}
}

// WithInsecureCookie drops the Secure flag for local development over plain
// HTTP.
func WithInsecureCookie() HandlerOption {
	return func(h *Handler) {
		h.secureCookie = false
	}
}

// New creates the auth Handler.
func New(auth AuthService, sessions SessionResolver, claims ClaimsParser, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		auth:         auth,
		sessions:     sessions,
		claims:       claims,
		logger:       logger,
		cookieName:   defaultCookieName,
		cookieMaxAge: 30 * 24 * 60 * 60,
		secureCookie: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSignIn implements POST /auth/sign-in.
//
// Input: { "email": "...", "password": "..." }
// Output: the user response plus a session cookie holding the opaque id.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.auth.SignIn(ctx, req.Email, req.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WarnContext(ctx, "sign-in rejected",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	httputil.WriteJSON(w, http.StatusOK, userResponseFrom(result))
}

// HandleRefresh implements POST /auth/refresh. The session cookie identifies
// the caller; the stored access token supplies the identity claim and the
// stored refresh token is the one presented for rotation. No request body.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	claims, err := h.claims.ParseExpired(session.AccessToken)
	if err != nil {
		h.clearSessionCookie(w)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session is not valid"))
		return
	}

	result, err := h.auth.Refresh(ctx, claims.Email, session.RefreshToken, middleware.ClientIP(r))
	if err != nil {
		h.logger.WarnContext(ctx, "refresh rejected",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		h.clearSessionCookie(w)
		httputil.WriteError(w, err)
		return
	}

	// The session id survives an in-place update but changes when the
	// session had to be re-created; re-issue the cookie either way.
	h.setSessionCookie(w, result.Session.ID)
	httputil.WriteJSON(w, http.StatusOK, userResponseFrom(result))
}

// HandleSignOut implements DELETE /auth/sign-out. Signing out without a live
// session still succeeds and clears the cookie.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		h.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sessionID, err := id.ParseSessionID(cookie.Value)
	if err != nil {
		h.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	session, err := h.sessions.FindByID(ctx, sessionID)
	if err != nil {
		h.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.auth.SignOut(ctx, session, middleware.ClientIP(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleForgotPassword implements POST /auth/forgot-password. The response is
// 202 regardless of whether the address is known.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.auth.ForgotPassword(ctx, req.Email, middleware.ClientIP(r)); err != nil {
		h.logger.ErrorContext(ctx, "forgot-password failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleValidateResetToken implements GET /auth/reset-password/{token}. The
// portal probes it before rendering the reset form; the token is not
// consumed.
func (h *Handler) HandleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	resetToken := chi.URLParam(r, "token")
	if err := h.auth.ValidateResetToken(r.Context(), resetToken); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPassword implements POST /auth/reset-password.
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.auth.ResetPassword(ctx, req.Token, req.Password, middleware.ClientIP(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyEmail implements POST /auth/verify-email. Verification and
// initial password setting happen in one step for invited users.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.auth.VerifyEmail(ctx, req.Token, req.Password, middleware.ClientIP(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		return false
	}
	return true
}

// resolveSession reads the session cookie and loads its record. Any failure
// collapses to a uniform unauthorized response with the cookie cleared.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return nil, false
	}
	sessionID, err := id.ParseSessionID(cookie.Value)
	if err != nil {
		h.clearSessionCookie(w)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return nil, false
	}
	session, err := h.sessions.FindByID(r.Context(), sessionID)
	if err != nil {
		h.clearSessionCookie(w)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return nil, false
	}
	return session, true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID id.SessionID) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sessionID.String(),
		Path:     "/",
		MaxAge:   h.cookieMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
