package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"portico/internal/audit"
	"portico/internal/identity/authz"
	"portico/internal/identity/token"
	id "portico/pkg/domain"
	dErrors "portico/pkg/domain-errors"
	"portico/pkg/platform/httputil"
)

// AccessParser validates a live access token. Unlike the refresh path this is
// the strict parse: an expired token does not authenticate an admin call.
type AccessParser interface {
	Parse(tokenString string) (*token.AccessClaims, error)
}

// AdminChecker is the authorization predicate gate for the admin surface.
type AdminChecker interface {
	IsSystemAdmin(ctx context.Context, subject authz.Subject) (bool, authz.Denial)
	IsSelfOrAdmin(ctx context.Context, subject authz.Subject, targetUserID id.UserID, tenantID id.TenantID) (bool, authz.Denial)
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string) ([]audit.Event, error)
}

// AdminHandler serves the operator endpoints of the portal: per-user audit
// trails. Every route authenticates through the session cookie and gates on
// the authorization predicates.
type AdminHandler struct {
	sessions SessionResolver
	parser   AccessParser
	checker  AdminChecker
	audits   AuditReader
	logger   *slog.Logger

	cookieName string
}

// NewAdmin creates the admin handler.
func NewAdmin(sessions SessionResolver, parser AccessParser, checker AdminChecker, audits AuditReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		parser:     parser,
		checker:    checker,
		audits:     audits,
		logger:     logger,
		cookieName: defaultCookieName,
	}
}

// Register mounts the admin routes.
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/admin/users/{userID}/audit-events", h.HandleListAuditEvents)
}

// HandleListAuditEvents implements GET /admin/users/{userID}/audit-events.
// A user may read their own trail; reading another user's requires the
// system administrator role.
func (h *AdminHandler) HandleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	targetID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	allowed, denial := h.checker.IsSelfOrAdmin(ctx, subject, targetID, id.TenantID{})
	if !allowed {
		h.logger.WarnContext(ctx, "admin audit access denied",
			"subject", subject.UserID.String(),
			"target", targetID.String(),
			"denial", string(denial),
		)
		httputil.WriteError(w, authz.ErrForbidden)
		return
	}

	events, err := h.audits.ListByUser(ctx, targetID.String())
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

// authenticate resolves the session cookie into an authorization subject. The
// stored access token must still be live; when it has expired the caller is
// sent back through the refresh flow.
func (h *AdminHandler) authenticate(w http.ResponseWriter, r *http.Request) (authz.Subject, bool) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return authz.Subject{}, false
	}
	sessionID, err := id.ParseSessionID(cookie.Value)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return authz.Subject{}, false
	}
	session, err := h.sessions.FindByID(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return authz.Subject{}, false
	}

	claims, err := h.parser.Parse(session.AccessToken)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "access token expired"))
		return authz.Subject{}, false
	}
	userID, err := claims.SubjectUserID()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject"))
		return authz.Subject{}, false
	}
	roles, err := claims.DecodeTenantRoles()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims"))
		return authz.Subject{}, false
	}
	return authz.Subject{UserID: userID, Claims: roles}, true
}
