// Package service orchestrates the authentication flows: sign-in, token
// refresh, sign-out, email verification and the forgot/reset password pair.
// It owns no persistence or crypto of its own; stores, the refresh token
// ledger and the signer are injected behind narrow interfaces.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"portico/internal/audit"
	"portico/internal/identity/email"
	"portico/internal/identity/models"
	"portico/internal/identity/token"
	"portico/internal/platform/metrics"
	id "portico/pkg/domain"
)

// UserStore defines the persistence interface for user data.
// Error Contract: all Find methods return the store's ErrNotFound when the
// entity doesn't exist.
type UserStore interface {
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string) (*models.User, error)
	TokenExists(ctx context.Context, token string) (bool, error)
}

// SessionStore defines the persistence interface for session data.
type SessionStore interface {
	Upsert(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByUserAndIP(ctx context.Context, userID id.UserID, originIP string) (*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
	DeleteAllForUser(ctx context.Context, userID id.UserID) (int, error)
}

// AssignmentStore lists the tenant roles a user holds; they become token
// claims at sign-in and refresh.
type AssignmentStore interface {
	ListAssignmentsForUser(ctx context.Context, userID id.UserID) ([]*models.TenantRoleAssignment, error)
}

// TokenLedger is the refresh token lifecycle: issuance, rotation with replay
// cascade, revocation.
type TokenLedger interface {
	Issue(ctx context.Context, userID id.UserID, originIP string, now time.Time) (*models.RefreshToken, error)
	Rotate(ctx context.Context, presented, originIP string, now time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, presented, originIP, reason string, now time.Time) error
	Lookup(ctx context.Context, presented string) (*models.RefreshToken, error)
}

// AccessSigner mints signed access tokens.
type AccessSigner interface {
	Sign(user *models.User, tenantRoles []models.TenantRoleClaim, now time.Time) (string, error)
	TokenTTL() time.Duration
}

// AuditPublisher records audit events; emission must never block a flow.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// MailQueue schedules outbound mail without blocking.
type MailQueue interface {
	Enqueue(msg email.Message)
}

// Result is what a successful sign-in or refresh hands back to transport.
type Result struct {
	User         *models.User
	TenantRoles  []models.TenantRoleClaim
	AccessToken  string
	RefreshToken string
	Session      *models.Session
}

// Service wires the authentication flows together.
type Service struct {
	users       UserStore
	sessions    SessionStore
	assignments AssignmentStore
	ledger      TokenLedger
	signer      AccessSigner

	resetTokens *token.Generator
	resetTTL    time.Duration

	logger    *slog.Logger
	audits    AuditPublisher
	mail      MailQueue
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	portalURL string
}

const defaultResetTTL = 24 * time.Hour

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audits = publisher
	}
}

func WithMailQueue(queue MailQueue) Option {
	return func(s *Service) {
		s.mail = queue
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithResetTokenTTL bounds the lifetime of password reset tokens.
func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithPortalURL sets the base URL embedded in verification and reset mail.
func WithPortalURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.portalURL = url
		}
	}
}

// New constructs the Service.
func New(
	users UserStore,
	sessions SessionStore,
	assignments AssignmentStore,
	ledger TokenLedger,
	signer AccessSigner,
	opts ...Option,
) *Service {
	svc := &Service{
		users:       users,
		sessions:    sessions,
		assignments: assignments,
		ledger:      ledger,
		signer:      signer,
		resetTokens: token.NewGenerator(users.TokenExists),
		resetTTL:    defaultResetTTL,
		logger:      slog.Default(),
		tracer:      otel.Tracer("portico/identity/service"),
		portalURL:   "http://localhost:4200",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// claimsFor loads the user's persisted tenant roles as token claims.
func (s *Service) claimsFor(ctx context.Context, userID id.UserID) ([]models.TenantRoleClaim, error) {
	assignments, err := s.assignments.ListAssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	flattened := make([]models.TenantRoleAssignment, len(assignments))
	for i, a := range assignments {
		flattened[i] = *a
	}
	return models.ClaimsFromAssignments(flattened), nil
}
