// Package cleanup periodically sweeps out retired authentication artifacts:
// inactive refresh tokens past their retention window and sessions past the
// maximum age. Active tokens are never touched, whatever their age.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"portico/internal/audit"
	"portico/internal/platform/metrics"
)

// TokenPruner removes inactive refresh tokens created before the cutoff.
type TokenPruner interface {
	Prune(ctx context.Context, cutoff, now time.Time) (int, error)
}

// SessionSweeper removes sessions older than the cutoff and reports how many
// remain.
type SessionSweeper interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// Result summarizes the deletions performed by a sweep.
type Result struct {
	PrunedTokens    int
	DeletedSessions int
}

// Service runs the sweeps on a fixed interval.
type Service struct {
	tokens   TokenPruner
	sessions SessionSweeper

	interval       time.Duration
	tokenRetention time.Duration
	sessionMaxAge  time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	audits  *audit.Publisher
}

// Option configures the Service.
type Option func(*Service)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires the sweep counters and the live sessions gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher emits prune events to the audit trail.
func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) {
		s.audits = p
	}
}

// New constructs a cleanup Service. tokenRetention bounds how long inactive
// refresh tokens are kept for replay-chain walks; sessionMaxAge bounds
// session lifetime.
func New(tokens TokenPruner, sessions SessionSweeper, tokenRetention, sessionMaxAge time.Duration, opts ...Option) (*Service, error) {
	if tokens == nil || sessions == nil {
		return nil, fmt.Errorf("token pruner and session sweeper are required")
	}
	svc := &Service{
		tokens:         tokens,
		sessions:       sessions,
		interval:       5 * time.Minute,
		tokenRetention: tokenRetention,
		sessionMaxAge:  sessionMaxAge,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs sweeps periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "cleanup sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs both sweeps concurrently and aggregates their failures.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := time.Now()
	var res Result

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pruned, err := s.tokens.Prune(gctx, now.Add(-s.tokenRetention), now)
		if err != nil {
			return fmt.Errorf("prune refresh tokens: %w", err)
		}
		res.PrunedTokens = pruned
		return nil
	})

	g.Go(func() error {
		deleted, err := s.sessions.DeleteOlderThan(gctx, now.Add(-s.sessionMaxAge))
		if err != nil {
			return fmt.Errorf("delete stale sessions: %w", err)
		}
		res.DeletedSessions = deleted
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, err
	}

	s.observe(ctx, res)
	return res, nil
}

func (s *Service) observe(ctx context.Context, res Result) {
	if s.metrics != nil {
		s.metrics.AddTokensPruned(res.PrunedTokens)
		s.metrics.AddSessionsPruned(res.DeletedSessions)
		if count, err := s.sessions.Count(ctx); err == nil {
			s.metrics.SetLiveSessions(count)
		}
	}
	if s.audits != nil {
		if res.PrunedTokens > 0 {
			_ = s.audits.Emit(ctx, audit.Event{
				Action: string(audit.EventTokensPruned),
				Detail: strconv.Itoa(res.PrunedTokens),
			})
		}
		if res.DeletedSessions > 0 {
			_ = s.audits.Emit(ctx, audit.Event{
				Action: string(audit.EventSessionsPruned),
				Detail: strconv.Itoa(res.DeletedSessions),
			})
		}
	}
	if res.PrunedTokens > 0 || res.DeletedSessions > 0 {
		s.logger.Info("cleanup sweep completed",
			"pruned_tokens", res.PrunedTokens,
			"deleted_sessions", res.DeletedSessions,
		)
	}
}
