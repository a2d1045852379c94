package service

import (
	"context"
	"time"

	"portico/internal/audit"
	"portico/internal/platform/middleware"
	"portico/pkg/platform/attrs"
)

// Observability helpers for logging, auditing, and metrics. These methods
// are on *Service to access logger, audits, and metrics.

func (s *Service) logAudit(ctx context.Context, action audit.Action, attributes ...any) {
	requestID := middleware.GetRequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	s.logger.InfoContext(ctx, string(action), args...)

	if s.audits == nil {
		return
	}
	if err := s.audits.Emit(ctx, audit.Event{
		UserID:   attrs.ExtractString(attributes, "user_id"),
		Action:   string(action),
		OriginIP: attrs.ExtractString(attributes, "origin_ip"),
		Detail:   attrs.ExtractString(attributes, "detail"),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
	}
}

// authFailure records a failed authentication attempt: a warn log with the
// internal reason, an audit event, and the failure counter. The external
// error stays uniform; only these records carry the specifics.
func (s *Service) authFailure(ctx context.Context, action audit.Action, attributes ...any) {
	requestID := middleware.GetRequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	s.logger.WarnContext(ctx, string(action), args...)

	if s.audits != nil {
		if err := s.audits.Emit(ctx, audit.Event{
			UserID:   attrs.ExtractString(attributes, "user_id"),
			Action:   string(action),
			OriginIP: attrs.ExtractString(attributes, "origin_ip"),
			Detail:   attrs.ExtractString(attributes, "detail"),
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to emit auth failure audit event", "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}
}

// observeFlow records flow latency from the given start time.
func (s *Service) observeFlow(flow string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveFlowDuration(flow, time.Since(start).Seconds())
	}
}
