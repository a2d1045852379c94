// Package email assembles and dispatches the transactional mail the
// authentication flows depend on. Delivery is fire-and-forget: flows never
// block on, or fail because of, the mail path.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"portico/pkg/platform/circuit"
)

// Message is a single outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Implementations wrap an SMTP relay or a
// provider SDK; tests and local development use LogMailer.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// IsValidEmail performs lightweight validation of an email address format.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" || parts[1] == "" {
		return false
	}
	if !strings.Contains(parts[1], ".") {
		return false
	}
	return true
}

// VerificationMessage builds the mail carrying a one-time verification token.
func VerificationMessage(to, token, portalURL string) Message {
	return Message{
		To:      to,
		Subject: "Verify your account",
		Body: fmt.Sprintf(
			"Please verify your account by visiting %s/verify-email?token=%s",
			portalURL, token,
		),
	}
}

// ResetMessage builds the mail carrying a one-time password reset token.
func ResetMessage(to, token, portalURL string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"Reset your password by visiting %s/reset-password?token=%s - the link is valid for 24 hours.",
			portalURL, token,
		),
	}
}

// AlreadyRegisteredMessage is sent instead of a verification mail when the
// address is already taken, so registration leaks nothing about existing
// accounts.
func AlreadyRegisteredMessage(to, portalURL string) Message {
	return Message{
		To:      to,
		Subject: "Account already registered",
		Body: fmt.Sprintf(
			"Your email is already registered. If you forgot your password, visit %s/forgot-password.",
			portalURL,
		),
	}
}

// LogMailer writes messages to the structured log instead of delivering
// them. Used in tests and local development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail dispatched",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Queue dispatches messages asynchronously through a buffered channel so the
// authentication flows never wait on delivery. A full buffer drops the
// message with a warning rather than blocking.
type Queue struct {
	mailer   Mailer
	messages chan Message
	wg       sync.WaitGroup
	logger   *slog.Logger
	breaker  *circuit.Breaker
}

// NewQueue starts the dispatch goroutine. Close drains pending messages.
func NewQueue(mailer Mailer, buffer int, logger *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		mailer:   mailer,
		messages: make(chan Message, buffer),
		logger:   logger,
		breaker:  circuit.New("mailer"),
	}
	q.wg.Add(1)
	go q.dispatch()
	return q
}

// dispatch delivers queued messages. A circuit breaker collapses a sustained
// mailer outage into one opened/closed log pair instead of an error per
// message; delivery is still attempted while open so recovery is observed.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for msg := range q.messages {
		err := q.mailer.Send(context.Background(), msg)
		if err == nil {
			if _, change := q.breaker.RecordSuccess(); change.Closed {
				q.logger.Info("mail delivery recovered", "circuit", q.breaker.Name())
			}
			continue
		}

		wasOpen := q.breaker.IsOpen()
		_, change := q.breaker.RecordFailure()
		switch {
		case change.Opened:
			q.logger.Error("mail delivery failing, circuit opened",
				"circuit", q.breaker.Name(),
				"error", err,
			)
		case wasOpen:
			q.logger.Debug("mail delivery still failing",
				"to", msg.To,
				"error", err,
			)
		default:
			q.logger.Error("mail delivery failed",
				"to", msg.To,
				"subject", msg.Subject,
				"error", err,
			)
		}
	}
}

// Enqueue schedules a message for delivery without blocking.
func (q *Queue) Enqueue(msg Message) {
	select {
	case q.messages <- msg:
	default:
		q.logger.Warn("mail buffer full, message dropped",
			"to", msg.To,
			"subject", msg.Subject,
		)
	}
}

// Close stops accepting messages and waits for the dispatcher to drain.
func (q *Queue) Close() {
	close(q.messages)
	q.wg.Wait()
}
