package audit

import "time"

// Event is emitted from the authentication flows to capture key actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	UserID    string
	Action    string
	OriginIP  string
	Detail    string
}

type Action string

const (
	EventLoginSucceeded         Action = "login_succeeded"
	EventLoginFailedCredentials Action = "login_failed_credentials"
	EventLoginFailedUnverified  Action = "login_failed_unverified"
	EventTokenRefreshed         Action = "token_refreshed"
	EventReplayDetected         Action = "replay_detected"
	EventSignedOut              Action = "signed_out"
	EventEmailVerified          Action = "email_verified"
	EventPasswordResetRequested Action = "password_reset_requested"
	EventPasswordReset          Action = "password_reset"
	EventSessionsPruned         Action = "sessions_pruned"
	EventTokensPruned           Action = "tokens_pruned"
)
