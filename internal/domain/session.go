// Package domain contains core domain types for the Monuments Bot.
package domain

import (
	"time"
)

// VerificationState names a position in the email-verification flow.
type VerificationState string

const (
	// StateAwaitingEmail means no email has been accepted yet.
	StateAwaitingEmail VerificationState = "awaiting_email"
	// StateAwaitingOTP means an OTP has been dispatched and not yet matched.
	StateAwaitingOTP VerificationState = "awaiting_otp"
	// StateVerified is terminal; the session accepts no further routing.
	StateVerified VerificationState = "verified"
)

// Session holds per-conversation verification state. One Session per thread.
//
// IssuedCode is generated once at creation and never changes for the
// session's lifetime; a fresh code only appears via an explicit reset that
// replaces the whole Session. BoundEmail is set at most once, when an email
// is first accepted and its OTP dispatch succeeds.
type Session struct {
	ThreadID            string    `json:"thread_id"`
	IssuedCode          string    `json:"-"`
	VerificationStarted bool      `json:"verification_started"`
	BoundEmail          string    `json:"-"`
	IsVerified          bool      `json:"is_verified"`
	Active              bool      `json:"session_active"`
	CreatedAt           time.Time `json:"-"`
	LastTurnAt          time.Time `json:"-"`
}

// State derives the verification state machine position from the flags.
// IsVerified implies VerificationStarted, so the checks are ordered.
func (s *Session) State() VerificationState {
	switch {
	case s.IsVerified:
		return StateVerified
	case s.VerificationStarted:
		return StateAwaitingOTP
	default:
		return StateAwaitingEmail
	}
}

// IdleFor reports how long the session has gone without a turn.
func (s *Session) IdleFor(now time.Time) time.Duration {
	last := s.LastTurnAt
	if last.IsZero() {
		last = s.CreatedAt
	}
	return now.Sub(last)
}

// Clone returns a copy so callers outside the store cannot mutate shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
