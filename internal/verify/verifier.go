// Package verify implements the email/OTP verification state machine.
//
// A session moves AwaitingEmail -> AwaitingOTP -> Verified. AwaitingOTP
// loops back to itself on a wrong or malformed code; Verified is terminal.
// The only external effect is the OTP dispatch on the AwaitingEmail ->
// AwaitingOTP edge. The issued code itself never appears in a reply.
package verify

import (
	"context"
	"log/slog"

	"github.com/ashureev/monuments-bot/internal/domain"
	"github.com/ashureev/monuments-bot/internal/extract"
	"github.com/ashureev/monuments-bot/internal/mail"
)

// Reply wording follows the bot's established voice.
const (
	replyOTPSent = "I have sent an OTP to your email. Please enter the OTP to verify your email."

	replyEmailInvalid = "The email you have provided is invalid. Please provide a valid email address."

	replyNeedEmail = "Please provide an email address to verify your email."

	replyVerified = "Your email has been verified successfully. Will send you a message soon. Glad to be of help. Have a nice day!"

	replyWrongOTP = "The OTP you have entered is incorrect. Please try again."

	replyMalformedOTP = "That doesn't look like a valid OTP. Please enter the 6-digit code sent to your email."
)

// Outcome describes one verification turn: the reply to show the user and
// the state update to persist.
type Outcome struct {
	Reply string

	// BindEmail is non-empty when the turn accepted an email and dispatched
	// its OTP; the orchestrator binds it and sets VerificationStarted.
	BindEmail string

	// Verified is true when the submitted code matched the issued one.
	Verified bool
}

// Verifier drives the state machine. It holds the OTP dispatch capability
// and nothing else; all session state arrives as input.
type Verifier struct {
	sender mail.Sender
}

// New creates a Verifier using sender for OTP dispatch.
func New(sender mail.Sender) *Verifier {
	return &Verifier{sender: sender}
}

// Step processes one turn for the given session snapshot and message.
//
// A failed dispatch leaves VerificationStarted false and the email unbound,
// so the user can retry with a different address. A wrong code re-prompts
// with no attempt cap.
func (v *Verifier) Step(ctx context.Context, s *domain.Session, message string) Outcome {
	switch s.State() {
	case domain.StateAwaitingEmail:
		return v.stepAwaitingEmail(ctx, s, message)
	case domain.StateAwaitingOTP:
		return stepAwaitingOTP(s, message)
	default:
		// Verified sessions are short-circuited by the orchestrator before
		// reaching the verifier; answer harmlessly if one slips through.
		return Outcome{Reply: replyVerified, Verified: true}
	}
}

func (v *Verifier) stepAwaitingEmail(ctx context.Context, s *domain.Session, message string) Outcome {
	email, ok := extract.Email(message)
	if !ok {
		return Outcome{Reply: replyNeedEmail}
	}

	if err := v.sender.SendOTP(ctx, email, s.IssuedCode); err != nil {
		slog.Warn("OTP dispatch failed", "thread_id", s.ThreadID, "error", err)
		return Outcome{Reply: replyEmailInvalid}
	}

	return Outcome{Reply: replyOTPSent, BindEmail: email}
}

func stepAwaitingOTP(s *domain.Session, message string) Outcome {
	code, ok := extract.OTP(message)
	if !ok {
		return Outcome{Reply: replyMalformedOTP}
	}

	if code != s.IssuedCode {
		slog.Info("Incorrect OTP submitted", "thread_id", s.ThreadID)
		return Outcome{Reply: replyWrongOTP}
	}

	slog.Info("Email verified", "thread_id", s.ThreadID)
	return Outcome{Reply: replyVerified, Verified: true}
}
