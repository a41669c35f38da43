// Package chat composes the per-turn conversation flow: route the message,
// run the verification state machine or the knowledge agent, and persist the
// resulting session state.
package chat

import (
	"github.com/ashureev/monuments-bot/internal/domain"
	"github.com/ashureev/monuments-bot/internal/extract"
)

// Branch names which agent handles the current turn.
type Branch string

const (
	// BranchKnowledge routes to the monument-knowledge agent.
	BranchKnowledge Branch = "knowledge"
	// BranchVerification routes to the email/OTP verification flow.
	BranchVerification Branch = "verification"
)

// Route decides the branch for one turn. A message containing an email or an
// OTP-shaped token routes to verification, as does any turn while
// verification is in progress. Whether a token matches the issued code is
// the verifier's concern, never the router's.
func Route(s *domain.Session, message string) Branch {
	if _, ok := extract.Email(message); ok {
		return BranchVerification
	}
	if _, ok := extract.OTP(message); ok {
		return BranchVerification
	}
	if s.VerificationStarted {
		return BranchVerification
	}
	return BranchKnowledge
}
