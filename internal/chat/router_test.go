package chat

import (
	"testing"

	"github.com/ashureev/monuments-bot/internal/domain"
)

func TestRoute(t *testing.T) {
	t.Parallel()

	fresh := &domain.Session{ThreadID: "t1", IssuedCode: "482913", Active: true}
	started := &domain.Session{ThreadID: "t2", IssuedCode: "482913", Active: true, VerificationStarted: true}

	tests := []struct {
		name    string
		session *domain.Session
		message string
		want    Branch
	}{
		{"plain question", fresh, "what should I see near Agra?", BranchKnowledge},
		{"email present", fresh, "sure, abc@xyz.com", BranchVerification},
		{"otp token present", fresh, "111111", BranchVerification},
		{"wrong otp still routes on presence", fresh, "999999", BranchVerification},
		{"verification in progress", started, "anything at all", BranchVerification},
		{"phone number is not an otp", fresh, "call me on 9876543210", BranchKnowledge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Route(tt.session, tt.message); got != tt.want {
				t.Fatalf("Route(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestRouteIsIdempotentForSameState(t *testing.T) {
	t.Parallel()

	s := &domain.Session{ThreadID: "t1", IssuedCode: "482913", Active: true}
	msg := "is the Colosseum worth visiting?"

	first := Route(s, msg)
	for i := 0; i < 10; i++ {
		if got := Route(s, msg); got != first {
			t.Fatalf("routing changed between identical calls: %v then %v", first, got)
		}
	}
}
