package agent

import (
	"context"
	"iter"
)

const disabledReply = "The monuments researcher is offline right now. " +
	"You can still verify your email: just share your address and I will send you an OTP."

// DisabledAgent stands in when no Gemini API key is configured. The
// verification flow keeps working; knowledge questions get a fixed answer.
type DisabledAgent struct{}

// Chat implements KnowledgeAgent.
func (DisabledAgent) Chat(_ context.Context, _ ChatRequest) iter.Seq2[*Reply, error] {
	return func(yield func(*Reply, error) bool) {
		yield(&Reply{Text: disabledReply}, nil)
	}
}

// Close implements KnowledgeAgent.
func (DisabledAgent) Close() error { return nil }
