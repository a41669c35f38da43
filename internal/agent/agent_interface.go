package agent

import (
	"context"
	"iter"
)

// KnowledgeAgent produces monument-related answers as a stream of reply
// fragments. Implementations may consult a web-search capability before
// answering; the conversation-level behavior (stay on topic, search first,
// solicit an email only once the conversation has progressed) is a prompt
// contract, not something callers can enforce mechanically.
type KnowledgeAgent interface {
	Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Reply, error]

	// Close releases resources.
	Close() error
}

var (
	_ KnowledgeAgent = (*GeminiAgent)(nil)
	_ KnowledgeAgent = (*DisabledAgent)(nil)
)
