// Package agent implements the monument-knowledge agent.
package agent

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Roles for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest carries everything the knowledge agent sees for one turn: the
// prior history, the latest user message, and whether email verification is
// in progress so the agent can steer the conversation accordingly.
type ChatRequest struct {
	ThreadID               string
	History                []Message
	Message                string
	VerificationInProgress bool
}

// Reply is one streamed fragment of the agent's answer.
type Reply struct {
	Text      string   `json:"text"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}
