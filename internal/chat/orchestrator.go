package chat

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"github.com/ashureev/monuments-bot/internal/agent"
	"github.com/ashureev/monuments-bot/internal/domain"
	"github.com/ashureev/monuments-bot/internal/extract"
	"github.com/ashureev/monuments-bot/internal/session"
	"github.com/ashureev/monuments-bot/internal/store"
	"github.com/ashureev/monuments-bot/internal/verify"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	// ErrSessionNotFound means the thread id is unknown (404-equivalent).
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionTerminated means a turn arrived after the session completed
	// (403-equivalent).
	ErrSessionTerminated = errors.New("session has been terminated")
)

const (
	// terminalReply answers any turn on an already-verified session.
	terminalReply = "Thank you for your verification. Session is complete."

	// processingErrorReply stands in when the knowledge agent fails; the
	// session state is left unchanged so the user can retry.
	processingErrorReply = "Sorry, there was an error processing your request."

	defaultHistoryLimit = 20
)

// TurnResult is the outcome of one conversation turn. Stream yields the
// reply as text fragments; verification replies arrive as one fragment,
// knowledge replies as they stream from the model. Terminated is true when
// this turn completed verification (or hit an already-verified session) and
// the transport should emit its termination signal after the reply.
type TurnResult struct {
	ThreadID   string
	Branch     Branch
	Terminated bool
	Stream     iter.Seq[string]
}

// Orchestrator runs the Router -> {Verification Agent | Knowledge Agent} ->
// reply pipeline for each inbound message and persists the resulting state.
type Orchestrator struct {
	sessions  *session.Manager
	verifier  *verify.Verifier
	knowledge agent.KnowledgeAgent
	repo      store.Repository
	locks     *threadLocks
	history   int
}

// NewOrchestrator wires the conversation pipeline. repo may be store.Noop
// when transcript logging is disabled.
func NewOrchestrator(sessions *session.Manager, verifier *verify.Verifier, knowledge agent.KnowledgeAgent, repo store.Repository) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		verifier:  verifier,
		knowledge: knowledge,
		repo:      repo,
		locks:     newThreadLocks(),
		history:   defaultHistoryLimit,
	}
}

// SetHistoryLimit overrides how many transcript turns feed the knowledge
// agent as history.
func (o *Orchestrator) SetHistoryLimit(n int) {
	if n > 0 {
		o.history = n
	}
}

// Turn processes one inbound (threadID, message) pair.
//
// Session state is applied atomically once the reply is logically
// determined, never fragment-by-fragment: a client disconnect mid-stream on
// the knowledge branch leaves the session exactly as it was.
func (o *Orchestrator) Turn(ctx context.Context, threadID, message string) (*TurnResult, error) {
	lock := o.locks.acquire(threadID)
	defer o.locks.release(threadID, lock)

	s := o.sessions.Get(threadID)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if !s.Active {
		return nil, ErrSessionTerminated
	}

	// Terminal short-circuit: a verified session answers with the session-
	// complete reply and consults neither agent. The session is then torn
	// down so later turns surface ErrSessionTerminated.
	if s.IsVerified {
		o.sessions.Terminate(threadID)
		return &TurnResult{
			ThreadID:   threadID,
			Branch:     BranchVerification,
			Terminated: true,
			Stream:     oneFragment(terminalReply),
		}, nil
	}

	switch Route(s, message) {
	case BranchVerification:
		return o.verificationTurn(ctx, s, message), nil
	default:
		return o.knowledgeTurn(ctx, s, message), nil
	}
}

func (o *Orchestrator) verificationTurn(ctx context.Context, s *domain.Session, message string) *TurnResult {
	out := o.verifier.Step(ctx, s, message)

	updated := o.sessions.Update(s.ThreadID, func(live *domain.Session) {
		if out.BindEmail != "" && !live.VerificationStarted {
			live.BoundEmail = out.BindEmail
			live.VerificationStarted = true
		}
		if out.Verified {
			live.IsVerified = true
		}
	})

	o.recordVerification(ctx, s, message, out)
	o.appendTranscript(ctx, s.ThreadID, message, out.Reply)

	terminated := updated != nil && updated.IsVerified
	if terminated {
		// The reply and the termination signal go out first; the session is
		// dead by the time the next turn arrives.
		o.sessions.Terminate(s.ThreadID)
	}

	return &TurnResult{
		ThreadID:   s.ThreadID,
		Branch:     BranchVerification,
		Terminated: terminated,
		Stream:     oneFragment(out.Reply),
	}
}

func (o *Orchestrator) knowledgeTurn(ctx context.Context, s *domain.Session, message string) *TurnResult {
	history := o.loadHistory(ctx, s.ThreadID)
	req := agent.ChatRequest{
		ThreadID:               s.ThreadID,
		History:                history,
		Message:                message,
		VerificationInProgress: s.VerificationStarted,
	}

	stream := func(yield func(string) bool) {
		var full strings.Builder
		for reply, err := range o.knowledge.Chat(ctx, req) {
			if err != nil {
				slog.Error("Knowledge agent failed", "thread_id", s.ThreadID, "error", err)
				yield(processingErrorReply)
				return
			}
			if reply == nil || reply.Text == "" {
				continue
			}
			full.WriteString(reply.Text)
			if !yield(reply.Text) {
				// Client gone; stop consuming upstream tokens and leave the
				// session untouched.
				return
			}
		}
		o.appendTranscript(ctx, s.ThreadID, message, full.String())
		o.sessions.Update(s.ThreadID, func(*domain.Session) {})
	}

	return &TurnResult{
		ThreadID: s.ThreadID,
		Branch:   BranchKnowledge,
		Stream:   stream,
	}
}

func (o *Orchestrator) loadHistory(ctx context.Context, threadID string) []agent.Message {
	turns, err := o.repo.RecentTurns(ctx, threadID, o.history)
	if err != nil {
		slog.Warn("Failed to load transcript history", "thread_id", threadID, "error", err)
		return nil
	}

	history := make([]agent.Message, 0, len(turns))
	for _, t := range turns {
		role := agent.RoleUser
		if t.Role == agent.RoleAssistant {
			role = agent.RoleAssistant
		}
		history = append(history, agent.Message{Role: role, Content: t.Content})
	}
	return history
}

func (o *Orchestrator) recordVerification(ctx context.Context, s *domain.Session, message string, out verify.Outcome) {
	var event, email string
	_, hasOTP := extract.OTP(message)
	switch {
	case out.Verified:
		event = store.EventVerified
		email = s.BoundEmail
	case out.BindEmail != "":
		event = store.EventOTPDispatched
		email = out.BindEmail
	case s.VerificationStarted && hasOTP:
		event = store.EventOTPRejected
		email = s.BoundEmail
	default:
		return
	}

	if err := o.repo.RecordVerificationEvent(ctx, s.ThreadID, event, email); err != nil {
		slog.Warn("Failed to record verification event", "thread_id", s.ThreadID, "event", event, "error", err)
	}
}

func (o *Orchestrator) appendTranscript(ctx context.Context, threadID, userMessage, assistantReply string) {
	if err := o.repo.AppendTurn(ctx, threadID, agent.RoleUser, userMessage); err != nil {
		slog.Warn("Failed to record user turn", "thread_id", threadID, "error", err)
		return
	}
	if assistantReply == "" {
		return
	}
	if err := o.repo.AppendTurn(ctx, threadID, agent.RoleAssistant, assistantReply); err != nil {
		slog.Warn("Failed to record assistant turn", "thread_id", threadID, "error", err)
	}
}

func oneFragment(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		yield(text)
	}
}
