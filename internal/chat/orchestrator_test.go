package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/monuments-bot/internal/agent"
	"github.com/ashureev/monuments-bot/internal/domain"
	"github.com/ashureev/monuments-bot/internal/session"
	"github.com/ashureev/monuments-bot/internal/store"
	"github.com/ashureev/monuments-bot/internal/verify"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) SendOTP(_ context.Context, to, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeAgent struct {
	mu        sync.Mutex
	fragments []string
	err       error
	calls     int
}

func (f *fakeAgent) Chat(_ context.Context, _ agent.ChatRequest) iter.Seq2[*agent.Reply, error] {
	f.mu.Lock()
	f.calls++
	fragments, err := f.fragments, f.err
	f.mu.Unlock()

	return func(yield func(*agent.Reply, error) bool) {
		for _, fr := range fragments {
			if !yield(&agent.Reply{Text: fr}, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (f *fakeAgent) Close() error { return nil }

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRepo struct {
	mu     sync.Mutex
	turns  map[string][]store.Turn
	events map[string][]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		turns:  make(map[string][]store.Turn),
		events: make(map[string][]string),
	}
}

func (f *fakeRepo) AppendTurn(_ context.Context, threadID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[threadID] = append(f.turns[threadID], store.Turn{ThreadID: threadID, Role: role, Content: content})
	return nil
}

func (f *fakeRepo) RecentTurns(_ context.Context, threadID string, limit int) ([]store.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := f.turns[threadID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]store.Turn(nil), turns...), nil
}

func (f *fakeRepo) RecordVerificationEvent(_ context.Context, threadID, event, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[threadID] = append(f.events[threadID], event)
	return nil
}

func (f *fakeRepo) DeleteThread(_ context.Context, threadID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.turns[threadID]))
	delete(f.turns, threadID)
	delete(f.events, threadID)
	return n, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

func (f *fakeRepo) turnCount(threadID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns[threadID])
}

type fixture struct {
	sessions *session.Manager
	sender   *fakeSender
	agent    *fakeAgent
	repo     *fakeRepo
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewManager(),
		sender:   &fakeSender{},
		agent:    &fakeAgent{fragments: []string{"The Taj Mahal ", "is in Agra."}},
		repo:     newFakeRepo(),
	}
	f.orch = NewOrchestrator(f.sessions, verify.New(f.sender), f.agent, f.repo)
	return f
}

func (f *fixture) newThread(t *testing.T, threadID string) {
	t.Helper()
	if _, err := f.sessions.Create(threadID); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	f.sessions.Update(threadID, func(s *domain.Session) { s.IssuedCode = "482913" })
}

func collect(t *testing.T, res *TurnResult) string {
	t.Helper()
	var b strings.Builder
	for fr := range res.Stream {
		b.WriteString(fr)
	}
	return b.String()
}

func TestTurnUnknownThread(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.orch.Turn(context.Background(), "missing", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestKnowledgeTurnStreamsAndRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")

	res, err := f.orch.Turn(context.Background(), "t1", "what should I see near Agra?")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if res.Branch != BranchKnowledge || res.Terminated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := collect(t, res); got != "The Taj Mahal is in Agra." {
		t.Fatalf("unexpected reply: %q", got)
	}
	if f.repo.turnCount("t1") != 2 {
		t.Fatalf("expected user+assistant turns recorded, got %d", f.repo.turnCount("t1"))
	}
}

func TestFullVerificationScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	ctx := context.Background()

	// Email turn dispatches the OTP and starts verification.
	res, err := f.orch.Turn(ctx, "t1", "sounds great, abc@xyz.com")
	if err != nil {
		t.Fatalf("email turn failed: %v", err)
	}
	if res.Branch != BranchVerification || res.Terminated {
		t.Fatalf("unexpected email turn result: %+v", res)
	}
	collect(t, res)

	s := f.sessions.Get("t1")
	if !s.VerificationStarted || s.BoundEmail != "abc@xyz.com" {
		t.Fatalf("verification not started: %+v", s)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one OTP dispatch, got %d", len(f.sender.sent))
	}

	// Wrong code loops; no lockout.
	res, err = f.orch.Turn(ctx, "t1", "111111")
	if err != nil {
		t.Fatalf("wrong otp turn failed: %v", err)
	}
	if res.Terminated {
		t.Fatal("wrong OTP must not terminate the session")
	}
	collect(t, res)
	if s := f.sessions.Get("t1"); s.IsVerified {
		t.Fatal("wrong OTP must not verify")
	}

	// Correct code verifies and terminates.
	res, err = f.orch.Turn(ctx, "t1", "482913")
	if err != nil {
		t.Fatalf("correct otp turn failed: %v", err)
	}
	if !res.Terminated {
		t.Fatal("expected termination after correct OTP")
	}
	collect(t, res)

	s = f.sessions.Get("t1")
	if !s.IsVerified || !s.VerificationStarted {
		t.Fatalf("verified session must keep verification_started: %+v", s)
	}
	if s.Active {
		t.Fatal("session should be terminated after verification")
	}

	// Further turns surface the terminated error.
	if _, err := f.orch.Turn(ctx, "t1", "hello again"); !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("expected ErrSessionTerminated, got %v", err)
	}
}

func TestVerifiedSessionShortCircuitsBothAgents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	f.sessions.Update("t1", func(s *domain.Session) {
		s.VerificationStarted = true
		s.IsVerified = true
	})

	res, err := f.orch.Turn(context.Background(), "t1", "one more question about Agra")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if !res.Terminated {
		t.Fatal("expected terminal result")
	}
	if got := collect(t, res); got != terminalReply {
		t.Fatalf("expected terminal reply verbatim, got %q", got)
	}
	if f.agent.callCount() != 0 {
		t.Fatal("knowledge agent must not be consulted after verification")
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no OTP dispatch expected after verification")
	}
}

func TestDispatchFailureKeepsSessionCorrectable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	f.sender.err = errors.New("smtp: mailbox unavailable")

	res, err := f.orch.Turn(context.Background(), "t1", "reach me at bad@nowhere.example")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	collect(t, res)

	s := f.sessions.Get("t1")
	if s.VerificationStarted || s.BoundEmail != "" {
		t.Fatalf("failed dispatch must leave verification unstarted: %+v", s)
	}

	// A different address is still accepted.
	f.sender.err = nil
	res, err = f.orch.Turn(context.Background(), "t1", "try good@example.com instead")
	if err != nil {
		t.Fatalf("retry turn failed: %v", err)
	}
	collect(t, res)
	if s := f.sessions.Get("t1"); s.BoundEmail != "good@example.com" {
		t.Fatalf("retry address not bound: %+v", s)
	}
}

func TestAgentFailureYieldsProcessingErrorAndPreservesState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	f.agent.fragments = nil
	f.agent.err = errors.New("model overloaded")

	res, err := f.orch.Turn(context.Background(), "t1", "tell me about Rome")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if got := collect(t, res); got != processingErrorReply {
		t.Fatalf("expected generic processing error reply, got %q", got)
	}
	if f.repo.turnCount("t1") != 0 {
		t.Fatal("failed turn must not be recorded")
	}
	s := f.sessions.Get("t1")
	if s == nil || !s.Active || s.VerificationStarted {
		t.Fatalf("session state must be unchanged: %+v", s)
	}
}

func TestClientDisconnectMidStreamLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	before := f.sessions.Get("t1")

	res, err := f.orch.Turn(context.Background(), "t1", "what should I see near Agra?")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	// Consume one fragment then walk away, as a closed SSE connection does.
	for range res.Stream {
		break
	}

	if f.repo.turnCount("t1") != 0 {
		t.Fatalf("abandoned turn must not be recorded, got %d turns", f.repo.turnCount("t1"))
	}
	after := f.sessions.Get("t1")
	if after.VerificationStarted != before.VerificationStarted ||
		after.IsVerified != before.IsVerified ||
		after.Active != before.Active ||
		!after.LastTurnAt.Equal(before.LastTurnAt) {
		t.Fatalf("session changed after abandoned stream:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestVerifiedImpliesStartedAcrossTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "t1")
	ctx := context.Background()

	inputs := []string{
		"what about Noida?",
		"not an email",
		"abc@xyz.com",
		"12345",
		"111111",
		"482913",
	}
	for _, in := range inputs {
		res, err := f.orch.Turn(ctx, "t1", in)
		if err != nil {
			t.Fatalf("Turn(%q) failed: %v", in, err)
		}
		collect(t, res)
		s := f.sessions.Get("t1")
		if s.IsVerified && !s.VerificationStarted {
			t.Fatalf("invariant violated after %q: %+v", in, s)
		}
	}
}

func TestConcurrentDistinctThreadsDoNotInterfere(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newThread(t, "a")
	f.newThread(t, "b")
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := f.orch.Turn(ctx, "a", "mail me at a@example.com")
		if err == nil {
			collect(t, res)
		}
	}()
	go func() {
		defer wg.Done()
		res, err := f.orch.Turn(ctx, "b", "tell me about the Louvre")
		if err == nil {
			collect(t, res)
		}
	}()
	wg.Wait()

	a, b := f.sessions.Get("a"), f.sessions.Get("b")
	if !a.VerificationStarted || a.BoundEmail != "a@example.com" {
		t.Fatalf("thread a lost its update: %+v", a)
	}
	if b.VerificationStarted || b.BoundEmail != "" {
		t.Fatalf("thread b picked up thread a's state: %+v", b)
	}
}
