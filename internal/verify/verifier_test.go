package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/monuments-bot/internal/domain"
)

type fakeSender struct {
	err   error
	sent  []string
	codes []string
}

func (f *fakeSender) SendOTP(_ context.Context, to, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	f.codes = append(f.codes, code)
	return nil
}

func newSession() *domain.Session {
	return &domain.Session{
		ThreadID:   "t1",
		IssuedCode: "482913",
		Active:     true,
	}
}

func TestAwaitingEmailNoEmailReprompts(t *testing.T) {
	t.Parallel()

	v := New(&fakeSender{})
	out := v.Step(context.Background(), newSession(), "tell me about the Taj Mahal")

	if out.Reply != replyNeedEmail {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.BindEmail != "" || out.Verified {
		t.Fatalf("no state change expected: %+v", out)
	}
}

func TestAwaitingEmailDispatchesOTP(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	v := New(sender)
	out := v.Step(context.Background(), newSession(), "sure, abc@xyz.com")

	if out.Reply != replyOTPSent {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.BindEmail != "abc@xyz.com" {
		t.Fatalf("expected email bound, got %q", out.BindEmail)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "abc@xyz.com" {
		t.Fatalf("expected one dispatch to abc@xyz.com, got %v", sender.sent)
	}
	if sender.codes[0] != "482913" {
		t.Fatalf("dispatched wrong code: %q", sender.codes[0])
	}
}

func TestDispatchFailureLeavesSessionCorrectable(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("smtp: mailbox unavailable")}
	v := New(sender)
	s := newSession()

	out := v.Step(context.Background(), s, "bad@nowhere.example")
	if out.Reply != replyEmailInvalid {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if out.BindEmail != "" {
		t.Fatal("failed dispatch must not bind the email")
	}

	// A second, different address must still be accepted.
	sender.err = nil
	out = v.Step(context.Background(), s, "good@example.com")
	if out.BindEmail != "good@example.com" {
		t.Fatalf("retry with a new address failed: %+v", out)
	}
}

func TestAwaitingOTPTransitions(t *testing.T) {
	t.Parallel()

	v := New(&fakeSender{})
	s := newSession()
	s.VerificationStarted = true
	s.BoundEmail = "abc@xyz.com"

	// Wrong code loops back.
	out := v.Step(context.Background(), s, "111111")
	if out.Reply != replyWrongOTP || out.Verified {
		t.Fatalf("wrong code should re-prompt: %+v", out)
	}

	// Malformed input re-prompts without counting as an attempt.
	out = v.Step(context.Background(), s, "my code is 12345")
	if out.Reply != replyMalformedOTP || out.Verified {
		t.Fatalf("malformed code should re-prompt: %+v", out)
	}

	// Correct code still succeeds after failures; no lockout.
	out = v.Step(context.Background(), s, "482913")
	if !out.Verified || out.Reply != replyVerified {
		t.Fatalf("correct code should verify: %+v", out)
	}
}

func TestRepliesNeverLeakIssuedCode(t *testing.T) {
	t.Parallel()

	v := New(&fakeSender{})
	s := newSession()

	inputs := []string{"hello", "abc@xyz.com", "111111", "482913"}
	for _, in := range inputs {
		out := v.Step(context.Background(), s, in)
		if strings.Contains(out.Reply, s.IssuedCode) {
			t.Fatalf("reply leaked issued code for input %q: %q", in, out.Reply)
		}
		if out.BindEmail != "" {
			s.VerificationStarted = true
			s.BoundEmail = out.BindEmail
		}
		if out.Verified {
			s.IsVerified = true
		}
	}
}
