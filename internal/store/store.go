// Package store provides conversation transcript persistence.
//
// Only transcripts and verification audit events are stored; session
// verification state itself is in-memory only and never survives a restart.
package store

import (
	"context"
	"time"
)

// Turn is one recorded message of a conversation transcript.
type Turn struct {
	ThreadID  string
	Seq       int64
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Verification audit event names.
const (
	EventOTPDispatched = "otp_dispatched"
	EventOTPRejected   = "otp_rejected"
	EventVerified      = "verified"
)

// Repository persists transcripts and verification events.
type Repository interface {
	// AppendTurn records one message for a thread.
	AppendTurn(ctx context.Context, threadID, role, content string) error

	// RecentTurns returns up to limit most recent turns for a thread, oldest
	// first, suitable as agent history.
	RecentTurns(ctx context.Context, threadID string, limit int) ([]Turn, error)

	// RecordVerificationEvent appends an audit event. Email may be empty.
	RecordVerificationEvent(ctx context.Context, threadID, event, email string) error

	// DeleteThread removes all rows for a thread and reports how many
	// transcript turns were deleted.
	DeleteThread(ctx context.Context, threadID string) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying database.
	Close() error
}

// Noop discards everything. Used when transcript logging is disabled.
type Noop struct{}

func (Noop) AppendTurn(context.Context, string, string, string) error { return nil }

func (Noop) RecentTurns(context.Context, string, int) ([]Turn, error) { return nil, nil }

func (Noop) RecordVerificationEvent(context.Context, string, string, string) error { return nil }

func (Noop) DeleteThread(context.Context, string) (int64, error) { return 0, nil }

func (Noop) Ping(context.Context) error { return nil }

func (Noop) Close() error { return nil }
