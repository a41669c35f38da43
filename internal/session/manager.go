// Package session provides in-memory session state management, keyed by
// thread id. State lives for the process lifetime only; nothing is persisted.
package session

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ashureev/monuments-bot/internal/domain"
)

// Manager is the session store. A single RWMutex guards the whole map, which
// serializes read-modify-write of any one session record against concurrent
// turns on the same thread.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewManager creates an empty session store.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// Create initializes a fresh session for threadID with a newly issued code
// and returns a copy of it. An existing session for the same thread is
// replaced.
func (m *Manager) Create(threadID string) (*domain.Session, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &domain.Session{
		ThreadID:   threadID,
		IssuedCode: code,
		Active:     true,
		CreatedAt:  now,
		LastTurnAt: now,
	}
	m.sessions[threadID] = s
	slog.Info("Session created", "thread_id", threadID)
	return s.Clone(), nil
}

// Get returns a copy of the session for threadID, or nil if absent.
func (m *Manager) Get(threadID string) *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[threadID].Clone()
}

// Update applies fn to the stored session under the write lock and returns a
// copy of the result. It is a no-op returning nil if the session is absent.
// All state transitions go through here so two concurrent turns on the same
// thread cannot interleave their read-modify-write.
func (m *Manager) Update(threadID string, fn func(*domain.Session)) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[threadID]
	if !ok {
		return nil
	}
	fn(s)
	s.LastTurnAt = m.now()
	return s.Clone()
}

// Terminate marks the session inactive without removing it, so later turns
// can be answered with a session-terminated error rather than not-found.
func (m *Manager) Terminate(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[threadID]; ok {
		s.Active = false
		slog.Info("Session terminated", "thread_id", threadID)
	}
}

// Remove deletes the session entirely.
func (m *Manager) Remove(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[threadID]; ok {
		delete(m.sessions, threadID)
		slog.Info("Session removed", "thread_id", threadID)
	}
}

// Reset replaces the session with a fresh one sharing the same thread id and
// a newly issued code. Used after verification completes so the visible
// thread can start over.
func (m *Manager) Reset(threadID string) (*domain.Session, error) {
	return m.Create(threadID)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than idleFor and returns their
// thread ids.
func (m *Manager) Sweep(idleFor time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	for id, s := range m.sessions {
		if s.IdleFor(now) > idleFor {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// generateCode returns a uniformly random 6-digit code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
