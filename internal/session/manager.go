package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/interviewer/internal/agent"
	"github.com/antoniostano/interviewer/internal/live"
)

var (
	ErrNoActiveSession    = errors.New("session not found")
	ErrSessionStartFailed = errors.New("live session start failed")
)

// Session is one user's open live agent session.
type Session struct {
	ID        string
	UserID    string
	Modality  live.Modality
	StartedAt time.Time

	Queue  *live.RequestQueue
	Events iter.Seq2[*live.Event, error]

	manager *Manager
	once    sync.Once
}

// Release closes the session's queue and drops its registry entry unless a
// newer session for the same user has replaced it. Only the first call has
// any effect.
func (s *Session) Release() {
	s.once.Do(func() {
		s.Queue.Close()
		if s.manager != nil {
			s.manager.remove(s)
		}
	})
}

// Manager tracks at most one live session per user id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	runner   live.Runner
	appName  string
	buffer   int
}

func NewManager(runner live.Runner, appName string, queueBuffer int) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		runner:   runner,
		appName:  appName,
		buffer:   queueBuffer,
	}
}

// Start runs cfg live for userID and registers the session. A session already
// registered for userID is released first, which ends its stream.
func (m *Manager) Start(ctx context.Context, userID string, cfg agent.Config, modality live.Modality) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Modality:  modality,
		StartedAt: time.Now().UTC(),
		Queue:     live.NewRequestQueue(m.buffer),
		manager:   m,
	}

	events, err := m.runner.RunLive(ctx, live.RunRequest{
		AppName:   m.appName,
		UserID:    userID,
		SessionID: s.ID,
		Agent:     cfg,
		Modality:  modality,
		Queue:     s.Queue,
	})
	if err != nil {
		s.Queue.Close()
		return nil, fmt.Errorf("%w: %v", ErrSessionStartFailed, err)
	}
	s.Events = events

	m.mu.Lock()
	old := m.sessions[userID]
	m.sessions[userID] = s
	m.mu.Unlock()

	if old != nil {
		old.Release()
	}
	return s, nil
}

// Get returns the active session for userID.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return s, nil
}

// Queue returns the input queue of the active session for userID.
func (m *Manager) Queue(userID string) (*live.RequestQueue, error) {
	s, err := m.Get(userID)
	if err != nil {
		return nil, err
	}
	return s.Queue, nil
}

// End releases the active session for userID, if any.
func (m *Manager) End(userID string) {
	m.mu.RLock()
	s := m.sessions[userID]
	m.mu.RUnlock()
	if s != nil {
		s.Release()
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll releases every session. Used at shutdown.
func (m *Manager) CloseAll() int {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Release()
	}
	return len(all)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.UserID] == s {
		delete(m.sessions, s.UserID)
	}
}
