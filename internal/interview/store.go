package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrMissingField  = errors.New("job description and resume required")
	ErrNotConfigured = errors.New("interview not configured for this user")
)

// Context is the job/candidate material an interview is tailored to.
type Context struct {
	UserID         string    `json:"user_id"`
	JobDescription string    `json:"job_description"`
	Resume         string    `json:"candidate_resume"`
	ConfiguredAt   time.Time `json:"configured_at"`
}

// Store holds one interview context per user.
type Store interface {
	Set(ctx context.Context, ic Context) error
	Get(ctx context.Context, userID string) (Context, error)
}

// InMemoryStore keeps contexts for the lifetime of the process.
type InMemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]Context
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contexts: make(map[string]Context)}
}

// Set validates and stores ic, replacing any earlier context for the same
// user. Text fields are stored exactly as given.
func (s *InMemoryStore) Set(_ context.Context, ic Context) error {
	if strings.TrimSpace(ic.JobDescription) == "" || strings.TrimSpace(ic.Resume) == "" {
		return ErrMissingField
	}
	if ic.ConfiguredAt.IsZero() {
		ic.ConfiguredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[ic.UserID] = ic
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.contexts[userID]
	if !ok {
		return Context{}, ErrNotConfigured
	}
	return ic, nil
}
