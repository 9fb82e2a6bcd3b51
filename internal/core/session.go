package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionStep     = errors.New("session step out of order: upload the source register first")
)

// SessionState is the step a PINFL session is waiting for.
type SessionState string

const (
	SessionAwaitingSource  SessionState = "awaiting_source"
	SessionAwaitingResults SessionState = "awaiting_results"
)

// Session is a two-step PINFL replacement in progress. Sessions are only
// visible to their owner.
type Session struct {
	ID         string       `json:"session_id"`
	Owner      string       `json:"-"`
	State      SessionState `json:"state"`
	SourceName string       `json:"source_name,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`

	source []byte
}

// SessionStore keeps sessions in memory until they complete, are abandoned,
// or expire.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates a store whose sessions expire ttl after their
// last step.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session for owner.
func (s *SessionStore) Create(owner string) Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		State:     SessionAwaitingSource,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return *sess
}

// lookup returns the live session or ErrSessionNotFound. Callers hold mu.
func (s *SessionStore) lookup(owner, id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.Owner != owner {
		return nil, ErrSessionNotFound
	}
	if s.expired(sess) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl
}

// Get returns a snapshot of the session.
func (s *SessionStore) Get(owner, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(owner, id)
	if err != nil {
		return Session{}, err
	}
	out := *sess
	out.source = nil
	return out, nil
}

// AttachSource stores the source register. Uploading it again replaces the
// earlier file.
func (s *SessionStore) AttachSource(owner, id, name string, data []byte) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(owner, id)
	if err != nil {
		return Session{}, err
	}
	sess.source = data
	sess.SourceName = name
	sess.State = SessionAwaitingResults
	sess.UpdatedAt = s.now()

	out := *sess
	out.source = nil
	return out, nil
}

// Take removes the session and returns its source register. It fails with
// ErrSessionStep, leaving the session in place, when no source was
// attached yet.
func (s *SessionStore) Take(owner, id string) (name string, source []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(owner, id)
	if err != nil {
		return "", nil, err
	}
	if sess.State != SessionAwaitingResults {
		return "", nil, ErrSessionStep
	}
	delete(s.sessions, id)
	return sess.SourceName, sess.source, nil
}

// Delete abandons a session.
func (s *SessionStore) Delete(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(owner, id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
