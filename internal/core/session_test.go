package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock is a settable time source for session expiry tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*SessionStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSessionStore(ttl)
	s.now = clock.now
	return s, clock
}

func TestSessionStore_Lifecycle(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	sess := s.Create("alice")
	if sess.State != SessionAwaitingSource {
		t.Fatalf("State = %q, want %q", sess.State, SessionAwaitingSource)
	}

	if _, _, err := s.Take("alice", sess.ID); !errors.Is(err, ErrSessionStep) {
		t.Fatalf("Take before source = %v, want ErrSessionStep", err)
	}
	if s.Len() != 1 {
		t.Fatalf("session removed by out-of-order Take")
	}

	got, err := s.AttachSource("alice", sess.ID, "first.xlsx", []byte("one"))
	if err != nil {
		t.Fatalf("AttachSource() error = %v", err)
	}
	if got.State != SessionAwaitingResults || got.SourceName != "first.xlsx" {
		t.Errorf("after attach = %+v", got)
	}
	if got.source != nil {
		t.Error("snapshot exposes source bytes")
	}

	// A second upload replaces the first.
	if _, err := s.AttachSource("alice", sess.ID, "second.xlsx", []byte("two")); err != nil {
		t.Fatalf("AttachSource() again error = %v", err)
	}

	name, data, err := s.Take("alice", sess.ID)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if name != "second.xlsx" || !bytes.Equal(data, []byte("two")) {
		t.Errorf("Take() = %q, %q", name, data)
	}
	if _, err := s.Get("alice", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after Take = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_OwnerIsolation(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	sess := s.Create("alice")

	if _, err := s.Get("bob", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get by other owner = %v", err)
	}
	if err := s.Delete("bob", sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete by other owner = %v", err)
	}
	if _, err := s.Get("alice", sess.ID); err != nil {
		t.Errorf("owner lost session: %v", err)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	s, clock := newTestStore(time.Minute)

	stale := s.Create("alice")
	clock.advance(30 * time.Second)
	live := s.Create("alice")

	clock.advance(45 * time.Second)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if _, err := s.Get("alice", stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session still visible: %v", err)
	}

	// Each step refreshes the expiry.
	if _, err := s.AttachSource("alice", live.ID, "s.xlsx", []byte("x")); err != nil {
		t.Fatalf("AttachSource() error = %v", err)
	}
	clock.advance(50 * time.Second)
	if _, _, err := s.Take("alice", live.ID); err != nil {
		t.Errorf("Take on refreshed session = %v", err)
	}

	expiring := s.Create("alice")
	clock.advance(2 * time.Minute)
	if _, _, err := s.Take("alice", expiring.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Take on expired session = %v, want ErrSessionNotFound", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSessionStore_StartSweeper(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	s.Create("alice")
	clock.advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartSweeper(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if s.Len() != 0 {
		t.Errorf("initial sweep did not run, Len() = %d", s.Len())
	}
}
