package pipeline

import (
	"context"
	"testing"
	"time"
)

func newTestSessions(ttl time.Duration) *Sessions {
	return NewSessions(ttl, func() *Coordinator {
		return newTestCoordinator(newFakeTranslator(), newFakeSpeech(), nil)
	}, nil)
}

func TestSessions_DefaultSession(t *testing.T) {
	s := newTestSessions(time.Hour)
	a := s.GetOrCreate("")
	b := s.GetOrCreate(DefaultSession)
	if a != b {
		t.Error("expected empty id to resolve to the default session")
	}
	if a.ID != DefaultSession {
		t.Errorf("expected id %q, got %q", DefaultSession, a.ID)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 session, got %d", s.Len())
	}
}

func TestSessions_CreateUsesUniqueIDs(t *testing.T) {
	s := newTestSessions(time.Hour)
	a := s.Create()
	b := s.Create()
	if a.ID == b.ID {
		t.Fatalf("expected unique ids, got %q twice", a.ID)
	}
	if len(a.ID) != 36 {
		t.Errorf("expected uuid string, got %q", a.ID)
	}
	if s.Get(a.ID) != a {
		t.Error("expected Get to return the created session")
	}
	if a.Coordinator == b.Coordinator {
		t.Error("expected independent coordinators")
	}
}

func TestSessions_GetMissing(t *testing.T) {
	s := newTestSessions(time.Hour)
	if s.Get("nonexistent") != nil {
		t.Error("expected nil for missing session")
	}
}

func TestSessions_TTLCleanup(t *testing.T) {
	s := newTestSessions(50 * time.Millisecond)

	def := s.GetOrCreate(DefaultSession)
	old := s.Create()
	if _, err := old.Coordinator.Load(context.Background(), writeBook(t, "a.txt", "some words")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	fresh := s.Create()

	if n := s.Cleanup(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if s.Get(old.ID) != nil {
		t.Error("expected idle session to be evicted")
	}
	if _, ok := old.Coordinator.Loaded(); ok {
		t.Error("expected evicted session's document to be unloaded")
	}
	if s.Get(fresh.ID) == nil {
		t.Error("expected fresh session to survive cleanup")
	}
	if s.Get(def.ID) == nil {
		t.Error("expected default session to survive cleanup")
	}
}

func TestSessions_Delete(t *testing.T) {
	s := newTestSessions(time.Hour)
	sess := s.Create()
	if !s.Delete(sess.ID) {
		t.Fatal("expected delete to report removal")
	}
	if s.Delete(sess.ID) {
		t.Error("expected second delete to be a no-op")
	}
	if s.Len() != 0 {
		t.Errorf("expected 0 sessions, got %d", s.Len())
	}
}

func TestSessions_RunStopsOnCancel(t *testing.T) {
	s := newTestSessions(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	s.Create()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Len() != 0 {
		t.Errorf("expected background cleanup to evict idle session, got %d", s.Len())
	}
}
