package sessionlog

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() = %v", err)
	}
	if id == "" {
		t.Fatal("Begin() returned empty id")
	}

	latest, err := s.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession() = %v", err)
	}
	if latest == nil || latest.ID != id {
		t.Fatalf("LatestSession() = %+v, want id %s", latest, id)
	}
	if latest.EndedAt != nil {
		t.Error("session should not be ended yet")
	}

	if err := s.End(ctx, id); err != nil {
		t.Fatalf("End() = %v", err)
	}
	latest, _ = s.LatestSession(ctx)
	if latest.EndedAt == nil {
		t.Error("EndedAt should be set after End()")
	}
}

func TestRecordAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, _ := s.Begin(ctx)

	events := []struct {
		kind  EventKind
		topic string
		body  string
	}{
		{KindAnswer, "Raft", "Raft elects a leader."},
		{KindNote, "", "ship the migration friday"},
		{KindError, "Paxos", "provider timed out"},
	}
	for _, e := range events {
		if err := s.Record(ctx, id, e.kind, e.topic, e.body); err != nil {
			t.Fatalf("Record(%s) = %v", e.kind, err)
		}
	}

	got, err := s.History(ctx, id, 10)
	if err != nil {
		t.Fatalf("History() = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Kind != KindError || got[2].Kind != KindAnswer {
		t.Errorf("order = [%s %s %s], want newest first", got[0].Kind, got[1].Kind, got[2].Kind)
	}
	if got[2].Topic != "Raft" {
		t.Errorf("Topic = %q", got[2].Topic)
	}
}

func TestHistoryLimitAndIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.Begin(ctx)
	b, _ := s.Begin(ctx)

	for i := 0; i < 5; i++ {
		s.Record(ctx, a, KindNote, "", "note")
	}
	s.Record(ctx, b, KindAnswer, "CRDTs", "summary")

	got, err := s.History(ctx, a, 3)
	if err != nil {
		t.Fatalf("History() = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want limit 3", len(got))
	}

	got, _ = s.History(ctx, b, 10)
	if len(got) != 1 || got[0].Topic != "CRDTs" {
		t.Errorf("session b history = %+v", got)
	}
}

func TestLatestSessionEmpty(t *testing.T) {
	s := openTestStore(t)
	latest, err := s.LatestSession(context.Background())
	if err != nil {
		t.Fatalf("LatestSession() = %v", err)
	}
	if latest != nil {
		t.Errorf("LatestSession() = %+v, want nil", latest)
	}
}
