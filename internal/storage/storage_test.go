package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	s := testStorage(t)

	if err := s.Set(BucketConfig, "key", []byte("value")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := s.Get(BucketConfig, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("expected %q, got %q", "value", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := testStorage(t)

	got, err := s.Get(BucketConfig, "nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
}

func TestUnknownBucket(t *testing.T) {
	s := testStorage(t)

	if err := s.Set("no_such_bucket", "k", []byte("v")); err == nil {
		t.Error("expected error for unknown bucket")
	}
}

func TestJournalRoundTrip(t *testing.T) {
	s := testStorage(t)

	steps := []string{"register", "restart_policy", "firewall", "start"}
	for _, step := range steps {
		entry := JournalEntry{
			Timestamp: time.Now().UTC(),
			Service:   "PersistentRDP",
			Step:      step,
			OK:        true,
		}
		if err := s.AppendJournal(entry); err != nil {
			t.Fatalf("append %q failed: %v", step, err)
		}
	}

	entries, err := s.Journal(0)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	if len(entries) != len(steps) {
		t.Fatalf("expected %d entries, got %d", len(steps), len(entries))
	}
	for i, e := range entries {
		if e.Step != steps[i] {
			t.Errorf("entry %d: expected step %q, got %q", i, steps[i], e.Step)
		}
	}
}

func TestJournalLimit(t *testing.T) {
	s := testStorage(t)

	for i := 0; i < 5; i++ {
		entry := JournalEntry{Timestamp: time.Now().UTC(), Service: "svc", Step: "start"}
		if err := s.AppendJournal(entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := s.Journal(2)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := testStorage(t)

	old := JournalEntry{Timestamp: time.Now().UTC().Add(-48 * time.Hour), Service: "svc", Step: "register"}
	recent := JournalEntry{Timestamp: time.Now().UTC(), Service: "svc", Step: "start"}
	if err := s.AppendJournal(old); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.AppendJournal(recent); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if err := s.DeleteOlderThan(BucketJournal, 24*time.Hour); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	entries, err := s.Journal(0)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after prune, got %d", len(entries))
	}
	if entries[0].Step != "start" {
		t.Errorf("wrong entry survived: %+v", entries[0])
	}
}

func TestServiceState(t *testing.T) {
	s := testStorage(t)

	state := ServiceState{
		Name:        "PersistentRDP",
		Status:      "running",
		Provisioned: true,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.SaveServiceState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetServiceState("PersistentRDP")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Status != "running" || !got.Provisioned {
		t.Errorf("unexpected state: %+v", got)
	}
}

func TestCount(t *testing.T) {
	s := testStorage(t)

	for i := 0; i < 3; i++ {
		if err := s.AppendAudit(AuditEntry{Timestamp: time.Now().UTC(), Action: "start"}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	n, err := s.Count(BucketAuditLog)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}
