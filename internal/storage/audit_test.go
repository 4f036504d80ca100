package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	store, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func logEntry(id string, ts time.Time, status string) *models.RequestLogEntry {
	return &models.RequestLogEntry{
		RequestID:       id,
		Timestamp:       ts,
		Question:        "what is the dosage?",
		LatencySeconds:  0.42,
		Status:          status,
		ChunksRetrieved: 3,
	}
}

func TestAuditStore_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := logEntry(fmt.Sprintf("req-%d", i), base.Add(time.Duration(i)*time.Minute), models.StatusOK)
		if err := store.Append(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d entries, want 3", len(recent))
	}
	want := []string{"req-4", "req-3", "req-2"}
	for i, w := range want {
		if recent[i].RequestID != w {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].RequestID, w)
		}
	}
	if recent[0].Question != "what is the dosage?" || recent[0].ChunksRetrieved != 3 {
		t.Errorf("entry round-trip mismatch: %+v", recent[0])
	}
}

func TestAuditStore_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = store.Append(ctx, logEntry("a", now, models.StatusOK))
	_ = store.Append(ctx, logEntry("b", now, models.StatusOK))
	entry := logEntry("c", now, models.StatusError)
	entry.ErrorMessage = "generation timed out"
	_ = store.Append(ctx, entry)

	total, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("Count = %d, want 3", total)
	}
	errors, err := store.CountByStatus(ctx, models.StatusError)
	if err != nil {
		t.Fatal(err)
	}
	if errors != 1 {
		t.Errorf("CountByStatus(error) = %d, want 1", errors)
	}
}

func TestAuditStore_PruneOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Append(ctx, logEntry("old", cutoff.Add(-time.Hour), models.StatusOK))
	_ = store.Append(ctx, logEntry("new", cutoff.Add(time.Hour), models.StatusOK))

	removed, err := store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	remaining, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].RequestID != "new" {
		t.Errorf("remaining = %v", remaining)
	}
}

func TestAuditStore_DuplicateRequestID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Append(ctx, logEntry("dup", now, models.StatusOK)); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, logEntry("dup", now, models.StatusOK)); err == nil {
		t.Error("expected primary key violation for duplicate request ID")
	}
}
