package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

func TestRecordStoreCreateOnly(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := domain.NewStartedRecord("p1", "device-a", t0)
	if _, err := store.Save(ctx, rec, ports.CreateOnly); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	other := domain.NewStartedRecord("p1", "device-b", t0)
	if _, err := store.Save(ctx, other, ports.CreateOnly); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second create, got %v", err)
	}

	got, token, err := store.Fetch(ctx, "p1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got.SessionOriginDevice != "device-a" {
		t.Fatalf("expected device-a to win the create, got %q", got.SessionOriginDevice)
	}
	if token == "" {
		t.Fatalf("expected a version token")
	}
}

func TestRecordStoreStaleTokenRejected(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := domain.NewStartedRecord("p1", "device-a", t0)
	if _, err := store.Save(ctx, rec, ports.CreateOnly); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, staleToken, _ := store.Fetch(ctx, "p1")

	stopped := rec.NextStopped("device-a", t0.Add(time.Hour))
	if _, err := store.Save(ctx, stopped, staleToken); err != nil {
		t.Fatalf("save with fresh token failed: %v", err)
	}
	restarted := stopped.NextStarted("device-b", t0.Add(2*time.Hour))
	if _, err := store.Save(ctx, restarted, staleToken); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict with stale token, got %v", err)
	}
}

func TestRecordStoreNoResurrection(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := domain.NewStartedRecord("p1", "device-a", t0)
	if _, err := store.Save(ctx, rec, ports.CreateOnly); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	cur, token, _ := store.Fetch(ctx, "p1")
	if _, err := store.Save(ctx, cur.NextStopped("device-a", t0.Add(time.Hour)), token); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// A replay carrying an old sequence number must be rejected even with
	// the current token, regardless of author or active flag.
	_, freshToken, _ := store.Fetch(ctx, "p1")
	replay := rec
	replay.SequenceNumber = 1
	if _, err := store.Save(ctx, replay, freshToken); !errors.Is(err, domain.ErrStaleSequence) {
		t.Fatalf("expected stale sequence rejection, got %v", err)
	}
	equalSeq := cur.NextStopped("device-b", t0)
	equalSeq.SequenceNumber = 2
	if _, err := store.Save(ctx, equalSeq, freshToken); !errors.Is(err, domain.ErrStaleSequence) {
		t.Fatalf("expected equal sequence rejection, got %v", err)
	}
}

func TestRecordStoreFetchNotFound(t *testing.T) {
	store := NewRecordStore()
	if _, _, err := store.Fetch(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLegacyStorePagination(t *testing.T) {
	store := NewLegacyStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.Put(domain.LegacyEntry{ID: id, ProfileID: "p", LastModified: base})
	}

	var all []domain.LegacyEntry
	cursor := ""
	pages := 0
	for {
		page, next, err := store.List(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		all = append(all, page...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
	if pages < 3 {
		t.Fatalf("expected at least 3 pages, got %d", pages)
	}
}

func TestDeviceStateStoreStableIdentity(t *testing.T) {
	store := NewDeviceStateStore()
	ctx := context.Background()
	first, err := store.DeviceID(ctx)
	if err != nil || first == "" {
		t.Fatalf("device id failed: %v", err)
	}
	second, _ := store.DeviceID(ctx)
	if first != second {
		t.Fatalf("expected stable device id, got %q then %q", first, second)
	}

	done, _ := store.MigrationComplete(ctx, "acct-1")
	if done {
		t.Fatalf("expected migration incomplete")
	}
	if err := store.MarkMigrationComplete(ctx, "acct-1"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	done, _ = store.MigrationComplete(ctx, "acct-1")
	if !done {
		t.Fatalf("expected migration complete")
	}
	if other, _ := store.MigrationComplete(ctx, "acct-2"); other {
		t.Fatalf("flag must be per account")
	}
}
