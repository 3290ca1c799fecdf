package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/adapters/memory"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

type flakyLegacyStore struct {
	*memory.LegacyStore
	failID string
	failed bool
}

func (s *flakyLegacyStore) Delete(ctx context.Context, id string) error {
	if id == s.failID && !s.failed {
		s.failed = true
		return errors.New("transient backend failure")
	}
	return s.LegacyStore.Delete(ctx, id)
}

type flakyRecordStore struct {
	*memory.RecordStore
	failProfile string
	failed      bool
}

func (s *flakyRecordStore) Save(ctx context.Context, rec domain.SessionRecord, expected ports.VersionToken) (ports.VersionToken, error) {
	if rec.ProfileID == s.failProfile && !s.failed {
		s.failed = true
		return "", errors.New("transient backend failure")
	}
	return s.RecordStore.Save(ctx, rec, expected)
}

func legacyTime(offset int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Minute)
}

func TestMigrationSeedsFromNewestEntry(t *testing.T) {
	records := memory.NewRecordStore()
	legacy := memory.NewLegacyStore()
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	startX := legacyTime(10)
	legacy.Put(domain.LegacyEntry{ID: "l1", ProfileID: "p2", Active: true, OriginDevice: "device-x", StartTime: &startX, LastModified: legacyTime(10)})
	endY := legacyTime(20)
	legacy.Put(domain.LegacyEntry{ID: "l2", ProfileID: "p2", Active: false, OriginDevice: "device-y", EndTime: &endY, LastModified: legacyTime(20)})

	runner := NewMigrationRunner(legacy, records, state, nil, 10)
	report, err := runner.Run(ctx, "acct-1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Errors != 0 || report.RecordsCreated != 1 || report.LegacyDeleted != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _, err := records.Fetch(ctx, "p2")
	if err != nil {
		t.Fatalf("fetch migrated record failed: %v", err)
	}
	if rec.Active {
		t.Fatalf("expected inactive record seeded from newest entry")
	}
	if rec.SessionOriginDevice != "device-y" {
		t.Fatalf("expected device-y seed, got %q", rec.SessionOriginDevice)
	}
	if rec.SequenceNumber != 1 {
		t.Fatalf("expected sequence reset to 1, got %d", rec.SequenceNumber)
	}
	if legacy.Len() != 0 {
		t.Fatalf("expected all legacy entries deleted, %d remain", legacy.Len())
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); !done {
		t.Fatalf("expected migration marked complete")
	}
}

func TestMigrationEmptyAccountMarksComplete(t *testing.T) {
	records := memory.NewRecordStore()
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	runner := NewMigrationRunner(memory.NewLegacyStore(), records, state, nil, 10)
	report, err := runner.Run(ctx, "acct-1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.ProfilesSeen != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); !done {
		t.Fatalf("empty account must still mark complete")
	}
}

func TestMigrationSkipsExistingRecord(t *testing.T) {
	records := memory.NewRecordStore()
	legacy := memory.NewLegacyStore()
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	// A device already wrote under the new scheme.
	existing := domain.NewStartedRecord("p1", "device-a", legacyTime(30))
	if _, err := records.Save(ctx, existing, ports.CreateOnly); err != nil {
		t.Fatalf("seed record failed: %v", err)
	}
	legacy.Put(domain.LegacyEntry{ID: "l1", ProfileID: "p1", Active: false, OriginDevice: "device-z", LastModified: legacyTime(5)})

	runner := NewMigrationRunner(legacy, records, state, nil, 10)
	report, err := runner.Run(ctx, "acct-1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.RecordsCreated != 0 || report.RecordsSkipped != 1 {
		t.Fatalf("expected skip, got %+v", report)
	}
	if legacy.Len() != 0 {
		t.Fatalf("legacy entries must be cleaned up even when skipped")
	}

	rec, _, _ := records.Fetch(ctx, "p1")
	if !rec.Active || rec.SessionOriginDevice != "device-a" {
		t.Fatalf("existing record must be untouched, got %+v", rec)
	}
}

func TestMigrationRetriesAfterPartialFailure(t *testing.T) {
	records := memory.NewRecordStore()
	inner := memory.NewLegacyStore()
	legacy := &flakyLegacyStore{LegacyStore: inner, failID: "l2"}
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	legacy.Put(domain.LegacyEntry{ID: "l1", ProfileID: "p1", Active: true, OriginDevice: "device-x", LastModified: legacyTime(10)})
	legacy.Put(domain.LegacyEntry{ID: "l2", ProfileID: "p2", Active: false, OriginDevice: "device-y", LastModified: legacyTime(20)})

	runner := NewMigrationRunner(legacy, records, state, nil, 10)
	report, err := runner.Run(ctx, "acct-1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Errors == 0 {
		t.Fatalf("expected at least one error, got %+v", report)
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); done {
		t.Fatalf("migration must stay incomplete after failures")
	}

	// Next launch retries: the surviving legacy row is cleaned up, records
	// created by the first pass are detected and skipped.
	report2, ran, err := runner.RunIfNeeded(ctx, "acct-1")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !ran {
		t.Fatalf("expected second run to execute")
	}
	if report2.Errors != 0 {
		t.Fatalf("expected clean second run, got %+v", report2)
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); !done {
		t.Fatalf("expected migration complete after retry")
	}
	if inner.Len() != 0 {
		t.Fatalf("expected all legacy entries gone, %d remain", inner.Len())
	}

	if _, _, err := records.Fetch(ctx, "p1"); err != nil {
		t.Fatalf("p1 record missing: %v", err)
	}
	if _, _, err := records.Fetch(ctx, "p2"); err != nil {
		t.Fatalf("p2 record missing: %v", err)
	}
}

func TestMigrationKeepsLegacyRowsWhenCreateFails(t *testing.T) {
	inner := memory.NewRecordStore()
	records := &flakyRecordStore{RecordStore: inner, failProfile: "p1"}
	legacy := memory.NewLegacyStore()
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	start := legacyTime(10)
	legacy.Put(domain.LegacyEntry{ID: "l1", ProfileID: "p1", Active: true, OriginDevice: "device-x", StartTime: &start, LastModified: legacyTime(10)})
	legacy.Put(domain.LegacyEntry{ID: "l2", ProfileID: "p1", Active: false, OriginDevice: "device-x", LastModified: legacyTime(5)})

	runner := NewMigrationRunner(legacy, records, state, nil, 10)
	report, err := runner.Run(ctx, "acct-1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Errors == 0 || report.RecordsCreated != 0 {
		t.Fatalf("expected failed create reported, got %+v", report)
	}
	// The legacy rows are the only copy of the profile's state; a failed
	// create must leave them for the retry.
	if legacy.Len() != 2 {
		t.Fatalf("expected legacy rows kept after failed create, %d remain", legacy.Len())
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); done {
		t.Fatalf("migration must stay incomplete after failed create")
	}

	report2, ran, err := runner.RunIfNeeded(ctx, "acct-1")
	if err != nil || !ran {
		t.Fatalf("expected retry run, ran=%v err=%v", ran, err)
	}
	if report2.Errors != 0 || report2.RecordsCreated != 1 {
		t.Fatalf("expected clean retry creating the record, got %+v", report2)
	}
	rec, _, err := inner.Fetch(ctx, "p1")
	if err != nil {
		t.Fatalf("migrated record missing after retry: %v", err)
	}
	if !rec.Active || rec.SessionOriginDevice != "device-x" {
		t.Fatalf("expected newest entry seeded on retry, got %+v", rec)
	}
	if legacy.Len() != 0 {
		t.Fatalf("expected legacy rows deleted after successful retry")
	}
	if done, _ := state.MigrationComplete(ctx, "acct-1"); !done {
		t.Fatalf("expected migration complete after retry")
	}
}

func TestRunIfNeededHonorsFlag(t *testing.T) {
	records := memory.NewRecordStore()
	state := memory.NewDeviceStateStore()
	ctx := context.Background()

	runner := NewMigrationRunner(memory.NewLegacyStore(), records, state, nil, 10)
	if _, ran, err := runner.RunIfNeeded(ctx, "acct-1"); err != nil || !ran {
		t.Fatalf("expected first run, ran=%v err=%v", ran, err)
	}
	if _, ran, err := runner.RunIfNeeded(ctx, "acct-1"); err != nil || ran {
		t.Fatalf("expected no-op second run, ran=%v err=%v", ran, err)
	}
	// A different account re-triggers.
	if _, ran, err := runner.RunIfNeeded(ctx, "acct-2"); err != nil || !ran {
		t.Fatalf("expected run for new account, ran=%v err=%v", ran, err)
	}
}
