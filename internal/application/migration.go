package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

// MigrationRunner consolidates the retired one-record-per-device-per-event
// scheme into the single SessionRecord model. Safe to run repeatedly:
// already-created records are detected and skipped, already-deleted legacy
// rows simply do not reappear, and the account is only marked migrated after
// a run with zero failures.
type MigrationRunner struct {
	legacy    ports.LegacyStore
	records   ports.RecordStore
	state     ports.DeviceStateStore
	logger    *slog.Logger
	batchSize int
	nowFn     func() time.Time
}

type MigrationReport struct {
	ProfilesSeen   int `json:"profiles_seen"`
	RecordsCreated int `json:"records_created"`
	RecordsSkipped int `json:"records_skipped"`
	LegacyDeleted  int `json:"legacy_deleted"`
	Errors         int `json:"errors"`
}

func NewMigrationRunner(legacy ports.LegacyStore, records ports.RecordStore, state ports.DeviceStateStore, logger *slog.Logger, batchSize int) *MigrationRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &MigrationRunner{
		legacy:    legacy,
		records:   records,
		state:     state,
		logger:    logger,
		batchSize: batchSize,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// RunIfNeeded consults the per-account migration flag before running. The
// second return reports whether a run was performed.
func (m *MigrationRunner) RunIfNeeded(ctx context.Context, accountID string) (MigrationReport, bool, error) {
	done, err := m.state.MigrationComplete(ctx, accountID)
	if err != nil {
		return MigrationReport{}, false, err
	}
	if done {
		return MigrationReport{}, false, nil
	}
	report, err := m.Run(ctx, accountID)
	return report, true, err
}

// Run executes one full migration pass for the account.
func (m *MigrationRunner) Run(ctx context.Context, accountID string) (MigrationReport, error) {
	var report MigrationReport

	entries, err := m.listAllLegacy(ctx)
	if err != nil {
		return report, err
	}
	if len(entries) == 0 {
		if markErr := m.state.MarkMigrationComplete(ctx, accountID); markErr != nil {
			return report, markErr
		}
		return report, nil
	}

	groups := map[string][]domain.LegacyEntry{}
	for _, e := range entries {
		groups[e.ProfileID] = append(groups[e.ProfileID], e)
	}

	for profileID, group := range groups {
		report.ProfilesSeen++
		sort.Slice(group, func(i, j int) bool {
			return group[i].LastModified.After(group[j].LastModified)
		})
		seed := group[0]

		created, skipped := m.migrateProfile(ctx, profileID, seed, &report)
		switch {
		case created:
			report.RecordsCreated++
		case skipped:
			report.RecordsSkipped++
		default:
			// The create attempt failed outright. The legacy rows are the
			// only copy of this profile's state until a record exists, so
			// they stay for the next run's retry.
			continue
		}

		// A created or pre-existing record now owns the profile under the
		// new scheme; the legacy rows go away.
		for _, e := range group {
			if delErr := m.legacy.Delete(ctx, e.ID); delErr != nil {
				report.Errors++
				m.logger.Warn("delete legacy entry", "entry_id", e.ID, "profile_id", profileID, "error", delErr)
			} else {
				report.LegacyDeleted++
			}
		}
	}

	if report.Errors == 0 {
		if markErr := m.state.MarkMigrationComplete(ctx, accountID); markErr != nil {
			return report, markErr
		}
		m.logger.Info("legacy migration complete", "account_id", accountID,
			"profiles", report.ProfilesSeen, "created", report.RecordsCreated, "deleted", report.LegacyDeleted)
	} else {
		m.logger.Warn("legacy migration incomplete, will retry on next launch",
			"account_id", accountID, "errors", report.Errors)
	}
	return report, nil
}

func (m *MigrationRunner) migrateProfile(ctx context.Context, profileID string, seed domain.LegacyEntry, report *MigrationReport) (created, skipped bool) {
	_, _, err := m.records.Fetch(ctx, profileID)
	switch {
	case err == nil:
		return false, true
	case errors.Is(err, domain.ErrNotFound):
	default:
		report.Errors++
		m.logger.Warn("check existing record", "profile_id", profileID, "error", err)
		return false, false
	}

	rec := seed.ToSessionRecord(m.nowFn())
	if _, saveErr := m.records.Save(ctx, rec, ports.CreateOnly); saveErr != nil {
		if errors.Is(saveErr, domain.ErrConflict) {
			// A device wrote under the new scheme between our check and the
			// create; the existing record is authoritative.
			return false, true
		}
		report.Errors++
		m.logger.Warn("create migrated record", "profile_id", profileID, "error", saveErr)
		return false, false
	}
	return true, false
}

func (m *MigrationRunner) listAllLegacy(ctx context.Context) ([]domain.LegacyEntry, error) {
	var all []domain.LegacyEntry
	cursor := ""
	for {
		page, next, err := m.legacy.List(ctx, cursor, m.batchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
