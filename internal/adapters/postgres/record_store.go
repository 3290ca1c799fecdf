package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
	"gorm.io/gorm"
)

// RecordStore keeps one session_records row per profile. The version column
// is the opaque token; a conditional UPDATE on (profile_id, version) is the
// compare-and-swap, and the sequence_number predicate is the independent
// replay guard on top of it.
type RecordStore struct {
	db *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore { return &RecordStore{db: db} }

func (r *RecordStore) Fetch(ctx context.Context, profileID string) (domain.SessionRecord, ports.VersionToken, error) {
	var m sessionRecordModel
	if err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SessionRecord{}, "", domain.ErrNotFound
		}
		return domain.SessionRecord{}, "", err
	}
	return toDomainRecord(m), versionToken(m.Version), nil
}

func (r *RecordStore) Save(ctx context.Context, rec domain.SessionRecord, expected ports.VersionToken) (ports.VersionToken, error) {
	if expected == ports.CreateOnly {
		m := toRecordModel(rec, 1)
		if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return "", domain.ErrConflict
			}
			return "", err
		}
		return versionToken(1), nil
	}

	version, err := parseVersionToken(expected)
	if err != nil {
		return "", err
	}
	m := toRecordModel(rec, version+1)
	res := r.db.WithContext(ctx).Model(&sessionRecordModel{}).
		Where("profile_id = ? AND version = ? AND sequence_number < ?", rec.ProfileID, version, rec.SequenceNumber).
		Updates(map[string]any{
			"active":                  m.Active,
			"sequence_number":         m.SequenceNumber,
			"version":                 m.Version,
			"start_time":              m.StartTime,
			"end_time":                m.EndTime,
			"break_start_time":        m.BreakStartTime,
			"break_end_time":          m.BreakEndTime,
			"last_modified_by_device": m.LastModifiedByDevice,
			"session_origin_device":   m.SessionOriginDevice,
			"last_modified_at":        m.LastModifiedAt,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", r.classifyRejection(ctx, rec, version)
	}
	return versionToken(version + 1), nil
}

// classifyRejection tells a stale token apart from a stale sequence number
// after the conditional update matched no row.
func (r *RecordStore) classifyRejection(ctx context.Context, rec domain.SessionRecord, version int64) error {
	var current sessionRecordModel
	if err := r.db.WithContext(ctx).Where("profile_id = ?", rec.ProfileID).Take(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if current.Version != version {
		return domain.ErrConflict
	}
	return domain.ErrStaleSequence
}

func (r *RecordStore) List(ctx context.Context) ([]domain.SessionRecord, error) {
	var models []sessionRecordModel
	if err := r.db.WithContext(ctx).Order("profile_id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SessionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainRecord(m))
	}
	return out, nil
}

func versionToken(version int64) ports.VersionToken {
	return ports.VersionToken(strconv.FormatInt(version, 10))
}

func parseVersionToken(token ports.VersionToken) (int64, error) {
	version, err := strconv.ParseInt(string(token), 10, 64)
	if err != nil {
		return 0, domain.ErrConflict
	}
	return version, nil
}
