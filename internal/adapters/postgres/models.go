package postgres

import (
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

type sessionRecordModel struct {
	ProfileID            string     `gorm:"column:profile_id;primaryKey"`
	Active               bool       `gorm:"column:active"`
	SequenceNumber       int64      `gorm:"column:sequence_number"`
	Version              int64      `gorm:"column:version"`
	StartTime            *time.Time `gorm:"column:start_time"`
	EndTime              *time.Time `gorm:"column:end_time"`
	BreakStartTime       *time.Time `gorm:"column:break_start_time"`
	BreakEndTime         *time.Time `gorm:"column:break_end_time"`
	LastModifiedByDevice string     `gorm:"column:last_modified_by_device"`
	SessionOriginDevice  string     `gorm:"column:session_origin_device"`
	LastModifiedAt       time.Time  `gorm:"column:last_modified_at"`
}

func (sessionRecordModel) TableName() string { return "session_records" }

type legacyEntryModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	ProfileID    string     `gorm:"column:profile_id"`
	Active       bool       `gorm:"column:active"`
	OriginDevice string     `gorm:"column:origin_device"`
	StartTime    *time.Time `gorm:"column:start_time"`
	EndTime      *time.Time `gorm:"column:end_time"`
	LastModified time.Time  `gorm:"column:last_modified"`
}

func (legacyEntryModel) TableName() string { return "legacy_session_entries" }

func toDomainRecord(m sessionRecordModel) domain.SessionRecord {
	return domain.SessionRecord{
		ProfileID:            m.ProfileID,
		Active:               m.Active,
		SequenceNumber:       m.SequenceNumber,
		StartTime:            m.StartTime,
		EndTime:              m.EndTime,
		BreakStartTime:       m.BreakStartTime,
		BreakEndTime:         m.BreakEndTime,
		LastModifiedByDevice: m.LastModifiedByDevice,
		SessionOriginDevice:  m.SessionOriginDevice,
		LastModifiedAt:       m.LastModifiedAt,
	}
}

func toRecordModel(rec domain.SessionRecord, version int64) sessionRecordModel {
	return sessionRecordModel{
		ProfileID:            rec.ProfileID,
		Active:               rec.Active,
		SequenceNumber:       rec.SequenceNumber,
		Version:              version,
		StartTime:            rec.StartTime,
		EndTime:              rec.EndTime,
		BreakStartTime:       rec.BreakStartTime,
		BreakEndTime:         rec.BreakEndTime,
		LastModifiedByDevice: rec.LastModifiedByDevice,
		SessionOriginDevice:  rec.SessionOriginDevice,
		LastModifiedAt:       rec.LastModifiedAt,
	}
}

func toDomainLegacy(m legacyEntryModel) domain.LegacyEntry {
	return domain.LegacyEntry{
		ID:           m.ID,
		ProfileID:    m.ProfileID,
		Active:       m.Active,
		OriginDevice: m.OriginDevice,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		LastModified: m.LastModified,
	}
}
