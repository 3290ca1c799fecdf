package ports

import (
	"context"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

// VersionToken is the opaque value a RecordStore returns on read and checks on
// write to detect concurrent modification. The empty token asks Save to
// create the record, failing with domain.ErrConflict if it already exists.
type VersionToken string

const CreateOnly VersionToken = ""

// RecordStore is the abstract replicated backend holding one SessionRecord
// per profile. Implementations must enforce two independent guards on Save:
// the version token (stale token -> domain.ErrConflict) and the sequence
// number (incoming sequence <= stored sequence -> domain.ErrStaleSequence).
type RecordStore interface {
	Fetch(ctx context.Context, profileID string) (domain.SessionRecord, VersionToken, error)
	Save(ctx context.Context, rec domain.SessionRecord, expected VersionToken) (VersionToken, error)
	List(ctx context.Context) ([]domain.SessionRecord, error)
}

// LegacyStore pages through and removes rows of the retired per-device
// per-event scheme. Delete of an already-removed row is not an error.
type LegacyStore interface {
	List(ctx context.Context, cursor string, limit int) ([]domain.LegacyEntry, string, error)
	Delete(ctx context.Context, id string) error
}

// DeviceStateStore holds the small durable per-install state: the device
// identity (generated once) and the per-account migration-complete flag.
type DeviceStateStore interface {
	DeviceID(ctx context.Context) (string, error)
	MigrationComplete(ctx context.Context, accountID string) (bool, error)
	MarkMigrationComplete(ctx context.Context, accountID string) error
}

// EventPublisher announces accepted record mutations to the change
// notification channel. Delivery is at-least-once and unordered across
// profiles; consumers rely on the record's own sequence number.
type EventPublisher interface {
	PublishRecordChanged(ctx context.Context, rec domain.SessionRecord) error
}

// EventConsumer drains inbound record-changed events from other devices.
type EventConsumer interface {
	Poll(ctx context.Context, max int) ([]domain.SessionRecord, error)
	Close() error
}

// SessionListener is the callback surface announcing local session
// transitions so enforcement and UI layers can react.
type SessionListener interface {
	SessionStarted(profileID string, rec domain.SessionRecord)
	SessionStopped(profileID string, rec domain.SessionRecord)
}
