package contracts

import (
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
)

const EventTypeRecordChanged = "session.record_changed"

// RecordChangedEvent is the wire envelope for change notifications. Delivery
// is at-least-once and unordered across profiles; consumers order by the
// record's own sequence number.
type RecordChangedEvent struct {
	EventID       string               `json:"event_id"`
	EventType     string               `json:"event_type"`
	OccurredAt    time.Time            `json:"occurred_at"`
	SourceDevice  string               `json:"source_device"`
	SchemaVersion string               `json:"schema_version"`
	Record        domain.SessionRecord `json:"record"`
}
