package domain

import "time"

// SessionRecord is the single authoritative per-profile record describing
// whether a blocking session is active. Exactly one record exists per profile;
// it is created lazily on the first start and never deleted by normal
// operation. SequenceNumber strictly increases on every accepted mutation and
// totally orders them, independent of the store's own version tracking.
type SessionRecord struct {
	ProfileID            string     `json:"profile_id"`
	Active               bool       `json:"active"`
	SequenceNumber       int64      `json:"sequence_number"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	BreakStartTime       *time.Time `json:"break_start_time,omitempty"`
	BreakEndTime         *time.Time `json:"break_end_time,omitempty"`
	LastModifiedByDevice string     `json:"last_modified_by_device"`
	SessionOriginDevice  string     `json:"session_origin_device,omitempty"`
	LastModifiedAt       time.Time  `json:"last_modified_at"`
}

// NewStartedRecord seeds the record for a profile that has never had one.
func NewStartedRecord(profileID, deviceID string, at time.Time) SessionRecord {
	start := at
	return SessionRecord{
		ProfileID:            profileID,
		Active:               true,
		SequenceNumber:       1,
		StartTime:            &start,
		LastModifiedByDevice: deviceID,
		SessionOriginDevice:  deviceID,
		LastModifiedAt:       at,
	}
}

// NextStarted derives the successor record for an inactive->active transition.
// Session and break fields are reset; the initiating device becomes the
// session origin.
func (r SessionRecord) NextStarted(deviceID string, at time.Time) SessionRecord {
	start := at
	return SessionRecord{
		ProfileID:            r.ProfileID,
		Active:               true,
		SequenceNumber:       r.SequenceNumber + 1,
		StartTime:            &start,
		LastModifiedByDevice: deviceID,
		SessionOriginDevice:  deviceID,
		LastModifiedAt:       at,
	}
}

// NextStopped derives the successor record for an active->inactive transition.
// StartTime and break fields are preserved as the history of the session just
// ended; SessionOriginDevice is kept for diagnostics until the next start.
func (r SessionRecord) NextStopped(deviceID string, at time.Time) SessionRecord {
	next := r
	end := at
	next.Active = false
	next.SequenceNumber = r.SequenceNumber + 1
	next.EndTime = &end
	next.LastModifiedByDevice = deviceID
	next.LastModifiedAt = at
	return next
}

// NextBreakStarted marks the beginning of an in-session pause.
func (r SessionRecord) NextBreakStarted(deviceID string, at time.Time) SessionRecord {
	next := r
	breakStart := at
	next.SequenceNumber = r.SequenceNumber + 1
	next.BreakStartTime = &breakStart
	next.BreakEndTime = nil
	next.LastModifiedByDevice = deviceID
	next.LastModifiedAt = at
	return next
}

// NextBreakEnded marks the end of an in-session pause.
func (r SessionRecord) NextBreakEnded(deviceID string, at time.Time) SessionRecord {
	next := r
	breakEnd := at
	next.SequenceNumber = r.SequenceNumber + 1
	next.BreakEndTime = &breakEnd
	next.LastModifiedByDevice = deviceID
	next.LastModifiedAt = at
	return next
}

// OnBreak reports whether the record describes a session currently paused.
func (r SessionRecord) OnBreak() bool {
	return r.Active && r.BreakStartTime != nil && r.BreakEndTime == nil
}

// LegacyEntry is one row of the retired scheme that wrote a record per device
// per start/stop event. MigrationRunner consolidates these into SessionRecord.
type LegacyEntry struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	Active       bool       `json:"active"`
	OriginDevice string     `json:"origin_device"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	LastModified time.Time  `json:"last_modified"`
}

// ToSessionRecord seeds a SessionRecord from the newest legacy entry for a
// profile. The legacy scheme had no comparable sequence space, so the
// sequence number restarts at 1.
func (e LegacyEntry) ToSessionRecord(at time.Time) SessionRecord {
	return SessionRecord{
		ProfileID:            e.ProfileID,
		Active:               e.Active,
		SequenceNumber:       1,
		StartTime:            e.StartTime,
		EndTime:              e.EndTime,
		LastModifiedByDevice: e.OriginDevice,
		SessionOriginDevice:  e.OriginDevice,
		LastModifiedAt:       at,
	}
}
