package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

// Coordinator maps remote SessionRecord changes onto this device's
// at-most-one-locally-active-session invariant.
//
// The remote-triggered set is what keeps a device's own sessions safe: a
// session this device started locally is only ever stopped by explicit local
// action or by a later causally-ordered remote stop arriving through the same
// path, never by reconciliation observing a lagging snapshot. Only sessions
// another device originated are auto-stopped when the remote state goes
// inactive.
type Coordinator struct {
	deviceID string
	sync     *SyncService
	listener ports.SessionListener
	logger   *slog.Logger

	mu              sync.Mutex
	activeProfile   string
	activeRecord    domain.SessionRecord
	remoteTriggered map[string]bool
	// lastApplied is the highest sequence number reconciled per profile. The
	// delivery channel is at-least-once and unordered, so this map is the only
	// defense against redelivered old records; it outlives the active-session
	// reset, which is why activeRecord alone cannot carry it.
	lastApplied map[string]int64
}

func NewCoordinator(sync *SyncService, listener ports.SessionListener, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		deviceID:        sync.DeviceID(),
		sync:            sync,
		listener:        listener,
		logger:          logger,
		remoteTriggered: map[string]bool{},
		lastApplied:     map[string]int64{},
	}
}

// Start begins (or joins) a session for the profile and enforces it locally.
// Both Started and AlreadyActive converge to locally-active: joining an
// existing session is never an error. Local starts are never marked
// remote-triggered.
func (c *Coordinator) Start(ctx context.Context, profileID string, at time.Time) (StartResult, error) {
	res, err := c.sync.Start(ctx, profileID, at)
	if err != nil {
		return res, err
	}

	c.mu.Lock()
	var stopped, started *domain.SessionRecord
	if c.activeProfile != "" && c.activeProfile != profileID {
		// Last local action wins on this device; the other profile's remote
		// record is untouched.
		c.logger.Warn("replacing locally active profile", "was", c.activeProfile, "now", profileID)
		prev := c.activeRecord
		stopped = &prev
	}
	if c.activeProfile != profileID {
		rec := res.Record
		started = &rec
	}
	c.activeProfile = profileID
	c.activeRecord = res.Record
	delete(c.remoteTriggered, profileID)
	c.noteAppliedLocked(res.Record)
	c.mu.Unlock()

	if stopped != nil && c.listener != nil {
		c.listener.SessionStopped(stopped.ProfileID, *stopped)
	}
	if started != nil && c.listener != nil {
		c.listener.SessionStarted(profileID, *started)
	}
	return res, nil
}

// Stop ends the profile's session locally and remotely. A StopConflict leaves
// local state untouched: the record is still active somewhere, and the caller
// re-decides against the latest truth.
func (c *Coordinator) Stop(ctx context.Context, profileID string, at time.Time) (StopResult, error) {
	res, err := c.sync.Stop(ctx, profileID, at)
	if err != nil {
		return res, err
	}
	if res.Kind == StopConflict {
		return res, nil
	}

	c.mu.Lock()
	var stopped *domain.SessionRecord
	if c.activeProfile == profileID {
		rec := c.activeRecord
		if res.Record.ProfileID != "" {
			rec = res.Record
		}
		stopped = &rec
		c.activeProfile = ""
		c.activeRecord = domain.SessionRecord{}
	}
	delete(c.remoteTriggered, profileID)
	c.noteAppliedLocked(res.Record)
	c.mu.Unlock()

	if stopped != nil && c.listener != nil {
		c.listener.SessionStopped(profileID, *stopped)
	}
	return res, nil
}

// noteAppliedLocked records a locally observed mutation in the per-profile
// sequence watermark. Caller holds c.mu.
func (c *Coordinator) noteAppliedLocked(rec domain.SessionRecord) {
	if rec.ProfileID == "" {
		return
	}
	if rec.SequenceNumber > c.lastApplied[rec.ProfileID] {
		c.lastApplied[rec.ProfileID] = rec.SequenceNumber
	}
}

// ApplyAll reconciles a batch of observed records. Delivery is at-least-once
// and unordered across profiles; per-profile ordering comes from the
// sequence numbers already embedded in the records.
func (c *Coordinator) ApplyAll(records []domain.SessionRecord) {
	for _, rec := range records {
		c.Apply(rec)
	}
}

// Apply reconciles one observed record against local state.
func (c *Coordinator) Apply(rec domain.SessionRecord) {
	if rec.ProfileID == "" {
		return
	}
	if rec.LastModifiedByDevice == c.deviceID {
		// Echo of our own write; it was applied locally when the write
		// happened, and re-applying could race a newer local action.
		return
	}

	c.mu.Lock()
	if rec.SequenceNumber <= c.lastApplied[rec.ProfileID] {
		// Redelivery of an already-reconciled record. Acting on it would
		// let a stale inactive snapshot stop a live session or a stale
		// active one resurrect a stopped session.
		c.mu.Unlock()
		return
	}
	var started, stopped *domain.SessionRecord
	switch {
	case rec.Active && c.activeProfile == rec.ProfileID:
		// Already converged; keep the newer record for diagnostics.
		c.activeRecord = rec
		c.lastApplied[rec.ProfileID] = rec.SequenceNumber
	case rec.Active && c.activeProfile == "":
		c.activeProfile = rec.ProfileID
		c.activeRecord = rec
		c.remoteTriggered[rec.ProfileID] = true
		c.lastApplied[rec.ProfileID] = rec.SequenceNumber
		r := rec
		started = &r
	case rec.Active:
		// A different profile is enforced locally; the locally chosen
		// profile wins on this device. lastApplied stays put so a later
		// sweep can still enforce this record once the local session ends.
		c.logger.Warn("ignoring remote start, another profile active locally",
			"remote_profile", rec.ProfileID, "local_profile", c.activeProfile)
	case c.activeProfile == rec.ProfileID && c.remoteTriggered[rec.ProfileID]:
		c.activeProfile = ""
		c.activeRecord = domain.SessionRecord{}
		delete(c.remoteTriggered, rec.ProfileID)
		c.lastApplied[rec.ProfileID] = rec.SequenceNumber
		r := rec
		stopped = &r
	default:
		c.lastApplied[rec.ProfileID] = rec.SequenceNumber
	}
	c.mu.Unlock()

	if started != nil && c.listener != nil {
		// The record's own StartTime keeps timestamps consistent across
		// devices; "now" on this device would drift from the origin.
		c.listener.SessionStarted(started.ProfileID, *started)
	}
	if stopped != nil && c.listener != nil {
		c.listener.SessionStopped(stopped.ProfileID, *stopped)
	}
}

// SyncOne fetches and applies the authoritative record for a single profile,
// for callers that need converged state immediately rather than waiting for
// the next batch.
func (c *Coordinator) SyncOne(ctx context.Context, profileID string) error {
	res, err := c.sync.Fetch(ctx, profileID)
	if err != nil {
		return err
	}
	switch res.Kind {
	case FetchFound:
		c.Apply(res.Record)
	case FetchNotFound:
		// No record means no session has ever existed; nothing local to keep.
		c.Apply(domain.SessionRecord{ProfileID: profileID, Active: false})
	}
	return nil
}

// ActiveProfile reports which profile, if any, is enforced on this device.
func (c *Coordinator) ActiveProfile() (string, domain.SessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeProfile, c.activeRecord, c.activeProfile != ""
}

// RemoteTriggered reports whether the profile's local session was started by
// another device's write.
func (c *Coordinator) RemoteTriggered(profileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTriggered[profileID]
}

func (c *Coordinator) DeviceID() string { return c.deviceID }
