package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

type FetchResultKind int

const (
	FetchFound FetchResultKind = iota + 1
	FetchNotFound
)

type FetchResult struct {
	Kind   FetchResultKind
	Record domain.SessionRecord
}

type StartResultKind int

const (
	StartStarted StartResultKind = iota + 1
	StartAlreadyActive
)

type StartResult struct {
	Kind   StartResultKind
	Record domain.SessionRecord
}

type StopResultKind int

const (
	StopStopped StopResultKind = iota + 1
	StopAlreadyStopped
	// StopConflict carries the latest record when a stop raced with another
	// device's write and the record is still active. Stop never auto-retries:
	// a stop racing a fresh start must not silently swallow the new session,
	// so the caller re-decides against the latest truth.
	StopConflict
)

type StopResult struct {
	Kind   StopResultKind
	Record domain.SessionRecord
}

type BreakResultKind int

const (
	BreakApplied BreakResultKind = iota + 1
	BreakNotActive
	BreakConflict
)

type BreakResult struct {
	Kind   BreakResultKind
	Record domain.SessionRecord
}

// Fetch reads the authoritative record for a profile. Absence is a normal
// outcome, not an error: a profile with no record has never had a session.
func (s *SyncService) Fetch(ctx context.Context, profileID string) (FetchResult, error) {
	if strings.TrimSpace(profileID) == "" {
		return FetchResult{}, domain.ErrInvalidInput
	}
	unlock := s.lockProfile(profileID)
	defer unlock()

	rec, _, err := s.fetch(ctx, profileID)
	if errors.Is(err, domain.ErrNotFound) {
		return FetchResult{Kind: FetchNotFound}, nil
	}
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Kind: FetchFound, Record: rec}, nil
}

// Start activates a session for the profile, creating the record on first
// use. Racing starts resolve to exactly one winner; the loser joins the
// winner's session via StartAlreadyActive rather than creating a competing
// one. Conflicts retry up to MaxStartRetries, then ErrRetriesExhausted.
func (s *SyncService) Start(ctx context.Context, profileID string, at time.Time) (StartResult, error) {
	if strings.TrimSpace(profileID) == "" {
		return StartResult{}, domain.ErrInvalidInput
	}
	unlock := s.lockProfile(profileID)
	defer unlock()

	for attempt := 0; attempt < s.cfg.MaxStartRetries; attempt++ {
		rec, token, err := s.fetch(ctx, profileID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			seed := domain.NewStartedRecord(profileID, s.deviceID, at)
			newToken, saveErr := s.store.Save(ctx, seed, ports.CreateOnly)
			if saveErr == nil {
				s.cacheSet(profileID, seed, newToken)
				s.publish(ctx, seed)
				return StartResult{Kind: StartStarted, Record: seed}, nil
			}
			if isCASFailure(saveErr) {
				// Someone else created the record first; refetch and re-decide.
				continue
			}
			return StartResult{}, saveErr
		case err != nil:
			return StartResult{}, err
		}

		if rec.Active {
			return StartResult{Kind: StartAlreadyActive, Record: rec}, nil
		}

		next := rec.NextStarted(s.deviceID, at)
		newToken, saveErr := s.store.Save(ctx, next, token)
		if saveErr == nil {
			s.cacheSet(profileID, next, newToken)
			s.publish(ctx, next)
			return StartResult{Kind: StartStarted, Record: next}, nil
		}
		if isCASFailure(saveErr) {
			continue
		}
		return StartResult{}, saveErr
	}

	s.logger.Warn("start retries exhausted", "profile_id", profileID, "retries", s.cfg.MaxStartRetries)
	return StartResult{}, domain.ErrRetriesExhausted
}

// Stop deactivates the profile's session. Stopping an already-inactive or
// absent record is an idempotent no-op. If the save loses a race and the
// record is still active afterwards, the latest record is surfaced as
// StopConflict instead of retrying.
func (s *SyncService) Stop(ctx context.Context, profileID string, at time.Time) (StopResult, error) {
	if strings.TrimSpace(profileID) == "" {
		return StopResult{}, domain.ErrInvalidInput
	}
	unlock := s.lockProfile(profileID)
	defer unlock()

	rec, token, err := s.currentActive(ctx, profileID)
	if errors.Is(err, domain.ErrNotFound) {
		return StopResult{Kind: StopAlreadyStopped}, nil
	}
	if err != nil {
		return StopResult{}, err
	}
	if !rec.Active {
		return StopResult{Kind: StopAlreadyStopped, Record: rec}, nil
	}

	next := rec.NextStopped(s.deviceID, at)
	newToken, saveErr := s.store.Save(ctx, next, token)
	if saveErr == nil {
		s.cacheSet(profileID, next, newToken)
		s.publish(ctx, next)
		return StopResult{Kind: StopStopped, Record: next}, nil
	}
	if !isCASFailure(saveErr) {
		return StopResult{}, saveErr
	}

	latest, _, refetchErr := s.fetch(ctx, profileID)
	if errors.Is(refetchErr, domain.ErrNotFound) {
		return StopResult{Kind: StopAlreadyStopped}, nil
	}
	if refetchErr != nil {
		return StopResult{}, refetchErr
	}
	if !latest.Active {
		return StopResult{Kind: StopAlreadyStopped, Record: latest}, nil
	}
	return StopResult{Kind: StopConflict, Record: latest}, nil
}

// StartBreak pauses the active session. Single attempt: contention surfaces
// as BreakConflict with the latest record.
func (s *SyncService) StartBreak(ctx context.Context, profileID string, at time.Time) (BreakResult, error) {
	return s.applyBreak(ctx, profileID, at, domain.SessionRecord.NextBreakStarted)
}

// EndBreak resumes a paused session.
func (s *SyncService) EndBreak(ctx context.Context, profileID string, at time.Time) (BreakResult, error) {
	return s.applyBreak(ctx, profileID, at, domain.SessionRecord.NextBreakEnded)
}

func (s *SyncService) applyBreak(ctx context.Context, profileID string, at time.Time, derive func(domain.SessionRecord, string, time.Time) domain.SessionRecord) (BreakResult, error) {
	if strings.TrimSpace(profileID) == "" {
		return BreakResult{}, domain.ErrInvalidInput
	}
	unlock := s.lockProfile(profileID)
	defer unlock()

	rec, token, err := s.currentActive(ctx, profileID)
	if errors.Is(err, domain.ErrNotFound) {
		return BreakResult{Kind: BreakNotActive}, nil
	}
	if err != nil {
		return BreakResult{}, err
	}
	if !rec.Active {
		return BreakResult{Kind: BreakNotActive, Record: rec}, nil
	}

	next := derive(rec, s.deviceID, at)
	newToken, saveErr := s.store.Save(ctx, next, token)
	if saveErr == nil {
		s.cacheSet(profileID, next, newToken)
		s.publish(ctx, next)
		return BreakResult{Kind: BreakApplied, Record: next}, nil
	}
	if !isCASFailure(saveErr) {
		return BreakResult{}, saveErr
	}
	latest, _, refetchErr := s.fetch(ctx, profileID)
	if errors.Is(refetchErr, domain.ErrNotFound) {
		return BreakResult{Kind: BreakNotActive}, nil
	}
	if refetchErr != nil {
		return BreakResult{}, refetchErr
	}
	if !latest.Active {
		return BreakResult{Kind: BreakNotActive, Record: latest}, nil
	}
	return BreakResult{Kind: BreakConflict, Record: latest}, nil
}

// fetch reads fresh from the store and refreshes the cache.
func (s *SyncService) fetch(ctx context.Context, profileID string) (domain.SessionRecord, ports.VersionToken, error) {
	rec, token, err := s.store.Fetch(ctx, profileID)
	if err != nil {
		return domain.SessionRecord{}, "", err
	}
	s.cacheSet(profileID, rec, token)
	return rec, token, nil
}

// currentActive returns the cached record/token when the cache shows an
// active session; a save against a stale token fails safely with a conflict.
// A cached inactive record cannot be trusted the same way (a no-op decision
// would skip the store entirely), so anything else forces a fresh fetch.
func (s *SyncService) currentActive(ctx context.Context, profileID string) (domain.SessionRecord, ports.VersionToken, error) {
	if cached, ok := s.cacheGet(profileID); ok && cached.rec.Active {
		return cached.rec, cached.token, nil
	}
	return s.fetch(ctx, profileID)
}

// publish is best effort: the pull sweep covers missed notifications, and a
// failed announce must not fail an already-accepted mutation.
func (s *SyncService) publish(ctx context.Context, rec domain.SessionRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordChanged(ctx, rec); err != nil {
		s.logger.Warn("publish record change", "profile_id", rec.ProfileID, "sequence", rec.SequenceNumber, "error", err)
	}
}

func isCASFailure(err error) bool {
	return errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrStaleSequence)
}
