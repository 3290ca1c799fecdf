// Package memory provides in-process implementations of the store ports.
// They back tests and the zero-dependency dev mode; semantics (version
// tokens, sequence guard) match the durable adapters exactly.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

type RecordStore struct {
	mu       sync.Mutex
	rows     map[string]domain.SessionRecord
	versions map[string]int64
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		rows:     map[string]domain.SessionRecord{},
		versions: map[string]int64{},
	}
}

func (s *RecordStore) Fetch(_ context.Context, profileID string) (domain.SessionRecord, ports.VersionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[profileID]
	if !ok {
		return domain.SessionRecord{}, "", domain.ErrNotFound
	}
	return rec, token(s.versions[profileID]), nil
}

func (s *RecordStore) Save(_ context.Context, rec domain.SessionRecord, expected ports.VersionToken) (ports.VersionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.rows[rec.ProfileID]
	if expected == ports.CreateOnly {
		if exists {
			return "", domain.ErrConflict
		}
		s.rows[rec.ProfileID] = rec
		s.versions[rec.ProfileID] = 1
		return token(1), nil
	}
	if !exists {
		return "", domain.ErrNotFound
	}
	if expected != token(s.versions[rec.ProfileID]) {
		return "", domain.ErrConflict
	}
	// Application-level guard, independent of the version token: replays and
	// out-of-order writes are rejected even with a matching token.
	if rec.SequenceNumber <= current.SequenceNumber {
		return "", domain.ErrStaleSequence
	}
	s.rows[rec.ProfileID] = rec
	s.versions[rec.ProfileID]++
	return token(s.versions[rec.ProfileID]), nil
}

func (s *RecordStore) List(context.Context) ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out, nil
}

func token(version int64) ports.VersionToken {
	return ports.VersionToken(strconv.FormatInt(version, 10))
}

type LegacyStore struct {
	mu   sync.Mutex
	rows map[string]domain.LegacyEntry
}

func NewLegacyStore() *LegacyStore {
	return &LegacyStore{rows: map[string]domain.LegacyEntry{}}
}

func (s *LegacyStore) Put(e domain.LegacyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[e.ID] = e
}

func (s *LegacyStore) List(_ context.Context, cursor string, limit int) ([]domain.LegacyEntry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit <= 0 {
		limit = len(ids)
	}
	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[len(ids)-1]
	}
	out := make([]domain.LegacyEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.rows[id])
	}
	return out, next, nil
}

func (s *LegacyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *LegacyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type DeviceStateStore struct {
	mu       sync.Mutex
	deviceID string
	migrated map[string]bool
}

func NewDeviceStateStore() *DeviceStateStore {
	return &DeviceStateStore{migrated: map[string]bool{}}
}

func (s *DeviceStateStore) DeviceID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID == "" {
		s.deviceID = uuid.NewString()
	}
	return s.deviceID, nil
}

func (s *DeviceStateStore) MigrationComplete(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrated[accountID], nil
}

func (s *DeviceStateStore) MarkMigrationComplete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrated[accountID] = true
	return nil
}
