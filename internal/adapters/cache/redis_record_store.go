package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"github.com/mnbf9rca/family-foqos-sub001/internal/ports"
)

const recordKeyPrefix = "sync:record:"

// RedisRecordStore is an alternative record backend for deployments without
// Postgres. Each profile's record and its version counter live in one JSON
// value; WATCH/MULTI around the read-modify-write provides the
// compare-and-swap, with the version check and the sequence guard applied
// inside the transaction body.
type RedisRecordStore struct {
	client *redis.Client
}

func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

type recordEnvelope struct {
	Version int64                `json:"version"`
	Record  domain.SessionRecord `json:"record"`
}

func (s *RedisRecordStore) Fetch(ctx context.Context, profileID string) (domain.SessionRecord, ports.VersionToken, error) {
	raw, err := s.client.Get(ctx, recordKeyPrefix+profileID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionRecord{}, "", domain.ErrNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, "", err
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return domain.SessionRecord{}, "", err
	}
	return env.Record, envelopeToken(env.Version), nil
}

func (s *RedisRecordStore) Save(ctx context.Context, rec domain.SessionRecord, expected ports.VersionToken) (ports.VersionToken, error) {
	key := recordKeyPrefix + rec.ProfileID
	var saved ports.VersionToken

	txn := func(tx *redis.Tx) error {
		raw, getErr := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(getErr, redis.Nil) {
			exists = false
		} else if getErr != nil {
			return getErr
		}

		var next recordEnvelope
		if expected == ports.CreateOnly {
			if exists {
				return domain.ErrConflict
			}
			next = recordEnvelope{Version: 1, Record: rec}
		} else {
			if !exists {
				return domain.ErrNotFound
			}
			current, decodeErr := decodeEnvelope(raw)
			if decodeErr != nil {
				return decodeErr
			}
			if expected != envelopeToken(current.Version) {
				return domain.ErrConflict
			}
			if rec.SequenceNumber <= current.Record.SequenceNumber {
				return domain.ErrStaleSequence
			}
			next = recordEnvelope{Version: current.Version + 1, Record: rec}
		}

		payload, marshalErr := json.Marshal(next)
		if marshalErr != nil {
			return marshalErr
		}
		_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if pipeErr != nil {
			return pipeErr
		}
		saved = envelopeToken(next.Version)
		return nil
	}

	if err := s.client.Watch(ctx, txn, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// The watched key changed between read and write.
			return "", domain.ErrConflict
		}
		return "", err
	}
	return saved, nil
}

func (s *RedisRecordStore) List(ctx context.Context) ([]domain.SessionRecord, error) {
	var out []domain.SessionRecord
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, env.Record)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeEnvelope treats an unparseable stored value as corruption, never as
// absence: a missing record means "no session", a broken one must not.
func decodeEnvelope(raw []byte) (recordEnvelope, error) {
	var env recordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return recordEnvelope{}, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}
	if env.Record.ProfileID == "" {
		return recordEnvelope{}, fmt.Errorf("%w: missing profile id", domain.ErrCorruptRecord)
	}
	return env, nil
}

func envelopeToken(version int64) ports.VersionToken {
	return ports.VersionToken(strconv.FormatInt(version, 10))
}
