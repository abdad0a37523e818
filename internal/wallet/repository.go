package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "external_wallet:v1:"
	maxUpdateRetries = 5
)

var (
	// ErrNotFound indicates the wallet has never been linked.
	ErrNotFound = errors.New("external wallet not found")

	// ErrConflict is returned when an update keeps losing optimistic races.
	ErrConflict = errors.New("external wallet update conflict")
)

// Store persists the external wallet record for one provider.
type Store interface {
	Get(ctx context.Context) (*Record, error)
	Set(ctx context.Context, record *Record) error
	// Update runs fn against the current record and persists the result.
	// Returning an error from fn aborts the write.
	Update(ctx context.Context, fn func(record *Record) error) error
}

// Key returns the storage key for the provider's record.
func Key(provider string) string {
	return keyPrefix + provider
}

// RedisStore keeps the record as a JSON document in Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a store scoped to the given provider.
func NewRedisStore(client *redis.Client, provider string) *RedisStore {
	return &RedisStore{client: client, key: Key(provider)}
}

// Get loads the record.
func (s *RedisStore) Get(ctx context.Context) (*Record, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	return decodeRecord(raw)
}

// Set overwrites the record.
func (s *RedisStore) Set(ctx context.Context, record *Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// Update performs an optimistic read-modify-write using WATCH/MULTI.
func (s *RedisStore) Update(ctx context.Context, fn func(record *Record) error) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", s.key, err)
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
		payload, err := encodeRecord(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func encodeRecord(record *Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil wallet record")
	}
	record.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode wallet record: %w", err)
	}
	return payload, nil
}

func decodeRecord(raw []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode wallet record: %w", err)
	}
	return &record, nil
}
