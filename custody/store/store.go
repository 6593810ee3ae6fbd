// Package store persists custody record snapshots in Redis.
//
// Exactly one record per key is stored: the four durable fields serialized
// as JSON. The transient reentrancy guard is never persisted.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-custody/custody"
)

const (
	// DefaultKeyPrefix namespaces custody record keys in Redis.
	DefaultKeyPrefix = "custody:record:"
)

var (
	// ErrNilClient is returned when the store has no Redis client.
	ErrNilClient = errors.New("redis client is nil")
	// ErrEmptyRecordID is returned when the record identifier is empty.
	ErrEmptyRecordID = errors.New("record id is empty")
	// ErrSnapshotNotFound is returned when no snapshot exists for the record.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Store reads and writes custody snapshots in Redis.
type Store struct {
	client    redis.UniversalClient
	logger    *zap.Logger
	keyPrefix string
	ttl       time.Duration
}

// Option configures a Store.
type Option func(s *Store)

// WithLogger sets a structured logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithTTL sets an expiry on stored snapshots. Zero (the default) stores
// them without expiry, which is what a long-lived custody record wants;
// a TTL only makes sense for ephemeral test deployments.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a snapshot store on top of an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	s := &Store{
		client:    client,
		logger:    zap.NewNop(),
		keyPrefix: DefaultKeyPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

// Save writes the snapshot for the given record id, replacing any previous one.
func (s *Store) Save(ctx context.Context, recordID string, snapshot custody.Snapshot) error {
	key, err := s.key(recordID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	s.logger.Debug("custody: snapshot saved", zap.String("key", key))

	return nil
}

// Load reads the snapshot for the given record id. Returns
// ErrSnapshotNotFound when no snapshot exists.
func (s *Store) Load(ctx context.Context, recordID string) (custody.Snapshot, error) {
	key, err := s.key(recordID)
	if err != nil {
		return custody.Snapshot{}, err
	}

	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return custody.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, recordID)
		}

		return custody.Snapshot{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snapshot custody.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return custody.Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}

	return snapshot, nil
}

// Delete removes the snapshot for the given record id. Deleting a missing
// snapshot is not an error.
func (s *Store) Delete(ctx context.Context, recordID string) error {
	key, err := s.key(recordID)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

func (s *Store) key(recordID string) (string, error) {
	if strings.TrimSpace(recordID) == "" {
		return "", ErrEmptyRecordID
	}

	return s.keyPrefix + recordID, nil
}
