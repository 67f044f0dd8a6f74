package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iskralabs/calibra/internal/config"
	"github.com/iskralabs/calibra/internal/engine"
	"github.com/iskralabs/calibra/internal/logging"
)

// ErrNoSnapshot is returned by LoadLatest when neither store has a snapshot.
var ErrNoSnapshot = errors.New("no snapshot available")

// SnapshotStore persists full engine state snapshots. Postgres is the
// durable store; Redis holds the latest snapshot for fast restore. Either
// backend may be absent, the store degrades to whatever remains.
type SnapshotStore struct {
	db    *PostgresDB
	redis *RedisClient

	redisKey  string
	retention int

	logger logging.Logger
}

// NewSnapshotStore creates a snapshot store.
//
// Parameters:
//
//	db: Postgres connection, may be nil for Redis-only persistence.
//	redisClient: Redis connection, may be nil.
//	cfg: Snapshot configuration.
//	logger: Logger instance.
//
// Returns:
//
//	*SnapshotStore: The initialized store.
func NewSnapshotStore(db *PostgresDB, redisClient *RedisClient, cfg config.SnapshotConfig, logger logging.Logger) *SnapshotStore {
	retention := cfg.Retention
	if retention <= 0 {
		retention = 48
	}
	key := cfg.RedisKey
	if key == "" {
		key = "calibra:snapshot:latest"
	}
	return &SnapshotStore{
		db:        db,
		redis:     redisClient,
		redisKey:  key,
		retention: retention,
		logger:    logger.WithComponent("snapshot_store"),
	}
}

// Save persists a snapshot to every available backend. A Redis write
// failure is logged but does not fail the save as long as the durable
// write succeeded.
func (s *SnapshotStore) Save(ctx context.Context, snapshot engine.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if s.db != nil {
		if _, err := s.db.Pool.Exec(ctx,
			`INSERT INTO calibration_snapshots (created_at, state) VALUES ($1, $2)`,
			snapshot.SavedAt, payload,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		if err := s.trim(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to trim old snapshots")
		}
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, s.redisKey, payload, 0); err != nil {
			if s.db == nil {
				return err
			}
			s.logger.WithError(err).Warn("Failed to cache snapshot in Redis")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"saved_at": snapshot.SavedAt,
		"bytes":    len(payload),
	}).Info("Snapshot saved")

	return nil
}

// trim deletes Postgres snapshot rows beyond the retention count.
func (s *SnapshotStore) trim(ctx context.Context) error {
	_, err := s.db.Pool.Exec(ctx, `
		DELETE FROM calibration_snapshots
		WHERE id NOT IN (
			SELECT id FROM calibration_snapshots
			ORDER BY created_at DESC
			LIMIT $1
		)`, s.retention)
	return err
}

// LoadLatest retrieves the most recent snapshot, preferring the Redis cache
// and falling back to Postgres. Returns ErrNoSnapshot when neither backend
// has one.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*engine.Snapshot, error) {
	if s.redis != nil {
		payload, err := s.redis.Get(ctx, s.redisKey)
		switch {
		case err == nil:
			var snapshot engine.Snapshot
			if unmarshalErr := json.Unmarshal([]byte(payload), &snapshot); unmarshalErr == nil {
				return &snapshot, nil
			}
			s.logger.Warn("Cached snapshot is malformed, falling back to Postgres")
		case errors.Is(err, redis.Nil):
			// Cache miss, fall through.
		default:
			s.logger.WithError(err).Warn("Failed to read snapshot cache")
		}
	}

	if s.db == nil {
		return nil, ErrNoSnapshot
	}

	var payload []byte
	var createdAt time.Time
	err := s.db.Pool.QueryRow(ctx, `
		SELECT state, created_at FROM calibration_snapshots
		ORDER BY created_at DESC
		LIMIT 1`).Scan(&payload, &createdAt)
	if err != nil {
		return nil, ErrNoSnapshot
	}

	var snapshot engine.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot from %s: %w", createdAt, err)
	}
	return &snapshot, nil
}
