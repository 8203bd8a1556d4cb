package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

const (
	redisRunsKey      = "fleetbuild:runs"
	redisRecordPrefix = "fleetbuild:records:"
)

// RedisStore appends each run's records to a redis list keyed by run ID and
// the run ID to a list of runs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the redis URL and pings it.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

type redisRecord struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
	Time   time.Time         `json:"time"`
}

// RecordsKey returns the list key holding the records of runID.
func RecordsKey(runID string) string {
	return redisRecordPrefix + runID
}

// Persist pushes every record and the run ID in one transaction.
func (s *RedisStore) Persist(ctx context.Context, runID string, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(redisRecord{Type: rec.Type, Fields: rec.Fields, Time: rec.Time})
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		values = append(values, string(data))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, RecordsKey(runID), values...)
		pipe.RPush(ctx, redisRunsKey, runID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist records to redis: %w", err)
	}
	return nil
}

// Load returns the records persisted for runID.
func (s *RedisStore) Load(ctx context.Context, runID string) ([]record.Record, error) {
	raw, err := s.client.LRange(ctx, RecordsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]record.Record, 0, len(raw))
	for _, item := range raw {
		var rr redisRecord
		if err := json.Unmarshal([]byte(item), &rr); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record.Record{Type: rr.Type, Fields: rr.Fields, Time: rr.Time})
	}
	return records, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
