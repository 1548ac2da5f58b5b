package fallback

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisLog keeps each key as a Redis list. RPUSH is atomic, so concurrent
// trackers sharing one Redis never lose each other's records.
type RedisLog struct {
	redis  *redis.Client
	prefix string
}

func NewRedisLog(rdb *redis.Client, prefix string) *RedisLog {
	return &RedisLog{redis: rdb, prefix: prefix}
}

func (l *RedisLog) Append(ctx context.Context, key string, record any) error {
	data, err := marshalRecord(record)
	if err != nil {
		return err
	}
	return l.redis.RPush(ctx, l.prefix+key, data).Err()
}

func (l *RedisLog) Records(ctx context.Context, key string) ([]json.RawMessage, error) {
	values, err := l.redis.LRange(ctx, l.prefix+key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		records = append(records, json.RawMessage(v))
	}
	return records, nil
}

func (l *RedisLog) Close() error {
	return l.redis.Close()
}
