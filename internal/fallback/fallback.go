// Package fallback keeps payloads that could not be delivered to the
// collector. Each key is an append-only ordered log with no cap and no
// compaction.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gosight/visittrack/internal/config"
)

// Well-known log keys.
const (
	KeyTracking     = "trackingData"
	KeyInitTracking = "initTrackingData"
)

type Log interface {
	// Append adds record, serialized as JSON, to the end of the log at key.
	Append(ctx context.Context, key string, record any) error
	// Records returns every record at key in append order.
	Records(ctx context.Context, key string) ([]json.RawMessage, error)
	Close() error
}

// Open builds the log selected by cfg.Driver.
func Open(cfg config.FallbackConfig, redisCfg config.RedisConfig) (Log, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileLog(cfg.Dir)
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		return NewRedisLog(rdb, cfg.KeyPrefix), nil
	case "sqlite":
		return NewSQLiteLog(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown fallback driver %q", cfg.Driver)
	}
}

func marshalRecord(record any) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal fallback record: %w", err)
	}
	return data, nil
}
