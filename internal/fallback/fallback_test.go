package fallback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/visittrack/internal/config"
)

type record struct {
	VisitUID  string `json:"visitUid"`
	Timestamp int64  `json:"timestamp"`
}

func openDrivers(t *testing.T) map[string]Log {
	t.Helper()

	fileLog, err := NewFileLog(filepath.Join(t.TempDir(), "fallback"))
	require.NoError(t, err)

	sqliteLog, err := NewSQLiteLog(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisLog := NewRedisLog(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	logs := map[string]Log{
		"file":   fileLog,
		"sqlite": sqliteLog,
		"redis":  redisLog,
	}
	t.Cleanup(func() {
		for _, l := range logs {
			l.Close()
		}
	})
	return logs
}

func TestLogAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()

	for name, l := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for i := int64(1); i <= 3; i++ {
				require.NoError(t, l.Append(ctx, KeyTracking, record{VisitUID: "visit_a", Timestamp: i}))
			}

			records, err := l.Records(ctx, KeyTracking)
			require.NoError(t, err)
			require.Len(t, records, 3)

			for i, raw := range records {
				var r record
				require.NoError(t, json.Unmarshal(raw, &r))
				assert.Equal(t, int64(i+1), r.Timestamp)
				assert.Equal(t, "visit_a", r.VisitUID)
			}
		})
	}
}

func TestLogKeysAreIndependent(t *testing.T) {
	ctx := context.Background()

	for name, l := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Append(ctx, KeyTracking, record{Timestamp: 1}))
			require.NoError(t, l.Append(ctx, KeyInitTracking, record{Timestamp: 2}))
			require.NoError(t, l.Append(ctx, KeyInitTracking, record{Timestamp: 3}))

			tracking, err := l.Records(ctx, KeyTracking)
			require.NoError(t, err)
			assert.Len(t, tracking, 1)

			inits, err := l.Records(ctx, KeyInitTracking)
			require.NoError(t, err)
			assert.Len(t, inits, 2)
		})
	}
}

func TestLogEmptyKey(t *testing.T) {
	for name, l := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			records, err := l.Records(context.Background(), "nothing-here")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestLogRejectsUnmarshalableRecord(t *testing.T) {
	for name, l := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			err := l.Append(context.Background(), KeyTracking, map[string]any{"bad": make(chan int)})
			assert.Error(t, err)
		})
	}
}

func TestFileLogCorruptFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLog(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyTracking+".json"), []byte("{not json"), 0o600))

	err = l.Append(context.Background(), KeyTracking, record{Timestamp: 1})
	assert.Error(t, err)
}

func TestFileLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := NewFileLog(dir)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, KeyInitTracking, record{VisitUID: "visit_b"}))

	reopened, err := NewFileLog(dir)
	require.NoError(t, err)
	records, err := reopened.Records(ctx, KeyInitTracking)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"visitUid":"visit_b","timestamp":0}`, string(records[0]))
}

func TestSQLiteLogPragmas(t *testing.T) {
	l, err := NewSQLiteLog(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	defer l.Close()

	var mode string
	require.NoError(t, l.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, l.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		driver  string
		wantErr bool
	}{
		{driver: "file"},
		{driver: ""},
		{driver: "sqlite"},
		{driver: "redis"},
		{driver: "cassette", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			l, err := Open(config.FallbackConfig{
				Driver:     tt.driver,
				Dir:        filepath.Join(dir, "files"),
				SQLitePath: filepath.Join(dir, "fallback.db"),
				KeyPrefix:  "open:",
			}, config.RedisConfig{Addr: mr.Addr()})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer l.Close()
			assert.NoError(t, l.Append(context.Background(), KeyTracking, record{Timestamp: 9}))
		})
	}
}
