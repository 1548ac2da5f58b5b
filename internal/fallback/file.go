package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileLog stores each key as a JSON array in <dir>/<key>.json. Every append
// reads the array, pushes the record and writes the whole file back.
type FileLog struct {
	dir string
	mu  sync.Mutex
}

func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	return &FileLog{dir: dir}, nil
}

func (l *FileLog) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}

func (l *FileLog) Append(_ context.Context, key string, record any) error {
	data, err := marshalRecord(record)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read(key)
	if err != nil {
		return err
	}
	records = append(records, data)

	out, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal fallback log: %w", err)
	}

	// Write to a sibling file first so a crash never leaves half an array.
	tmp := l.path(key) + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write fallback log: %w", err)
	}
	if err := os.Rename(tmp, l.path(key)); err != nil {
		return fmt.Errorf("write fallback log: %w", err)
	}
	return nil
}

func (l *FileLog) Records(_ context.Context, key string) ([]json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(key)
}

func (l *FileLog) read(key string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fallback log: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode fallback log %s: %w", key, err)
	}
	return records, nil
}

func (l *FileLog) Close() error { return nil }
