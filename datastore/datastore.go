// Package datastore keeps JSON-encoded values under string keys and
// persists them as a single JSON object on disk.
//
// Values are encoded when they are written, so callers may keep mutating
// what they passed to Set without affecting the stored copy. A background
// loop flushes dirty state; Close flushes once more.
package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/logger"
)

var (
	ErrClosed = errors.New("datastore: closed")
	ErrFull   = errors.New("datastore: size limit reached")
)

type Config struct {
	FilePath string
	// FlushInterval is how often dirty state is written. Zero disables the
	// background loop.
	FlushInterval time.Duration
	// MaxSize caps the total encoded size of all values in bytes. Zero
	// means no cap.
	MaxSize int
	// Backups is how many previous versions of the file to keep as
	// FilePath.1 (newest) to FilePath.N.
	Backups int
	Logger  *log.Logger
}

func DefaultConfig(filePath string) Config {
	return Config{
		FilePath:      filePath,
		FlushInterval: 10 * time.Second,
		MaxSize:       100 << 20,
		Backups:       3,
		Logger:        logger.New("datastore"),
	}
}

type DataStore struct {
	cfg Config
	log *log.Logger

	mu     sync.RWMutex
	values map[string]json.RawMessage
	size   int
	dirty  bool
	closed bool

	flushMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

func New(filePath string) (*DataStore, error) {
	return Open(DefaultConfig(filePath))
}

// Open loads cfg.FilePath, creating it when missing.
func Open(cfg Config) (*DataStore, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("datastore: file path is empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	ds := &DataStore{
		cfg:    cfg,
		log:    cfg.Logger,
		values: make(map[string]json.RawMessage),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	raw, err := os.ReadFile(cfg.FilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := ds.write([]byte("{}")); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", cfg.FilePath, err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &ds.values); err != nil {
			return nil, fmt.Errorf("decode %s: %w", cfg.FilePath, err)
		}
		if ds.values == nil {
			ds.values = make(map[string]json.RawMessage)
		}
		for _, v := range ds.values {
			ds.size += len(v)
		}
	}

	if cfg.FlushInterval > 0 {
		go ds.loop()
	} else {
		close(ds.done)
	}
	return ds, nil
}

// Set encodes value and stores it under key.
func (ds *DataStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	size := ds.size - len(ds.values[key]) + len(raw)
	if ds.cfg.MaxSize > 0 && size > ds.cfg.MaxSize {
		ds.log.Warn("size limit reached, write rejected", "key", key, "size", size)
		return ErrFull
	}
	ds.values[key] = raw
	ds.size = size
	ds.dirty = true
	return nil
}

// Get decodes the value under key into dst. It reports false when the key
// is absent.
func (ds *DataStore) Get(key string, dst any) (bool, error) {
	ds.mu.RLock()
	raw, ok := ds.values[key]
	closed := ds.closed
	ds.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Size returns the total encoded size of the stored values.
func (ds *DataStore) Size() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.size
}

// Flush writes the current state if anything changed since the last write.
func (ds *DataStore) Flush() error {
	ds.mu.RLock()
	closed := ds.closed
	ds.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return ds.flush()
}

// Close stops the background loop and writes pending changes. Closing twice
// is a no-op.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	ds.mu.Unlock()

	if ds.cfg.FlushInterval > 0 {
		close(ds.stop)
	}
	<-ds.done
	return ds.flush()
}

func (ds *DataStore) loop() {
	defer close(ds.done)
	t := time.NewTicker(ds.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ds.stop:
			return
		case <-t.C:
			if err := ds.flush(); err != nil {
				ds.log.Error("flush failed", "err", err)
			}
		}
	}
}

func (ds *DataStore) flush() error {
	ds.flushMu.Lock()
	defer ds.flushMu.Unlock()

	ds.mu.Lock()
	if !ds.dirty {
		ds.mu.Unlock()
		return nil
	}
	raw, err := json.MarshalIndent(ds.values, "", "  ")
	ds.dirty = false
	ds.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	ds.rotate()
	if err := ds.write(raw); err != nil {
		ds.mu.Lock()
		ds.dirty = true
		ds.mu.Unlock()
		return err
	}
	return nil
}

// rotate shifts FilePath.k to FilePath.k+1 and copies the live file to
// FilePath.1. Failures are logged; they never block a write.
func (ds *DataStore) rotate() {
	n := ds.cfg.Backups
	if n <= 0 {
		return
	}
	cur, err := os.ReadFile(ds.cfg.FilePath)
	if err != nil {
		return
	}
	for k := n - 1; k >= 1; k-- {
		from := fmt.Sprintf("%s.%d", ds.cfg.FilePath, k)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, fmt.Sprintf("%s.%d", ds.cfg.FilePath, k+1))
		}
	}
	if err := os.WriteFile(ds.cfg.FilePath+".1", cur, 0o644); err != nil {
		ds.log.Warn("backup failed", "err", err)
	}
}

// write replaces the file through a synced temp file and a rename.
func (ds *DataStore) write(raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(ds.cfg.FilePath), filepath.Base(ds.cfg.FilePath)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), ds.cfg.FilePath); err != nil {
		return fmt.Errorf("replace %s: %w", ds.cfg.FilePath, err)
	}
	return nil
}
