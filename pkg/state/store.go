package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"
)

// Keys persisted by the daemon.
const (
	KeyDeviceID      = "device_id"
	KeyDeviceKey     = "device_key"
	KeyCachedToken   = "cached_token"
	KeyTokenExpiry   = "token_expiry"
	KeySnoozeList    = "snooze_list"
	KeyTasks         = "lark_tasks"
	KeyLastSync      = "last_sync"
	KeyCalendarIndex = "calendar_index"
)

var ErrNotFound = errors.New("state: key not found")

// Store is a flat key-value store kept on disk, one file per key.
type Store struct {
	d  *diskv.Diskv
	mu sync.Mutex
}

// Open creates a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{d: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 256 * 1024,
		FilePerm:     0600,
		PathPerm:     0700,
	})}, nil
}

func (s *Store) read(key string) ([]byte, error) {
	val, err := s.d.Read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return val, nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	return s.d.Has(key)
}

func (s *Store) GetString(key string) (string, error) {
	val, err := s.read(key)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Write(key, []byte(value))
}

// GetJSON decodes the value stored under key into v.
func (s *Store) GetJSON(key string, v any) error {
	val, err := s.read(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Write(key, b)
}

// GetTime reads a timestamp stored as epoch milliseconds.
func (s *Store) GetTime(key string) (time.Time, error) {
	raw, err := s.GetString(key)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}

func (s *Store) SetTime(key string, t time.Time) error {
	return s.SetString(key, strconv.FormatInt(t.UnixMilli(), 10))
}

// Remove erases every given key. Missing keys are ignored.
func (s *Store) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if !s.Has(key) {
			continue
		}
		if err := s.d.Erase(key); err != nil {
			return fmt.Errorf("erase %s: %w", key, err)
		}
	}
	return nil
}

// EnsureDeviceID returns the persisted device identifier, generating one on
// first use.
func (s *Store) EnsureDeviceID() (string, error) {
	id, err := s.GetString(KeyDeviceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	if err := s.SetString(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
