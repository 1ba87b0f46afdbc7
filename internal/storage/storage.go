// Package storage persists session snapshots as JSON files, one per
// session. Writes are atomic (temp file plus rename) and guarded by
// per-file flock locks so concurrent service instances cannot
// interleave on the same snapshot.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no snapshot exists for an id.
var ErrNotFound = errors.New("not found")

// snapshotDir is the subdirectory snapshots live under, so the base
// directory can host other state later without collisions.
const snapshotDir = "session"

// fileStore maps snapshot ids onto <base>/session/<id>.json documents.
type fileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*FileLock
}

func newFileStore(base string) *fileStore {
	return &fileStore{
		dir:   filepath.Join(base, snapshotDir),
		locks: make(map[string]*FileLock),
	}
}

func (s *fileStore) file(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// read unmarshals the snapshot for id into v.
func (s *fileStore) read(id string, v any) error {
	data, err := os.ReadFile(s.file(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return nil
}

// write replaces the snapshot for id. The document lands via a temp
// file and rename, so readers never observe a partial write.
func (s *fileStore) write(id string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	path := s.file(id)
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// remove deletes the snapshot for id. Removing a missing snapshot is
// not an error.
func (s *fileStore) remove(id string) error {
	path := s.file(id)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// keys returns the ids of all stored snapshots.
func (s *fileStore) keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

// lockFor returns the process-wide lock guarding one snapshot file.
func (s *fileStore) lockFor(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}

	return lock
}
