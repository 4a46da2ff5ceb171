package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists role assignments as a flat JSON list in a single file.
// Writes replace the whole file through a temp-file rename so a crash never
// leaves a half-written list.
type FileStore struct {
	path string

	mu      sync.Mutex
	records map[string]*Record
	loaded  bool
}

// NewFileStore creates a file-backed role store at the given path.
// The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:    path,
		records: make(map[string]*Record),
	}
}

// Load reads all records from disk. A missing file yields an empty list.
func (s *FileStore) Load(ctx context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	return s.snapshotLocked(), nil
}

// Save inserts or replaces the record for its agent and rewrites the file.
func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	s.records[rec.AgentID] = rec
	return s.flushLocked()
}

// Delete removes the record for an agent.
func (s *FileStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	if _, ok := s.records[agentID]; !ok {
		return nil
	}

	delete(s.records, agentID)
	return s.flushLocked()
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// loadLocked populates the in-memory map from disk once.
func (s *FileStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return &StoreError{Backend: "file", Operation: "load", Message: "failed to read " + s.path, Cause: err}
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return &StoreError{Backend: "file", Operation: "load", Message: "failed to decode " + s.path, Cause: err}
	}

	for _, rec := range records {
		s.records[rec.AgentID] = rec
	}
	s.loaded = true
	return nil
}

// flushLocked rewrites the whole file atomically.
func (s *FileStore) flushLocked() error {
	records := s.snapshotLocked()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StoreError{Backend: "file", Operation: "save", Message: "failed to encode records", Cause: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StoreError{Backend: "file", Operation: "save", Message: "failed to create directory " + dir, Cause: err}
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &StoreError{Backend: "file", Operation: "save", Message: "failed to write " + tmp, Cause: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &StoreError{Backend: "file", Operation: "save", Message: "failed to replace " + s.path, Cause: err}
	}

	return nil
}

// snapshotLocked returns the records sorted by agent id.
func (s *FileStore) snapshotLocked() []*Record {
	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].AgentID < records[j].AgentID
	})
	return records
}
