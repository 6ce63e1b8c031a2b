// Package store owns the canonical mapping from request key to the ordered
// operation list formulated for that request. Entries survive process
// reloads so in-flight multi-chain work is not lost, and all status
// mutations go through whole-list batches.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/models"
)

const (
	DefaultFileName = ".orb-pending-requests.json"

	// SchemaVersion is bumped on any structural change to the persisted
	// Operation or request entry layout. Blobs with an unknown version are
	// discarded on load.
	SchemaVersion = 1
)

// persistedState is the on-disk layout of the store.
type persistedState struct {
	Version  int                          `json:"version"`
	Requests map[string]models.Operations `json:"requests"`
}

// Store is a persisted, subscribable collection of request entries. It is
// the single shared mutable resource of the orchestration core; every
// mutation is atomic with respect to the others.
type Store struct {
	filePath    string
	mu          sync.RWMutex
	requests    map[string]models.Operations
	subscribers []func()
	logger      logger.Logger
}

// New creates a store backed by the given file. An empty path defaults to a
// file in the user's home directory. Existing state is loaded if present.
func New(filePath string, log logger.Logger) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{
		filePath: filePath,
		requests: make(map[string]models.Operations),
		logger:   log,
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load pending requests: %w", err)
		}
	}

	return s, nil
}

// load reads the persisted blob from disk.
func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal pending requests: %w", err)
	}

	if state.Version != SchemaVersion {
		s.logger.Notice("Discarding persisted store with schema version %d (current %d)", state.Version, SchemaVersion)
		return nil
	}

	if state.Requests != nil {
		s.requests = state.Requests
	}
	return nil
}

// save writes the blob to a temporary file and renames it into place so a
// crash mid-write cannot corrupt the persisted state. Callers hold the lock.
func (s *Store) save() error {
	state := persistedState{
		Version:  SchemaVersion,
		Requests: s.requests,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending requests: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write pending requests: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get returns a copy of the operation list stored under the key.
func (s *Store) Get(requestKey string) (models.Operations, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops, ok := s.requests[requestKey]
	if !ok {
		return nil, false
	}

	out := make(models.Operations, len(ops))
	copy(out, ops)
	return out, true
}

// Put replaces the entry under the key wholesale. Any prior entry with the
// same key is dropped first; there is no merge.
func (s *Store) Put(requestKey string, operations models.Operations) error {
	s.mu.Lock()
	delete(s.requests, requestKey)

	ops := make(models.Operations, len(operations))
	copy(ops, operations)
	s.requests[requestKey] = ops

	err := s.save()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// Remove deletes the entry if present and is a no-op otherwise.
func (s *Store) Remove(requestKey string) error {
	s.mu.Lock()
	_, existed := s.requests[requestKey]
	if !existed {
		s.mu.Unlock()
		return nil
	}
	delete(s.requests, requestKey)

	err := s.save()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// UpdateStatuses applies statuses[i] to operations[i] for all i. A batch
// whose length does not match the stored list is dropped: a size mismatch
// means a stale update is racing a newer formulation, and applying it would
// corrupt the entry. Returns true if the batch was applied.
func (s *Store) UpdateStatuses(requestKey string, statuses []models.StatusUpdate) (bool, error) {
	s.mu.Lock()

	ops, ok := s.requests[requestKey]
	if !ok || len(statuses) != len(ops) {
		s.mu.Unlock()
		s.logger.Debug("Dropping status batch for %s: %d statuses, entry present=%v", requestKey, len(statuses), ok)
		return false, nil
	}

	for i := range ops {
		ops[i].Status = statuses[i].Status
		if statuses[i].SubmittedID != "" {
			ops[i].SubmittedID = statuses[i].SubmittedID
		}
	}

	err := s.save()
	s.mu.Unlock()

	if err != nil {
		return false, err
	}

	s.notify()
	return true, nil
}

// Subscribe registers a callback invoked after every successful mutation.
// The UI layer uses this to re-render pending request views.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// notify runs subscriber callbacks outside the store lock.
func (s *Store) notify() {
	s.mu.RLock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

// Len returns the number of request entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// Keys returns the request keys currently present.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.requests))
	for key := range s.requests {
		keys = append(keys, key)
	}
	return keys
}

// FilePath returns the backing file path.
func (s *Store) FilePath() string {
	return s.filePath
}
