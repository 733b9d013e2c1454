package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DiskStore persists executions to disk as one JSON file per order.
// It satisfies the durable-replay requirement for single-node deployments:
// a snapshot file is fully rewritten on every transition via an atomic rename.
type DiskStore struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	data map[string]*diskRecord // keyed by order id
}

// diskRecord is the on-disk layout: the snapshot plus its event log.
type diskRecord struct {
	Snapshot Snapshot `json:"snapshot"`
	Events   []Event  `json:"events,omitempty"`
}

// NewDiskStore creates a disk-backed store rooted at dir.
// The directory is created if it doesn't exist, and existing executions
// are loaded so recovery can resume them.
func NewDiskStore(dir string, logger *slog.Logger) (*DiskStore, error) {
	s := &DiskStore{
		dir:    dir,
		logger: logger,
		data:   make(map[string]*diskRecord),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Save persists a snapshot, replacing any previous one for the same order.
func (s *DiskStore) Save(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[snapshot.OrderID]
	if !ok {
		record = &diskRecord{}
		s.data[snapshot.OrderID] = record
	}
	record.Snapshot = snapshot.Clone()

	return s.write(snapshot.OrderID, record)
}

// Load returns the snapshot for an order id.
func (s *DiskStore) Load(orderID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[orderID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return record.Snapshot.Clone(), nil
}

// List returns all stored snapshots.
func (s *DiskStore) List() ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Snapshot, 0, len(s.data))
	for _, record := range s.data {
		result = append(result, record.Snapshot.Clone())
	}
	return result, nil
}

// Delete removes the snapshot and events for an order id.
func (s *DiskStore) Delete(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, orderID)

	err := os.Remove(s.path(orderID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove execution file: %w", err)
	}
	return nil
}

// AppendEvent appends an event to an execution's log and rewrites its file.
func (s *DiskStore) AppendEvent(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[event.OrderID]
	if !ok {
		record = &diskRecord{}
		s.data[event.OrderID] = record
	}
	record.Events = append(record.Events, event)

	return s.write(event.OrderID, record)
}

// Events returns an execution's event log in append order.
func (s *DiskStore) Events(orderID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[orderID]
	if !ok {
		return nil, nil
	}
	result := make([]Event, len(record.Events))
	copy(result, record.Events)
	return result, nil
}

// write marshals a record and renames it into place so a crash mid-write
// never leaves a partially written snapshot behind.
func (s *DiskStore) write(orderID string, record *diskRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	path := s.path(orderID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write execution file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace execution file: %w", err)
	}

	s.logger.Debug("saved execution to disk", "path", path)
	return nil
}

// load reads all execution files from the state directory.
func (s *DiskStore) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read execution file", "file", path, "error", err)
			continue
		}

		var record diskRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("failed to parse execution file", "file", path, "error", err)
			continue
		}
		if record.Snapshot.OrderID == "" {
			s.logger.Warn("execution file missing order id", "file", path)
			continue
		}

		s.data[record.Snapshot.OrderID] = &record
	}

	s.logger.Info("loaded executions from disk", "count", len(s.data))
	return nil
}

func (s *DiskStore) path(orderID string) string {
	return filepath.Join(s.dir, orderID+".json")
}

var _ StateStore = (*DiskStore)(nil)
