package execution

import "sync"

// MemoryStore keeps snapshots and events in memory only (no persistence).
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	events    map[string][]Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		events:    make(map[string][]Event),
	}
}

// Save stores a snapshot, replacing any previous one for the same order.
func (s *MemoryStore) Save(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.OrderID] = snapshot.Clone()
	return nil
}

// Load returns the snapshot for an order id.
func (s *MemoryStore) Load(orderID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[orderID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshot.Clone(), nil
}

// List returns all stored snapshots.
func (s *MemoryStore) List() ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		result = append(result, snapshot.Clone())
	}
	return result, nil
}

// Delete removes the snapshot and events for an order id.
func (s *MemoryStore) Delete(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, orderID)
	delete(s.events, orderID)
	return nil
}

// AppendEvent appends an event to an execution's log.
func (s *MemoryStore) AppendEvent(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.OrderID] = append(s.events[event.OrderID], event)
	return nil
}

// Events returns an execution's event log in append order.
func (s *MemoryStore) Events(orderID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[orderID]
	if !ok {
		return nil, nil
	}
	result := make([]Event, len(events))
	copy(result, events)
	return result, nil
}

var _ StateStore = (*MemoryStore)(nil)
