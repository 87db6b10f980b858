package artifact

import (
	"sync"

	"github.com/google/uuid"
)

// Store keeps gathered snapshots in memory for the lifetime of the process.
type Store struct {
	mu     sync.RWMutex
	items  map[string]Snapshot
	order  []string
	latest string
	limit  int
}

// NewStore returns a store that keeps at most limit snapshots (0 keeps all).
func NewStore(limit int) *Store {
	return &Store{items: make(map[string]Snapshot), limit: limit}
}

func (s *Store) Put(snapshot Snapshot) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := snapshot.ID
	if id == "" {
		id = uuid.New().String()
		snapshot.ID = id
	}
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = snapshot
	s.latest = id
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	return id
}

func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.items[id]
	return snap, ok
}

func (s *Store) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return Snapshot{}, false
	}
	snap, ok := s.items[s.latest]
	return snap, ok
}

// List returns snapshots oldest first.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}
