package zonestatus

import (
	"sort"
	"sync"

	"github.com/rlust/rvcctl/core/rvc"
)

// Store keeps the last known status per zone instance. It is process-scoped
// state with explicit accessors; the confirmation engine never reads or
// writes it, only the watch service and status readers do.
type Store interface {
	Set(snap rvc.StatusSnapshot)
	Get(instance int) (rvc.StatusSnapshot, bool)
	List() []rvc.StatusSnapshot
}

// MemoryStore is the default in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int]rvc.StatusSnapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[int]rvc.StatusSnapshot{}}
}

// Set records the snapshot for its instance. Invalid snapshots are ignored
// so a read gap never erases the last good observation.
func (s *MemoryStore) Set(snap rvc.StatusSnapshot) {
	if !snap.Valid {
		return
	}
	s.mu.Lock()
	s.data[snap.Instance] = snap
	s.mu.Unlock()
}

// Get returns the last snapshot for the instance.
func (s *MemoryStore) Get(instance int) (rvc.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[instance]
	return snap, ok
}

// List returns all known snapshots ordered by instance.
func (s *MemoryStore) List() []rvc.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rvc.StatusSnapshot, 0, len(s.data))
	for _, snap := range s.data {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
