package poolregistry

import (
	"sync"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

// MemoryStore is a Store that keeps pools in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	pools map[amm.PoolID]amm.Pool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[amm.PoolID]amm.Pool)}
}

func (s *MemoryStore) All() ([]amm.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]amm.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	amm.SortPools(out)
	return out, nil
}

func (s *MemoryStore) Put(pools ...amm.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		s.pools[p.ID] = p
	}
	return nil
}
