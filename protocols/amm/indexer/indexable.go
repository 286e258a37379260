package indexer

import "github.com/defistate/defistate-amm-go/protocols/amm"

// Indexer builds IndexedPools values from pool views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool system from a raw slice of pools.
func (i *Indexer) Index(pools []amm.Pool) IndexedPools {
	return NewIndexablePoolSystem(pools)
}

// IndexablePoolSystem provides fast, indexed access to pool data.
type IndexablePoolSystem struct {
	byID map[amm.PoolID]amm.Pool
	byLP map[amm.AssetID]amm.Pool
	all  []amm.Pool
}

// NewIndexablePoolSystem creates a new indexed pool system.
func NewIndexablePoolSystem(pools []amm.Pool) *IndexablePoolSystem {
	byID := make(map[amm.PoolID]amm.Pool, len(pools))
	byLP := make(map[amm.AssetID]amm.Pool, len(pools))

	for _, p := range pools {
		byID[p.ID] = p
		byLP[p.LPAsset] = p
	}

	return &IndexablePoolSystem{
		byID: byID,
		byLP: byLP,
		all:  pools,
	}
}

// GetByID retrieves a pool by its canonical id.
func (s *IndexablePoolSystem) GetByID(id amm.PoolID) (amm.Pool, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// GetByLPAsset retrieves a pool by the id of its liquidity receipt asset.
func (s *IndexablePoolSystem) GetByLPAsset(lp amm.AssetID) (amm.Pool, bool) {
	p, ok := s.byLP[lp]
	return p, ok
}

// All returns a copy of the slice of all pools.
func (s *IndexablePoolSystem) All() []amm.Pool {
	allCopy := make([]amm.Pool, len(s.all))
	copy(allCopy, s.all)
	return allCopy
}
