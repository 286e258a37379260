package assetpoolregistry

import (
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

// AssetPoolSystem provides a concurrency-safe layer over AssetPoolRegistry.
// Writes take a mutex; View reads an atomically swapped snapshot without locking.
type AssetPoolSystem struct {
	mu         sync.RWMutex
	registry   *AssetPoolRegistry
	cachedView atomic.Pointer[View]
}

func NewAssetPoolSystem() *AssetPoolSystem {
	s := &AssetPoolSystem{registry: NewAssetPoolRegistry()}
	s.cachedView.Store(s.registry.view())
	return s
}

// NewAssetPoolSystemFromView creates a system from a snapshot view.
func NewAssetPoolSystemFromView(view *View) *AssetPoolSystem {
	s := &AssetPoolSystem{registry: NewAssetPoolRegistryFromView(view)}
	s.cachedView.Store(s.registry.view())
	return s
}

// updateCachedView MUST be called with s.mu held for writing.
func (s *AssetPoolSystem) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// AddPool links the pool's two assets.
func (s *AssetPoolSystem) AddPool(id amm.PoolID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.addPool(id)
	s.updateCachedView()
}

// AddPools adds several pools and refreshes the cached view once.
func (s *AssetPoolSystem) AddPools(ids []amm.PoolID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.registry.addPool(id)
	}
	s.updateCachedView()
}

func (s *AssetPoolSystem) PoolsForAsset(asset amm.AssetID) []amm.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForAsset(asset)
}

// Neighbors returns the assets sharing at least one pool with asset, sorted.
func (s *AssetPoolSystem) Neighbors(asset amm.AssetID) []amm.AssetID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.neighborsOf(asset)
}

// PoolsBetween returns the pools trading a against b, sorted.
func (s *AssetPoolSystem) PoolsBetween(a, b amm.AssetID) []amm.PoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsBetween(a, b)
}

// View returns a deep copy of the cached snapshot.
func (s *AssetPoolSystem) View() *View {
	return deepCopyView(s.cachedView.Load())
}
