// Package poolregistry owns the canonical state of every pool. Writes are
// staged inside a transaction and reach the backing Store only on Commit.
package poolregistry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

var (
	ErrPoolAlreadyExists = errors.New("pool already exists")
	ErrPoolDoesNotExist  = errors.New("pool does not exist")
	ErrTxInProgress      = errors.New("transaction already in progress")
	ErrNoTx              = errors.New("no transaction in progress")
)

// Store persists pools. Put must apply all pools atomically.
type Store interface {
	All() ([]amm.Pool, error)
	Put(pools ...amm.Pool) error
}

// Registry is safe for concurrent use. Reads through Get observe staged
// writes of the open transaction; View only ever returns committed state.
type Registry struct {
	mu    sync.RWMutex
	store Store

	pools map[amm.PoolID]amm.Pool
	byLP  map[amm.AssetID]amm.PoolID

	// staged is nil outside a transaction.
	staged map[amm.PoolID]amm.Pool
	// prepared is set once the staged pools have been handed to the store.
	prepared   bool
	cachedView atomic.Pointer[[]amm.Pool]
}

// New loads every pool from store.
func New(store Store) (*Registry, error) {
	pools, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("loading pools: %w", err)
	}
	r := &Registry{
		store: store,
		pools: make(map[amm.PoolID]amm.Pool, len(pools)),
		byLP:  make(map[amm.AssetID]amm.PoolID, len(pools)),
	}
	for _, p := range pools {
		r.pools[p.ID] = p
		r.byLP[p.LPAsset] = p.ID
	}
	r.updateCachedView()
	return r, nil
}

// updateCachedView MUST be called with r.mu held for writing.
func (r *Registry) updateCachedView() {
	view := make([]amm.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		view = append(view, p)
	}
	amm.SortPools(view)
	r.cachedView.Store(&view)
}

func (r *Registry) lookup(id amm.PoolID) (amm.Pool, bool) {
	if p, ok := r.staged[id]; ok {
		return p, true
	}
	p, ok := r.pools[id]
	return p, ok
}

// Get returns the pool with the given id.
func (r *Registry) Get(id amm.PoolID) (amm.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

// GetByLPAsset resolves a pool from its liquidity receipt asset.
func (r *Registry) GetByLPAsset(lp amm.AssetID) (amm.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byLP[lp]; ok {
		return r.lookup(id)
	}
	for _, p := range r.staged {
		if p.LPAsset == lp {
			return p, true
		}
	}
	return amm.Pool{}, false
}

// Create registers a new pool.
func (r *Registry) Create(p amm.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lookup(p.ID); ok {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExists, p.ID)
	}
	return r.write(p)
}

// Update replaces the state of an existing pool.
func (r *Registry) Update(p amm.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lookup(p.ID); !ok {
		return fmt.Errorf("%w: %s", ErrPoolDoesNotExist, p.ID)
	}
	return r.write(p)
}

// write stages p, or persists it immediately when no transaction is open.
func (r *Registry) write(p amm.Pool) error {
	if r.staged != nil {
		r.staged[p.ID] = p
		return nil
	}
	if err := r.store.Put(p); err != nil {
		return err
	}
	r.apply(p)
	r.updateCachedView()
	return nil
}

func (r *Registry) apply(p amm.Pool) {
	r.pools[p.ID] = p
	r.byLP[p.LPAsset] = p.ID
}

// Begin opens a transaction.
func (r *Registry) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staged != nil {
		return ErrTxInProgress
	}
	r.staged = make(map[amm.PoolID]amm.Pool)
	r.prepared = false
	return nil
}

// stagedPools MUST be called with r.mu held.
func (r *Registry) stagedPools() []amm.Pool {
	pools := make([]amm.Pool, 0, len(r.staged))
	for _, p := range r.staged {
		pools = append(pools, p)
	}
	amm.SortPools(pools)
	return pools
}

// Prepare hands the staged pools to the store without applying them. A
// store that batches writes across journals persists them on its own
// Prepare; Commit then only applies them in memory.
func (r *Registry) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staged == nil {
		return ErrNoTx
	}
	if len(r.staged) > 0 {
		pools := r.stagedPools()
		if err := r.store.Put(pools...); err != nil {
			return fmt.Errorf("persisting %d pools: %w", len(pools), err)
		}
	}
	r.prepared = true
	return nil
}

// Commit persists every staged pool in one Store.Put, unless Prepare already
// did. On a store failure the staged writes are discarded and the registry
// keeps its previous state.
func (r *Registry) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staged == nil {
		return ErrNoTx
	}
	pools := r.stagedPools()
	prepared := r.prepared
	r.staged, r.prepared = nil, false
	if len(pools) == 0 {
		return nil
	}
	if !prepared {
		if err := r.store.Put(pools...); err != nil {
			return fmt.Errorf("persisting %d pools: %w", len(pools), err)
		}
	}
	for _, p := range pools {
		r.apply(p)
	}
	r.updateCachedView()
	return nil
}

// Rollback discards the staged writes.
func (r *Registry) Rollback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staged, r.prepared = nil, false
}

// View returns a copy of the committed pools, ordered by id.
func (r *Registry) View() []amm.Pool {
	cached := r.cachedView.Load()
	if cached == nil {
		return []amm.Pool{}
	}
	view := make([]amm.Pool, len(*cached))
	copy(view, *cached)
	return view
}

// Len returns the number of committed pools.
func (r *Registry) Len() int {
	return len(*r.cachedView.Load())
}
