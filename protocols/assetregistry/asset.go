package assetregistry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/state"
)

// Schema is the decode contract for an []Asset view.
const Schema state.ProtocolSchema = "defistate/assetregistry/assetView@v1"

var (
	ErrAssetNotFound   = errors.New("asset not found")
	ErrAssetConflict   = errors.New("asset already registered with different metadata")
	ErrAssetIDMismatch = errors.New("asset id does not match contract and sub id")
)

// Asset is a safe, structured representation of an asset's metadata for external use.
type Asset struct {
	ID       amm.AssetID    `json:"id"`
	Contract amm.ContractID `json:"contract"`
	SubID    amm.SubID      `json:"subId"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// NewAsset derives the asset id from its issuing contract and sub id.
func NewAsset(contract amm.ContractID, subID amm.SubID, name, symbol string, decimals uint8) Asset {
	return Asset{
		ID:       amm.AssetIDFor(contract, subID),
		Contract: contract,
		SubID:    subID,
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// Registry is the concurrency-safe catalogue of every asset the exchange knows about.
type Registry struct {
	mu     sync.RWMutex
	assets map[amm.AssetID]Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[amm.AssetID]Asset)}
}

// Register adds an asset. Registering the same metadata twice is a no-op.
func (r *Registry) Register(a Asset) error {
	if a.ID != amm.AssetIDFor(a.Contract, a.SubID) {
		return fmt.Errorf("%w: %s", ErrAssetIDMismatch, a.ID.Hex())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.assets[a.ID]; ok {
		if existing != a {
			return fmt.Errorf("%w: %s", ErrAssetConflict, a.ID.Hex())
		}
		return nil
	}
	r.assets[a.ID] = a
	return nil
}

// Get returns the metadata of an asset.
func (r *Registry) Get(id amm.AssetID) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id.Hex())
	}
	return a, nil
}

// Decimals returns the precision of an asset.
func (r *Registry) Decimals(id amm.AssetID) (uint8, error) {
	a, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return a.Decimals, nil
}

// View returns every registered asset ordered by id.
func (r *Registry) View() []Asset {
	r.mu.RLock()
	view := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		view = append(view, a)
	}
	r.mu.RUnlock()

	sort.Slice(view, func(i, j int) bool {
		return view[i].ID.Cmp(view[j].ID) < 0
	})
	return view
}
