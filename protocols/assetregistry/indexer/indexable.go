package indexer

import (
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
)

// Indexer builds IndexedAssetSystem values from asset views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed asset system from a raw slice of assets.
func (i *Indexer) Index(assets []assetregistry.Asset) IndexedAssetSystem {
	return NewIndexableAssetSystem(assets)
}

// IndexableAssetSystem provides fast, indexed access to asset metadata.
type IndexableAssetSystem struct {
	byID     map[amm.AssetID]assetregistry.Asset
	bySymbol map[string]assetregistry.Asset
	all      []assetregistry.Asset
}

// NewIndexableAssetSystem creates a new indexed asset system from a raw slice.
// When several assets share a symbol the first one in the slice wins.
func NewIndexableAssetSystem(assets []assetregistry.Asset) *IndexableAssetSystem {
	byID := make(map[amm.AssetID]assetregistry.Asset, len(assets))
	bySymbol := make(map[string]assetregistry.Asset, len(assets))

	for _, a := range assets {
		byID[a.ID] = a
		if _, taken := bySymbol[a.Symbol]; !taken {
			bySymbol[a.Symbol] = a
		}
	}

	return &IndexableAssetSystem{
		byID:     byID,
		bySymbol: bySymbol,
		all:      assets,
	}
}

// GetByID retrieves an asset by its id.
func (s *IndexableAssetSystem) GetByID(id amm.AssetID) (assetregistry.Asset, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// GetBySymbol retrieves an asset by its ticker symbol.
func (s *IndexableAssetSystem) GetBySymbol(symbol string) (assetregistry.Asset, bool) {
	a, ok := s.bySymbol[symbol]
	return a, ok
}

// All returns a copy of the slice of all assets in the system.
func (s *IndexableAssetSystem) All() []assetregistry.Asset {
	allCopy := make([]assetregistry.Asset, len(s.all))
	copy(allCopy, s.all)
	return allCopy
}
