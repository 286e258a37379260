package indexer

import (
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
)

// IndexedAssetSystem defines the methods for accessing indexed asset data.
type IndexedAssetSystem interface {
	GetByID(id amm.AssetID) (assetregistry.Asset, bool)
	GetBySymbol(symbol string) (assetregistry.Asset, bool)
	All() []assetregistry.Asset
}
