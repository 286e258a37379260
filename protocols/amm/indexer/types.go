package indexer

import "github.com/defistate/defistate-amm-go/protocols/amm"

// IndexedPools defines the methods for accessing indexed pool data.
type IndexedPools interface {
	GetByID(id amm.PoolID) (amm.Pool, bool)
	GetByLPAsset(lp amm.AssetID) (amm.Pool, bool)
	All() []amm.Pool
}
