package amm

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Schema is the decode contract for a []Pool view.
const Schema state.ProtocolSchema = "defistate/amm/poolView@v1"

// BasisPoints is 100% expressed in basis points.
const BasisPoints = 10_000

type (
	// AssetID identifies a fungible asset on the ledger.
	AssetID = common.Hash
	// ContractID identifies the contract that issues an asset.
	ContractID = common.Hash
	// SubID distinguishes the assets issued by a single contract.
	SubID = common.Hash
	// Identity is a ledger account (a user, a contract or a pool's custody account).
	Identity = common.Hash
)

var (
	// ErrIdenticalAssets is returned when both sides of a pool resolve to the same asset.
	ErrIdenticalAssets = errors.New("identical assets")
	// ErrInvalidFee is returned when a fee configuration reaches or exceeds 100%.
	ErrInvalidFee = errors.New("invalid fee")
)

// PoolID is the canonical identity of a pool: Asset0 < Asset1 plus the curve flag.
type PoolID struct {
	Asset0 AssetID `json:"asset0"`
	Asset1 AssetID `json:"asset1"`
	Stable bool    `json:"stable"`
}

// NewPoolID builds a canonical PoolID regardless of the order the assets are given in.
func NewPoolID(a, b AssetID, stable bool) (PoolID, error) {
	switch a.Cmp(b) {
	case 0:
		return PoolID{}, fmt.Errorf("%w: %s", ErrIdenticalAssets, a.Hex())
	case 1:
		a, b = b, a
	}
	return PoolID{Asset0: a, Asset1: b, Stable: stable}, nil
}

// Contains reports whether asset is one of the pool's two assets.
func (id PoolID) Contains(asset AssetID) bool {
	return id.Asset0 == asset || id.Asset1 == asset
}

// Other returns the counterpart of asset in the pool.
func (id PoolID) Other(asset AssetID) (AssetID, bool) {
	switch asset {
	case id.Asset0:
		return id.Asset1, true
	case id.Asset1:
		return id.Asset0, true
	}
	return AssetID{}, false
}

func (id PoolID) String() string {
	kind := "volatile"
	if id.Stable {
		kind = "stable"
	}
	return fmt.Sprintf("%s/%s/%s", id.Asset0.TerminalString(), id.Asset1.TerminalString(), kind)
}

// Pool is the persisted state of a single pool.
type Pool struct {
	ID        PoolID  `json:"id"`
	Reserve0  uint64  `json:"reserve0"`
	Reserve1  uint64  `json:"reserve1"`
	Decimals0 uint8   `json:"decimals0"`
	Decimals1 uint8   `json:"decimals1"`
	Liquidity uint64  `json:"liquidity"` // includes the permanently locked minimum
	LPAsset   AssetID `json:"lpAsset"`
}

// Side returns the reserves and decimals of the pool oriented so that assetIn is paid in.
func (p Pool) Side(assetIn AssetID) (reserveIn, reserveOut uint64, decimalsIn, decimalsOut uint8, assetOut AssetID, ok bool) {
	switch assetIn {
	case p.ID.Asset0:
		return p.Reserve0, p.Reserve1, p.Decimals0, p.Decimals1, p.ID.Asset1, true
	case p.ID.Asset1:
		return p.Reserve1, p.Reserve0, p.Decimals1, p.Decimals0, p.ID.Asset0, true
	}
	return 0, 0, 0, 0, AssetID{}, false
}

// Fees is the process-wide fee schedule in basis points.
type Fees struct {
	LPFeeVolatile       uint64 `json:"lpFeeVolatile" yaml:"lp_fee_volatile"`
	LPFeeStable         uint64 `json:"lpFeeStable" yaml:"lp_fee_stable"`
	ProtocolFeeVolatile uint64 `json:"protocolFeeVolatile" yaml:"protocol_fee_volatile"`
	ProtocolFeeStable   uint64 `json:"protocolFeeStable" yaml:"protocol_fee_stable"`
}

// Total returns the fee charged on a trade for the given curve variant.
func (f Fees) Total(stable bool) uint64 {
	if stable {
		return f.LPFeeStable + f.ProtocolFeeStable
	}
	return f.LPFeeVolatile + f.ProtocolFeeVolatile
}

// Validate rejects schedules whose total fee for either curve is 100% or more.
// Each part is bounded first so Total cannot wrap.
func (f Fees) Validate() error {
	for _, part := range []uint64{f.LPFeeVolatile, f.ProtocolFeeVolatile, f.LPFeeStable, f.ProtocolFeeStable} {
		if part >= BasisPoints {
			return fmt.Errorf("%w: fee part %d bp", ErrInvalidFee, part)
		}
	}
	if v := f.Total(false); v >= BasisPoints {
		return fmt.Errorf("%w: volatile fee %d bp", ErrInvalidFee, v)
	}
	if s := f.Total(true); s >= BasisPoints {
		return fmt.Errorf("%w: stable fee %d bp", ErrInvalidFee, s)
	}
	return nil
}

// LPAssetInfo describes a pool's liquidity receipt asset.
type LPAssetInfo struct {
	AssetID     AssetID `json:"assetId"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Decimals    uint8   `json:"decimals"`
	TotalSupply uint64  `json:"totalSupply"`
}
