package router

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/holiman/uint256"
)

// RatePrecision scales the fixed-point value returned by CurrentRate.
const RatePrecision = 1_000_000_000_000

// rateSampleInput is the input used to sample a stable pool's price.
const rateSampleInput = 100

// GetOtherAssetToAddLiquidity returns the amount of the pool's other asset that
// matches amount of asset at the current reserve ratio, plus one unit.
func GetOtherAssetToAddLiquidity(src PoolSource, id amm.PoolID, asset amm.AssetID, amount uint64) (AssetAmount, error) {
	pool, err := lookup(src, id, 0)
	if err != nil {
		return AssetAmount{}, err
	}
	reserveIn, reserveOut, _, _, other, ok := pool.Side(asset)
	if !ok {
		return AssetAmount{}, fmt.Errorf("%w: %s", ErrAssetNotInPool, asset.TerminalString())
	}
	if reserveIn == 0 || reserveOut == 0 {
		return AssetAmount{}, ErrZeroReserve
	}
	quoted, err := calculator.MulDiv64(amount, reserveOut, reserveIn)
	if err != nil {
		return AssetAmount{}, err
	}
	if quoted == ^uint64(0) {
		return AssetAmount{}, ErrInvalidAmountOut
	}
	return AssetAmount{Asset: other, Amount: quoted + 1}, nil
}

// GetLiquidityPosition returns the pro-rata reserves backing liquidity units of the pool.
func GetLiquidityPosition(src PoolSource, id amm.PoolID, liquidity uint64) (AssetAmount, AssetAmount, error) {
	if liquidity == 0 {
		return AssetAmount{}, AssetAmount{}, ErrZeroAmount
	}
	pool, err := lookup(src, id, 0)
	if err != nil {
		return AssetAmount{}, AssetAmount{}, err
	}
	if liquidity > pool.Liquidity {
		return AssetAmount{}, AssetAmount{}, fmt.Errorf("%w: %d of %d", ErrInsufficientLiquidity, liquidity, pool.Liquidity)
	}
	amount0, err := calculator.MulDiv64(pool.Reserve0, liquidity, pool.Liquidity)
	if err != nil {
		return AssetAmount{}, AssetAmount{}, err
	}
	amount1, err := calculator.MulDiv64(pool.Reserve1, liquidity, pool.Liquidity)
	if err != nil {
		return AssetAmount{}, AssetAmount{}, err
	}
	return AssetAmount{Asset: id.Asset0, Amount: amount0}, AssetAmount{Asset: id.Asset1, Amount: amount1}, nil
}

// Rate is the price of a path's output in units of its input, fees included.
type Rate struct {
	Value       *uint256.Int `json:"value"` // scaled by RatePrecision
	AssetIn     amm.AssetID  `json:"assetIn"`
	DecimalsIn  uint8        `json:"decimalsIn"`
	DecimalsOut uint8        `json:"decimalsOut"`
}

// CurrentRate prices one unit of assetOut along path. The path may be given in
// either direction as long as assetOut sits in one of its border pools.
// Volatile hops use the reserve ratio; stable hops sample a small trade.
func (r *Router) CurrentRate(src PoolSource, assetOut amm.AssetID, path []amm.PoolID) (Rate, error) {
	if len(path) == 0 {
		return Rate{}, ErrInvalidPath
	}
	if !path[len(path)-1].Contains(assetOut) {
		reversed := make([]amm.PoolID, len(path))
		for i, id := range path {
			reversed[len(path)-1-i] = id
		}
		path = reversed
		if !path[len(path)-1].Contains(assetOut) {
			return Rate{}, fmt.Errorf("%w: %s not in border pools", ErrAssetNotInPool, assetOut.TerminalString())
		}
	}

	assetIn := assetOut
	for i := len(path) - 1; i >= 0; i-- {
		other, ok := path[i].Other(assetIn)
		if !ok {
			return Rate{}, fmt.Errorf("%w: hop %d", ErrInvalidPath, i)
		}
		assetIn = other
	}

	rate := Rate{Value: uint256.NewInt(RatePrecision), AssetIn: assetIn}
	volatileFee := uint256.NewInt(amm.BasisPoints - r.fees.Total(false))
	bp := uint256.NewInt(amm.BasisPoints)

	asset := assetIn
	for hop, id := range path {
		pool, err := lookup(src, id, hop)
		if err != nil {
			return Rate{}, err
		}
		reserveIn, reserveOut, decimalsIn, decimalsOut, next, ok := pool.Side(asset)
		if !ok {
			return Rate{}, fmt.Errorf("%w: hop %d", ErrAssetNotInPool, hop)
		}
		if hop == 0 {
			rate.DecimalsIn = decimalsIn
		}
		rate.DecimalsOut = decimalsOut

		if id.Stable {
			out, err := r.PreviewSwapExactInput(src, asset, rateSampleInput, []amm.PoolID{id})
			if err != nil {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, err)
			}
			if out.Amount == 0 {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, calculator.ErrZeroOutputAmount)
			}
			if err := scale(rate.Value, uint256.NewInt(rateSampleInput), uint256.NewInt(out.Amount)); err != nil {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, err)
			}
		} else {
			if reserveOut == 0 {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, ErrZeroReserve)
			}
			if err := scale(rate.Value, uint256.NewInt(reserveIn), uint256.NewInt(reserveOut)); err != nil {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, err)
			}
			if err := scale(rate.Value, volatileFee, bp); err != nil {
				return Rate{}, fmt.Errorf("hop %d: %w", hop, err)
			}
		}
		asset = next
	}
	return rate, nil
}

// scale sets z = z*num/den.
func scale(z, num, den *uint256.Int) error {
	if _, overflow := z.MulDivOverflow(z, num, den); overflow {
		return calculator.ErrMathOverflow
	}
	return nil
}
