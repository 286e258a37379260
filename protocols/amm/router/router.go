// Package router quotes multi-hop trades over a read-only snapshot of pools.
// Nothing in this package mutates pool state; results may be stale relative to
// the live pools and callers are expected to enforce their own slippage bounds.
package router

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
)

var (
	ErrInvalidPath           = errors.New("invalid path")
	ErrPoolNotPresent        = errors.New("pool not present in snapshot")
	ErrAssetNotInPool        = errors.New("asset not in pool")
	ErrInvalidAmountOut      = errors.New("amount out is not representable")
	ErrInvalidAmountIn       = errors.New("amount in is not representable")
	ErrNoRoute               = errors.New("no route")
	ErrZeroAmount            = errors.New("zero amount")
	ErrZeroReserve           = errors.New("reserve is zero, any amount can be added")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// PoolSource resolves pool ids to pool snapshots.
type PoolSource interface {
	GetByID(id amm.PoolID) (amm.Pool, bool)
}

// Snapshot is an immutable set of pools keyed by id.
type Snapshot map[amm.PoolID]amm.Pool

// NewSnapshot indexes a pool view.
func NewSnapshot(pools []amm.Pool) Snapshot {
	s := make(Snapshot, len(pools))
	for _, p := range pools {
		s[p.ID] = p
	}
	return s
}

func (s Snapshot) GetByID(id amm.PoolID) (amm.Pool, bool) {
	p, ok := s[id]
	return p, ok
}

// AssetAmount is one step of a quote trace.
type AssetAmount struct {
	Asset  amm.AssetID `json:"asset"`
	Amount uint64      `json:"amount"`
}

// Router prices paths with a fixed fee schedule.
type Router struct {
	fees amm.Fees
}

func New(fees amm.Fees) (*Router, error) {
	if err := fees.Validate(); err != nil {
		return nil, err
	}
	return &Router{fees: fees}, nil
}

// Fees returns the schedule the router quotes with.
func (r *Router) Fees() amm.Fees {
	return r.fees
}

func lookup(src PoolSource, id amm.PoolID, hop int) (amm.Pool, error) {
	p, ok := src.GetByID(id)
	if !ok {
		return amm.Pool{}, fmt.Errorf("%w: hop %d pool %s", ErrPoolNotPresent, hop, id)
	}
	return p, nil
}

// GetAmountsOut walks path forward from amountIn of assetIn. Each hop removes
// the pool's fee from its input, rounding the fee up, and then quotes the
// curve. The trace starts with the input and has one entry per hop.
func (r *Router) GetAmountsOut(src PoolSource, assetIn amm.AssetID, amountIn uint64, path []amm.PoolID) ([]AssetAmount, error) {
	if len(path) == 0 {
		return nil, ErrInvalidPath
	}

	trace := make([]AssetAmount, 0, len(path)+1)
	trace = append(trace, AssetAmount{Asset: assetIn, Amount: amountIn})

	asset, amount := assetIn, amountIn
	for hop, id := range path {
		pool, err := lookup(src, id, hop)
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut, decimalsIn, decimalsOut, assetOut, ok := pool.Side(asset)
		if !ok {
			return nil, fmt.Errorf("%w: hop %d asset %s pool %s", ErrAssetNotInPool, hop, asset.TerminalString(), id)
		}

		afterFee, err := calculator.SubtractFee(amount, r.fees.Total(id.Stable))
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", hop, err)
		}
		out, err := calculator.GetAmountOut(calculator.Direction{
			Stable:      id.Stable,
			ReserveIn:   reserveIn,
			ReserveOut:  reserveOut,
			DecimalsIn:  decimalsIn,
			DecimalsOut: decimalsOut,
		}, afterFee)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", hop, err)
		}
		if !out.IsUint64() {
			return nil, fmt.Errorf("%w: hop %d", ErrInvalidAmountOut, hop)
		}

		asset, amount = assetOut, out.Uint64()
		trace = append(trace, AssetAmount{Asset: asset, Amount: amount})
	}
	return trace, nil
}

// GetAmountsIn walks path backward from amountOut of assetOut. Each hop quotes
// the curve input for its output and grosses it up by the pool's fee, rounding
// up. The trace starts with the requested output; its last entry is what the
// trader must supply.
func (r *Router) GetAmountsIn(src PoolSource, assetOut amm.AssetID, amountOut uint64, path []amm.PoolID) ([]AssetAmount, error) {
	if len(path) == 0 {
		return nil, ErrInvalidPath
	}

	trace := make([]AssetAmount, 0, len(path)+1)
	trace = append(trace, AssetAmount{Asset: assetOut, Amount: amountOut})

	asset, amount := assetOut, amountOut
	for hop := len(path) - 1; hop >= 0; hop-- {
		id := path[hop]
		pool, err := lookup(src, id, hop)
		if err != nil {
			return nil, err
		}
		reserveOut, reserveIn, decimalsOut, decimalsIn, assetIn, ok := pool.Side(asset)
		if !ok {
			return nil, fmt.Errorf("%w: hop %d asset %s pool %s", ErrAssetNotInPool, hop, asset.TerminalString(), id)
		}

		in, err := calculator.GetAmountIn(calculator.Direction{
			Stable:      id.Stable,
			ReserveIn:   reserveIn,
			ReserveOut:  reserveOut,
			DecimalsIn:  decimalsIn,
			DecimalsOut: decimalsOut,
		}, amount)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", hop, err)
		}
		if !in.IsUint64() {
			return nil, fmt.Errorf("%w: hop %d", ErrInvalidAmountIn, hop)
		}
		gross, err := calculator.AddFee(in.Uint64(), r.fees.Total(id.Stable))
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", hop, err)
		}

		asset, amount = assetIn, gross
		trace = append(trace, AssetAmount{Asset: asset, Amount: amount})
	}
	return trace, nil
}

// PreviewSwapExactInput returns the final output of GetAmountsOut.
func (r *Router) PreviewSwapExactInput(src PoolSource, assetIn amm.AssetID, amountIn uint64, path []amm.PoolID) (AssetAmount, error) {
	trace, err := r.GetAmountsOut(src, assetIn, amountIn, path)
	if err != nil {
		return AssetAmount{}, err
	}
	return trace[len(trace)-1], nil
}

// PreviewSwapExactOutput returns the required input computed by GetAmountsIn.
func (r *Router) PreviewSwapExactOutput(src PoolSource, assetOut amm.AssetID, amountOut uint64, path []amm.PoolID) (AssetAmount, error) {
	trace, err := r.GetAmountsIn(src, assetOut, amountOut, path)
	if err != nil {
		return AssetAmount{}, err
	}
	return trace[len(trace)-1], nil
}
