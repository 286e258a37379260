package periphery

import (
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
)

// AddedLiquidity reports the deposit actually taken and the units minted.
type AddedLiquidity struct {
	LPAsset amm.AssetID `json:"lpAsset"`
	Amount  uint64      `json:"amount"`
	Amount0 uint64      `json:"amount0"`
	Amount1 uint64      `json:"amount1"`
}

// AddLiquidityParams describes a deposit into an existing pool. Amounts are
// per canonical side.
type AddLiquidityParams struct {
	Pool      amm.PoolID
	Desired0  uint64
	Desired1  uint64
	Min0      uint64
	Min1      uint64
	Recipient amm.Identity
	Deadline  time.Time
}

// CreatePoolAndAddLiquidity creates a pool for the two assets and seeds it.
// amount0 pairs with (contract0, sub0) whatever the canonical order.
func (p *Periphery) CreatePoolAndAddLiquidity(caller amm.Identity, contract0 amm.ContractID, sub0 amm.SubID, contract1 amm.ContractID, sub1 amm.SubID, stable bool, amount0, amount1 uint64, recipient amm.Identity, deadline time.Time) (amm.PoolID, AddedLiquidity, error) {
	var (
		id    amm.PoolID
		added AddedLiquidity
	)
	err := p.run("create_pool_and_add_liquidity", deadline, func() error {
		var err error
		id, err = p.engine.CreatePool(contract0, sub0, contract1, sub1, stable)
		if err != nil {
			return err
		}
		if amm.AssetIDFor(contract0, sub0) != id.Asset0 {
			amount0, amount1 = amount1, amount0
		}
		added, err = p.deposit(caller, id, amount0, amount1, recipient)
		return err
	})
	if err != nil {
		return amm.PoolID{}, AddedLiquidity{}, err
	}
	return id, added, nil
}

// AddLiquidity deposits at the pool's current ratio, taking as much of the
// desired amounts as fits.
func (p *Periphery) AddLiquidity(caller amm.Identity, params AddLiquidityParams) (AddedLiquidity, error) {
	var added AddedLiquidity
	err := p.run("add_liquidity", params.Deadline, func() error {
		pool, ok := p.engine.PoolMetadata(params.Pool)
		if !ok {
			return fmt.Errorf("%w: %s", router.ErrPoolNotPresent, params.Pool)
		}
		amount0, amount1, err := optimalDeposit(pool, params)
		if err != nil {
			return err
		}
		added, err = p.deposit(caller, params.Pool, amount0, amount1, params.Recipient)
		return err
	})
	return added, err
}

// optimalDeposit picks the largest deposit at the pool ratio within the
// desired amounts, then enforces the minimums.
func optimalDeposit(pool amm.Pool, params AddLiquidityParams) (uint64, uint64, error) {
	if pool.Reserve0 == 0 && pool.Reserve1 == 0 {
		return params.Desired0, params.Desired1, nil
	}
	optimal1, err := quote(params.Desired0, pool.Reserve0, pool.Reserve1)
	if err != nil {
		return 0, 0, err
	}
	if optimal1 <= params.Desired1 {
		if optimal1 < params.Min1 {
			return 0, 0, fmt.Errorf("%w: %d < %d", ErrInsufficientAmount1, optimal1, params.Min1)
		}
		return params.Desired0, optimal1, nil
	}
	optimal0, err := quote(params.Desired1, pool.Reserve1, pool.Reserve0)
	if err != nil {
		return 0, 0, err
	}
	if optimal0 < params.Min0 {
		return 0, 0, fmt.Errorf("%w: %d < %d", ErrInsufficientAmount0, optimal0, params.Min0)
	}
	return optimal0, params.Desired1, nil
}

// quote is amount*reserveB/reserveA.
func quote(amount, reserveA, reserveB uint64) (uint64, error) {
	if reserveA == 0 || reserveB == 0 {
		return 0, router.ErrZeroReserve
	}
	return calculator.MulDiv64(amount, reserveB, reserveA)
}

func (p *Periphery) deposit(caller amm.Identity, id amm.PoolID, amount0, amount1 uint64, recipient amm.Identity) (AddedLiquidity, error) {
	custody := p.engine.Custody(id)
	if err := p.transferIn(caller, custody, id.Asset0, amount0); err != nil {
		return AddedLiquidity{}, err
	}
	if err := p.transferIn(caller, custody, id.Asset1, amount1); err != nil {
		return AddedLiquidity{}, err
	}
	lp, minted, err := p.engine.Mint(id, recipient)
	if err != nil {
		return AddedLiquidity{}, err
	}
	return AddedLiquidity{LPAsset: lp, Amount: minted, Amount0: amount0, Amount1: amount1}, nil
}

func (p *Periphery) transferIn(caller, custody amm.Identity, asset amm.AssetID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := p.ledger.Transfer(caller, custody, asset, amount); err != nil {
		return fmt.Errorf("depositing %d of %s: %w", amount, asset.Hex(), err)
	}
	return nil
}

// RemoveLiquidity escrows liquidity units from caller and burns them,
// paying both sides to recipient.
func (p *Periphery) RemoveLiquidity(caller amm.Identity, id amm.PoolID, liquidity, min0, min1 uint64, recipient amm.Identity, deadline time.Time) (out0, out1 uint64, err error) {
	err = p.run("remove_liquidity", deadline, func() error {
		pool, ok := p.engine.PoolMetadata(id)
		if !ok {
			return fmt.Errorf("%w: %s", router.ErrPoolNotPresent, id)
		}
		if err := p.transferIn(caller, p.engine.Custody(id), pool.LPAsset, liquidity); err != nil {
			return err
		}
		var err error
		out0, out1, err = p.engine.Burn(id, recipient, pool.LPAsset, liquidity)
		if err != nil {
			return err
		}
		if out0 < min0 {
			return fmt.Errorf("%w: %d < %d", ErrInsufficientAmount0, out0, min0)
		}
		if out1 < min1 {
			return fmt.Errorf("%w: %d < %d", ErrInsufficientAmount1, out1, min1)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return out0, out1, nil
}
