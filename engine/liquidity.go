package engine

import (
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
)

// CreatePool registers an empty pool for the two assets issued under
// (contract0, sub0) and (contract1, sub1). Argument order does not matter.
func (e *Engine) CreatePool(contract0 amm.ContractID, sub0 amm.SubID, contract1 amm.ContractID, sub1 amm.SubID, stable bool) (id amm.PoolID, err error) {
	defer func(start time.Time) { e.observe("create_pool", start, err) }(time.Now())

	id, err = amm.NewPoolID(amm.AssetIDFor(contract0, sub0), amm.AssetIDFor(contract1, sub1), stable)
	if err != nil {
		return amm.PoolID{}, err
	}
	if _, exists := e.pools.Get(id); exists {
		return amm.PoolID{}, fmt.Errorf("%w: %s", ErrPoolAlreadyExists, id)
	}

	dec0, err := e.assets.Decimals(id.Asset0)
	if err != nil {
		return amm.PoolID{}, fmt.Errorf("asset0 %s: %w", id.Asset0, err)
	}
	dec1, err := e.assets.Decimals(id.Asset1)
	if err != nil {
		return amm.PoolID{}, fmt.Errorf("asset1 %s: %w", id.Asset1, err)
	}

	pool := amm.Pool{
		ID:        id,
		Decimals0: dec0,
		Decimals1: dec1,
		LPAsset:   e.LPAssetID(id),
	}
	if err := e.pools.Create(pool); err != nil {
		return amm.PoolID{}, err
	}
	if err := e.registerLPAsset(id); err != nil {
		return amm.PoolID{}, err
	}

	e.logger.Info("Pool created", "pool", id.String(), "lp_asset", pool.LPAsset.Hex())
	return id, nil
}

func (e *Engine) registerLPAsset(id amm.PoolID) error {
	if e.lpAssets == nil {
		return nil
	}
	lp := assetregistry.NewAsset(e.contract, amm.LPSubID(id), e.lpSymbol, e.lpSymbol, LPDecimals)
	if err := e.lpAssets.Register(lp); err != nil {
		return fmt.Errorf("registering lp asset: %w", err)
	}
	return nil
}

// Restore prepares the engine for pools loaded from storage: it registers
// their liquidity receipt assets and checks that every custody account still
// holds the pool's reserves.
func (e *Engine) Restore(pools []amm.Pool) error {
	for _, p := range pools {
		if _, _, err := e.balances(p); err != nil {
			return err
		}
		if err := e.registerLPAsset(p.ID); err != nil {
			return err
		}
	}
	if len(pools) > 0 {
		e.logger.Info("Pools restored", "pools", len(pools))
	}
	return nil
}

// Mint credits recipient with liquidity for whatever the pool's custody
// account holds above its reserves. The first mint locks MinimumLiquidity.
func (e *Engine) Mint(id amm.PoolID, recipient amm.Identity) (lp amm.AssetID, minted uint64, err error) {
	defer func(start time.Time) { e.observe("mint", start, err) }(time.Now())

	pool, err := e.pool(id)
	if err != nil {
		return amm.AssetID{}, 0, err
	}
	bal0, bal1, err := e.balances(pool)
	if err != nil {
		return amm.AssetID{}, 0, err
	}
	added0 := bal0 - pool.Reserve0
	added1 := bal1 - pool.Reserve1

	var issued uint64
	if pool.Liquidity == 0 {
		issued = calculator.SqrtProduct(added0, added1)
		if issued <= MinimumLiquidity {
			return amm.AssetID{}, 0, fmt.Errorf("%w: %d", ErrCannotAddLessThanMinimumLiquidity, issued)
		}
		minted = issued - MinimumLiquidity
	} else {
		minted, err = proportionalLiquidity(pool, added0, added1)
		if err != nil {
			return amm.AssetID{}, 0, err
		}
		if minted == 0 {
			return amm.AssetID{}, 0, ErrInsufficientLiquidityMinted
		}
		issued = minted
	}
	if pool.Liquidity+issued < pool.Liquidity {
		return amm.AssetID{}, 0, calculator.ErrMathOverflow
	}

	if err := e.ledger.Mint(recipient, pool.LPAsset, minted); err != nil {
		return amm.AssetID{}, 0, err
	}
	pool.Reserve0, pool.Reserve1 = bal0, bal1
	pool.Liquidity += issued
	if err := e.pools.Update(pool); err != nil {
		return amm.AssetID{}, 0, err
	}

	e.metrics.minted.Add(float64(issued))
	e.logger.Info("Liquidity minted",
		"pool", id.String(),
		"recipient", recipient.Hex(),
		"amount0", added0,
		"amount1", added1,
		"minted", minted,
		"liquidity", pool.Liquidity,
	)
	return pool.LPAsset, minted, nil
}

// proportionalLiquidity is min(added0*L/r0, added1*L/r1).
func proportionalLiquidity(pool amm.Pool, added0, added1 uint64) (uint64, error) {
	if pool.Reserve0 == 0 || pool.Reserve1 == 0 {
		return 0, fmt.Errorf("%w: pool %s has an empty reserve", ErrInsufficientLiquidityMinted, pool.ID)
	}
	m0, err := calculator.MulDiv64(added0, pool.Liquidity, pool.Reserve0)
	if err != nil {
		return 0, err
	}
	m1, err := calculator.MulDiv64(added1, pool.Liquidity, pool.Reserve1)
	if err != nil {
		return 0, err
	}
	return min(m0, m1), nil
}

// Burn redeems amount LP units escrowed in the pool's custody account and
// pays recipient the pro-rata share of both reserves, rounded down.
func (e *Engine) Burn(id amm.PoolID, recipient amm.Identity, lpAsset amm.AssetID, amount uint64) (out0, out1 uint64, err error) {
	defer func(start time.Time) { e.observe("burn", start, err) }(time.Now())

	pool, err := e.pool(id)
	if err != nil {
		return 0, 0, err
	}
	if lpAsset != pool.LPAsset {
		return 0, 0, fmt.Errorf("%w: %s is not the lp asset of %s", ErrInvalidAsset, lpAsset.Hex(), id)
	}
	if amount == 0 {
		return 0, 0, ErrZeroInputAmount
	}
	if amount > pool.Liquidity {
		return 0, 0, fmt.Errorf("%w: burning %d of %d", ErrInsufficientLiquidity, amount, pool.Liquidity)
	}
	custody := e.Custody(id)
	if escrowed := e.ledger.BalanceOf(custody, pool.LPAsset); escrowed < amount {
		return 0, 0, fmt.Errorf("%w: %d escrowed, burning %d", ErrInsufficientLiquidity, escrowed, amount)
	}

	out0, err = calculator.MulDiv64(amount, pool.Reserve0, pool.Liquidity)
	if err != nil {
		return 0, 0, err
	}
	out1, err = calculator.MulDiv64(amount, pool.Reserve1, pool.Liquidity)
	if err != nil {
		return 0, 0, err
	}
	if (out0 == 0 && pool.Reserve0 > 0) || (out1 == 0 && pool.Reserve1 > 0) {
		return 0, 0, fmt.Errorf("%w: burning %d yields (%d, %d)", ErrTransferZeroCoins, amount, out0, out1)
	}

	if err := e.ledger.Burn(custody, pool.LPAsset, amount); err != nil {
		return 0, 0, err
	}
	if err := e.pay(custody, recipient, pool.ID.Asset0, out0); err != nil {
		return 0, 0, err
	}
	if err := e.pay(custody, recipient, pool.ID.Asset1, out1); err != nil {
		return 0, 0, err
	}

	pool.Reserve0 -= out0
	pool.Reserve1 -= out1
	pool.Liquidity -= amount
	if err := e.pools.Update(pool); err != nil {
		return 0, 0, err
	}

	e.metrics.burned.Add(float64(amount))
	e.logger.Info("Liquidity burned",
		"pool", id.String(),
		"recipient", recipient.Hex(),
		"burned", amount,
		"amount0", out0,
		"amount1", out1,
		"liquidity", pool.Liquidity,
	)
	return out0, out1, nil
}

// pay transfers a non-zero amount out of custody.
func (e *Engine) pay(custody, to amm.Identity, asset amm.AssetID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.ledger.Transfer(custody, to, asset, amount); err != nil {
		return fmt.Errorf("paying %d of %s: %w", amount, asset.Hex(), err)
	}
	return nil
}
