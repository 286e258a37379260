package engine

import (
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/holiman/uint256"
)

// Swap pays out0 and out1 to recipient from the pool. Inputs are whatever the
// custody account holds above the reserves once the outputs are removed. The
// swap settles only if the fee-adjusted balances keep the curve invariant.
// Both outputs may be non-zero.
func (e *Engine) Swap(id amm.PoolID, out0, out1 uint64, recipient amm.Identity, auxData []byte) (err error) {
	defer func(start time.Time) { e.observe("swap", start, err) }(time.Now())

	pool, err := e.pool(id)
	if err != nil {
		return err
	}
	if out0 == 0 && out1 == 0 {
		return ErrZeroInputAmount
	}
	if out0 > pool.Reserve0 || out1 > pool.Reserve1 {
		return fmt.Errorf("%w: requested (%d, %d), reserves (%d, %d)", ErrInsufficientLiquidity, out0, out1, pool.Reserve0, pool.Reserve1)
	}

	bal0, bal1, err := e.balances(pool)
	if err != nil {
		return err
	}
	post0, post1 := bal0-out0, bal1-out1
	in0 := inferredInput(post0, pool.Reserve0-out0)
	in1 := inferredInput(post1, pool.Reserve1-out1)

	fee := e.fees.Total(id.Stable)
	if err := e.checkInvariant(pool, post0, post1, in0, in1, fee); err != nil {
		return err
	}

	err = e.hook.AuthorizeSwap(SwapContext{
		Pool:      id,
		Recipient: recipient,
		Amount0In: in0,
		Amount1In: in1,
		Out0:      out0,
		Out1:      out1,
		Liquidity: pool.Liquidity,
		AuxData:   auxData,
	})
	if err != nil {
		return fmt.Errorf("swap rejected by hook: %w", err)
	}

	custody := e.Custody(id)
	if err := e.pay(custody, recipient, id.Asset0, out0); err != nil {
		return err
	}
	if err := e.pay(custody, recipient, id.Asset1, out1); err != nil {
		return err
	}

	pool.Reserve0, pool.Reserve1 = post0, post1
	if err := e.pools.Update(pool); err != nil {
		return err
	}

	curve := curveLabel(id.Stable)
	e.metrics.swaps.WithLabelValues(curve).Inc()
	e.metrics.volume.WithLabelValues(curve).Add(float64(in0) + float64(in1))
	e.logger.Info("Swap executed",
		"pool", id.String(),
		"recipient", recipient.Hex(),
		"amount0_in", in0,
		"amount1_in", in1,
		"amount0_out", out0,
		"amount1_out", out1,
	)
	return nil
}

func inferredInput(balance, remaining uint64) uint64 {
	if balance > remaining {
		return balance - remaining
	}
	return 0
}

// checkInvariant charges the fee on each inferred input and compares the
// curve value of the adjusted balances with that of the old reserves.
func (e *Engine) checkInvariant(pool amm.Pool, post0, post1, in0, in1, fee uint64) error {
	fee0, err := calculator.CalculateFeeToSubtract(in0, fee)
	if err != nil {
		return err
	}
	fee1, err := calculator.CalculateFeeToSubtract(in1, fee)
	if err != nil {
		return err
	}

	pow0, err := calculator.PowDecimals(pool.Decimals0)
	if err != nil {
		return err
	}
	pow1, err := calculator.PowDecimals(pool.Decimals1)
	if err != nil {
		return err
	}

	before, err := calculator.K(pool.ID.Stable, uint256.NewInt(pool.Reserve0), uint256.NewInt(pool.Reserve1), pow0, pow1)
	if err != nil {
		return fmt.Errorf("invariant of reserves: %w", err)
	}
	after, err := calculator.K(pool.ID.Stable, uint256.NewInt(post0-fee0), uint256.NewInt(post1-fee1), pow0, pow1)
	if err != nil {
		return fmt.Errorf("invariant of balances: %w", err)
	}
	if after.Lt(before) {
		return fmt.Errorf("%w: %s < %s", ErrCurveInvariantViolation, after.Dec(), before.Dec())
	}
	return nil
}
