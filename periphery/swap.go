package periphery

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
)

// SwapExactInput sells exactly amountIn of assetIn along path and pays the
// final output to recipient. The returned trace runs input first.
func (p *Periphery) SwapExactInput(caller amm.Identity, amountIn uint64, assetIn amm.AssetID, amountOutMin uint64, path []amm.PoolID, recipient amm.Identity, deadline time.Time) ([]router.AssetAmount, error) {
	var trace []router.AssetAmount
	err := p.run("swap_exact_input", deadline, func() error {
		var err error
		trace, err = p.router.GetAmountsOut(p, assetIn, amountIn, path)
		if amountIn > 0 && errors.Is(err, calculator.ErrZeroInputAmount) {
			// an earlier hop rounded its output down to nothing
			return fmt.Errorf("%w: %w", ErrInsufficientOutput, err)
		}
		if err != nil {
			return err
		}
		if out := trace[len(trace)-1].Amount; out < amountOutMin {
			return fmt.Errorf("%w: %d < %d", ErrInsufficientOutput, out, amountOutMin)
		}
		return p.execute(caller, path, trace, recipient)
	})
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// SwapExactOutput buys exactly amountOut of assetOut along path, spending at
// most amountInMax. The returned trace runs input first.
func (p *Periphery) SwapExactOutput(caller amm.Identity, amountOut uint64, assetOut amm.AssetID, amountInMax uint64, path []amm.PoolID, recipient amm.Identity, deadline time.Time) ([]router.AssetAmount, error) {
	var trace []router.AssetAmount
	err := p.run("swap_exact_output", deadline, func() error {
		backward, err := p.router.GetAmountsIn(p, assetOut, amountOut, path)
		if err != nil {
			return err
		}
		trace = reverse(backward)
		if in := trace[0].Amount; in > amountInMax {
			return fmt.Errorf("%w: %d > %d", ErrExcessiveInput, in, amountInMax)
		}
		return p.execute(caller, path, trace, recipient)
	})
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// execute deposits trace[0] into the first pool and settles each hop, routing
// every intermediate output straight into the next pool's custody. A hop
// quoted at zero output fails before any funds move.
func (p *Periphery) execute(caller amm.Identity, path []amm.PoolID, trace []router.AssetAmount, recipient amm.Identity) error {
	for hop, out := range trace[1:] {
		if out.Amount == 0 {
			return fmt.Errorf("%w: hop %d yields no %s", ErrInsufficientOutput, hop, out.Asset.TerminalString())
		}
	}
	if err := p.transferIn(caller, p.engine.Custody(path[0]), trace[0].Asset, trace[0].Amount); err != nil {
		return err
	}
	for hop, id := range path {
		to := recipient
		if hop < len(path)-1 {
			to = p.engine.Custody(path[hop+1])
		}
		out := trace[hop+1]
		var out0, out1 uint64
		if out.Asset == id.Asset0 {
			out0 = out.Amount
		} else {
			out1 = out.Amount
		}
		if err := p.engine.Swap(id, out0, out1, to, nil); err != nil {
			return fmt.Errorf("hop %d: %w", hop, err)
		}
	}
	return nil
}

func reverse(trace []router.AssetAmount) []router.AssetAmount {
	out := make([]router.AssetAmount, len(trace))
	for i, a := range trace {
		out[len(trace)-1-i] = a
	}
	return out
}
