package engine

import "github.com/defistate/defistate-amm-go/protocols/amm"

// SwapContext is what a hook sees of a swap before it settles.
type SwapContext struct {
	Pool      amm.PoolID
	Recipient amm.Identity
	Amount0In uint64
	Amount1In uint64
	Out0      uint64
	Out1      uint64
	Liquidity uint64
	AuxData   []byte
}

// SwapHook authorizes swaps. A non-nil error rejects the swap.
type SwapHook interface {
	AuthorizeSwap(ctx SwapContext) error
}

// NoopHook accepts every swap.
type NoopHook struct{}

func (NoopHook) AuthorizeSwap(SwapContext) error { return nil }

// HookFunc adapts a function to SwapHook.
type HookFunc func(ctx SwapContext) error

func (f HookFunc) AuthorizeSwap(ctx SwapContext) error { return f(ctx) }
