package server

import (
	"time"

	"github.com/defistate/defistate-amm-go/periphery"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/state"
)

// Periphery is the set of user operations exposed under OpsNamespace.
type Periphery interface {
	CreatePoolAndAddLiquidity(caller amm.Identity, contract0 amm.ContractID, sub0 amm.SubID, contract1 amm.ContractID, sub1 amm.SubID, stable bool, amount0, amount1 uint64, recipient amm.Identity, deadline time.Time) (amm.PoolID, periphery.AddedLiquidity, error)
	AddLiquidity(caller amm.Identity, params periphery.AddLiquidityParams) (periphery.AddedLiquidity, error)
	RemoveLiquidity(caller amm.Identity, id amm.PoolID, liquidity, min0, min1 uint64, recipient amm.Identity, deadline time.Time) (uint64, uint64, error)
	SwapExactInput(caller amm.Identity, amountIn uint64, assetIn amm.AssetID, amountOutMin uint64, path []amm.PoolID, recipient amm.Identity, deadline time.Time) ([]router.AssetAmount, error)
	SwapExactOutput(caller amm.Identity, amountOut uint64, assetOut amm.AssetID, amountInMax uint64, path []amm.PoolID, recipient amm.Identity, deadline time.Time) ([]router.AssetAmount, error)
}

// Faucet credits and reports balances on the in-process ledger.
type Faucet interface {
	Deposit(to amm.Identity, asset amm.AssetID, amount uint64) error
	Balances(owner amm.Identity) map[amm.AssetID]uint64
}

type Executor interface {
	Execute(op string, fn func() error) (state.Checkpoint, error)
}

// OpsAPI lets a trusted caller drive the AMM over RPC. It is meant for
// development deployments where the daemon owns the ledger. Every method
// acts for the caller it is given without authenticating it, so the API must
// only be served on a trusted network. Deadlines are Unix seconds.
type OpsAPI struct {
	periphery Periphery
	faucet    Faucet
	exec      Executor
}

func NewOpsAPI(p Periphery, faucet Faucet, exec Executor) *OpsAPI {
	return &OpsAPI{periphery: p, faucet: faucet, exec: exec}
}

type PoolCreated struct {
	Pool  amm.PoolID               `json:"pool"`
	Added periphery.AddedLiquidity `json:"added"`
}

type Withdrawal struct {
	Amount0 uint64 `json:"amount0"`
	Amount1 uint64 `json:"amount1"`
}

func (api *OpsAPI) Deposit(to amm.Identity, asset amm.AssetID, amount uint64) (state.Checkpoint, error) {
	return api.exec.Execute("deposit", func() error {
		return api.faucet.Deposit(to, asset, amount)
	})
}

func (api *OpsAPI) Balances(owner amm.Identity) map[amm.AssetID]uint64 {
	return api.faucet.Balances(owner)
}

func (api *OpsAPI) CreatePoolAndAddLiquidity(caller amm.Identity, contract0 amm.ContractID, sub0 amm.SubID, contract1 amm.ContractID, sub1 amm.SubID, stable bool, amount0, amount1 uint64, recipient amm.Identity, deadline int64) (PoolCreated, error) {
	id, added, err := api.periphery.CreatePoolAndAddLiquidity(caller, contract0, sub0, contract1, sub1, stable, amount0, amount1, recipient, time.Unix(deadline, 0))
	if err != nil {
		return PoolCreated{}, err
	}
	return PoolCreated{Pool: id, Added: added}, nil
}

func (api *OpsAPI) AddLiquidity(caller amm.Identity, id amm.PoolID, desired0, desired1, min0, min1 uint64, recipient amm.Identity, deadline int64) (periphery.AddedLiquidity, error) {
	return api.periphery.AddLiquidity(caller, periphery.AddLiquidityParams{
		Pool:      id,
		Desired0:  desired0,
		Desired1:  desired1,
		Min0:      min0,
		Min1:      min1,
		Recipient: recipient,
		Deadline:  time.Unix(deadline, 0),
	})
}

func (api *OpsAPI) RemoveLiquidity(caller amm.Identity, id amm.PoolID, liquidity, min0, min1 uint64, recipient amm.Identity, deadline int64) (Withdrawal, error) {
	out0, out1, err := api.periphery.RemoveLiquidity(caller, id, liquidity, min0, min1, recipient, time.Unix(deadline, 0))
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{Amount0: out0, Amount1: out1}, nil
}

func (api *OpsAPI) SwapExactInput(caller amm.Identity, amountIn uint64, assetIn amm.AssetID, amountOutMin uint64, path []amm.PoolID, recipient amm.Identity, deadline int64) ([]router.AssetAmount, error) {
	return api.periphery.SwapExactInput(caller, amountIn, assetIn, amountOutMin, path, recipient, time.Unix(deadline, 0))
}

func (api *OpsAPI) SwapExactOutput(caller amm.Identity, amountOut uint64, assetOut amm.AssetID, amountInMax uint64, path []amm.PoolID, recipient amm.Identity, deadline int64) ([]router.AssetAmount, error) {
	return api.periphery.SwapExactOutput(caller, amountOut, assetOut, amountInMax, path, recipient, time.Unix(deadline, 0))
}
