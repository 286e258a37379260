package server

import (
	"context"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/rpc"
)

// API is the read-only service registered under RpcNamespace. Quotes are
// computed against the last published state.
type API struct {
	s *Server
}

func NewAPI(s *Server) *API {
	return &API{s: s}
}

func (api *API) Fees() amm.Fees {
	return api.s.router.Fees()
}

// PoolMetadata returns nil for an unknown pool.
func (api *API) PoolMetadata(id amm.PoolID) *amm.Pool {
	pool, ok := api.s.current.Load().pools.GetByID(id)
	if !ok {
		return nil
	}
	return &pool
}

func (api *API) State() *state.State {
	return api.s.State()
}

func (api *API) GetAmountsOut(assetIn amm.AssetID, amountIn uint64, path []amm.PoolID) ([]router.AssetAmount, error) {
	return api.s.router.GetAmountsOut(api.s.current.Load().pools, assetIn, amountIn, path)
}

func (api *API) GetAmountsIn(assetOut amm.AssetID, amountOut uint64, path []amm.PoolID) ([]router.AssetAmount, error) {
	return api.s.router.GetAmountsIn(api.s.current.Load().pools, assetOut, amountOut, path)
}

func (api *API) PreviewSwapExactInput(assetIn amm.AssetID, amountIn uint64, path []amm.PoolID) (router.AssetAmount, error) {
	return api.s.router.PreviewSwapExactInput(api.s.current.Load().pools, assetIn, amountIn, path)
}

func (api *API) PreviewSwapExactOutput(assetOut amm.AssetID, amountOut uint64, path []amm.PoolID) (router.AssetAmount, error) {
	return api.s.router.PreviewSwapExactOutput(api.s.current.Load().pools, assetOut, amountOut, path)
}

func (api *API) CurrentRate(assetOut amm.AssetID, path []amm.PoolID) (router.Rate, error) {
	return api.s.router.CurrentRate(api.s.current.Load().pools, assetOut, path)
}

// BestExactInput searches the asset-pool graph for the route paying the most.
func (api *API) BestExactInput(ctx context.Context, assetIn amm.AssetID, amountIn uint64, assetOut amm.AssetID, maxHops int) (router.Quote, error) {
	return api.s.router.BestExactInput(ctx, api.s.current.Load().pools, api.s.graph, assetIn, amountIn, assetOut, maxHops)
}

// SubscribeStateStream sends the current full state, then one diff per
// committed operation. A subscriber that falls behind is dropped and restarts
// from a fresh full state.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	id, sub, err := api.s.subscribe()
	if err != nil {
		return nil, err
	}
	rpcSub := notifier.CreateSubscription()

	go func() {
		defer func() { api.s.unsubscribe(id) }()
		for {
			select {
			case event := <-sub.ch:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.s.logger.Warn("Failed to notify subscriber", "subscriber", id, "error", err)
					return
				}
			case <-sub.dropped:
				id, sub, err = api.s.subscribe()
				if err != nil {
					api.s.logger.Error("Failed to resync subscriber", "error", err)
					return
				}
				api.s.logger.Info("Subscriber resynced", "subscriber", id)
			case <-rpcSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}
