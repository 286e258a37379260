package router

import (
	"context"
	"runtime"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"golang.org/x/sync/errgroup"
)

// PreviewSwapExactInputBatch previews the same input over several routes
// concurrently. Results are in route order; the first failing route aborts the batch.
func (r *Router) PreviewSwapExactInputBatch(ctx context.Context, src PoolSource, assetIn amm.AssetID, amountIn uint64, routes [][]amm.PoolID) ([]AssetAmount, error) {
	return r.batch(ctx, routes, func(path []amm.PoolID) (AssetAmount, error) {
		return r.PreviewSwapExactInput(src, assetIn, amountIn, path)
	})
}

// PreviewSwapExactOutputBatch previews the same output over several routes
// concurrently. Results are in route order; the first failing route aborts the batch.
func (r *Router) PreviewSwapExactOutputBatch(ctx context.Context, src PoolSource, assetOut amm.AssetID, amountOut uint64, routes [][]amm.PoolID) ([]AssetAmount, error) {
	return r.batch(ctx, routes, func(path []amm.PoolID) (AssetAmount, error) {
		return r.PreviewSwapExactOutput(src, assetOut, amountOut, path)
	})
}

func (r *Router) batch(ctx context.Context, routes [][]amm.PoolID, preview func([]amm.PoolID) (AssetAmount, error)) ([]AssetAmount, error) {
	results := make([]AssetAmount, len(routes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range routes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := preview(path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
