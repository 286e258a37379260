package router

import (
	"context"
	"fmt"
	"runtime"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"golang.org/x/sync/errgroup"
)

// Graph is the asset adjacency the route search walks.
type Graph interface {
	Neighbors(asset amm.AssetID) []amm.AssetID
	PoolsBetween(a, b amm.AssetID) []amm.PoolID
}

// FindRoutes enumerates every simple path of at most maxHops pools from assetIn
// to assetOut. An asset is never visited twice on the same path; parallel pools
// (volatile and stable on one pair) yield distinct routes.
func FindRoutes(g Graph, assetIn, assetOut amm.AssetID, maxHops int) [][]amm.PoolID {
	if maxHops <= 0 || assetIn == assetOut {
		return nil
	}

	var routes [][]amm.PoolID
	visited := mapset.NewThreadUnsafeSet(assetIn)
	path := make([]amm.PoolID, 0, maxHops)

	var walk func(current amm.AssetID)
	walk = func(current amm.AssetID) {
		if len(path) == maxHops {
			return
		}
		for _, next := range g.Neighbors(current) {
			if visited.Contains(next) {
				continue
			}
			for _, pool := range g.PoolsBetween(current, next) {
				path = append(path, pool)
				if next == assetOut {
					routes = append(routes, append([]amm.PoolID(nil), path...))
				} else {
					visited.Add(next)
					walk(next)
					visited.Remove(next)
				}
				path = path[:len(path)-1]
			}
		}
	}
	walk(assetIn)
	return routes
}

// Quote is a priced route.
type Quote struct {
	Route   []amm.PoolID  `json:"route"`
	Amounts []AssetAmount `json:"amounts"`
}

// Out returns the final output of the quote.
func (q Quote) Out() AssetAmount {
	return q.Amounts[len(q.Amounts)-1]
}

// BestExactInput prices every route FindRoutes returns and picks the one with
// the largest output. Routes that fail to price are skipped; ties go to the
// route found first.
func (r *Router) BestExactInput(ctx context.Context, src PoolSource, g Graph, assetIn amm.AssetID, amountIn uint64, assetOut amm.AssetID, maxHops int) (Quote, error) {
	routes := FindRoutes(g, assetIn, assetOut, maxHops)
	if len(routes) == 0 {
		return Quote{}, fmt.Errorf("%w: %s to %s within %d hops", ErrNoRoute, assetIn.TerminalString(), assetOut.TerminalString(), maxHops)
	}

	traces := make([][]AssetAmount, len(routes))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, route := range routes {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			trace, err := r.GetAmountsOut(src, assetIn, amountIn, route)
			if err == nil {
				traces[i] = trace
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Quote{}, err
	}

	best := -1
	for i, trace := range traces {
		if trace == nil {
			continue
		}
		if best < 0 || trace[len(trace)-1].Amount > traces[best][len(traces[best])-1].Amount {
			best = i
		}
	}
	if best < 0 {
		return Quote{}, fmt.Errorf("%w: all %d routes failed to price", ErrNoRoute, len(routes))
	}
	return Quote{Route: routes[best], Amounts: traces[best]}, nil
}
