package router

import (
	"context"
	"sort"
	"testing"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetA = common.HexToHash("0x01")
	assetB = common.HexToHash("0x02")
	assetC = common.HexToHash("0x03")
	assetD = common.HexToHash("0x04")

	testFees = amm.Fees{
		LPFeeVolatile:       25,
		ProtocolFeeVolatile: 5,
		LPFeeStable:         4,
		ProtocolFeeStable:   1,
	}
)

type fixture struct {
	abVolatile amm.PoolID
	abStable   amm.PoolID
	bcVolatile amm.PoolID
	acVolatile amm.PoolID
	snapshot   Snapshot
}

func mustPoolID(t *testing.T, a, b common.Hash, stable bool) amm.PoolID {
	t.Helper()
	id, err := amm.NewPoolID(a, b, stable)
	require.NoError(t, err)
	return id
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		abVolatile: mustPoolID(t, assetA, assetB, false),
		abStable:   mustPoolID(t, assetB, assetA, true),
		bcVolatile: mustPoolID(t, assetC, assetB, false),
		acVolatile: mustPoolID(t, assetA, assetC, false),
	}
	f.snapshot = NewSnapshot([]amm.Pool{
		{ID: f.abVolatile, Reserve0: 1_000_000, Reserve1: 2_000_000, Decimals0: 9, Decimals1: 9, Liquidity: 2_000_000},
		{ID: f.abStable, Reserve0: 1_000_000_000, Reserve1: 1_000_000_000, Decimals0: 9, Decimals1: 9, Liquidity: 1_000_000_000},
		{ID: f.bcVolatile, Reserve0: 5_000_000, Reserve1: 5_000_000, Decimals0: 9, Decimals1: 9, Liquidity: 5_000_000},
		{ID: f.acVolatile, Reserve0: 1_000_000, Reserve1: 1_000_000, Decimals0: 9, Decimals1: 9, Liquidity: 1_000_000},
	})
	return f
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(testFees)
	require.NoError(t, err)
	return r
}

func amounts(trace []AssetAmount) []uint64 {
	out := make([]uint64, len(trace))
	for i, step := range trace {
		out[i] = step.Amount
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(amm.Fees{LPFeeVolatile: 9_000, ProtocolFeeVolatile: 1_000})
	assert.ErrorIs(t, err, amm.ErrInvalidFee)
}

func TestGetAmountsOut(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)

	testCases := []struct {
		name     string
		assetIn  common.Hash
		amountIn uint64
		path     []amm.PoolID
		expected []uint64
		assets   []common.Hash
	}{
		{
			name:     "Single Volatile Hop",
			assetIn:  assetA,
			amountIn: 10_031,
			path:     []amm.PoolID{f.abVolatile},
			expected: []uint64{10_031, 19_801},
			assets:   []common.Hash{assetA, assetB},
		},
		{
			name:     "Single Volatile Hop Reverse Direction",
			assetIn:  assetB,
			amountIn: 20_000,
			path:     []amm.PoolID{f.abVolatile},
			expected: []uint64{20_000, 9_871},
			assets:   []common.Hash{assetB, assetA},
		},
		{
			name:     "Two Volatile Hops",
			assetIn:  assetA,
			amountIn: 10_031,
			path:     []amm.PoolID{f.abVolatile, f.bcVolatile},
			expected: []uint64{10_031, 19_801, 19_663},
			assets:   []common.Hash{assetA, assetB, assetC},
		},
		{
			name:     "Stable Hop",
			assetIn:  assetA,
			amountIn: 1_000_000,
			path:     []amm.PoolID{f.abStable},
			expected: []uint64{1_000_000, 999_499},
			assets:   []common.Hash{assetA, assetB},
		},
		{
			name:     "Stable Then Volatile",
			assetIn:  assetA,
			amountIn: 10_031,
			path:     []amm.PoolID{f.abStable, f.bcVolatile},
			expected: []uint64{10_031, 10_024, 9_973},
			assets:   []common.Hash{assetA, assetB, assetC},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			trace, err := r.GetAmountsOut(f.snapshot, tc.assetIn, tc.amountIn, tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, amounts(trace))
			for i, step := range trace {
				assert.Equal(t, tc.assets[i], step.Asset)
			}
		})
	}

	t.Run("Empty Path", func(t *testing.T) {
		_, err := r.GetAmountsOut(f.snapshot, assetA, 100, nil)
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("Pool Not Present", func(t *testing.T) {
		missing := mustPoolID(t, assetA, assetD, false)
		_, err := r.GetAmountsOut(f.snapshot, assetA, 100, []amm.PoolID{f.abVolatile, missing})
		assert.ErrorIs(t, err, ErrPoolNotPresent)
	})

	t.Run("Disconnected Path", func(t *testing.T) {
		_, err := r.GetAmountsOut(f.snapshot, assetA, 10_000, []amm.PoolID{f.abVolatile, f.acVolatile})
		assert.ErrorIs(t, err, ErrAssetNotInPool)
	})

	t.Run("Input Consumed By Fee", func(t *testing.T) {
		_, err := r.GetAmountsOut(f.snapshot, assetA, 1, []amm.PoolID{f.abVolatile})
		assert.ErrorIs(t, err, calculator.ErrZeroInputAmount)
	})
}

func TestGetAmountsIn(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)

	t.Run("Single Volatile Hop", func(t *testing.T) {
		trace, err := r.GetAmountsIn(f.snapshot, assetB, 19_801, []amm.PoolID{f.abVolatile})
		require.NoError(t, err)
		assert.Equal(t, []uint64{19_801, 10_031}, amounts(trace))
		assert.Equal(t, assetA, trace[1].Asset)
	})

	t.Run("Two Volatile Hops", func(t *testing.T) {
		trace, err := r.GetAmountsIn(f.snapshot, assetC, 19_663, []amm.PoolID{f.abVolatile, f.bcVolatile})
		require.NoError(t, err)
		assert.Equal(t, []uint64{19_663, 19_801, 10_031}, amounts(trace))
		assert.Equal(t, []common.Hash{assetC, assetB, assetA}, []common.Hash{trace[0].Asset, trace[1].Asset, trace[2].Asset})
	})

	t.Run("Stable Hop", func(t *testing.T) {
		trace, err := r.GetAmountsIn(f.snapshot, assetB, 999_499, []amm.PoolID{f.abStable})
		require.NoError(t, err)
		assert.Equal(t, []uint64{999_499, 1_000_000}, amounts(trace))
	})

	t.Run("Output Exceeds Reserve", func(t *testing.T) {
		_, err := r.GetAmountsIn(f.snapshot, assetB, 2_000_000, []amm.PoolID{f.abVolatile})
		assert.ErrorIs(t, err, calculator.ErrInsufficientReserves)
	})

	t.Run("Empty Path", func(t *testing.T) {
		_, err := r.GetAmountsIn(f.snapshot, assetB, 1, []amm.PoolID{})
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}

func reversed(trace []AssetAmount) []AssetAmount {
	out := make([]AssetAmount, len(trace))
	for i, step := range trace {
		out[len(trace)-1-i] = step
	}
	return out
}

func TestQuoteComposition(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)
	routes := []struct {
		name     string
		assetIn  amm.AssetID
		assetOut amm.AssetID
		path     []amm.PoolID
	}{
		{"A To C", assetA, assetC, []amm.PoolID{f.abVolatile, f.bcVolatile}},
		{"C To A", assetC, assetA, []amm.PoolID{f.bcVolatile, f.abVolatile}},
	}

	t.Run("Output Round Trip Overshoots At Most One Unit Per Hop", func(t *testing.T) {
		for _, route := range routes {
			for _, amountOut := range []uint64{1, 7, 164, 1_985, 5_000, 33_013, 100_000, 139_489} {
				backward, err := r.GetAmountsIn(f.snapshot, route.assetOut, amountOut, route.path)
				require.NoError(t, err)
				in := reversed(backward)

				forward, err := r.GetAmountsOut(f.snapshot, route.assetIn, in[0].Amount, route.path)
				require.NoError(t, err)
				for hop := range forward {
					assert.Equal(t, in[hop].Asset, forward[hop].Asset)
					assert.GreaterOrEqual(t, forward[hop].Amount, in[hop].Amount, "%s out %d position %d", route.name, amountOut, hop)
					assert.LessOrEqual(t, forward[hop].Amount-in[hop].Amount, uint64(hop), "%s out %d position %d", route.name, amountOut, hop)
				}
			}
		}

		backward, err := r.GetAmountsIn(f.snapshot, assetC, 5_000, routes[0].path)
		require.NoError(t, err)
		assert.Equal(t, []uint64{2_526, 5_022, 5_000}, amounts(reversed(backward)))
		forward, err := r.GetAmountsOut(f.snapshot, assetA, 2_526, routes[0].path)
		require.NoError(t, err)
		assert.Equal(t, []uint64{2_526, 5_023, 5_001}, amounts(forward))
	})

	t.Run("Input Round Trip Never Asks For More", func(t *testing.T) {
		for _, route := range routes {
			for _, amountIn := range []uint64{1_000, 10_031, 77_777, 250_000, 999_999} {
				forward, err := r.PreviewSwapExactInput(f.snapshot, route.assetIn, amountIn, route.path)
				require.NoError(t, err)

				backward, err := r.PreviewSwapExactOutput(f.snapshot, route.assetOut, forward.Amount, route.path)
				require.NoError(t, err)
				assert.Equal(t, route.assetIn, backward.Asset)
				assert.LessOrEqual(t, backward.Amount, amountIn)

				again, err := r.PreviewSwapExactInput(f.snapshot, route.assetIn, backward.Amount, route.path)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, again.Amount, forward.Amount)
			}
		}

		// Measured in input units the gap is not bounded by the hop count:
		// when one output unit costs several input units, every input inside
		// that step quotes the same output.
		forward, err := r.GetAmountsOut(f.snapshot, assetC, 334, routes[1].path)
		require.NoError(t, err)
		assert.Equal(t, []uint64{334, 331, 164}, amounts(forward))
		backward, err := r.GetAmountsIn(f.snapshot, assetA, 164, routes[1].path)
		require.NoError(t, err)
		assert.Equal(t, []uint64{332, 330, 164}, amounts(reversed(backward)))
	})
}

func TestBatchPreviews(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)
	routes := [][]amm.PoolID{
		{f.abVolatile, f.bcVolatile},
		{f.acVolatile},
		{f.abStable, f.bcVolatile},
	}

	t.Run("Exact Input", func(t *testing.T) {
		results, err := r.PreviewSwapExactInputBatch(context.Background(), f.snapshot, assetA, 10_031, routes)
		require.NoError(t, err)
		assert.Equal(t, []uint64{19_663, 9_900, 9_973}, amounts(results))
	})

	t.Run("Exact Output", func(t *testing.T) {
		results, err := r.PreviewSwapExactOutputBatch(context.Background(), f.snapshot, assetC, 19_663, routes[:1])
		require.NoError(t, err)
		assert.Equal(t, []uint64{10_031}, amounts(results))
	})

	t.Run("Failing Route Aborts", func(t *testing.T) {
		bad := append(routes, []amm.PoolID{mustPoolID(t, assetA, assetD, false)})
		_, err := r.PreviewSwapExactInputBatch(context.Background(), f.snapshot, assetA, 10_031, bad)
		assert.ErrorIs(t, err, ErrPoolNotPresent)
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.PreviewSwapExactInputBatch(ctx, f.snapshot, assetA, 10_031, routes)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// testGraph derives adjacency from a snapshot.
type testGraph struct {
	snapshot Snapshot
}

func (g testGraph) Neighbors(asset amm.AssetID) []amm.AssetID {
	seen := map[amm.AssetID]bool{}
	var out []amm.AssetID
	for id := range g.snapshot {
		if other, ok := id.Other(asset); ok && !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (g testGraph) PoolsBetween(a, b amm.AssetID) []amm.PoolID {
	var out []amm.PoolID
	for id := range g.snapshot {
		if id.Contains(a) && id.Contains(b) {
			out = append(out, id)
		}
	}
	amm.SortPoolIDs(out)
	return out
}

func TestFindRoutes(t *testing.T) {
	f := newFixture(t)
	g := testGraph{snapshot: f.snapshot}

	t.Run("Direct Only", func(t *testing.T) {
		routes := FindRoutes(g, assetA, assetC, 1)
		assert.Equal(t, [][]amm.PoolID{{f.acVolatile}}, routes)
	})

	t.Run("Two Hops Includes Parallel Pools", func(t *testing.T) {
		routes := FindRoutes(g, assetA, assetC, 2)
		assert.ElementsMatch(t, [][]amm.PoolID{
			{f.acVolatile},
			{f.abVolatile, f.bcVolatile},
			{f.abStable, f.bcVolatile},
		}, routes)
	})

	t.Run("No Revisits", func(t *testing.T) {
		for _, route := range FindRoutes(g, assetA, assetC, 4) {
			assert.LessOrEqual(t, len(route), 3)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		assert.Empty(t, FindRoutes(g, assetA, assetD, 3))
		assert.Empty(t, FindRoutes(g, assetA, assetA, 3))
	})
}

func TestBestExactInput(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)
	g := testGraph{snapshot: f.snapshot}

	t.Run("Picks Largest Output", func(t *testing.T) {
		q, err := r.BestExactInput(context.Background(), f.snapshot, g, assetA, 10_031, assetC, 2)
		require.NoError(t, err)
		assert.Equal(t, []amm.PoolID{f.abVolatile, f.bcVolatile}, q.Route)
		assert.Equal(t, uint64(19_663), q.Out().Amount)
		assert.Equal(t, assetC, q.Out().Asset)
	})

	t.Run("No Route", func(t *testing.T) {
		_, err := r.BestExactInput(context.Background(), f.snapshot, g, assetA, 10_031, assetD, 3)
		assert.ErrorIs(t, err, ErrNoRoute)
	})
}

func TestLiquidityHelpers(t *testing.T) {
	f := newFixture(t)

	t.Run("Other Asset To Add", func(t *testing.T) {
		other, err := GetOtherAssetToAddLiquidity(f.snapshot, f.abVolatile, assetA, 1_000)
		require.NoError(t, err)
		assert.Equal(t, AssetAmount{Asset: assetB, Amount: 2_001}, other)

		other, err = GetOtherAssetToAddLiquidity(f.snapshot, f.abVolatile, assetB, 1_000)
		require.NoError(t, err)
		assert.Equal(t, AssetAmount{Asset: assetA, Amount: 501}, other)
	})

	t.Run("Other Asset On Empty Pool", func(t *testing.T) {
		empty := NewSnapshot([]amm.Pool{{ID: f.abVolatile}})
		_, err := GetOtherAssetToAddLiquidity(empty, f.abVolatile, assetA, 1_000)
		assert.ErrorIs(t, err, ErrZeroReserve)
	})

	t.Run("Liquidity Position", func(t *testing.T) {
		a0, a1, err := GetLiquidityPosition(f.snapshot, f.abVolatile, 1_000_000)
		require.NoError(t, err)
		assert.Equal(t, AssetAmount{Asset: assetA, Amount: 500_000}, a0)
		assert.Equal(t, AssetAmount{Asset: assetB, Amount: 1_000_000}, a1)

		_, _, err = GetLiquidityPosition(f.snapshot, f.abVolatile, 0)
		assert.ErrorIs(t, err, ErrZeroAmount)

		_, _, err = GetLiquidityPosition(f.snapshot, f.abVolatile, 2_000_001)
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})
}

func TestCurrentRate(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t)

	t.Run("Volatile", func(t *testing.T) {
		rate, err := r.CurrentRate(f.snapshot, assetB, []amm.PoolID{f.abVolatile})
		require.NoError(t, err)
		assert.Equal(t, uint64(498_500_000_000), rate.Value.Uint64())
		assert.Equal(t, assetA, rate.AssetIn)
		assert.Equal(t, uint8(9), rate.DecimalsIn)
		assert.Equal(t, uint8(9), rate.DecimalsOut)
	})

	t.Run("Stable Samples A Small Trade", func(t *testing.T) {
		rate, err := r.CurrentRate(f.snapshot, assetB, []amm.PoolID{f.abStable})
		require.NoError(t, err)
		assert.Equal(t, uint64(1_020_408_163_265), rate.Value.Uint64())
	})

	t.Run("Path Given Backwards", func(t *testing.T) {
		forward, err := r.CurrentRate(f.snapshot, assetC, []amm.PoolID{f.abVolatile, f.bcVolatile})
		require.NoError(t, err)
		backward, err := r.CurrentRate(f.snapshot, assetC, []amm.PoolID{f.bcVolatile, f.abVolatile})
		require.NoError(t, err)
		assert.Equal(t, forward, backward)
		assert.Equal(t, assetA, forward.AssetIn)
	})

	t.Run("Asset Not On Border", func(t *testing.T) {
		_, err := r.CurrentRate(f.snapshot, assetD, []amm.PoolID{f.abVolatile})
		assert.ErrorIs(t, err, ErrAssetNotInPool)
	})
}
