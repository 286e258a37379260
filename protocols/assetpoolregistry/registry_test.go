package assetpoolregistry

import (
	"testing"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asset(b byte) amm.AssetID {
	return common.BytesToHash([]byte{b})
}

func poolID(t testing.TB, a, b byte, stable bool) amm.PoolID {
	id, err := amm.NewPoolID(asset(a), asset(b), stable)
	require.NoError(t, err)
	return id
}

func TestAssetPoolRegistry(t *testing.T) {
	t.Run("AddPool", func(t *testing.T) {
		t.Run("LinksBothAssets", func(t *testing.T) {
			r := NewAssetPoolRegistry()
			ab := poolID(t, 1, 2, false)
			r.addPool(ab)

			assert.Equal(t, []amm.AssetID{asset(2)}, r.neighborsOf(asset(1)))
			assert.Equal(t, []amm.AssetID{asset(1)}, r.neighborsOf(asset(2)))
			assert.Equal(t, []amm.PoolID{ab}, r.poolsBetween(asset(2), asset(1)))
		})

		t.Run("ParallelPoolsShareAnEdge", func(t *testing.T) {
			r := NewAssetPoolRegistry()
			volatile, stable := poolID(t, 1, 2, false), poolID(t, 1, 2, true)
			r.addPool(stable)
			r.addPool(volatile)

			assert.Equal(t, []amm.PoolID{volatile, stable}, r.poolsBetween(asset(1), asset(2)))
			v := r.view()
			require.Len(t, v.Edges, 1)
			assert.Equal(t, []int{0, 1}, v.Edges[0].Pools)
		})

		t.Run("IsIdempotent", func(t *testing.T) {
			r := NewAssetPoolRegistry()
			ab := poolID(t, 1, 2, false)
			r.addPool(ab)
			r.addPool(ab)
			assert.Len(t, r.view().Pools, 1)
		})
	})

	t.Run("PoolsForAsset", func(t *testing.T) {
		r := NewAssetPoolRegistry()
		ab, ac, bc := poolID(t, 1, 2, false), poolID(t, 1, 3, true), poolID(t, 2, 3, false)
		r.addPool(bc)
		r.addPool(ac)
		r.addPool(ab)

		assert.Equal(t, []amm.PoolID{ab, ac}, r.poolsForAsset(asset(1)))
		assert.Nil(t, r.poolsForAsset(asset(9)))
	})

	t.Run("View_IsSortedAndDetached", func(t *testing.T) {
		r := NewAssetPoolRegistry()
		r.addPool(poolID(t, 3, 2, false))
		r.addPool(poolID(t, 1, 2, false))

		v := r.view()
		assert.Equal(t, []amm.AssetID{asset(1), asset(2), asset(3)}, v.Assets)
		require.Len(t, v.Edges, 2)
		assert.Equal(t, Edge{From: 0, To: 1, Pools: []int{0}}, v.Edges[0])
		assert.Equal(t, Edge{From: 1, To: 2, Pools: []int{1}}, v.Edges[1])

		v.Edges[0].Pools[0] = 99
		assert.Equal(t, 0, r.view().Edges[0].Pools[0])
	})
}

func TestNewAssetPoolRegistryFromView(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		r := NewAssetPoolRegistry()
		r.addPool(poolID(t, 1, 2, false))
		r.addPool(poolID(t, 1, 2, true))
		r.addPool(poolID(t, 2, 3, false))

		restored := NewAssetPoolRegistryFromView(r.view())
		assert.Equal(t, r.view(), restored.view())
	})

	t.Run("IgnoresDanglingIndices", func(t *testing.T) {
		v := &View{
			Assets: []amm.AssetID{asset(1), asset(2)},
			Pools:  []amm.PoolID{poolID(t, 1, 2, false)},
			Edges:  []Edge{{From: 0, To: 1, Pools: []int{0, 5}}, {From: 0, To: 7, Pools: []int{0}}},
		}
		restored := NewAssetPoolRegistryFromView(v)
		assert.Equal(t, []amm.PoolID{poolID(t, 1, 2, false)}, restored.poolsForAsset(asset(1)))
	})

	t.Run("NilView", func(t *testing.T) {
		assert.Empty(t, NewAssetPoolRegistryFromView(nil).view().Assets)
	})
}

func TestDifferAndPatcher(t *testing.T) {
	r := NewAssetPoolRegistry()
	r.addPool(poolID(t, 1, 2, false))
	before := r.view()

	t.Run("UnchangedGraphYieldsEmptyDiff", func(t *testing.T) {
		diff := Differ(before, r.view())
		assert.True(t, diff.IsEmpty())

		patched, err := Patcher(before, diff)
		require.NoError(t, err)
		assert.Equal(t, before, patched)
	})

	t.Run("ChangedGraphShipsFullView", func(t *testing.T) {
		r.addPool(poolID(t, 2, 3, true))
		after := r.view()

		diff := Differ(before, after)
		require.False(t, diff.IsEmpty())

		patched, err := Patcher(before, diff)
		require.NoError(t, err)
		assert.Equal(t, after, patched)

		patched.Assets[0] = asset(9)
		assert.Equal(t, asset(1), diff.Data.Assets[0], "patched state must not share memory with the diff")
	})
}
