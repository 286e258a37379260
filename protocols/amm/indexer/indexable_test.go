package indexer

import (
	"testing"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexablePoolSystem(t *testing.T) {
	contract := common.HexToHash("0xc0")
	a, b := common.HexToHash("0x01"), common.HexToHash("0x02")

	volatileID, err := amm.NewPoolID(a, b, false)
	require.NoError(t, err)
	stableID, err := amm.NewPoolID(b, a, true)
	require.NoError(t, err)

	pools := []amm.Pool{
		{ID: volatileID, Reserve0: 100, Reserve1: 200, LPAsset: amm.LPAssetID(contract, volatileID)},
		{ID: stableID, Reserve0: 300, Reserve1: 300, LPAsset: amm.LPAssetID(contract, stableID)},
	}
	indexer := New().Index(pools)

	t.Run("Successful Lookups", func(t *testing.T) {
		p, found := indexer.GetByID(stableID)
		require.True(t, found)
		assert.Equal(t, uint64(300), p.Reserve0)

		p, found = indexer.GetByLPAsset(amm.LPAssetID(contract, volatileID))
		require.True(t, found)
		assert.Equal(t, volatileID, p.ID)
	})

	t.Run("Curve Flag Is Part Of The Key", func(t *testing.T) {
		other := volatileID
		other.Stable = true
		p, found := indexer.GetByID(other)
		require.True(t, found)
		assert.True(t, p.ID.Stable)
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := indexer.GetByLPAsset(common.HexToHash("0xdead"))
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		all := indexer.All()
		require.Len(t, all, 2)
		all[0].Reserve0 = 0
		p, _ := indexer.GetByID(all[0].ID)
		assert.NotZero(t, p.Reserve0, "Modifying the returned slice should not affect the internal state")
	})
}
