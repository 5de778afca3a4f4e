package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zenda.dev/node/consensus"
)

// Three stacked caches: grandparent over the null view, parent, child.
func stackedCaches() (g, p, c *Cache) {
	g = NewCache(NullView{}, testParams())
	p = NewCache(g, testParams())
	c = NewCache(p, testParams())
	return g, p, c
}

func TestStackedSidechainMergeAndErasure(t *testing.T) {
	g, p, c := stackedCaches()
	scId := [32]byte{'s'}
	tx := creationTx('s', 10, 5)

	connectTx(t, c, tx, [32]byte{1}, 100)
	require.NoError(t, c.Flush())

	// The child's fresh entry now lives in the parent, invisible to the
	// grandparent.
	require.Equal(t, FlagFresh, p.sidechains[scId].Flag)
	require.False(t, g.HaveSidechain(scId))
	require.True(t, p.HaveSidechain(scId))

	require.NoError(t, p.Flush())
	require.True(t, g.HaveSidechain(scId))
	require.True(t, c.HaveSidechain(scId), "child sees it through both layers")

	// Revert in the child: the erasure must travel down layer by layer.
	disconnectTx(t, c, tx, 100)
	require.False(t, c.HaveSidechain(scId))
	require.True(t, g.HaveSidechain(scId), "grandparent untouched until flush")

	require.NoError(t, c.Flush())
	require.Equal(t, FlagErased, p.sidechains[scId].Flag)
	require.False(t, p.HaveSidechain(scId))
	require.True(t, g.HaveSidechain(scId))

	require.NoError(t, p.Flush())
	require.False(t, g.HaveSidechain(scId))
}

func TestStackedCoinMergeDeletesFreshPruned(t *testing.T) {
	g, p, c := stackedCaches()
	txid := [32]byte{7}

	mod := c.ModifyCoin(txid)
	*mod.Coin() = testCoin(11, 22)
	mod.Release()

	require.NoError(t, c.Flush())
	require.Equal(t, CoinDirty|CoinFresh, p.coins[txid].Flags)

	require.NoError(t, p.Flush())
	require.Equal(t, CoinDirty|CoinFresh, g.coins[txid].Flags,
		"fresh child coin lands fresh-and-dirty in an empty grandparent")
	require.True(t, g.HaveCoin(txid))

	// Spend the coin fully in the child and push the prune down: the
	// grandparent's fresh entry disappears instead of persisting pruned.
	mod = c.ModifyCoin(txid)
	mod.Coin().Spend(0)
	mod.Coin().Spend(1)
	mod.Release()

	require.NoError(t, c.Flush())
	require.NoError(t, p.Flush())

	_, present := g.coins[txid]
	require.False(t, present, "pruned coin must not survive in any map")
	require.False(t, g.HaveCoin(txid))
}

func TestStackedDefaultEntriesDoNotTravel(t *testing.T) {
	g, p, c := stackedCaches()
	scId := [32]byte{'s'}

	connectTx(t, g, creationTx('s', 10, 5), [32]byte{1}, 100)

	// A pure read in the child caches DEFAULT entries in both layers.
	require.True(t, c.HaveSidechain(scId))
	require.Equal(t, FlagDefault, p.sidechains[scId].Flag)
	require.Equal(t, FlagDefault, c.sidechains[scId].Flag)

	// Flushing the untouched child must not disturb the parent's entry.
	require.NoError(t, c.Flush())
	require.Equal(t, FlagDefault, p.sidechains[scId].Flag)
	require.True(t, p.HaveSidechain(scId))
}

func TestStackedBestBlockPropagates(t *testing.T) {
	g, _, c := stackedCaches()

	c.SetBestBlock([32]byte{0xee})
	require.NoError(t, c.Flush())

	// The middle layer now carries the pointer; the grandparent learns it
	// on the next flush.
	require.Equal(t, [32]byte{}, g.bestBlock)
	require.Equal(t, [32]byte{0xee}, c.base.(*Cache).bestBlock)
}

func TestBatchWriteFreshOverExistingPanics(t *testing.T) {
	p := NewCache(NullView{}, testParams())
	scId := [32]byte{'s'}

	connectTx(t, p, creationTx('s', 10, 5), [32]byte{1}, 100)

	batch := &CacheBatch{
		Coins:      map[[32]byte]*CoinEntry{},
		Anchors:    map[[32]byte]*AnchorEntry{},
		Nullifiers: map[[32]byte]*NullifierEntry{},
		Sidechains: map[[32]byte]*SidechainEntry{
			scId: {Sidechain: consensus.NewSidechain(), Flag: FlagFresh},
		},
		Events:         map[int32]*EventsEntry{},
		CswNullifiers:  map[CswNullifierKey]*CswNullifierEntry{},
		CertDataHashes: map[CertDataKey]*CertDataEntry{},
	}

	require.Panics(t, func() { _ = p.BatchWrite(batch) })
}

func TestBatchWriteDefaultMissingFromParentPanics(t *testing.T) {
	p := NewCache(NullView{}, testParams())

	batch := &CacheBatch{
		Coins:      map[[32]byte]*CoinEntry{},
		Anchors:    map[[32]byte]*AnchorEntry{},
		Nullifiers: map[[32]byte]*NullifierEntry{},
		Sidechains: map[[32]byte]*SidechainEntry{
			{0x01}: {Sidechain: consensus.NewSidechain(), Flag: FlagDefault},
		},
		Events:         map[int32]*EventsEntry{},
		CswNullifiers:  map[CswNullifierKey]*CswNullifierEntry{},
		CertDataHashes: map[CertDataKey]*CertDataEntry{},
	}

	require.Panics(t, func() { _ = p.BatchWrite(batch) })
}
