package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zenda.dev/node/consensus"
)

func TestModifierCreatesFreshEntry(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	txid := [32]byte{1}

	mod := cache.ModifyCoin(txid)
	*mod.Coin() = testCoin(7)
	mod.Release()

	coin, ok := cache.GetCoin(txid)
	require.True(t, ok)
	require.Equal(t, int64(7), coin.Outputs[0].Value)
	require.Equal(t, CoinFresh|CoinDirty, cache.coins[txid].Flags)
}

func TestModifierDropsFreshPrunedEntry(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	txid := [32]byte{1}

	// Created fresh, then left pruned: the entry never reached the base and
	// vanishes entirely on release.
	mod := cache.ModifyCoin(txid)
	*mod.Coin() = testCoin(7)
	mod.Coin().Spend(0)
	mod.Release()

	_, ok := cache.coins[txid]
	require.False(t, ok)
	require.Equal(t, int64(0), cache.DynamicMemoryUsage())
}

func TestModifierKeepsPrunedEntryKnownToBase(t *testing.T) {
	base := newStubView()
	txid := [32]byte{1}
	base.coins[txid] = testCoin(7)

	cache := NewCache(base, consensus.RegtestParams())
	mod := cache.ModifyCoin(txid)
	mod.Coin().Spend(0)
	mod.Release()

	// The base holds the coin, so the pruned entry must survive to carry
	// the deletion downward on flush.
	entry, ok := cache.coins[txid]
	require.True(t, ok)
	require.True(t, entry.Coin.IsPruned())
	require.Equal(t, CoinDirty, entry.Flags&CoinDirty)
	require.Zero(t, entry.Flags&CoinFresh)
}

func TestModifierTrimsTrailingNulls(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	txid := [32]byte{1}

	mod := cache.ModifyCoin(txid)
	*mod.Coin() = testCoin(1, 2, 3)
	mod.Coin().Outputs[2].SetNull()
	mod.Release()

	coin, _ := cache.GetCoin(txid)
	require.Len(t, coin.Outputs, 2)
}

func TestSecondModifierPanics(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())

	mod := cache.ModifyCoin([32]byte{1})
	defer mod.Release()

	require.PanicsWithError(t, "INTERNAL_ASSERTION: second modifier against the same cache", func() {
		cache.ModifyCoin([32]byte{2})
	})
}

func TestModifierReleaseIsIdempotent(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	mod := cache.ModifyCoin([32]byte{1})
	*mod.Coin() = testCoin(1)
	mod.Release()
	mod.Release()

	// A new modifier is allowed after release.
	mod2 := cache.ModifyCoin([32]byte{2})
	mod2.Release()
}
