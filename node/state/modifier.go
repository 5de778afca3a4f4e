package state

import "zenda.dev/node/consensus"

// CoinsModifier is a scoped mutable borrow of one coin entry. At most one
// modifier may exist against a cache at a time; Release must run on every
// exit path (defer it). Release trims the coin, re-accounts its memory and
// drops entries that were pruned before ever reaching the base.
type CoinsModifier struct {
	cache       *Cache
	txid        [32]byte
	entry       *CoinEntry
	cachedUsage int64
	released    bool
}

// ModifyCoin stages txid's coin for mutation, creating a blank fresh entry
// when the view has none. The entry is marked dirty up front: callers asking
// to modify are assumed to modify.
func (c *Cache) ModifyCoin(txid [32]byte) *CoinsModifier {
	assertInvariant(!c.hasModifier, "second modifier against the same cache")
	c.hasModifier = true

	var cachedUsage int64
	entry, ok := c.coins[txid]
	if !ok {
		entry = &CoinEntry{}
		if coin, found := c.base.GetCoin(txid); found {
			entry.Coin = coin
			if entry.Coin.IsPruned() {
				// The base only has a pruned entry: ours counts as fresh.
				entry.Flags = CoinFresh
			}
		} else {
			entry.Coin.Clear()
			entry.Flags = CoinFresh
		}
		c.coins[txid] = entry
		// Usage for a just-fetched entry is accounted on release.
	} else {
		cachedUsage = entry.Coin.DynamicMemoryUsage()
	}
	entry.Flags |= CoinDirty

	return &CoinsModifier{
		cache:       c,
		txid:        txid,
		entry:       entry,
		cachedUsage: cachedUsage,
	}
}

// Coin exposes the borrowed coin for mutation.
func (m *CoinsModifier) Coin() *consensus.Coin {
	assertInvariant(!m.released, "use of released coins modifier")
	return &m.entry.Coin
}

// Release ends the borrow: trims trailing nulls, updates the cache usage
// counter, and deletes the entry when it is pruned and never reached the
// base.
func (m *CoinsModifier) Release() {
	if m.released {
		return
	}
	m.released = true

	assertInvariant(m.cache.hasModifier, "modifier release without outstanding flag")
	m.cache.hasModifier = false

	m.entry.Coin.Cleanup()
	m.cache.cachedUsage -= m.cachedUsage
	if m.entry.Flags&CoinFresh != 0 && m.entry.Coin.IsPruned() {
		delete(m.cache.coins, m.txid)
	} else {
		m.cache.cachedUsage += m.entry.Coin.DynamicMemoryUsage()
	}
}
