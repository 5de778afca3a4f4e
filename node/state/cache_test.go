package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zenda.dev/node/consensus"
)

// stubView seeds a handful of entries and counts read traffic so tests can
// observe fetch-on-demand behavior.
type stubView struct {
	NullView
	coins      map[[32]byte]consensus.Coin
	sidechains map[[32]byte]consensus.Sidechain
	bestBlock  [32]byte
	bestAnchor [32]byte

	coinReads      int
	sidechainReads int
}

func newStubView() *stubView {
	return &stubView{
		coins:      make(map[[32]byte]consensus.Coin),
		sidechains: make(map[[32]byte]consensus.Sidechain),
	}
}

func (s *stubView) GetCoin(txid [32]byte) (consensus.Coin, bool) {
	s.coinReads++
	coin, ok := s.coins[txid]
	return coin, ok
}

func (s *stubView) HaveCoin(txid [32]byte) bool {
	coin, ok := s.coins[txid]
	return ok && len(coin.Outputs) > 0
}

func (s *stubView) GetSidechain(scId [32]byte) (consensus.Sidechain, bool) {
	s.sidechainReads++
	sc, ok := s.sidechains[scId]
	if !ok {
		return consensus.Sidechain{}, false
	}
	return sc.Copy(), true
}

func (s *stubView) HaveSidechain(scId [32]byte) bool {
	_, ok := s.sidechains[scId]
	return ok
}

func (s *stubView) GetScIds() map[[32]byte]struct{} {
	ids := make(map[[32]byte]struct{})
	for scId := range s.sidechains {
		ids[scId] = struct{}{}
	}
	return ids
}

func (s *stubView) GetBestBlock() [32]byte  { return s.bestBlock }
func (s *stubView) GetBestAnchor() [32]byte { return s.bestAnchor }

func (s *stubView) BatchWrite(batch *CacheBatch) error {
	s.bestBlock = batch.BestBlock
	s.bestAnchor = batch.BestAnchor
	return nil
}

func testCoin(values ...int64) consensus.Coin {
	outs := make([]consensus.TxOut, len(values))
	for i, v := range values {
		outs[i] = consensus.TxOut{Value: v, PubKeyScript: []byte{0x51}}
	}
	return consensus.Coin{
		Version:     consensus.TRANSPARENT_TX_VERSION,
		Height:      10,
		Outputs:     outs,
		FirstBwtPos: consensus.NO_BWT,
	}
}

func TestCacheFetchOnDemandCachesCoins(t *testing.T) {
	base := newStubView()
	txid := [32]byte{1}
	base.coins[txid] = testCoin(100)

	cache := NewCache(base, consensus.RegtestParams())

	coin, ok := cache.GetCoin(txid)
	require.True(t, ok)
	require.Equal(t, int64(100), coin.Outputs[0].Value)
	require.Equal(t, 1, base.coinReads)

	// Second read is served locally.
	_, ok = cache.GetCoin(txid)
	require.True(t, ok)
	require.Equal(t, 1, base.coinReads)
}

func TestCacheHaveCoinUsesOutputVectorTest(t *testing.T) {
	base := newStubView()
	spent := [32]byte{1}
	pruned := testCoin()
	pruned.Outputs = nil
	base.coins[spent] = pruned

	live := [32]byte{2}
	base.coins[live] = testCoin(5)

	cache := NewCache(base, consensus.RegtestParams())
	require.False(t, cache.HaveCoin(spent), "empty output vector reads as absent")
	require.True(t, cache.HaveCoin(live))
	require.False(t, cache.HaveCoin([32]byte{3}))
}

func TestCacheStickyBestPointers(t *testing.T) {
	base := newStubView()
	base.bestBlock = [32]byte{0xaa}
	base.bestAnchor = [32]byte{0xbb}

	cache := NewCache(base, consensus.RegtestParams())
	require.Equal(t, base.bestBlock, cache.GetBestBlock())
	require.Equal(t, base.bestAnchor, cache.GetBestAnchor())

	// Once written, the local value wins over the base.
	cache.SetBestBlock([32]byte{0xcc})
	base.bestBlock = [32]byte{0xdd}
	require.Equal(t, [32]byte{0xcc}, cache.GetBestBlock())
}

func TestCachePushPopAnchor(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())

	tree := consensus.NewIncrementalMerkleTree()
	require.NoError(t, tree.Append([32]byte{1}))
	root := tree.Root()

	cache.PushAnchor(tree)
	require.Equal(t, root, cache.GetBestAnchor())
	got, ok := cache.GetAnchorAt(root)
	require.True(t, ok)
	require.Equal(t, root, got.Root())

	// Pushing an identical root is a no-op.
	cache.PushAnchor(tree)
	require.Equal(t, root, cache.GetBestAnchor())

	cache.PopAnchor([32]byte{})
	require.Equal(t, [32]byte{}, cache.GetBestAnchor())
	_, ok = cache.GetAnchorAt(root)
	require.False(t, ok, "popped anchor no longer visible")
}

func TestCacheNullifiers(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	nf := [32]byte{9}

	require.False(t, cache.GetNullifier(nf))
	cache.SetNullifier(nf, true)
	require.True(t, cache.GetNullifier(nf))
	cache.SetNullifier(nf, false)
	require.False(t, cache.GetNullifier(nf))
}

func TestCacheCswNullifierReplay(t *testing.T) {
	cache := NewCache(NullView{}, consensus.RegtestParams())
	scId := [32]byte{1}
	nf := [32]byte{2}

	require.False(t, cache.HaveCswNullifier(scId, nf))
	cache.AddCswNullifier(scId, nf)
	require.True(t, cache.HaveCswNullifier(scId, nf), "replayed nullifier must be visible")

	cache.RemoveCswNullifier(scId, nf)
	require.False(t, cache.HaveCswNullifier(scId, nf))
}

// recordingView captures the batches written into it.
type recordingView struct {
	NullView
	batches []batchSummary
}

type batchSummary struct {
	coins, anchors, nullifiers, sidechains, events, csw, certData int
}

func (r *recordingView) BatchWrite(batch *CacheBatch) error {
	dirtySidechains := 0
	for _, e := range batch.Sidechains {
		if e.Flag != FlagDefault {
			dirtySidechains++
		}
	}
	dirtyCoins := 0
	for _, e := range batch.Coins {
		if e.Flags&CoinDirty != 0 {
			dirtyCoins++
		}
	}
	r.batches = append(r.batches, batchSummary{
		coins:      dirtyCoins,
		anchors:    len(batch.Anchors),
		nullifiers: len(batch.Nullifiers),
		sidechains: dirtySidechains,
		events:     len(batch.Events),
		csw:        len(batch.CswNullifiers),
		certData:   len(batch.CertDataHashes),
	})
	return nil
}

func TestCacheFlushIdempotent(t *testing.T) {
	base := &recordingView{}
	cache := NewCache(base, consensus.RegtestParams())

	mod := cache.ModifyCoin([32]byte{1})
	*mod.Coin() = testCoin(42)
	mod.Release()
	cache.SetNullifier([32]byte{2}, true)

	require.NoError(t, cache.Flush())
	require.Len(t, base.batches, 1)
	require.Equal(t, 1, base.batches[0].coins)
	require.Equal(t, 1, base.batches[0].nullifiers)

	// A second flush right away carries nothing.
	require.NoError(t, cache.Flush())
	require.Len(t, base.batches, 2)
	require.Equal(t, batchSummary{}, base.batches[1])
	require.Equal(t, int64(0), cache.DynamicMemoryUsage())
}

func TestCacheGetScIdsMergesLayers(t *testing.T) {
	base := newStubView()
	persisted := [32]byte{1}
	erased := [32]byte{2}
	base.sidechains[persisted] = consensus.NewSidechain()
	base.sidechains[erased] = consensus.NewSidechain()

	cache := NewCache(base, consensus.RegtestParams())

	// Stage one erasure and one fresh creation.
	entry := cache.ModifySidechain(erased)
	entry.Flag = FlagErased
	fresh := [32]byte{3}
	freshEntry := cache.ModifySidechain(fresh)
	freshEntry.Sidechain.CurrentState = consensus.StateAlive

	ids := cache.GetScIds()
	require.Contains(t, ids, persisted)
	require.Contains(t, ids, fresh)
	require.NotContains(t, ids, erased)
}

func TestCacheUsageCounterLifecycle(t *testing.T) {
	base := newStubView()
	txid := [32]byte{1}
	base.coins[txid] = testCoin(1, 2, 3)

	cache := NewCache(base, consensus.RegtestParams())
	require.Equal(t, int64(0), cache.DynamicMemoryUsage())

	_, ok := cache.GetCoin(txid)
	require.True(t, ok)
	afterFetch := cache.DynamicMemoryUsage()
	require.Positive(t, afterFetch)

	// Spending all outputs through a modifier shrinks usage but keeps the
	// dirty entry (it is not fresh: the base knows the coin).
	mod := cache.ModifyCoin(txid)
	for pos := uint32(0); pos < 3; pos++ {
		mod.Coin().Spend(pos)
	}
	mod.Release()
	require.Less(t, cache.DynamicMemoryUsage(), afterFetch)
	require.NoError(t, cache.Flush())
	require.Equal(t, int64(0), cache.DynamicMemoryUsage())
}
