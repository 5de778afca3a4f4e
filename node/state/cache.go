package state

import (
	"fmt"

	"zenda.dev/node/consensus"
)

// Cache is the layered copy-on-write view. Reads fall through to the base on
// miss and the fetched value is cached; writes stage locally until Flush
// hands the whole delta to the base as one atomic batch.
//
// A Cache is not safe for concurrent use. The caller serializes access; the
// cache itself does no locking.
type Cache struct {
	base   ChainStateView
	params consensus.Params

	coins          map[[32]byte]*CoinEntry
	anchors        map[[32]byte]*AnchorEntry
	nullifiers     map[[32]byte]*NullifierEntry
	sidechains     map[[32]byte]*SidechainEntry
	events         map[int32]*EventsEntry
	cswNullifiers  map[CswNullifierKey]*CswNullifierEntry
	certDataHashes map[CertDataKey]*CertDataEntry

	// Sticky pointers: zero until written or first pulled from the base.
	bestBlock  [32]byte
	bestAnchor [32]byte

	cachedUsage int64
	hasModifier bool
}

var _ ChainStateView = (*Cache)(nil)

func NewCache(base ChainStateView, params consensus.Params) *Cache {
	return &Cache{
		base:           base,
		params:         params,
		coins:          make(map[[32]byte]*CoinEntry),
		anchors:        make(map[[32]byte]*AnchorEntry),
		nullifiers:     make(map[[32]byte]*NullifierEntry),
		sidechains:     make(map[[32]byte]*SidechainEntry),
		events:         make(map[int32]*EventsEntry),
		cswNullifiers:  make(map[CswNullifierKey]*CswNullifierEntry),
		certDataHashes: make(map[CertDataKey]*CertDataEntry),
	}
}

// assertInvariant aborts on programmer error: these states are unreachable
// unless a caller broke an ordering contract.
func assertInvariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&consensus.StateError{Code: consensus.INTERNAL_ASSERTION, Msg: fmt.Sprintf(format, args...)})
	}
}

const certDataEntryUsage = 96

// DynamicMemoryUsage is the running byte estimate of all cached entries.
func (c *Cache) DynamicMemoryUsage() int64 {
	return c.cachedUsage
}

func (c *Cache) GetCacheSize() int {
	return len(c.coins)
}

// Params returns the consensus tunables the cache was built with.
func (c *Cache) Params() consensus.Params { return c.params }

// ---- coins ----

func (c *Cache) fetchCoins(txid [32]byte) *CoinEntry {
	if entry, ok := c.coins[txid]; ok {
		return entry
	}
	coin, ok := c.base.GetCoin(txid)
	if !ok {
		return nil
	}
	entry := &CoinEntry{Coin: coin}
	if entry.Coin.IsPruned() {
		// The base only has an empty entry for this txid; ours counts as
		// fresh.
		entry.Flags = CoinFresh
	}
	c.coins[txid] = entry
	c.cachedUsage += entry.Coin.DynamicMemoryUsage()
	return entry
}

func (c *Cache) GetCoin(txid [32]byte) (consensus.Coin, bool) {
	entry := c.fetchCoins(txid)
	if entry == nil {
		return consensus.Coin{}, false
	}
	// Hand out a private output vector: a caller, or a child cache staging
	// changes on top of this one, must not mutate our entry in place.
	coin := entry.Coin
	coin.Outputs = append([]consensus.TxOut(nil), entry.Coin.Outputs...)
	return coin, true
}

// AccessCoin returns a read-only borrow of the cached coin, nil when absent.
func (c *Cache) AccessCoin(txid [32]byte) *consensus.Coin {
	entry := c.fetchCoins(txid)
	if entry == nil {
		return nil
	}
	return &entry.Coin
}

func (c *Cache) HaveCoin(txid [32]byte) bool {
	// Output-vector-non-empty instead of IsPruned: we only care about the
	// case where a transaction was replaced entirely in a reorganization,
	// which wipes the outputs, as opposed to spending which nulls them one
	// by one.
	entry := c.fetchCoins(txid)
	return entry != nil && len(entry.Coin.Outputs) > 0
}

// ---- anchors and nullifiers ----

func (c *Cache) GetAnchorAt(root [32]byte) (*consensus.IncrementalMerkleTree, bool) {
	if entry, ok := c.anchors[root]; ok {
		if !entry.Entered {
			return nil, false
		}
		return entry.Tree.Copy(), true
	}

	tree, ok := c.base.GetAnchorAt(root)
	if !ok {
		return nil, false
	}
	entry := &AnchorEntry{Entered: true, Tree: tree.Copy()}
	c.anchors[root] = entry
	c.cachedUsage += entry.Tree.DynamicMemoryUsage()
	return tree, true
}

func (c *Cache) GetNullifier(nullifier [32]byte) bool {
	if entry, ok := c.nullifiers[nullifier]; ok {
		return entry.Entered
	}
	entered := c.base.GetNullifier(nullifier)
	c.nullifiers[nullifier] = &NullifierEntry{Entered: entered}
	return entered
}

// PushAnchor records the tree as the new best anchor. Blocks that do not
// touch the commitment tree leave the anchor map alone.
func (c *Cache) PushAnchor(tree *consensus.IncrementalMerkleTree) {
	newRoot := tree.Root()
	if c.GetBestAnchor() == newRoot {
		return
	}

	entry, ok := c.anchors[newRoot]
	if !ok {
		entry = &AnchorEntry{}
		c.anchors[newRoot] = entry
	} else {
		c.cachedUsage -= entry.Tree.DynamicMemoryUsage()
	}
	entry.Tree = tree.Copy()
	c.cachedUsage += entry.Tree.DynamicMemoryUsage()
	entry.Entered = true
	entry.Flags = FlagDirty
	c.bestAnchor = newRoot
}

// PopAnchor steps the best anchor back to newRoot during a disconnect. When
// the block did not change the tree this is a no-op.
func (c *Cache) PopAnchor(newRoot [32]byte) {
	currentRoot := c.GetBestAnchor()
	if currentRoot == newRoot {
		return
	}

	// Bring the current best anchor into the local cache so its entry can
	// carry the deletion downward.
	_, ok := c.GetAnchorAt(currentRoot)
	assertInvariant(ok, "pop anchor: current best %x not available", currentRoot[:4])

	entry := c.anchors[currentRoot]
	entry.Entered = false
	entry.Flags = FlagDirty
	c.bestAnchor = newRoot
}

func (c *Cache) SetNullifier(nullifier [32]byte, spent bool) {
	entry, ok := c.nullifiers[nullifier]
	if !ok {
		entry = &NullifierEntry{}
		c.nullifiers[nullifier] = entry
	}
	entry.Entered = spent
	entry.Flags = FlagDirty
}

// ---- sidechains ----

func (c *Cache) fetchSidechains(scId [32]byte) *SidechainEntry {
	if entry, ok := c.sidechains[scId]; ok {
		return entry
	}
	sc, ok := c.base.GetSidechain(scId)
	if !ok {
		return nil
	}
	entry := &SidechainEntry{Sidechain: sc, Flag: FlagDefault}
	c.sidechains[scId] = entry
	c.cachedUsage += entry.Sidechain.DynamicMemoryUsage()
	return entry
}

// ModifySidechain returns a mutable entry, inserting a fresh blank one when
// the sidechain is unknown below.
func (c *Cache) ModifySidechain(scId [32]byte) *SidechainEntry {
	if entry, ok := c.sidechains[scId]; ok {
		return entry
	}
	var entry *SidechainEntry
	if sc, ok := c.base.GetSidechain(scId); ok {
		entry = &SidechainEntry{Sidechain: sc, Flag: FlagDefault}
	} else {
		entry = &SidechainEntry{Sidechain: consensus.NewSidechain(), Flag: FlagFresh}
	}
	c.sidechains[scId] = entry
	c.cachedUsage += entry.Sidechain.DynamicMemoryUsage()
	return entry
}

func (c *Cache) HaveSidechain(scId [32]byte) bool {
	entry := c.fetchSidechains(scId)
	return entry != nil && entry.Flag != FlagErased
}

func (c *Cache) GetSidechain(scId [32]byte) (consensus.Sidechain, bool) {
	entry := c.fetchSidechains(scId)
	if entry == nil || entry.Flag == FlagErased {
		return consensus.Sidechain{}, false
	}
	return entry.Sidechain.Copy(), true
}

// AccessSidechain returns a read-only borrow of the cached descriptor, nil
// when absent or erased.
func (c *Cache) AccessSidechain(scId [32]byte) *consensus.Sidechain {
	entry := c.fetchSidechains(scId)
	if entry == nil || entry.Flag == FlagErased {
		return nil
	}
	return &entry.Sidechain
}

func (c *Cache) GetSidechainState(scId [32]byte) consensus.SidechainState {
	entry := c.fetchSidechains(scId)
	if entry == nil || entry.Flag == FlagErased {
		return consensus.StateNotApplicable
	}
	return entry.Sidechain.CurrentState
}

func (c *Cache) GetScIds() map[[32]byte]struct{} {
	ids := c.base.GetScIds()
	// Some base ids may be erased here, and fresh ids exist only here.
	for scId, entry := range c.sidechains {
		if entry.Flag == FlagErased {
			delete(ids, scId)
		} else {
			ids[scId] = struct{}{}
		}
	}
	return ids
}

// CheckQuality accepts cert unless a different certificate for the same
// epoch with equal or higher quality is already recorded as the previous
// block's top.
func (c *Cache) CheckQuality(cert *consensus.Certificate) bool {
	sc, ok := c.GetSidechain(cert.ScId)
	if !ok {
		return true
	}
	if sc.PrevBlockTopQualityCertHash != cert.CertHash() &&
		sc.PrevBlockTopQualityCertReferencedEpoch == cert.EpochNumber &&
		sc.PrevBlockTopQualityCertQuality >= cert.Quality {
		return false
	}
	return true
}

// ---- sidechain events ----

func (c *Cache) fetchSidechainEvents(height int32) *EventsEntry {
	if entry, ok := c.events[height]; ok {
		return entry
	}
	ev, ok := c.base.GetSidechainEvents(height)
	if !ok {
		return nil
	}
	entry := &EventsEntry{Events: ev, Flag: FlagDefault}
	c.events[height] = entry
	c.cachedUsage += entry.Events.DynamicMemoryUsage()
	return entry
}

func (c *Cache) ModifySidechainEvents(height int32) *EventsEntry {
	if entry, ok := c.events[height]; ok {
		return entry
	}
	var entry *EventsEntry
	if ev, ok := c.base.GetSidechainEvents(height); ok {
		entry = &EventsEntry{Events: ev, Flag: FlagDefault}
	} else {
		entry = &EventsEntry{Events: consensus.NewSidechainEvents(), Flag: FlagFresh}
	}
	c.events[height] = entry
	c.cachedUsage += entry.Events.DynamicMemoryUsage()
	return entry
}

func (c *Cache) HaveSidechainEvents(height int32) bool {
	entry := c.fetchSidechainEvents(height)
	return entry != nil && entry.Flag != FlagErased
}

func (c *Cache) GetSidechainEvents(height int32) (consensus.SidechainEvents, bool) {
	entry := c.fetchSidechainEvents(height)
	if entry == nil || entry.Flag == FlagErased {
		return consensus.SidechainEvents{}, false
	}
	return entry.Events.Copy(), true
}

// ---- csw nullifiers ----

func (c *Cache) AddCswNullifier(scId [32]byte, nullifier [32]byte) {
	key := CswNullifierKey{ScId: scId, Nullifier: nullifier}
	entry, ok := c.cswNullifiers[key]
	if !ok {
		entry = &CswNullifierEntry{}
		c.cswNullifiers[key] = entry
	}
	entry.Flag = FlagFresh
}

func (c *Cache) RemoveCswNullifier(scId [32]byte, nullifier [32]byte) {
	key := CswNullifierKey{ScId: scId, Nullifier: nullifier}
	entry, ok := c.cswNullifiers[key]
	if !ok {
		entry = &CswNullifierEntry{}
		c.cswNullifiers[key] = entry
	}
	entry.Flag = FlagErased
}

func (c *Cache) HaveCswNullifier(scId [32]byte, nullifier [32]byte) bool {
	key := CswNullifierKey{ScId: scId, Nullifier: nullifier}
	if entry, ok := c.cswNullifiers[key]; ok {
		return entry.Flag != FlagErased
	}
	if c.base.HaveCswNullifier(scId, nullifier) {
		c.cswNullifiers[key] = &CswNullifierEntry{Flag: FlagDefault}
		return true
	}
	return false
}

// ---- cert data hashes ----

func (c *Cache) fetchCertDataEntry(scId [32]byte, epoch int32) *CertDataEntry {
	key := CertDataKey{ScId: scId, Epoch: epoch}
	if entry, ok := c.certDataHashes[key]; ok {
		return entry
	}
	hashes, ok := c.base.GetCertDataHashes(scId, epoch)
	if !ok {
		return nil
	}
	entry := &CertDataEntry{Hashes: hashes, Flag: FlagDefault}
	c.certDataHashes[key] = entry
	c.cachedUsage += certDataEntryUsage
	return entry
}

func (c *Cache) HaveCertDataHashes(scId [32]byte, epoch int32) bool {
	entry := c.fetchCertDataEntry(scId, epoch)
	return entry != nil && entry.Flag != FlagErased
}

func (c *Cache) GetCertDataHashes(scId [32]byte, epoch int32) (CertDataHashes, bool) {
	entry := c.fetchCertDataEntry(scId, epoch)
	if entry == nil || entry.Flag == FlagErased {
		return CertDataHashes{}, false
	}
	return entry.Hashes, true
}

// ---- sticky pointers ----

func (c *Cache) GetBestBlock() [32]byte {
	if c.bestBlock == ([32]byte{}) {
		c.bestBlock = c.base.GetBestBlock()
	}
	return c.bestBlock
}

func (c *Cache) SetBestBlock(hash [32]byte) {
	c.bestBlock = hash
}

func (c *Cache) GetBestAnchor() [32]byte {
	if c.bestAnchor == ([32]byte{}) {
		c.bestAnchor = c.base.GetBestAnchor()
	}
	return c.bestAnchor
}

func (c *Cache) GetStats() (CoinsStats, bool) {
	return c.base.GetStats()
}

// ---- merge protocol ----

// BatchWrite folds a child cache's maps into this one, then adopts the
// child's sticky pointers. The child's maps are consumed.
func (c *Cache) BatchWrite(batch *CacheBatch) error {
	assertInvariant(!c.hasModifier, "batch write with modifier outstanding")

	for txid, child := range batch.Coins {
		if child.Flags&CoinDirty == 0 {
			// Ignore non-dirty entries (optimization).
			continue
		}
		ours, ok := c.coins[txid]
		if !ok {
			if !child.Coin.IsPruned() {
				// We lack an entry while the child has a non-pruned one.
				// Move the data up as fresh: had the grandparent known it,
				// the first fetch would have pulled it in.
				assertInvariant(child.Flags&CoinFresh != 0, "non-fresh child coin missing from parent")
				entry := &CoinEntry{Coin: child.Coin, Flags: CoinDirty | CoinFresh}
				c.coins[txid] = entry
				c.cachedUsage += entry.Coin.DynamicMemoryUsage()
			}
			continue
		}
		if ours.Flags&CoinFresh != 0 && child.Coin.IsPruned() {
			// The grandparent never saw this coin and the child pruned it:
			// just delete it here.
			c.cachedUsage -= ours.Coin.DynamicMemoryUsage()
			delete(c.coins, txid)
		} else {
			// A normal modification.
			c.cachedUsage -= ours.Coin.DynamicMemoryUsage()
			ours.Coin = child.Coin
			c.cachedUsage += ours.Coin.DynamicMemoryUsage()
			ours.Flags |= CoinDirty
		}
	}

	for root, child := range batch.Anchors {
		if child.Flags != FlagDirty {
			continue
		}
		ours, ok := c.anchors[root]
		if !ok {
			entry := &AnchorEntry{Entered: child.Entered, Tree: child.Tree, Flags: FlagDirty}
			c.anchors[root] = entry
			c.cachedUsage += entry.Tree.DynamicMemoryUsage()
			continue
		}
		if ours.Entered != child.Entered {
			ours.Entered = child.Entered
			ours.Flags = FlagDirty
		}
	}

	for nf, child := range batch.Nullifiers {
		if child.Flags != FlagDirty {
			continue
		}
		ours, ok := c.nullifiers[nf]
		if !ok {
			c.nullifiers[nf] = &NullifierEntry{Entered: child.Entered, Flags: FlagDirty}
			continue
		}
		if ours.Entered != child.Entered {
			ours.Entered = child.Entered
			ours.Flags = FlagDirty
		}
	}

	for scId, child := range batch.Sidechains {
		ours, ok := c.sidechains[scId]
		switch child.Flag {
		case FlagFresh:
			assertInvariant(!ok || ours.Flag == FlagErased, "fresh sidechain already present in parent")
			c.replaceSidechainEntry(scId, child)
		case FlagDirty:
			c.replaceSidechainEntry(scId, child)
		case FlagErased:
			if ok {
				ours.Flag = FlagErased
			}
		case FlagDefault:
			assertInvariant(ok, "default sidechain entry missing from parent")
			assertInvariant(ours.Sidechain.Equal(&child.Sidechain), "default sidechain entry differs from parent value")
		default:
			assertInvariant(false, "bad sidechain entry flag %d", child.Flag)
		}
	}

	for height, child := range batch.Events {
		ours, ok := c.events[height]
		switch child.Flag {
		case FlagFresh:
			assertInvariant(!ok || ours.Flag == FlagErased, "fresh events entry already present in parent")
			c.replaceEventsEntry(height, child)
		case FlagDirty:
			c.replaceEventsEntry(height, child)
		case FlagErased:
			if ok {
				ours.Flag = FlagErased
			}
		case FlagDefault:
			assertInvariant(ok, "default events entry missing from parent")
			assertInvariant(ours.Events.Equal(&child.Events), "default events entry differs from parent value")
		default:
			assertInvariant(false, "bad events entry flag %d", child.Flag)
		}
	}

	for key, child := range batch.CswNullifiers {
		ours, ok := c.cswNullifiers[key]
		switch child.Flag {
		case FlagFresh:
			assertInvariant(!ok || ours.Flag == FlagErased, "fresh csw nullifier already present in parent")
			c.cswNullifiers[key] = &CswNullifierEntry{Flag: FlagFresh}
		case FlagErased:
			if ok {
				ours.Flag = FlagErased
			}
		case FlagDefault:
			assertInvariant(ok, "default csw nullifier missing from parent")
		default:
			assertInvariant(false, "bad csw nullifier flag %d", child.Flag)
		}
	}

	for key, child := range batch.CertDataHashes {
		ours, ok := c.certDataHashes[key]
		switch child.Flag {
		case FlagFresh:
			assertInvariant(!ok || ours.Flag == FlagErased, "fresh cert-data entry already present in parent")
			c.replaceCertDataEntry(key, child)
		case FlagDirty:
			c.replaceCertDataEntry(key, child)
		case FlagErased:
			if ok {
				ours.Flag = FlagErased
			}
		case FlagDefault:
			assertInvariant(ok, "default cert-data entry missing from parent")
			assertInvariant(ours.Hashes == child.Hashes, "default cert-data entry differs from parent value")
		default:
			assertInvariant(false, "bad cert-data entry flag %d", child.Flag)
		}
	}

	clear(batch.Coins)
	clear(batch.Anchors)
	clear(batch.Nullifiers)
	clear(batch.Sidechains)
	clear(batch.Events)
	clear(batch.CswNullifiers)
	clear(batch.CertDataHashes)

	c.bestBlock = batch.BestBlock
	c.bestAnchor = batch.BestAnchor
	return nil
}

func (c *Cache) replaceSidechainEntry(scId [32]byte, child *SidechainEntry) {
	if old, ok := c.sidechains[scId]; ok {
		c.cachedUsage -= old.Sidechain.DynamicMemoryUsage()
	}
	entry := &SidechainEntry{Sidechain: child.Sidechain, Flag: child.Flag}
	c.sidechains[scId] = entry
	c.cachedUsage += entry.Sidechain.DynamicMemoryUsage()
}

func (c *Cache) replaceEventsEntry(height int32, child *EventsEntry) {
	if old, ok := c.events[height]; ok {
		c.cachedUsage -= old.Events.DynamicMemoryUsage()
	}
	entry := &EventsEntry{Events: child.Events, Flag: child.Flag}
	c.events[height] = entry
	c.cachedUsage += entry.Events.DynamicMemoryUsage()
}

func (c *Cache) replaceCertDataEntry(key CertDataKey, child *CertDataEntry) {
	if _, ok := c.certDataHashes[key]; !ok {
		c.cachedUsage += certDataEntryUsage
	}
	c.certDataHashes[key] = &CertDataEntry{Hashes: child.Hashes, Flag: child.Flag}
}

// Flush merges every staged change into the base and empties this cache.
// On base failure the in-memory state is poisoned: the caller must drop the
// cache.
func (c *Cache) Flush() error {
	batch := &CacheBatch{
		Coins:          c.coins,
		BestBlock:      c.GetBestBlock(),
		BestAnchor:     c.GetBestAnchor(),
		Anchors:        c.anchors,
		Nullifiers:     c.nullifiers,
		Sidechains:     c.sidechains,
		Events:         c.events,
		CswNullifiers:  c.cswNullifiers,
		CertDataHashes: c.certDataHashes,
	}
	err := c.base.BatchWrite(batch)
	c.coins = make(map[[32]byte]*CoinEntry)
	c.anchors = make(map[[32]byte]*AnchorEntry)
	c.nullifiers = make(map[[32]byte]*NullifierEntry)
	c.sidechains = make(map[[32]byte]*SidechainEntry)
	c.events = make(map[int32]*EventsEntry)
	c.cswNullifiers = make(map[CswNullifierKey]*CswNullifierEntry)
	c.certDataHashes = make(map[CertDataKey]*CertDataEntry)
	c.cachedUsage = 0
	return err
}

// ---- input queries ----

// GetOutputFor returns the output an input spends. The coin must be
// available; missing coins are a programmer error on this path.
func (c *Cache) GetOutputFor(in *consensus.TxIn) consensus.TxOut {
	coin := c.AccessCoin(in.PrevOut.Hash)
	assertInvariant(coin != nil && coin.IsAvailable(in.PrevOut.N), "missing output for input %x:%d", in.PrevOut.Hash[:4], in.PrevOut.N)
	return coin.Outputs[in.PrevOut.N]
}

// GetValueIn sums the transparent and csw input value of a transaction.
func (c *Cache) GetValueIn(tx *consensus.Tx) int64 {
	if tx.IsCoinBase() {
		return 0
	}
	var total int64
	for i := range tx.Vin {
		total += c.GetOutputFor(&tx.Vin[i]).Value
	}
	for i := range tx.VcswCcIn {
		total += tx.VcswCcIn[i].Value
	}
	return total
}

// HaveInputs reports whether every transparent input of tx is unspent in the
// view.
func (c *Cache) HaveInputs(tx *consensus.Tx) bool {
	if tx.IsCoinBase() {
		return true
	}
	for i := range tx.Vin {
		coin := c.AccessCoin(tx.Vin[i].PrevOut.Hash)
		if coin == nil || !coin.IsAvailable(tx.Vin[i].PrevOut.N) {
			return false
		}
	}
	return true
}

// HaveShieldedRequirements verifies the joinsplit data of tx against the
// view: fresh nullifiers and anchors that exist in tree history, including
// intermediate trees built by earlier joinsplits of the same transaction.
func (c *Cache) HaveShieldedRequirements(tx *consensus.Tx) bool {
	intermediates := make(map[[32]byte]*consensus.IncrementalMerkleTree)

	for i := range tx.VjoinSplit {
		js := &tx.VjoinSplit[i]
		for _, nf := range js.Nullifiers {
			if c.GetNullifier(nf) {
				// Double spend inside the shielded pool.
				return false
			}
		}

		var tree *consensus.IncrementalMerkleTree
		if t, ok := intermediates[js.Anchor]; ok {
			tree = t.Copy()
		} else if t, ok := c.GetAnchorAt(js.Anchor); ok {
			tree = t
		} else {
			return false
		}

		for _, cm := range js.Commitments {
			if err := tree.Append(cm); err != nil {
				return false
			}
		}
		intermediates[tree.Root()] = tree
	}
	return true
}
