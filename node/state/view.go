// Package state implements the layered UTXO-and-sidechain view: lazy
// read-through caches that stack on top of a persistent backing store and
// merge downward one atomic batch at a time.
package state

import "zenda.dev/node/consensus"

// EntryFlag is the mutation state of a cached sidechain, event, nullifier,
// anchor or cert-data entry relative to the backing view. It is a sum type:
// exactly one value at a time. The coin map is the exception and uses the
// independent two-bit CoinFlags field.
type EntryFlag uint8

const (
	// FlagDefault entries are identical to the backing view.
	FlagDefault EntryFlag = iota
	// FlagFresh entries are absent from the backing view.
	FlagFresh
	// FlagDirty entries differ from the backing view.
	FlagDirty
	// FlagErased entries are pending deletion.
	FlagErased
)

type CoinFlags uint8

const (
	CoinFresh CoinFlags = 1 << iota
	CoinDirty
)

type CoinEntry struct {
	Coin  consensus.Coin
	Flags CoinFlags
}

type AnchorEntry struct {
	// Entered is true while the root belongs to the visible tree history;
	// a popped anchor stays cached with Entered false until it reaches the
	// backing store as a deletion.
	Entered bool
	Tree    *consensus.IncrementalMerkleTree
	Flags   EntryFlag
}

type NullifierEntry struct {
	Entered bool
	Flags   EntryFlag
}

type SidechainEntry struct {
	Sidechain consensus.Sidechain
	Flag      EntryFlag
}

type EventsEntry struct {
	Events consensus.SidechainEvents
	Flag   EntryFlag
}

type CswNullifierKey struct {
	ScId      [32]byte
	Nullifier [32]byte
}

type CswNullifierEntry struct {
	Flag EntryFlag
}

type CertDataKey struct {
	ScId  [32]byte
	Epoch int32
}

// CertDataHashes is the per-(sidechain, epoch) certificate data record: the
// hash of the epoch's top certificate data and the cumulative hash over all
// previous epochs.
type CertDataHashes struct {
	CertDataHash       [32]byte
	PrevCumulativeHash [32]byte
}

type CertDataEntry struct {
	Hashes CertDataHashes
	Flag   EntryFlag
}

// CacheBatch bundles the seven keyed maps and the two sticky pointers a
// child cache hands to its parent. BatchWrite consumes the maps; after a
// successful call they must be considered moved.
type CacheBatch struct {
	Coins          map[[32]byte]*CoinEntry
	BestBlock      [32]byte
	BestAnchor     [32]byte
	Anchors        map[[32]byte]*AnchorEntry
	Nullifiers     map[[32]byte]*NullifierEntry
	Sidechains     map[[32]byte]*SidechainEntry
	Events         map[int32]*EventsEntry
	CswNullifiers  map[CswNullifierKey]*CswNullifierEntry
	CertDataHashes map[CertDataKey]*CertDataEntry
}

// CoinsStats summarizes a backing view's coin keyspace.
type CoinsStats struct {
	BestBlock   [32]byte
	Coins       uint64
	TxOutputs   uint64
	TotalAmount int64
	Sidechains  uint64
}

// ChainStateView is the read-plus-batch-write contract every backing layer
// satisfies: the persistent store, the null view and the layered cache
// itself, so caches stack. Read methods never fail for "not present"; the
// persistent implementation treats IO failures as fatal. BatchWrite is the
// only mutation entrypoint and must be atomic.
type ChainStateView interface {
	GetCoin(txid [32]byte) (consensus.Coin, bool)
	HaveCoin(txid [32]byte) bool
	GetAnchorAt(root [32]byte) (*consensus.IncrementalMerkleTree, bool)
	GetNullifier(nullifier [32]byte) bool
	HaveSidechain(scId [32]byte) bool
	GetSidechain(scId [32]byte) (consensus.Sidechain, bool)
	HaveSidechainEvents(height int32) bool
	GetSidechainEvents(height int32) (consensus.SidechainEvents, bool)
	GetScIds() map[[32]byte]struct{}
	HaveCswNullifier(scId [32]byte, nullifier [32]byte) bool
	HaveCertDataHashes(scId [32]byte, epoch int32) bool
	GetCertDataHashes(scId [32]byte, epoch int32) (CertDataHashes, bool)
	GetBestBlock() [32]byte
	GetBestAnchor() [32]byte
	CheckQuality(cert *consensus.Certificate) bool
	GetStats() (CoinsStats, bool)

	BatchWrite(batch *CacheBatch) error
}

// ChainIndex is the read-only active-chain collaborator, consulted only to
// validate certificate end-epoch block hashes.
type ChainIndex interface {
	Contains(hash [32]byte) bool
	HashAtHeight(height int32) ([32]byte, bool)
	Height() int32
}

// NullView answers "not present" to every query. It backs unit tests and
// freshly initialized chains.
type NullView struct{}

func (NullView) GetCoin([32]byte) (consensus.Coin, bool) { return consensus.Coin{}, false }
func (NullView) HaveCoin([32]byte) bool                  { return false }
func (NullView) GetAnchorAt([32]byte) (*consensus.IncrementalMerkleTree, bool) {
	return nil, false
}
func (NullView) GetNullifier([32]byte) bool          { return false }
func (NullView) HaveSidechain([32]byte) bool         { return false }
func (NullView) GetSidechain([32]byte) (consensus.Sidechain, bool) {
	return consensus.Sidechain{}, false
}
func (NullView) HaveSidechainEvents(int32) bool { return false }
func (NullView) GetSidechainEvents(int32) (consensus.SidechainEvents, bool) {
	return consensus.SidechainEvents{}, false
}
func (NullView) GetScIds() map[[32]byte]struct{}         { return make(map[[32]byte]struct{}) }
func (NullView) HaveCswNullifier([32]byte, [32]byte) bool { return false }
func (NullView) HaveCertDataHashes([32]byte, int32) bool  { return false }
func (NullView) GetCertDataHashes([32]byte, int32) (CertDataHashes, bool) {
	return CertDataHashes{}, false
}
func (NullView) GetBestBlock() [32]byte                    { return [32]byte{} }
func (NullView) GetBestAnchor() [32]byte                   { return [32]byte{} }
func (NullView) CheckQuality(*consensus.Certificate) bool  { return false }
func (NullView) GetStats() (CoinsStats, bool)              { return CoinsStats{}, false }
func (NullView) BatchWrite(*CacheBatch) error {
	return consensus.Errf(consensus.INTERNAL_ASSERTION, "batch write on null view")
}

// BackedView forwards everything to an explicit base. It is the composition
// seam other decorators build on; no inheritance is involved.
type BackedView struct {
	Base ChainStateView
}

func (v *BackedView) SetBackend(base ChainStateView) { v.Base = base }

func (v *BackedView) GetCoin(txid [32]byte) (consensus.Coin, bool) { return v.Base.GetCoin(txid) }
func (v *BackedView) HaveCoin(txid [32]byte) bool                  { return v.Base.HaveCoin(txid) }
func (v *BackedView) GetAnchorAt(root [32]byte) (*consensus.IncrementalMerkleTree, bool) {
	return v.Base.GetAnchorAt(root)
}
func (v *BackedView) GetNullifier(nf [32]byte) bool    { return v.Base.GetNullifier(nf) }
func (v *BackedView) HaveSidechain(scId [32]byte) bool { return v.Base.HaveSidechain(scId) }
func (v *BackedView) GetSidechain(scId [32]byte) (consensus.Sidechain, bool) {
	return v.Base.GetSidechain(scId)
}
func (v *BackedView) HaveSidechainEvents(height int32) bool {
	return v.Base.HaveSidechainEvents(height)
}
func (v *BackedView) GetSidechainEvents(height int32) (consensus.SidechainEvents, bool) {
	return v.Base.GetSidechainEvents(height)
}
func (v *BackedView) GetScIds() map[[32]byte]struct{} { return v.Base.GetScIds() }
func (v *BackedView) HaveCswNullifier(scId [32]byte, nf [32]byte) bool {
	return v.Base.HaveCswNullifier(scId, nf)
}
func (v *BackedView) HaveCertDataHashes(scId [32]byte, epoch int32) bool {
	return v.Base.HaveCertDataHashes(scId, epoch)
}
func (v *BackedView) GetCertDataHashes(scId [32]byte, epoch int32) (CertDataHashes, bool) {
	return v.Base.GetCertDataHashes(scId, epoch)
}
func (v *BackedView) GetBestBlock() [32]byte  { return v.Base.GetBestBlock() }
func (v *BackedView) GetBestAnchor() [32]byte { return v.Base.GetBestAnchor() }
func (v *BackedView) CheckQuality(cert *consensus.Certificate) bool {
	return v.Base.CheckQuality(cert)
}
func (v *BackedView) GetStats() (CoinsStats, bool)      { return v.Base.GetStats() }
func (v *BackedView) BatchWrite(batch *CacheBatch) error { return v.Base.BatchWrite(batch) }
