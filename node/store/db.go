// Package store is the persistent chainstate layer: a bbolt database with
// one bucket per keyspace, implementing the backing-store contract the
// layered cache flushes into.
package store

import (
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"zenda.dev/node/consensus"
	"zenda.dev/node/node/state"
)

var (
	bucketCoins          = []byte("coins")
	bucketAnchors        = []byte("anchors")
	bucketNullifiers     = []byte("nullifiers")
	bucketSidechains     = []byte("sidechains")
	bucketEvents         = []byte("sidechain_events")
	bucketCswNullifiers  = []byte("csw_nullifiers")
	bucketCertDataHashes = []byte("cert_data_hashes")
	bucketMeta           = []byte("meta")
)

var (
	keyBestBlock  = []byte("best_block")
	keyBestAnchor = []byte("best_anchor")
)

// DB is the bbolt-backed chainstate. Reads never fail for "not present";
// an IO failure on a read path poisons the process and aborts, per the
// backing-store contract.
type DB struct {
	path string
	db   *bolt.DB
}

var _ state.ChainStateView = (*DB)(nil)

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path required")
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{path: path, db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketCoins, bucketAnchors, bucketNullifiers, bucketSidechains,
			bucketEvents, bucketCswNullifiers, bucketCertDataHashes, bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	slog.Debug("chainstate store opened", "path", path)
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Path() string { return d.path }

// view runs a read closure; a storage failure here is fatal.
func (d *DB) view(fn func(tx *bolt.Tx) error) {
	if err := d.db.View(fn); err != nil {
		panic(&consensus.StateError{Code: consensus.INTERNAL_ASSERTION,
			Msg: fmt.Sprintf("chainstate read failed: %v", err)})
	}
}

func (d *DB) GetCoin(txid [32]byte) (consensus.Coin, bool) {
	var out consensus.Coin
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCoins).Get(txid[:])
		if v == nil {
			return nil
		}
		coin, err := decodeCoin(v)
		if err != nil {
			return err
		}
		out = coin
		ok = true
		return nil
	})
	return out, ok
}

func (d *DB) HaveCoin(txid [32]byte) bool {
	coin, ok := d.GetCoin(txid)
	return ok && len(coin.Outputs) > 0
}

func (d *DB) GetAnchorAt(root [32]byte) (*consensus.IncrementalMerkleTree, bool) {
	var out *consensus.IncrementalMerkleTree
	d.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAnchors).Get(root[:])
		if v == nil {
			return nil
		}
		tree := consensus.NewIncrementalMerkleTree()
		if err := tree.UnmarshalBinary(v); err != nil {
			return err
		}
		out = tree
		return nil
	})
	return out, out != nil
}

func (d *DB) GetNullifier(nullifier [32]byte) bool {
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketNullifiers).Get(nullifier[:]) != nil
		return nil
	})
	return ok
}

func (d *DB) HaveSidechain(scId [32]byte) bool {
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketSidechains).Get(scId[:]) != nil
		return nil
	})
	return ok
}

func (d *DB) GetSidechain(scId [32]byte) (consensus.Sidechain, bool) {
	var out consensus.Sidechain
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSidechains).Get(scId[:])
		if v == nil {
			return nil
		}
		sc, err := decodeSidechain(v)
		if err != nil {
			return err
		}
		out = sc
		ok = true
		return nil
	})
	return out, ok
}

func (d *DB) HaveSidechainEvents(height int32) bool {
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketEvents).Get(encodeHeightKey(height)) != nil
		return nil
	})
	return ok
}

func (d *DB) GetSidechainEvents(height int32) (consensus.SidechainEvents, bool) {
	var out consensus.SidechainEvents
	var ok bool
	d.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEvents).Get(encodeHeightKey(height))
		if v == nil {
			return nil
		}
		ev, err := decodeEvents(v)
		if err != nil {
			return err
		}
		out = ev
		ok = true
		return nil
	})
	return out, ok
}

func (d *DB) GetScIds() map[[32]byte]struct{} {
	ids := make(map[[32]byte]struct{})
	d.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSidechains).ForEach(func(k, _ []byte) error {
			var scId [32]byte
			copy(scId[:], k)
			ids[scId] = struct{}{}
			return nil
		})
	})
	return ids
}

func (d *DB) HaveCswNullifier(scId [32]byte, nullifier [32]byte) bool {
	var ok bool
	key := encodeCswNullifierKey(state.CswNullifierKey{ScId: scId, Nullifier: nullifier})
	d.view(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketCswNullifiers).Get(key) != nil
		return nil
	})
	return ok
}

func (d *DB) HaveCertDataHashes(scId [32]byte, epoch int32) bool {
	_, ok := d.GetCertDataHashes(scId, epoch)
	return ok
}

func (d *DB) GetCertDataHashes(scId [32]byte, epoch int32) (state.CertDataHashes, bool) {
	var out state.CertDataHashes
	var ok bool
	key := encodeCertDataKey(state.CertDataKey{ScId: scId, Epoch: epoch})
	d.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCertDataHashes).Get(key)
		if v == nil {
			return nil
		}
		hashes, err := decodeCertDataHashes(v)
		if err != nil {
			return err
		}
		out = hashes
		ok = true
		return nil
	})
	return out, ok
}

func (d *DB) GetBestBlock() [32]byte {
	var out [32]byte
	d.view(func(tx *bolt.Tx) error {
		copy(out[:], tx.Bucket(bucketMeta).Get(keyBestBlock))
		return nil
	})
	return out
}

func (d *DB) GetBestAnchor() [32]byte {
	var out [32]byte
	d.view(func(tx *bolt.Tx) error {
		copy(out[:], tx.Bucket(bucketMeta).Get(keyBestAnchor))
		return nil
	})
	return out
}

func (d *DB) CheckQuality(cert *consensus.Certificate) bool {
	sc, ok := d.GetSidechain(cert.ScId)
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

func (d *DB) GetStats() (state.CoinsStats, bool) {
	var stats state.CoinsStats
	stats.BestBlock = d.GetBestBlock()
	d.view(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCoins).ForEach(func(_, v []byte) error {
			coin, err := decodeCoin(v)
			if err != nil {
				return err
			}
			stats.Coins++
			for i := range coin.Outputs {
				if !coin.Outputs[i].IsNull() {
					stats.TxOutputs++
					stats.TotalAmount += coin.Outputs[i].Value
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketSidechains).ForEach(func(_, _ []byte) error {
			stats.Sidechains++
			return nil
		})
	})
	return stats, true
}

// BatchWrite applies the whole batch inside one bbolt transaction: all maps
// land or none do. The batch maps are consumed.
func (d *DB) BatchWrite(batch *state.CacheBatch) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		coins := tx.Bucket(bucketCoins)
		for txid, entry := range batch.Coins {
			if entry.Flags&state.CoinDirty == 0 {
				continue
			}
			if entry.Coin.IsPruned() {
				if err := coins.Delete(txid[:]); err != nil {
					return err
				}
				continue
			}
			if err := coins.Put(txid[:], encodeCoin(&entry.Coin)); err != nil {
				return err
			}
		}

		anchors := tx.Bucket(bucketAnchors)
		for root, entry := range batch.Anchors {
			if entry.Flags != state.FlagDirty {
				continue
			}
			if !entry.Entered {
				if err := anchors.Delete(root[:]); err != nil {
					return err
				}
				continue
			}
			v, err := entry.Tree.MarshalBinary()
			if err != nil {
				return err
			}
			if err := anchors.Put(root[:], v); err != nil {
				return err
			}
		}

		nullifiers := tx.Bucket(bucketNullifiers)
		for nf, entry := range batch.Nullifiers {
			if entry.Flags != state.FlagDirty {
				continue
			}
			if !entry.Entered {
				if err := nullifiers.Delete(nf[:]); err != nil {
					return err
				}
				continue
			}
			if err := nullifiers.Put(nf[:], []byte{0x01}); err != nil {
				return err
			}
		}

		sidechains := tx.Bucket(bucketSidechains)
		for scId, entry := range batch.Sidechains {
			switch entry.Flag {
			case state.FlagFresh, state.FlagDirty:
				if err := sidechains.Put(scId[:], encodeSidechain(&entry.Sidechain)); err != nil {
					return err
				}
			case state.FlagErased:
				if err := sidechains.Delete(scId[:]); err != nil {
					return err
				}
			case state.FlagDefault:
				// Already persisted unchanged.
			}
		}

		events := tx.Bucket(bucketEvents)
		for height, entry := range batch.Events {
			key := encodeHeightKey(height)
			switch entry.Flag {
			case state.FlagFresh, state.FlagDirty:
				if err := events.Put(key, encodeEvents(&entry.Events)); err != nil {
					return err
				}
			case state.FlagErased:
				if err := events.Delete(key); err != nil {
					return err
				}
			case state.FlagDefault:
			}
		}

		cswNullifiers := tx.Bucket(bucketCswNullifiers)
		for key, entry := range batch.CswNullifiers {
			encoded := encodeCswNullifierKey(key)
			switch entry.Flag {
			case state.FlagFresh:
				if err := cswNullifiers.Put(encoded, []byte{0x01}); err != nil {
					return err
				}
			case state.FlagErased:
				if err := cswNullifiers.Delete(encoded); err != nil {
					return err
				}
			case state.FlagDefault, state.FlagDirty:
			}
		}

		certData := tx.Bucket(bucketCertDataHashes)
		for key, entry := range batch.CertDataHashes {
			encoded := encodeCertDataKey(key)
			switch entry.Flag {
			case state.FlagFresh, state.FlagDirty:
				if err := certData.Put(encoded, encodeCertDataHashes(entry.Hashes)); err != nil {
					return err
				}
			case state.FlagErased:
				if err := certData.Delete(encoded); err != nil {
					return err
				}
			case state.FlagDefault:
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyBestBlock, batch.BestBlock[:]); err != nil {
			return err
		}
		return meta.Put(keyBestAnchor, batch.BestAnchor[:])
	})
	if err != nil {
		return fmt.Errorf("chainstate batch write: %w", err)
	}

	clear(batch.Coins)
	clear(batch.Anchors)
	clear(batch.Nullifiers)
	clear(batch.Sidechains)
	clear(batch.Events)
	clear(batch.CswNullifiers)
	clear(batch.CertDataHashes)
	return nil
}
