package state

import "zenda.dev/node/consensus"

// SidechainUndoSections is the bitmask naming which sections of a
// SidechainUndo were populated while connecting a block.
type SidechainUndoSections uint8

const (
	UndoSidechainState SidechainUndoSections = 1 << iota
	UndoMaturedAmounts
	UndoCeasedCertificateData
	UndoCertDataHash
)

// TxOutUndo stores one nulled output verbatim. When nulling an output fully
// pruned its coin, the entry additionally carries the coin header fields so
// the revert path can rebuild the coin from nothing; Height != 0 marks such
// an entry.
type TxOutUndo struct {
	Out consensus.TxOut

	Height            int32
	IsCoinBase        bool
	Version           int32
	FirstBwtPos       uint32
	BwtMaturityHeight int32
}

// SidechainUndo records everything needed to reverse one block's effect on
// one sidechain.
type SidechainUndo struct {
	Sections SidechainUndoSections

	// Previous-block top-quality certificate fields, valid with
	// UndoSidechainState.
	PrevTopCommittedCertReferencedEpoch int32
	PrevTopCommittedCertHash            [32]byte
	PrevTopCommittedCertQuality         int64
	PrevTopCommittedCertBwtAmount       int64

	// Valid with UndoMaturedAmounts.
	AppliedMaturedAmount int64

	// Valid with UndoCeasedCertificateData: the backward-transfer outputs
	// nulled when the sidechain ceased.
	CeasedBwts []TxOutUndo

	// Valid with UndoCertDataHash.
	PrevTopCertDataHash [32]byte
}

// BlockUndo is the per-block undo record for the sidechain lifecycle. Coin
// level undo (spent outputs of regular inputs) is tracked by the block
// processor; this record covers the five sidechain maps.
type BlockUndo struct {
	ScUndoByScId map[[32]byte]*SidechainUndo
}

func NewBlockUndo() *BlockUndo {
	return &BlockUndo{ScUndoByScId: make(map[[32]byte]*SidechainUndo)}
}

func (u *BlockUndo) forSc(scId [32]byte) *SidechainUndo {
	entry, ok := u.ScUndoByScId[scId]
	if !ok {
		entry = &SidechainUndo{PrevTopCommittedCertReferencedEpoch: consensus.EPOCH_NULL}
		u.ScUndoByScId[scId] = entry
	}
	return entry
}
