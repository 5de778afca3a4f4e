package consensus

import (
	"bytes"
	"sort"
)

// TxsCommitmentBuilder is the streaming accumulator producing the per-block
// commitment over all sidechain-relevant outputs. Contributions are grouped
// by sidechain; within a transaction the order is creations, forward
// transfers, backward-transfer requests (one running output index across the
// three), then ceased withdrawals. The hash construction mirrors the block
// merkle builder; the binding proof system treats the resulting root as
// opaque.
type TxsCommitmentBuilder struct {
	leaves map[[32]byte]*scCommitmentLeaves
}

type scCommitmentLeaves struct {
	scc  [][32]byte
	fwt  [][32]byte
	bwtr [][32]byte
	csw  [][32]byte
	cert [][32]byte
}

// Domain tags for commitment leaves and folds.
const (
	tagCommScc  = 0x10
	tagCommFwt  = 0x11
	tagCommBwtr = 0x12
	tagCommCsw  = 0x13
	tagCommCert = 0x14

	tagCommLeaf = 0x20
	tagCommNode = 0x21
	tagCommSc   = 0x22
)

func NewTxsCommitmentBuilder() *TxsCommitmentBuilder {
	return &TxsCommitmentBuilder{leaves: make(map[[32]byte]*scCommitmentLeaves)}
}

func (b *TxsCommitmentBuilder) scEntry(scId [32]byte) *scCommitmentLeaves {
	entry, ok := b.leaves[scId]
	if !ok {
		entry = &scCommitmentLeaves{}
		b.leaves[scId] = entry
	}
	return entry
}

// Add folds every sidechain-relevant part of tx into the accumulator.
// Transactions without cross-chain payload contribute nothing.
func (b *TxsCommitmentBuilder) Add(tx *Tx) {
	if !tx.IsScVersion() || tx.CcIsNull() {
		return
	}

	txHash := tx.TxID()
	outIdx := uint32(0)

	for i := range tx.VscCcOut {
		scc := &tx.VscCcOut[i]
		leaf := make([]byte, 0, 256)
		leaf = append(leaf, tagCommScc)
		leaf = append(leaf, scc.ScId[:]...)
		leaf = appendI64(leaf, scc.Value)
		leaf = append(leaf, scc.Address[:]...)
		leaf = appendI32(leaf, scc.WithdrawalEpochLength)
		leaf = appendVarBytes(leaf, scc.CustomData)
		leaf = appendVarBytes(leaf, scc.Constant)
		leaf = appendVarBytes(leaf, scc.WCertVk)
		leaf = appendVarBytes(leaf, scc.WCeasedVk)
		leaf = append(leaf, txHash[:]...)
		leaf = appendU32(leaf, outIdx)
		b.scEntry(scc.ScId).scc = append(b.scEntry(scc.ScId).scc, sha3_256(leaf))
		outIdx++
	}

	for i := range tx.VftCcOut {
		ft := &tx.VftCcOut[i]
		leaf := make([]byte, 0, 128)
		leaf = append(leaf, tagCommFwt)
		leaf = append(leaf, ft.ScId[:]...)
		leaf = appendI64(leaf, ft.Value)
		leaf = append(leaf, ft.Address[:]...)
		leaf = append(leaf, txHash[:]...)
		leaf = appendU32(leaf, outIdx)
		b.scEntry(ft.ScId).fwt = append(b.scEntry(ft.ScId).fwt, sha3_256(leaf))
		outIdx++
	}

	for i := range tx.VbwtrOut {
		bwtr := &tx.VbwtrOut[i]
		leaf := make([]byte, 0, 128)
		leaf = append(leaf, tagCommBwtr)
		leaf = append(leaf, bwtr.ScId[:]...)
		leaf = appendI64(leaf, bwtr.ScFee)
		leaf = AppendCompactSize(leaf, uint64(len(bwtr.ScRequestData)))
		for _, rd := range bwtr.ScRequestData {
			leaf = appendVarBytes(leaf, rd)
		}
		leaf = append(leaf, bwtr.McDestination[:]...)
		leaf = append(leaf, txHash[:]...)
		leaf = appendU32(leaf, outIdx)
		b.scEntry(bwtr.ScId).bwtr = append(b.scEntry(bwtr.ScId).bwtr, sha3_256(leaf))
		outIdx++
	}

	for i := range tx.VcswCcIn {
		csw := &tx.VcswCcIn[i]
		leaf := make([]byte, 0, 128)
		leaf = append(leaf, tagCommCsw)
		leaf = append(leaf, csw.ScId[:]...)
		leaf = appendI64(leaf, csw.Value)
		leaf = append(leaf, csw.Nullifier[:]...)
		leaf = append(leaf, csw.PubKeyHash[:]...)
		b.scEntry(csw.ScId).csw = append(b.scEntry(csw.ScId).csw, sha3_256(leaf))
	}
}

// AddCert folds a certificate: sidechain id, epoch, quality, backward
// transfers in output order, custom fields in input order, the cumulative
// commitment-tree root and both fee fields.
func (b *TxsCommitmentBuilder) AddCert(cert *Certificate) {
	leaf := make([]byte, 0, 256)
	leaf = append(leaf, tagCommCert)
	leaf = append(leaf, cert.ScId[:]...)
	leaf = appendI32(leaf, cert.EpochNumber)
	leaf = appendI64(leaf, cert.Quality)

	bts := cert.BackwardTransfers()
	leaf = AppendCompactSize(leaf, uint64(len(bts)))
	for _, bt := range bts {
		leaf = appendI64(leaf, bt.Amount)
		leaf = append(leaf, bt.PubKeyHash[:]...)
	}

	leaf = AppendCompactSize(leaf, uint64(len(cert.CustomFields)))
	for _, f := range cert.CustomFields {
		leaf = appendVarBytes(leaf, f)
	}

	leaf = append(leaf, cert.EndEpochCumScTxCommTreeRoot[:]...)
	leaf = appendI64(leaf, cert.ForwardTransferScFee)
	leaf = appendI64(leaf, cert.MainchainBwtRequestScFee)

	b.scEntry(cert.ScId).cert = append(b.scEntry(cert.ScId).cert, sha3_256(leaf))
}

// Commitment returns the current root. Per sidechain the five category lists
// fold into one subtree root; the per-sidechain roots, keyed and sorted by
// sidechain id, fold into the block commitment.
func (b *TxsCommitmentBuilder) Commitment() [32]byte {
	scIds := make([][32]byte, 0, len(b.leaves))
	for scId := range b.leaves {
		scIds = append(scIds, scId)
	}
	sort.Slice(scIds, func(i, j int) bool {
		return bytes.Compare(scIds[i][:], scIds[j][:]) < 0
	})

	scRoots := make([][32]byte, 0, len(scIds))
	for _, scId := range scIds {
		entry := b.leaves[scId]
		preimage := make([]byte, 0, 1+32+5*32)
		preimage = append(preimage, tagCommSc)
		preimage = append(preimage, scId[:]...)
		for _, category := range [][][32]byte{entry.scc, entry.fwt, entry.bwtr, entry.csw, entry.cert} {
			root := merkleRootTagged(category, tagCommLeaf, tagCommNode)
			preimage = append(preimage, root[:]...)
		}
		scRoots = append(scRoots, sha3_256(preimage))
	}

	return merkleRootTagged(scRoots, tagCommLeaf, tagCommNode)
}
