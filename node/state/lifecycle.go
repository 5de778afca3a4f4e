package state

import (
	"zenda.dev/node/consensus"
	"zenda.dev/node/crypto"
)

// Sidechain lifecycle driver: applies and reverts transactions, certificates
// and scheduled events against the view. Every apply path validates fully
// before its first mutation, so a rejection leaves the cache untouched.

// CertBwtState reports whether a certificate's backward transfers are active.
type CertBwtState uint8

const (
	BwtOn CertBwtState = iota
	BwtOff
)

// CertStatusUpdate notifies collaborators (wallet, mempool) that a
// certificate's backward transfers switched on or off.
type CertStatusUpdate struct {
	ScId     [32]byte
	CertHash [32]byte
	Epoch    int32
	Quality  int64
	BwtState CertBwtState
}

// ---- transactions ----

// HaveScRequirements checks the cross-chain outputs of tx against the view
// the way mempool admission does: creations must be new, forward transfers
// must target an alive sidechain (or one created in the same tx), csw inputs
// must target a ceased one.
func (c *Cache) HaveScRequirements(tx *consensus.Tx) error {
	if tx.IsCoinBase() {
		return nil
	}

	for i := range tx.VscCcOut {
		scId := tx.VscCcOut[i].ScId
		if c.HaveSidechain(scId) {
			return consensus.Errf(consensus.SC_ALREADY_EXISTS, "scid %x already created", scId[:8])
		}
	}

	for i := range tx.VftCcOut {
		scId := tx.VftCcOut[i].ScId
		if c.HaveSidechain(scId) {
			if c.GetSidechainState(scId) != consensus.StateAlive {
				return consensus.Errf(consensus.SC_MISSING, "scid %x not alive for forward transfer", scId[:8])
			}
		} else if !hasScCreationOutput(tx, scId) {
			return consensus.Errf(consensus.SC_MISSING, "forward transfer to unknown scid %x", scId[:8])
		}
	}

	for i := range tx.VcswCcIn {
		scId := tx.VcswCcIn[i].ScId
		if c.GetSidechainState(scId) != consensus.StateCeased {
			return consensus.Errf(consensus.SC_NOT_CEASED, "csw for scid %x which has not ceased", scId[:8])
		}
	}

	return nil
}

func hasScCreationOutput(tx *consensus.Tx, scId [32]byte) bool {
	for i := range tx.VscCcOut {
		if tx.VscCcOut[i].ScId == scId {
			return true
		}
	}
	return false
}

// CheckTxApplicableToState validates the ceased-sidechain withdrawals of tx
// without mutating the view: target state, csw support, certificate data,
// proof, nullifier freshness and aggregate balance.
func (c *Cache) CheckTxApplicableToState(tx *consensus.Tx, verifier crypto.ProofVerifier) error {
	cswTotals := make(map[[32]byte]int64)

	for i := range tx.VcswCcIn {
		csw := &tx.VcswCcIn[i]

		sc, ok := c.GetSidechain(csw.ScId)
		if !ok {
			return consensus.Errf(consensus.SC_MISSING, "csw input refers to unknown scid %x", csw.ScId[:8])
		}
		if sc.CurrentState != consensus.StateCeased {
			return consensus.Errf(consensus.SC_NOT_CEASED, "csw for scid %x which has not ceased", csw.ScId[:8])
		}
		if sc.CreationData.WCeasedVk == nil {
			return consensus.Errf(consensus.SC_NO_CSW_SUPPORT, "scid %x has no ceased-withdrawal key", csw.ScId[:8])
		}

		hashes, ok := c.GetCertDataHashes(csw.ScId, csw.Epoch)
		if !ok {
			return consensus.Errf(consensus.PROOF_FAILED,
				"no cert data hashes for scid %x epoch %d", csw.ScId[:8], csw.Epoch)
		}

		if c.HaveCswNullifier(csw.ScId, csw.Nullifier) {
			return consensus.Errf(consensus.CSW_NULLIFIER_REUSED, "csw nullifier already recorded")
		}

		lastCum := crypto.CumulativeCertDataHash(hashes.PrevCumulativeHash, hashes.CertDataHash)
		if !verifier.VerifyCsw(hashes.PrevCumulativeHash, hashes.CertDataHash, lastCum, sc.CreationData.WCeasedVk, csw) {
			return consensus.Errf(consensus.PROOF_FAILED, "csw proof rejected")
		}

		cswTotals[csw.ScId] += csw.Value
	}

	for scId, total := range cswTotals {
		sc, _ := c.GetSidechain(scId)
		if total > sc.Balance {
			return consensus.Errf(consensus.BALANCE_EXCEEDED,
				"csw total %d above sidechain balance %d", total, sc.Balance)
		}
	}
	return nil
}

// UpdateSidechainForTx applies the cross-chain effect of tx at height:
// csw inputs reduce balances, creation outputs insert fresh descriptors,
// forward transfers add immature amounts. Validation runs first; a failed
// call leaves the view unchanged.
func (c *Cache) UpdateSidechainForTx(tx *consensus.Tx, blockHash [32]byte, height int32) error {
	txHash := tx.TxID()
	maturityHeight := height + c.params.ScCoinsMaturity

	// Validate everything up front: the mutation phase must not fail.
	cswTotals := make(map[[32]byte]int64)
	for i := range tx.VcswCcIn {
		csw := &tx.VcswCcIn[i]
		sc, ok := c.GetSidechain(csw.ScId)
		if !ok {
			return consensus.Errf(consensus.SC_MISSING, "csw for unknown scid %x", csw.ScId[:8])
		}
		cswTotals[csw.ScId] += csw.Value
		if cswTotals[csw.ScId] > sc.Balance {
			return consensus.Errf(consensus.BALANCE_EXCEEDED,
				"csw total above balance for scid %x", csw.ScId[:8])
		}
	}
	for i := range tx.VscCcOut {
		scId := tx.VscCcOut[i].ScId
		if c.HaveSidechain(scId) {
			return consensus.Errf(consensus.SC_ALREADY_EXISTS, "scid %x already created", scId[:8])
		}
	}
	for i := range tx.VftCcOut {
		scId := tx.VftCcOut[i].ScId
		if !c.HaveSidechain(scId) && !hasScCreationOutput(tx, scId) {
			return consensus.Errf(consensus.SC_MISSING, "forward transfer to unknown scid %x", scId[:8])
		}
	}

	for i := range tx.VcswCcIn {
		csw := &tx.VcswCcIn[i]
		entry := c.ModifySidechain(csw.ScId)
		entry.Sidechain.Balance -= csw.Value
		assertInvariant(entry.Sidechain.Balance >= 0, "csw drove balance negative")
		entry.Flag = FlagDirty
		c.AddCswNullifier(csw.ScId, csw.Nullifier)
	}

	for i := range tx.VscCcOut {
		cr := &tx.VscCcOut[i]
		entry := c.ModifySidechain(cr.ScId)
		sc := &entry.Sidechain
		sc.CreationBlockHash = blockHash
		sc.CreationBlockHeight = height
		sc.CreationTxHash = txHash
		sc.PrevBlockTopQualityCertReferencedEpoch = consensus.EPOCH_NULL
		sc.PrevBlockTopQualityCertHash = [32]byte{}
		sc.PrevBlockTopQualityCertQuality = consensus.QUALITY_NULL
		sc.PrevBlockTopQualityCertBwtAmount = 0
		sc.CreationData = consensus.SidechainCreationData{
			WithdrawalEpochLength: cr.WithdrawalEpochLength,
			CustomData:            append([]byte(nil), cr.CustomData...),
			Constant:              append([]byte(nil), cr.Constant...),
			WCertVk:               append([]byte(nil), cr.WCertVk...),
		}
		if cr.WCeasedVk != nil {
			sc.CreationData.WCeasedVk = append([]byte(nil), cr.WCeasedVk...)
		}
		sc.ImmatureAmounts[maturityHeight] = cr.Value
		sc.CurrentState = consensus.StateAlive
		entry.Flag = FlagFresh
	}

	for i := range tx.VftCcOut {
		ft := &tx.VftCcOut[i]
		entry := c.ModifySidechain(ft.ScId)
		entry.Sidechain.ImmatureAmounts[maturityHeight] += ft.Value
		if entry.Flag != FlagFresh {
			entry.Flag = FlagDirty
		}
	}

	return nil
}

// RevertTxOutputs undoes UpdateSidechainForTx, driven from the transaction
// itself: immature amounts come back out, created sidechains are erased,
// csw balances are restored.
func (c *Cache) RevertTxOutputs(tx *consensus.Tx, height int32) error {
	maturityHeight := height + c.params.ScCoinsMaturity

	for i := range tx.VftCcOut {
		ft := &tx.VftCcOut[i]
		if !c.HaveSidechain(ft.ScId) {
			return consensus.Errf(consensus.SC_MISSING, "revert fwd: scid %x not in view", ft.ScId[:8])
		}
		entry := c.ModifySidechain(ft.ScId)
		if err := decrementImmatureAmount(entry, ft.Value, maturityHeight); err != nil {
			return err
		}
	}

	for i := range tx.VscCcOut {
		cr := &tx.VscCcOut[i]
		if !c.HaveSidechain(cr.ScId) {
			return consensus.Errf(consensus.SC_MISSING, "revert creation: scid %x not in view", cr.ScId[:8])
		}
		entry := c.ModifySidechain(cr.ScId)
		if err := decrementImmatureAmount(entry, cr.Value, maturityHeight); err != nil {
			return err
		}
		if entry.Sidechain.Balance > 0 {
			return consensus.Errf(consensus.INTERNAL_ASSERTION,
				"revert creation: scid %x balance not null", cr.ScId[:8])
		}
		entry.Flag = FlagErased
	}

	for i := range tx.VcswCcIn {
		csw := &tx.VcswCcIn[i]
		if !c.HaveSidechain(csw.ScId) {
			return consensus.Errf(consensus.SC_MISSING, "revert csw: scid %x not in view", csw.ScId[:8])
		}
		entry := c.ModifySidechain(csw.ScId)
		entry.Sidechain.Balance += csw.Value
		entry.Flag = FlagDirty
		c.RemoveCswNullifier(csw.ScId, csw.Nullifier)
	}

	return nil
}

func decrementImmatureAmount(entry *SidechainEntry, value int64, maturityHeight int32) error {
	ia := entry.Sidechain.ImmatureAmounts
	current, ok := ia[maturityHeight]
	if !ok {
		return consensus.Errf(consensus.INTERNAL_ASSERTION,
			"no immature balance at height %d", maturityHeight)
	}
	if current < value {
		return consensus.Errf(consensus.INTERNAL_ASSERTION,
			"immature balance at height %d below amount to remove", maturityHeight)
	}
	ia[maturityHeight] = current - value
	if ia[maturityHeight] == 0 {
		delete(ia, maturityHeight)
	}
	entry.Flag = FlagDirty
	return nil
}

// ---- certificates ----

// CheckCertApplicableToState validates cert against the view and the active
// chain without mutating anything.
func (c *Cache) CheckCertApplicableToState(cert *consensus.Certificate, height int32,
	chain ChainIndex, verifier crypto.ProofVerifier) error {

	sc, ok := c.GetSidechain(cert.ScId)
	if !ok {
		return consensus.Errf(consensus.SC_MISSING, "cert refers to unknown scid %x", cert.ScId[:8])
	}

	if err := isEpochDataValid(&sc, cert.EpochNumber, cert.EndEpochBlockHash, chain); err != nil {
		return err
	}

	if height < sc.StartHeightForEpoch(cert.EpochNumber+1) {
		return consensus.Errf(consensus.EPOCH_INVALID,
			"cert for epoch %d received too early at height %d", cert.EpochNumber, height)
	}

	if sc.CurrentState != consensus.StateAlive {
		return consensus.Errf(consensus.EPOCH_INVALID,
			"cert for scid %x which already ceased", cert.ScId[:8])
	}

	if !c.CheckQuality(cert) {
		return consensus.Errf(consensus.QUALITY_REJECTED,
			"quality %d not above recorded top for epoch %d", cert.Quality, cert.EpochNumber)
	}

	bwtTotal := cert.ValueOfBackwardTransfers()
	scBalance := sc.Balance
	if cert.EpochNumber == sc.PrevBlockTopQualityCertReferencedEpoch {
		// Same epoch as the recorded top: its bwt amount comes back before
		// ours is taken.
		scBalance += sc.PrevBlockTopQualityCertBwtAmount
	}
	if bwtTotal > scBalance {
		return consensus.Errf(consensus.BALANCE_EXCEEDED,
			"bwt total %d above usable balance %d", bwtTotal, scBalance)
	}

	prevEndEpochHeight := sc.StartHeightForEpoch(cert.EpochNumber) - 1
	prevEndEpochBlockHash, ok := chain.HashAtHeight(prevEndEpochHeight)
	if !ok {
		return consensus.Errf(consensus.END_EPOCH_BLOCK_INVALID,
			"no active block at previous end-epoch height %d", prevEndEpochHeight)
	}
	if !verifier.VerifyCertificate(sc.CreationData.Constant, sc.CreationData.WCertVk, prevEndEpochBlockHash, cert) {
		return consensus.Errf(consensus.PROOF_FAILED, "certificate proof rejected")
	}

	return nil
}

func isEpochDataValid(sc *consensus.Sidechain, epoch int32, endEpochBlockHash [32]byte, chain ChainIndex) error {
	if epoch < 0 || endEpochBlockHash == ([32]byte{}) {
		return consensus.Errf(consensus.EPOCH_INVALID, "invalid epoch data %d", epoch)
	}

	// No old epochs: only the recorded epoch or its successor are open.
	if epoch != sc.PrevBlockTopQualityCertReferencedEpoch &&
		epoch != sc.PrevBlockTopQualityCertReferencedEpoch+1 {
		return consensus.Errf(consensus.EPOCH_INVALID,
			"epoch %d not in {%d, %d}", epoch,
			sc.PrevBlockTopQualityCertReferencedEpoch, sc.PrevBlockTopQualityCertReferencedEpoch+1)
	}

	if !chain.Contains(endEpochBlockHash) {
		return consensus.Errf(consensus.END_EPOCH_BLOCK_INVALID, "end-epoch block not in active chain")
	}

	endEpochHeight := sc.StartHeightForEpoch(epoch+1) - 1
	hash, ok := chain.HashAtHeight(endEpochHeight)
	if !ok {
		return consensus.Errf(consensus.END_EPOCH_BLOCK_INVALID,
			"derived end-epoch height %d outside active chain", endEpochHeight)
	}
	if hash != endEpochBlockHash {
		return consensus.Errf(consensus.END_EPOCH_BLOCK_INVALID,
			"end-epoch block hash does not match active chain at height %d", endEpochHeight)
	}
	return nil
}

// UpdateSidechainForCert commits cert as the sidechain's new top-quality
// certificate, recording the displaced top in undo. Must be called at most
// once per block and sidechain, with the block's top-quality cert only.
func (c *Cache) UpdateSidechainForCert(cert *consensus.Certificate, undo *BlockUndo) error {
	certHash := cert.CertHash()
	bwtTotal := cert.ValueOfBackwardTransfers()

	if !c.HaveSidechain(cert.ScId) {
		return consensus.Errf(consensus.SC_MISSING, "cert for unknown scid %x", cert.ScId[:8])
	}

	entry := c.fetchSidechains(cert.ScId)
	sc := &entry.Sidechain

	// Validate before mutating so a rejection leaves the entry untouched.
	if cert.EpochNumber != sc.PrevBlockTopQualityCertReferencedEpoch {
		if cert.EpochNumber != sc.PrevBlockTopQualityCertReferencedEpoch+1 {
			return consensus.Errf(consensus.EPOCH_INVALID,
				"cert epoch %d, expected %d or %d", cert.EpochNumber,
				sc.PrevBlockTopQualityCertReferencedEpoch, sc.PrevBlockTopQualityCertReferencedEpoch+1)
		}
		if sc.Balance < bwtTotal {
			return consensus.Errf(consensus.BALANCE_EXCEEDED,
				"bwt total %d above balance %d", bwtTotal, sc.Balance)
		}
	} else {
		if cert.Quality <= sc.PrevBlockTopQualityCertQuality {
			// Cannot happen when certs are quality-ordered in the block.
			return consensus.Errf(consensus.QUALITY_REJECTED,
				"quality %d not above recorded top %d", cert.Quality, sc.PrevBlockTopQualityCertQuality)
		}
		if sc.Balance+sc.PrevBlockTopQualityCertBwtAmount < bwtTotal {
			return consensus.Errf(consensus.BALANCE_EXCEEDED,
				"bwt total %d above restored balance %d", bwtTotal, sc.Balance+sc.PrevBlockTopQualityCertBwtAmount)
		}
	}

	scUndo := undo.forSc(cert.ScId)
	assertInvariant(scUndo.PrevTopCommittedCertHash == ([32]byte{}),
		"sidechain state undo already recorded for this block")
	scUndo.PrevTopCommittedCertReferencedEpoch = sc.PrevBlockTopQualityCertReferencedEpoch
	scUndo.PrevTopCommittedCertHash = sc.PrevBlockTopQualityCertHash
	scUndo.PrevTopCommittedCertQuality = sc.PrevBlockTopQualityCertQuality
	scUndo.PrevTopCommittedCertBwtAmount = sc.PrevBlockTopQualityCertBwtAmount
	scUndo.Sections |= UndoSidechainState

	if cert.EpochNumber == sc.PrevBlockTopQualityCertReferencedEpoch {
		// Same epoch: the displaced cert's backward transfers come back
		// before ours are taken out.
		sc.Balance += sc.PrevBlockTopQualityCertBwtAmount
	}
	sc.Balance -= bwtTotal
	sc.PrevBlockTopQualityCertReferencedEpoch = cert.EpochNumber
	sc.PrevBlockTopQualityCertHash = certHash
	sc.PrevBlockTopQualityCertQuality = cert.Quality
	sc.PrevBlockTopQualityCertBwtAmount = bwtTotal

	entry.Flag = FlagDirty
	return nil
}

// RestoreSidechain reverts UpdateSidechainForCert for certToRevert, which
// must be the recorded top-quality certificate.
func (c *Cache) RestoreSidechain(certToRevert *consensus.Certificate, scUndo *SidechainUndo) error {
	bwtTotal := certToRevert.ValueOfBackwardTransfers()

	if !c.HaveSidechain(certToRevert.ScId) {
		return consensus.Errf(consensus.SC_MISSING, "restore: scid %x not in view", certToRevert.ScId[:8])
	}

	entry := c.fetchSidechains(certToRevert.ScId)
	sc := &entry.Sidechain

	assertInvariant(certToRevert.CertHash() == sc.PrevBlockTopQualityCertHash,
		"restore called with a cert that is not the recorded top")
	assertInvariant(scUndo.Sections&UndoSidechainState != 0, "restore without sidechain-state undo section")

	sc.Balance += bwtTotal
	if certToRevert.EpochNumber == scUndo.PrevTopCommittedCertReferencedEpoch {
		// A lower-quality cert of the same epoch becomes top again: its
		// backward transfers leave the balance once more.
		assertInvariant(certToRevert.Quality > scUndo.PrevTopCommittedCertQuality,
			"same-epoch restore with non-inferior undo quality")
		sc.Balance -= scUndo.PrevTopCommittedCertBwtAmount
	}

	sc.PrevBlockTopQualityCertReferencedEpoch = scUndo.PrevTopCommittedCertReferencedEpoch
	sc.PrevBlockTopQualityCertHash = scUndo.PrevTopCommittedCertHash
	sc.PrevBlockTopQualityCertQuality = scUndo.PrevTopCommittedCertQuality
	sc.PrevBlockTopQualityCertBwtAmount = scUndo.PrevTopCommittedCertBwtAmount

	entry.Flag = FlagDirty
	return nil
}

// NullifyBackwardTransfers nulls every bwt output of the certificate's coin,
// appending each output verbatim to nullifiedOuts. The entry that prunes the
// coin also stores the coin header so the revert can rebuild it from nothing.
func (c *Cache) NullifyBackwardTransfers(certHash [32]byte, nullifiedOuts *[]TxOutUndo) {
	if certHash == ([32]byte{}) {
		return
	}
	if !c.HaveCoin(certHash) {
		// A cert without bwt nor change leaves no coin behind.
		return
	}

	mod := c.ModifyCoin(certHash)
	defer mod.Release()
	coin := mod.Coin()
	assertInvariant(coin.BwtMaturityHeight != 0, "nullify on a coin that is not from a cert")

	for pos := coin.FirstBwtPos; pos < uint32(len(coin.Outputs)); pos++ {
		*nullifiedOuts = append(*nullifiedOuts, TxOutUndo{Out: coin.Outputs[pos]})
		coin.Spend(pos)
		if len(coin.Outputs) == 0 {
			last := &(*nullifiedOuts)[len(*nullifiedOuts)-1]
			last.Height = coin.Height
			last.IsCoinBase = coin.IsCoinBase
			last.Version = coin.Version
			last.FirstBwtPos = coin.FirstBwtPos
			last.BwtMaturityHeight = coin.BwtMaturityHeight
		}
	}
}

// RestoreBackwardTransfers rebuilds the bwt outputs of the certificate's
// coin from the undo entries, rehydrating the header of a fully pruned coin.
func (c *Cache) RestoreBackwardTransfers(certHash [32]byte, outsToRestore []TxOutUndo) error {
	clean := true

	mod := c.ModifyCoin(certHash)
	defer mod.Release()
	coin := mod.Coin()

	for idx := len(outsToRestore) - 1; idx >= 0; idx-- {
		undoOut := &outsToRestore[idx]
		if undoOut.Height != 0 {
			coin.IsCoinBase = undoOut.IsCoinBase
			coin.Height = undoOut.Height
			coin.Version = undoOut.Version
			coin.FirstBwtPos = undoOut.FirstBwtPos
			coin.BwtMaturityHeight = undoOut.BwtMaturityHeight
		} else if coin.IsPruned() {
			// Undo data adds an output to a missing coin.
			clean = false
		}

		pos := coin.FirstBwtPos + uint32(idx)
		if coin.IsAvailable(pos) {
			// Undo data overwrites an existing output.
			clean = false
		}
		for uint32(len(coin.Outputs)) < pos+1 {
			var null consensus.TxOut
			null.SetNull()
			coin.Outputs = append(coin.Outputs, null)
		}
		coin.Outputs[pos] = undoOut.Out
	}

	if !clean {
		return consensus.Errf(consensus.INTERNAL_ASSERTION, "inconsistent bwt undo data for cert %x", certHash[:8])
	}
	return nil
}

// ---- cert data hashes ----

// UpdateCertDataHash records the data hash of the sidechain's accepted
// certificate for the epoch, chaining the cumulative hash from the previous
// epoch. The displaced hash, if any, goes into undo.
func (c *Cache) UpdateCertDataHash(scId [32]byte, epoch int32, certDataHash [32]byte, undo *BlockUndo) {
	assertInvariant(c.HaveSidechain(scId), "cert data hash update for unknown sidechain")

	key := CertDataKey{ScId: scId, Epoch: epoch}
	if c.HaveCertDataHashes(scId, epoch) {
		entry := c.certDataHashes[key]
		scUndo := undo.forSc(scId)
		scUndo.PrevTopCertDataHash = entry.Hashes.CertDataHash
		scUndo.Sections |= UndoCertDataHash

		entry.Hashes.CertDataHash = certDataHash
		entry.Flag = FlagDirty
		return
	}

	var prevCumulative [32]byte
	if prev, ok := c.GetCertDataHashes(scId, epoch-1); ok {
		prevCumulative = crypto.CumulativeCertDataHash(prev.PrevCumulativeHash, prev.CertDataHash)
	}

	if _, ok := c.certDataHashes[key]; !ok {
		c.cachedUsage += certDataEntryUsage
	}
	c.certDataHashes[key] = &CertDataEntry{
		Hashes: CertDataHashes{CertDataHash: certDataHash, PrevCumulativeHash: prevCumulative},
		Flag:   FlagFresh,
	}
}

// RestoreCertDataHash reverts UpdateCertDataHash: restores the displaced
// hash when the undo carries one, erases the entry otherwise.
func (c *Cache) RestoreCertDataHash(scId [32]byte, epoch int32, undo *BlockUndo) {
	assertInvariant(c.HaveCertDataHashes(scId, epoch), "cert data hash restore for missing entry")

	key := CertDataKey{ScId: scId, Epoch: epoch}
	entry := c.certDataHashes[key]
	if scUndo, ok := undo.ScUndoByScId[scId]; ok && scUndo.Sections&UndoCertDataHash != 0 {
		entry.Hashes.CertDataHash = scUndo.PrevTopCertDataHash
		entry.Flag = FlagDirty
		return
	}
	entry.Flag = FlagErased
}

// ---- voiding rules ----

// CertsToVoidUponConnect returns the hashes of certificates whose backward
// transfers must be nullified when a block carrying certs connects, grouped
// per sidechain in first-appearance order: the previous-block top certificate
// when an in-block same-epoch higher-quality cert supersedes it, then every
// in-block cert superseded by a later same-epoch one. Assumes certs already
// passed ordering checks, so all certs of one sidechain share the epoch.
func (c *Cache) CertsToVoidUponConnect(certs []*consensus.Certificate) [][32]byte {
	var scOrder [][32]byte
	certsByScId := make(map[[32]byte][]*consensus.Certificate)
	for _, cert := range certs {
		if _, ok := certsByScId[cert.ScId]; !ok {
			scOrder = append(scOrder, cert.ScId)
		}
		certsByScId[cert.ScId] = append(certsByScId[cert.ScId], cert)
	}

	var voided [][32]byte
	for _, scId := range scOrder {
		scCerts := certsByScId[scId]
		if sc, ok := c.GetSidechain(scId); ok &&
			sc.PrevBlockTopQualityCertReferencedEpoch == scCerts[0].EpochNumber &&
			sc.PrevBlockTopQualityCertHash != ([32]byte{}) {
			voided = append(voided, sc.PrevBlockTopQualityCertHash)
		}

		for i, cert := range scCerts[:len(scCerts)-1] {
			if scCerts[i+1].EpochNumber == cert.EpochNumber {
				// The next, higher-quality cert supersedes this one.
				voided = append(voided, cert.CertHash())
			}
		}
	}
	return voided
}

// ---- scheduled events ----

// ScheduleScCreationEvent schedules the maturation of the creation amount
// and the first ceasing height for a just-created sidechain.
func (c *Cache) ScheduleScCreationEvent(scCreationOut *consensus.ScCreationOut, creationHeight int32) error {
	sc, ok := c.GetSidechain(scCreationOut.ScId)
	if !ok {
		return consensus.Errf(consensus.SC_MISSING,
			"schedule creation for unknown scid %x", scCreationOut.ScId[:8])
	}

	maturityHeight := creationHeight + c.params.ScCoinsMaturity
	c.addEventMember(maturityHeight, scCreationOut.ScId, eventMaturing)

	nextCeasingHeight := sc.StartHeightForEpoch(1) + sc.SafeguardMargin()
	c.addEventMember(nextCeasingHeight, scCreationOut.ScId, eventCeasing)
	return nil
}

// ScheduleFwdTransferEvent schedules the maturation of a forward transfer.
func (c *Cache) ScheduleFwdTransferEvent(forwardOut *consensus.ForwardTransferOut, fwdHeight int32) error {
	if !c.HaveSidechain(forwardOut.ScId) {
		return consensus.Errf(consensus.SC_MISSING,
			"schedule fwd for unknown scid %x", forwardOut.ScId[:8])
	}
	c.addEventMember(fwdHeight+c.params.ScCoinsMaturity, forwardOut.ScId, eventMaturing)
	return nil
}

// ScheduleCertificateEvent moves the sidechain's ceasing event from the
// height implied by the certificate's epoch to the one an epoch-length
// later. At application time the sidechain is scheduled at exactly one of
// the two heights.
func (c *Cache) ScheduleCertificateEvent(cert *consensus.Certificate) error {
	sc, ok := c.GetSidechain(cert.ScId)
	if !ok {
		return consensus.Errf(consensus.SC_MISSING, "schedule cert for unknown scid %x", cert.ScId[:8])
	}

	curCeasingHeight := sc.StartHeightForEpoch(cert.EpochNumber+1) + sc.SafeguardMargin()
	nextCeasingHeight := curCeasingHeight + sc.CreationData.WithdrawalEpochLength

	if !c.HaveSidechainEvents(curCeasingHeight) {
		// A same-epoch upgrade already moved the schedule forward.
		if !c.HaveSidechainEvents(nextCeasingHeight) {
			return consensus.Errf(consensus.INTERNAL_ASSERTION,
				"no ceasing scheduled at %d nor %d", curCeasingHeight, nextCeasingHeight)
		}
		return nil
	}

	c.removeEventMember(curCeasingHeight, cert.ScId, eventCeasing)
	c.addEventMember(nextCeasingHeight, cert.ScId, eventCeasing)
	return nil
}

// CancelScCreationEvent undoes ScheduleScCreationEvent.
func (c *Cache) CancelScCreationEvent(scCreationOut *consensus.ScCreationOut, creationHeight int32) error {
	sc, ok := c.GetSidechain(scCreationOut.ScId)
	if !ok {
		return consensus.Errf(consensus.SC_MISSING,
			"cancel creation for unknown scid %x", scCreationOut.ScId[:8])
	}

	maturityHeight := creationHeight + c.params.ScCoinsMaturity
	if c.HaveSidechainEvents(maturityHeight) {
		c.removeEventMember(maturityHeight, scCreationOut.ScId, eventMaturing)
	}

	curCeasingHeight := sc.StartHeightForEpoch(1) + sc.SafeguardMargin()
	if !c.HaveSidechainEvents(curCeasingHeight) {
		return consensus.Errf(consensus.INTERNAL_ASSERTION,
			"cancel creation: no ceasing scheduled at %d", curCeasingHeight)
	}
	c.removeEventMember(curCeasingHeight, scCreationOut.ScId, eventCeasing)
	return nil
}

// CancelFwdTransferEvent undoes ScheduleFwdTransferEvent. A missing height
// entry is fine: a concurrent forward transfer may have removed it already.
func (c *Cache) CancelFwdTransferEvent(forwardOut *consensus.ForwardTransferOut, fwdHeight int32) error {
	maturityHeight := fwdHeight + c.params.ScCoinsMaturity
	if !c.HaveSidechainEvents(maturityHeight) {
		return nil
	}
	c.removeEventMember(maturityHeight, forwardOut.ScId, eventMaturing)
	return nil
}

// CancelCertificateEvent undoes ScheduleCertificateEvent for a reverted
// certificate: the ceasing event moves back an epoch-length.
func (c *Cache) CancelCertificateEvent(cert *consensus.Certificate) error {
	sc, ok := c.GetSidechain(cert.ScId)
	if !ok {
		return consensus.Errf(consensus.SC_MISSING, "cancel cert for unknown scid %x", cert.ScId[:8])
	}

	curCeasingHeight := sc.StartHeightForEpoch(cert.EpochNumber+2) + sc.SafeguardMargin()
	prevCeasingHeight := curCeasingHeight - sc.CreationData.WithdrawalEpochLength

	if !c.HaveSidechainEvents(curCeasingHeight) {
		// A same-epoch revert already moved the schedule back.
		if !c.HaveSidechainEvents(prevCeasingHeight) {
			return consensus.Errf(consensus.INTERNAL_ASSERTION,
				"no ceasing scheduled at %d nor %d", curCeasingHeight, prevCeasingHeight)
		}
		return nil
	}

	c.removeEventMember(curCeasingHeight, cert.ScId, eventCeasing)
	c.addEventMember(prevCeasingHeight, cert.ScId, eventCeasing)
	return nil
}

type eventKind uint8

const (
	eventMaturing eventKind = iota
	eventCeasing
)

func (c *Cache) addEventMember(height int32, scId [32]byte, kind eventKind) {
	entry := c.ModifySidechainEvents(height)
	if kind == eventMaturing {
		entry.Events.MaturingScIds[scId] = struct{}{}
	} else {
		entry.Events.CeasingScIds[scId] = struct{}{}
	}
	if entry.Flag != FlagFresh {
		entry.Flag = FlagDirty
	}
}

func (c *Cache) removeEventMember(height int32, scId [32]byte, kind eventKind) {
	entry := c.ModifySidechainEvents(height)
	if kind == eventMaturing {
		delete(entry.Events.MaturingScIds, scId)
	} else {
		delete(entry.Events.CeasingScIds, scId)
	}
	if entry.Events.IsNull() {
		entry.Flag = FlagErased
	} else {
		entry.Flag = FlagDirty
	}
}

// HandleSidechainEvents fires the schedule at height after the block's
// transactions and certificates have been applied: immature amounts mature,
// overdue sidechains cease and void their top certificate's backward
// transfers. The event entry is erased.
func (c *Cache) HandleSidechainEvents(height int32, undo *BlockUndo, certsInfo *[]CertStatusUpdate) error {
	if !c.HaveSidechainEvents(height) {
		return nil
	}
	events, _ := c.GetSidechainEvents(height)

	for scId := range events.MaturingScIds {
		assertInvariant(c.HaveSidechain(scId), "maturing event for unknown sidechain")
		entry := c.ModifySidechain(scId)
		amount, ok := entry.Sidechain.ImmatureAmounts[height]
		assertInvariant(ok, "maturing event without matching immature amount")

		entry.Sidechain.Balance += amount
		scUndo := undo.forSc(scId)
		scUndo.AppliedMaturedAmount = amount
		scUndo.Sections |= UndoMaturedAmounts

		delete(entry.Sidechain.ImmatureAmounts, height)
		entry.Flag = FlagDirty
	}

	for scId := range events.CeasingScIds {
		sc, ok := c.GetSidechain(scId)
		assertInvariant(ok, "ceasing event for unknown sidechain")

		entry := c.ModifySidechain(scId)
		entry.Sidechain.CurrentState = consensus.StateCeased
		entry.Flag = FlagDirty

		scUndo := undo.forSc(scId)
		scUndo.Sections |= UndoCeasedCertificateData

		if sc.PrevBlockTopQualityCertReferencedEpoch == consensus.EPOCH_NULL {
			assertInvariant(sc.PrevBlockTopQualityCertHash == ([32]byte{}),
				"null epoch with non-null top cert hash")
			continue
		}

		c.NullifyBackwardTransfers(sc.PrevBlockTopQualityCertHash, &scUndo.CeasedBwts)
		if certsInfo != nil {
			*certsInfo = append(*certsInfo, CertStatusUpdate{
				ScId:     scId,
				CertHash: sc.PrevBlockTopQualityCertHash,
				Epoch:    sc.PrevBlockTopQualityCertReferencedEpoch,
				Quality:  sc.PrevBlockTopQualityCertQuality,
				BwtState: BwtOff,
			})
		}
	}

	eventsEntry := c.ModifySidechainEvents(height)
	eventsEntry.Flag = FlagErased
	return nil
}

// RevertSidechainEvents is the mirror of HandleSidechainEvents: ceasing is
// reverted first (backward transfers restored, state back to alive), then
// maturation, and the events entry is re-created fresh when non-empty.
func (c *Cache) RevertSidechainEvents(undo *BlockUndo, height int32, certsInfo *[]CertStatusUpdate) error {
	if c.HaveSidechainEvents(height) {
		return consensus.Errf(consensus.INTERNAL_ASSERTION,
			"revert would recreate events at height %d over an existing entry", height)
	}

	recreated := consensus.NewSidechainEvents()

	for scId, scUndo := range undo.ScUndoByScId {
		if scUndo.Sections&UndoCeasedCertificateData == 0 {
			continue
		}

		sc := c.AccessSidechain(scId)
		if sc == nil {
			return consensus.Errf(consensus.SC_MISSING, "revert ceasing: scid %x not in view", scId[:8])
		}

		if sc.PrevBlockTopQualityCertReferencedEpoch != consensus.EPOCH_NULL {
			certHash := sc.PrevBlockTopQualityCertHash
			epoch := sc.PrevBlockTopQualityCertReferencedEpoch
			quality := sc.PrevBlockTopQualityCertQuality
			if err := c.RestoreBackwardTransfers(certHash, scUndo.CeasedBwts); err != nil {
				return err
			}
			if certsInfo != nil {
				*certsInfo = append(*certsInfo, CertStatusUpdate{
					ScId:     scId,
					CertHash: certHash,
					Epoch:    epoch,
					Quality:  quality,
					BwtState: BwtOn,
				})
			}
		}

		recreated.CeasingScIds[scId] = struct{}{}
		entry := c.ModifySidechain(scId)
		entry.Sidechain.CurrentState = consensus.StateAlive
		entry.Flag = FlagDirty
	}

	for scId, scUndo := range undo.ScUndoByScId {
		if scUndo.Sections&UndoMaturedAmounts == 0 {
			continue
		}
		if !c.HaveSidechain(scId) {
			return consensus.Errf(consensus.SC_MISSING, "revert maturing: scid %x not in view", scId[:8])
		}

		amount := scUndo.AppliedMaturedAmount
		entry := c.ModifySidechain(scId)
		if amount > 0 {
			if entry.Sidechain.Balance < amount {
				return consensus.Errf(consensus.INTERNAL_ASSERTION,
					"revert maturing would drive balance negative for scid %x", scId[:8])
			}
			entry.Sidechain.ImmatureAmounts[height] += amount
			entry.Sidechain.Balance -= amount
			entry.Flag = FlagDirty
		}

		recreated.MaturingScIds[scId] = struct{}{}
	}

	if !recreated.IsNull() {
		entry := c.ModifySidechainEvents(height)
		entry.Events = recreated
		entry.Flag = FlagFresh
	}
	return nil
}
