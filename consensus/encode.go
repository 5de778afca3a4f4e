package consensus

import "encoding/binary"

// Canonical byte layouts used to derive transaction and certificate ids.
// These are hashing preimages, not a wire format: field order is fixed and
// every variable-length field is length-prefixed with CompactSize so that no
// two distinct objects share a preimage.

func appendU32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendI32(dst []byte, v int32) []byte {
	return appendU32(dst, uint32(v))
}

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendI64(dst []byte, v int64) []byte {
	return appendU64(dst, uint64(v))
}

func appendVarBytes(dst []byte, b []byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendTxOut(dst []byte, o TxOut) []byte {
	dst = appendI64(dst, o.Value)
	return appendVarBytes(dst, o.PubKeyScript)
}

// TxBytes serializes tx into its canonical hashing layout.
func TxBytes(tx *Tx) []byte {
	out := make([]byte, 0, 256)
	out = appendI32(out, tx.Version)

	out = AppendCompactSize(out, uint64(len(tx.Vin)))
	for _, in := range tx.Vin {
		out = append(out, in.PrevOut.Hash[:]...)
		out = appendU32(out, in.PrevOut.N)
	}

	out = AppendCompactSize(out, uint64(len(tx.Vout)))
	for _, o := range tx.Vout {
		out = appendTxOut(out, o)
	}

	out = AppendCompactSize(out, uint64(len(tx.VjoinSplit)))
	for _, js := range tx.VjoinSplit {
		out = append(out, js.Anchor[:]...)
		out = AppendCompactSize(out, uint64(len(js.Nullifiers)))
		for _, nf := range js.Nullifiers {
			out = append(out, nf[:]...)
		}
		out = AppendCompactSize(out, uint64(len(js.Commitments)))
		for _, cm := range js.Commitments {
			out = append(out, cm[:]...)
		}
	}

	out = AppendCompactSize(out, uint64(len(tx.VscCcOut)))
	for _, sc := range tx.VscCcOut {
		out = append(out, sc.ScId[:]...)
		out = appendI64(out, sc.Value)
		out = append(out, sc.Address[:]...)
		out = appendI32(out, sc.WithdrawalEpochLength)
		out = appendVarBytes(out, sc.CustomData)
		out = appendVarBytes(out, sc.Constant)
		out = appendVarBytes(out, sc.WCertVk)
		out = appendVarBytes(out, sc.WCeasedVk)
	}

	out = AppendCompactSize(out, uint64(len(tx.VftCcOut)))
	for _, ft := range tx.VftCcOut {
		out = append(out, ft.ScId[:]...)
		out = appendI64(out, ft.Value)
		out = append(out, ft.Address[:]...)
	}

	out = AppendCompactSize(out, uint64(len(tx.VbwtrOut)))
	for _, bwtr := range tx.VbwtrOut {
		out = append(out, bwtr.ScId[:]...)
		out = appendI64(out, bwtr.ScFee)
		out = AppendCompactSize(out, uint64(len(bwtr.ScRequestData)))
		for _, rd := range bwtr.ScRequestData {
			out = appendVarBytes(out, rd)
		}
		out = append(out, bwtr.McDestination[:]...)
	}

	out = AppendCompactSize(out, uint64(len(tx.VcswCcIn)))
	for _, csw := range tx.VcswCcIn {
		out = append(out, csw.ScId[:]...)
		out = appendI64(out, csw.Value)
		out = append(out, csw.Nullifier[:]...)
		out = appendI32(out, csw.Epoch)
		out = append(out, csw.PubKeyHash[:]...)
		out = appendVarBytes(out, csw.Proof)
	}

	out = append(out, tx.Nonce[:]...)
	return out
}

func (tx *Tx) TxID() [32]byte {
	return sha3_256(TxBytes(tx))
}

// CertBytes serializes cert into its canonical hashing layout.
func CertBytes(c *Certificate) []byte {
	out := make([]byte, 0, 256)
	out = appendI32(out, c.Version)
	out = append(out, c.ScId[:]...)
	out = appendI32(out, c.EpochNumber)
	out = appendI64(out, c.Quality)
	out = append(out, c.EndEpochBlockHash[:]...)
	out = append(out, c.EndEpochCumScTxCommTreeRoot[:]...)

	out = AppendCompactSize(out, uint64(len(c.Vout)))
	for _, o := range c.Vout {
		out = appendTxOut(out, o)
	}
	out = appendU32(out, c.FirstBwtPos)

	out = AppendCompactSize(out, uint64(len(c.CustomFields)))
	for _, f := range c.CustomFields {
		out = appendVarBytes(out, f)
	}

	out = appendI64(out, c.ForwardTransferScFee)
	out = appendI64(out, c.MainchainBwtRequestScFee)
	out = append(out, c.Nonce[:]...)
	return out
}

func (c *Certificate) CertHash() [32]byte {
	return sha3_256(CertBytes(c))
}
