package consensus

// Context-free semantic checks on cross-chain payloads, run before any state
// lookup.

// CheckTxSemanticValidity validates the cross-chain outputs of tx against
// the consensus parameters.
func CheckTxSemanticValidity(tx *Tx, params Params) error {
	if !tx.IsScVersion() {
		if !tx.CcIsNull() {
			return scerr(UNKNOWN_OUTPUT_TYPE, "cross-chain payload on non-sidechain tx version")
		}
		return nil
	}
	if len(tx.VjoinSplit) > 0 {
		return scerr(UNKNOWN_OUTPUT_TYPE, "joinsplit on sidechain tx version")
	}

	var cumulated int64
	var err error
	for i := range tx.VscCcOut {
		sc := &tx.VscCcOut[i]
		if sc.WithdrawalEpochLength < params.MinWithdrawalEpochLength {
			return Errf(EPOCH_INVALID, "withdrawal epoch length %d below minimum %d",
				sc.WithdrawalEpochLength, params.MinWithdrawalEpochLength)
		}
		if len(sc.CustomData) > params.MaxCustomDataLen {
			return Errf(UNKNOWN_OUTPUT_TYPE, "custom data length %d above maximum %d",
				len(sc.CustomData), params.MaxCustomDataLen)
		}
		if len(sc.WCertVk) == 0 {
			return scerr(UNKNOWN_OUTPUT_TYPE, "sidechain creation without certificate key")
		}
		if sc.Value <= 0 || !MoneyRange(sc.Value) {
			return scerr(BALANCE_EXCEEDED, "sidechain creation amount outside range")
		}
		if cumulated, err = addAmount(cumulated, sc.Value); err != nil {
			return err
		}
	}

	for i := range tx.VftCcOut {
		ft := &tx.VftCcOut[i]
		if ft.Value <= 0 || !MoneyRange(ft.Value) {
			return scerr(BALANCE_EXCEEDED, "forward transfer amount outside range")
		}
		if cumulated, err = addAmount(cumulated, ft.Value); err != nil {
			return err
		}
	}

	for i := range tx.VbwtrOut {
		bwtr := &tx.VbwtrOut[i]
		if bwtr.ScFee < 0 || !MoneyRange(bwtr.ScFee) {
			return scerr(BALANCE_EXCEEDED, "backward transfer request fee outside range")
		}
		if cumulated, err = addAmount(cumulated, bwtr.ScFee); err != nil {
			return err
		}
	}

	return nil
}

// CheckCertSemanticValidity validates the context-free parts of cert.
func CheckCertSemanticValidity(cert *Certificate) error {
	if cert.Quality < 0 {
		return Errf(QUALITY_REJECTED, "negative quality %d", cert.Quality)
	}
	if cert.FirstBwtPos > uint32(len(cert.Vout)) {
		return scerr(UNKNOWN_OUTPUT_TYPE, "first backward-transfer position beyond outputs")
	}
	var cumulated int64
	var err error
	for pos := int(cert.FirstBwtPos); pos < len(cert.Vout); pos++ {
		if cert.Vout[pos].Value < 0 || !MoneyRange(cert.Vout[pos].Value) {
			return scerr(BALANCE_EXCEEDED, "backward transfer amount outside range")
		}
		if cumulated, err = addAmount(cumulated, cert.Vout[pos].Value); err != nil {
			return err
		}
	}
	return nil
}
