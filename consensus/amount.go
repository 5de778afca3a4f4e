package consensus

// Amounts are signed 64-bit satoshis throughout, as on the wire.

func MoneyRange(v int64) bool {
	return v >= 0 && v <= MAX_MONEY
}

// addAmount returns the sum of a and b or an error if the result would leave
// the money range. Both operands must already be in range.
func addAmount(a, b int64) (int64, error) {
	sum := a + b
	if !MoneyRange(sum) {
		return 0, scerr(BALANCE_EXCEEDED, "amount sum outside money range")
	}
	return sum, nil
}
