package consensus

const (
	TRANSPARENT_TX_VERSION = 1
	PHGR_TX_VERSION        = 2
	GROTH_TX_VERSION       = -3
	SC_TX_VERSION          = -4
	SC_CERT_VERSION        = -5

	COINBASE_MATURITY = 100

	BASE_UNITS_PER_COIN = 100_000_000
	MAX_MONEY           = 21_000_000 * 10 * BASE_UNITS_PER_COIN
)

// Params carries the tunables the state core needs. They are passed at
// construction instead of being read from process-wide flags, so two views
// with different settings can coexist (regtest harnesses rely on this).
type Params struct {
	// ScCoinsMaturity is the number of blocks after which a sidechain
	// creation or forward-transfer amount moves from immature to balance.
	ScCoinsMaturity int32

	// CoinbaseMaturity records the coinbase maturity depth. Coin.IsOutputMature
	// does not read it: it applies the COINBASE_MATURITY constant.
	CoinbaseMaturity int32

	// MinWithdrawalEpochLength bounds sidechain creation parameters.
	MinWithdrawalEpochLength int32

	// MaxCustomDataLen bounds the opaque creation payload.
	MaxCustomDataLen int
}

func MainParams() Params {
	return Params{
		ScCoinsMaturity:          2,
		CoinbaseMaturity:         COINBASE_MATURITY,
		MinWithdrawalEpochLength: 2,
		MaxCustomDataLen:         1024,
	}
}

// RegtestParams returns the defaults used by the test harnesses: same rules,
// same maturities, kept separate so tests can shorten them explicitly.
func RegtestParams() Params {
	return MainParams()
}

// ValidCoinVersion reports whether v belongs to the closed set of source
// object versions. Store codecs must reject anything else: the certificate
// discriminator relies on no other member of the set sharing the low 7 bits
// of SC_CERT_VERSION.
func ValidCoinVersion(v int32) bool {
	switch v {
	case TRANSPARENT_TX_VERSION, PHGR_TX_VERSION, GROTH_TX_VERSION, SC_TX_VERSION, SC_CERT_VERSION:
		return true
	}
	return false
}
