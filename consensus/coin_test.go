package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeOut(value int64, script ...byte) TxOut {
	if script == nil {
		script = []byte{0x51}
	}
	return TxOut{Value: value, PubKeyScript: script}
}

func TestCoinFromTxStripsUnspendable(t *testing.T) {
	tx := &Tx{
		Version: TRANSPARENT_TX_VERSION,
		Vout: []TxOut{
			makeOut(1000),
			{Value: 0, PubKeyScript: []byte{opReturn, 0x01}},
			makeOut(2000),
			{Value: 0, PubKeyScript: []byte{opReturn}},
		},
	}
	coin := NewCoinFromTx(tx, 50)

	require.Equal(t, uint32(NO_BWT), coin.FirstBwtPos)
	require.Equal(t, int32(0), coin.BwtMaturityHeight)
	// Trailing unspendable trimmed, embedded one nulled.
	require.Len(t, coin.Outputs, 3)
	require.True(t, coin.Outputs[1].IsNull())
	require.True(t, coin.IsAvailable(0))
	require.False(t, coin.IsAvailable(1))
	require.True(t, coin.IsAvailable(2))
}

func TestCoinFromCertNonTopQualitySpendsBwts(t *testing.T) {
	cert := &Certificate{
		Version:     SC_CERT_VERSION,
		FirstBwtPos: 1,
		Vout:        []TxOut{makeOut(100), makeOut(3), makeOut(7)},
	}

	top := NewCoinFromCert(cert, 10, 25, true)
	require.True(t, top.IsAvailable(1))
	require.True(t, top.IsAvailable(2))
	require.Equal(t, int32(25), top.BwtMaturityHeight)

	low := NewCoinFromCert(cert, 10, 25, false)
	require.True(t, low.IsAvailable(0), "change output survives")
	require.False(t, low.IsAvailable(1))
	require.False(t, low.IsAvailable(2))
	require.Len(t, low.Outputs, 1, "nulled bwts trimmed")
}

func TestCoinSpendAndPrune(t *testing.T) {
	tx := &Tx{Version: TRANSPARENT_TX_VERSION, Vout: []TxOut{makeOut(1), makeOut(2)}}
	coin := NewCoinFromTx(tx, 7)

	require.True(t, coin.Spend(1))
	require.False(t, coin.Spend(1), "double spend of the same position")
	require.False(t, coin.Spend(9), "out of range")
	require.False(t, coin.IsPruned())

	require.True(t, coin.Spend(0))
	require.True(t, coin.IsPruned())
	require.Empty(t, coin.Outputs, "trailing nulls trimmed on final spend")
}

func TestPrunedCoinsCompareEqual(t *testing.T) {
	a := Coin{Height: 10, Version: TRANSPARENT_TX_VERSION, FirstBwtPos: NO_BWT}
	b := Coin{Height: 99, Version: SC_CERT_VERSION, FirstBwtPos: 2}
	require.True(t, a.Equal(&b))

	c := a
	c.Outputs = []TxOut{makeOut(5)}
	require.False(t, a.Equal(&c))
}

func TestCoinVersionDiscriminator(t *testing.T) {
	tests := []struct {
		version  int32
		fromCert bool
	}{
		{SC_CERT_VERSION, true},
		{SC_TX_VERSION, false},
		{GROTH_TX_VERSION, false},
		{TRANSPARENT_TX_VERSION, false},
		{PHGR_TX_VERSION, false},
		// Only the low 7 bits survive storage of negative versions.
		{SC_CERT_VERSION & 0x7f, true},
	}
	for _, tc := range tests {
		c := Coin{Version: tc.version}
		require.Equal(t, tc.fromCert, c.IsFromCert(), "version %d", tc.version)
	}
}

func TestCoinOutputMaturity(t *testing.T) {
	regular := Coin{Version: TRANSPARENT_TX_VERSION, Height: 100, Outputs: []TxOut{makeOut(1)}, FirstBwtPos: NO_BWT}
	require.True(t, regular.IsOutputMature(0, 100))

	coinbase := Coin{IsCoinBase: true, Version: TRANSPARENT_TX_VERSION, Height: 100, Outputs: []TxOut{makeOut(1)}, FirstBwtPos: NO_BWT}
	require.False(t, coinbase.IsOutputMature(0, 100+COINBASE_MATURITY-1))
	require.True(t, coinbase.IsOutputMature(0, 100+COINBASE_MATURITY))

	cert := Coin{
		Version:           SC_CERT_VERSION,
		Height:            100,
		Outputs:           []TxOut{makeOut(1), makeOut(2)},
		FirstBwtPos:       1,
		BwtMaturityHeight: 130,
	}
	require.True(t, cert.IsOutputMature(0, 100), "change is spendable immediately")
	require.False(t, cert.IsOutputMature(1, 129))
	require.True(t, cert.IsOutputMature(1, 130))
}
