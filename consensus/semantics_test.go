package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxSemanticsVersionConsistency(t *testing.T) {
	params := MainParams()

	// A transparent tx with a cross-chain payload is malformed.
	bad := &Tx{
		Version:  TRANSPARENT_TX_VERSION,
		VftCcOut: []ForwardTransferOut{{ScId: [32]byte{1}, Value: 5}},
	}
	require.Error(t, CheckTxSemanticValidity(bad, params))

	// Without cross-chain data it is simply not our concern.
	require.NoError(t, CheckTxSemanticValidity(&Tx{Version: TRANSPARENT_TX_VERSION}, params))
}

func TestTxSemanticsCreationBounds(t *testing.T) {
	params := MainParams()
	mk := func(epochLen int32, value int64, customLen int) *Tx {
		return &Tx{
			Version: SC_TX_VERSION,
			VscCcOut: []ScCreationOut{{
				ScId:                  [32]byte{1},
				Value:                 value,
				WithdrawalEpochLength: epochLen,
				CustomData:            make([]byte, customLen),
				WCertVk:               []byte{0x01},
			}},
		}
	}

	require.NoError(t, CheckTxSemanticValidity(mk(10, 5, 16), params))

	err := CheckTxSemanticValidity(mk(params.MinWithdrawalEpochLength-1, 5, 0), params)
	require.Equal(t, EPOCH_INVALID, ErrCode(err))

	err = CheckTxSemanticValidity(mk(10, 0, 0), params)
	require.Equal(t, BALANCE_EXCEEDED, ErrCode(err))

	err = CheckTxSemanticValidity(mk(10, 5, params.MaxCustomDataLen+1), params)
	require.Equal(t, UNKNOWN_OUTPUT_TYPE, ErrCode(err))
}

func TestCertSemantics(t *testing.T) {
	cert := &Certificate{
		Version:     SC_CERT_VERSION,
		ScId:        [32]byte{1},
		Quality:     3,
		FirstBwtPos: 0,
		Vout:        []TxOut{{Value: 5, PubKeyScript: make([]byte, 20)}},
	}
	require.NoError(t, CheckCertSemanticValidity(cert))

	negative := *cert
	negative.Quality = -1
	require.Equal(t, QUALITY_REJECTED, ErrCode(CheckCertSemanticValidity(&negative)))

	badPos := *cert
	badPos.FirstBwtPos = 2
	require.Error(t, CheckCertSemanticValidity(&badPos))

	badAmount := *cert
	badAmount.Vout = []TxOut{{Value: -5, PubKeyScript: make([]byte, 20)}}
	require.Equal(t, BALANCE_EXCEEDED, ErrCode(CheckCertSemanticValidity(&badAmount)))
}
