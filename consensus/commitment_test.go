package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func commitmentScTx(scId byte, value int64) *Tx {
	return &Tx{
		Version: SC_TX_VERSION,
		VscCcOut: []ScCreationOut{{
			ScId:                  [32]byte{scId},
			Value:                 value,
			WithdrawalEpochLength: 10,
			WCertVk:               []byte{0x01},
		}},
		VftCcOut: []ForwardTransferOut{{ScId: [32]byte{scId}, Value: value * 2}},
	}
}

func TestCommitmentDeterministic(t *testing.T) {
	build := func() [32]byte {
		b := NewTxsCommitmentBuilder()
		b.Add(commitmentScTx('a', 10))
		b.Add(commitmentScTx('b', 20))
		b.AddCert(qcert('a', 0, 100))
		return b.Commitment()
	}
	require.Equal(t, build(), build())
}

func TestCommitmentEmpty(t *testing.T) {
	b := NewTxsCommitmentBuilder()
	require.Equal(t, [32]byte{}, b.Commitment())

	// Non-sidechain transactions contribute nothing.
	b.Add(&Tx{Version: TRANSPARENT_TX_VERSION, Vout: []TxOut{makeOut(5)}})
	require.Equal(t, [32]byte{}, b.Commitment())
}

func TestCommitmentSensitiveToContent(t *testing.T) {
	base := NewTxsCommitmentBuilder()
	base.Add(commitmentScTx('a', 10))

	other := NewTxsCommitmentBuilder()
	other.Add(commitmentScTx('a', 11))

	require.NotEqual(t, base.Commitment(), other.Commitment())
}

func TestCommitmentSensitiveToTxOrderWithinSidechain(t *testing.T) {
	tx1 := commitmentScTx('a', 10)
	tx2 := &Tx{
		Version:  SC_TX_VERSION,
		VftCcOut: []ForwardTransferOut{{ScId: [32]byte{'a'}, Value: 7}},
	}

	forward := NewTxsCommitmentBuilder()
	forward.Add(tx1)
	forward.Add(tx2)

	reversed := NewTxsCommitmentBuilder()
	reversed.Add(tx2)
	reversed.Add(tx1)

	require.NotEqual(t, forward.Commitment(), reversed.Commitment())
}

func TestCommitmentInsensitiveToSidechainInsertionOrder(t *testing.T) {
	// Per-sidechain roots fold in sorted id order, so which sidechain was
	// touched first does not matter.
	ab := NewTxsCommitmentBuilder()
	ab.Add(commitmentScTx('a', 10))
	ab.Add(commitmentScTx('b', 20))

	ba := NewTxsCommitmentBuilder()
	ba.Add(commitmentScTx('b', 20))
	ba.Add(commitmentScTx('a', 10))

	require.Equal(t, ab.Commitment(), ba.Commitment())
}

func TestCommitmentCertFieldsMatter(t *testing.T) {
	mk := func(quality int64) [32]byte {
		b := NewTxsCommitmentBuilder()
		cert := qcert('a', 3, quality)
		cert.FirstBwtPos = 0
		cert.Vout = []TxOut{{Value: 9, PubKeyScript: make([]byte, 20)}}
		b.AddCert(cert)
		return b.Commitment()
	}
	require.NotEqual(t, mk(1), mk(2))
}
