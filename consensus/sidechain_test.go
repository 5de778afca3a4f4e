package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func aliveSidechain(creationHeight int32, epochLength int32) Sidechain {
	sc := NewSidechain()
	sc.CreationBlockHeight = creationHeight
	sc.CreationData.WithdrawalEpochLength = epochLength
	sc.CurrentState = StateAlive
	return sc
}

func TestSidechainEpochMath(t *testing.T) {
	sc := aliveSidechain(100, 10)

	require.Equal(t, int32(0), sc.EpochFor(100))
	require.Equal(t, int32(0), sc.EpochFor(109))
	require.Equal(t, int32(1), sc.EpochFor(110))
	require.Equal(t, int32(100), sc.StartHeightForEpoch(0))
	require.Equal(t, int32(110), sc.StartHeightForEpoch(1))
	require.Equal(t, int32(2), sc.SafeguardMargin())

	// No cert yet: ceasing after epoch 0's safeguard.
	require.Equal(t, sc.StartHeightForEpoch(1)+sc.SafeguardMargin(), sc.CeasingHeight())

	sc.PrevBlockTopQualityCertReferencedEpoch = 3
	require.Equal(t, int32(100+5*10+2), sc.CeasingHeight())
}

func TestSidechainDefaultsAreNull(t *testing.T) {
	sc := NewSidechain()
	require.Equal(t, EPOCH_NULL, sc.EpochFor(500))
	require.Equal(t, int32(-1), sc.StartHeightForEpoch(2))
	require.Equal(t, int32(-1), sc.SafeguardMargin())
	require.Equal(t, int32(-1), sc.CeasingHeight())
	require.Equal(t, StateNotApplicable, sc.CurrentState)
}

func TestSidechainCopyIsDeep(t *testing.T) {
	sc := aliveSidechain(5, 10)
	sc.ImmatureAmounts[7] = 100
	sc.CreationData.CustomData = []byte{0xaa}

	cp := sc.Copy()
	cp.ImmatureAmounts[7] = 999
	cp.CreationData.CustomData[0] = 0xbb

	require.Equal(t, int64(100), sc.ImmatureAmounts[7])
	require.Equal(t, byte(0xaa), sc.CreationData.CustomData[0])
	require.False(t, sc.Equal(&cp))
}

func TestSidechainEventsIsNull(t *testing.T) {
	ev := NewSidechainEvents()
	require.True(t, ev.IsNull())

	ev.MaturingScIds[[32]byte{1}] = struct{}{}
	require.False(t, ev.IsNull())

	delete(ev.MaturingScIds, [32]byte{1})
	ev.CeasingScIds[[32]byte{2}] = struct{}{}
	require.False(t, ev.IsNull())
}
