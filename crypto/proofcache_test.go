package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zenda.dev/node/consensus"
)

type countingVerifier struct {
	DevProofVerifier
	certCalls int
	cswCalls  int
}

func (v *countingVerifier) VerifyCertificate(constant []byte, certVk []byte, prev [32]byte, cert *consensus.Certificate) bool {
	v.certCalls++
	return v.DevProofVerifier.VerifyCertificate(constant, certVk, prev, cert)
}

func (v *countingVerifier) VerifyCsw(prevCum, cur, lastCum [32]byte, vk []byte, in *consensus.CswInput) bool {
	v.cswCalls++
	return v.DevProofVerifier.VerifyCsw(prevCum, cur, lastCum, vk, in)
}

func TestCachingVerifierMemoizesCertificates(t *testing.T) {
	inner := &countingVerifier{DevProofVerifier: DevProofVerifier{Result: true}}
	cached, err := NewCachingVerifier(inner, 16)
	require.NoError(t, err)

	cert := &consensus.Certificate{Version: consensus.SC_CERT_VERSION, ScId: [32]byte{1}, Quality: 5}

	require.True(t, cached.VerifyCertificate([]byte{1}, []byte{2}, [32]byte{3}, cert))
	require.True(t, cached.VerifyCertificate([]byte{1}, []byte{2}, [32]byte{3}, cert))
	require.Equal(t, 1, inner.certCalls, "second verification served from cache")

	// Any changed input misses the cache.
	require.True(t, cached.VerifyCertificate([]byte{1}, []byte{2}, [32]byte{4}, cert))
	require.Equal(t, 2, inner.certCalls)

	other := *cert
	other.Quality = 6
	require.True(t, cached.VerifyCertificate([]byte{1}, []byte{2}, [32]byte{3}, &other))
	require.Equal(t, 3, inner.certCalls)
}

func TestCachingVerifierMemoizesCsw(t *testing.T) {
	inner := &countingVerifier{DevProofVerifier: DevProofVerifier{Result: false}}
	cached, err := NewCachingVerifier(inner, 16)
	require.NoError(t, err)

	in := &consensus.CswInput{ScId: [32]byte{1}, Value: 3, Nullifier: [32]byte{2}}
	require.False(t, cached.VerifyCsw([32]byte{1}, [32]byte{2}, [32]byte{3}, []byte{4}, in))
	require.False(t, cached.VerifyCsw([32]byte{1}, [32]byte{2}, [32]byte{3}, []byte{4}, in))
	require.Equal(t, 1, inner.cswCalls, "negative verdicts are memoized too")
}

func TestCumulativeCertDataHashChains(t *testing.T) {
	h1 := CumulativeCertDataHash([32]byte{}, [32]byte{1})
	h2 := CumulativeCertDataHash(h1, [32]byte{2})
	require.NotEqual(t, h1, h2)
	require.Equal(t, h2, CumulativeCertDataHash(h1, [32]byte{2}))
}
