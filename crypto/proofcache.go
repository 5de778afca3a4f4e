package crypto

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/sha3"

	"zenda.dev/node/consensus"
)

// CachingVerifier memoizes proof-verification verdicts keyed by a digest of
// the full verifier input. SNARK verification dominates certificate
// processing time and the same certificate is typically verified once on
// mempool admission and again on block connect.
type CachingVerifier struct {
	inner ProofVerifier
	cache *lru.Cache
}

func NewCachingVerifier(inner ProofVerifier, size int) (*CachingVerifier, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingVerifier{inner: inner, cache: c}, nil
}

func (v *CachingVerifier) VerifyCertificate(constant []byte, certVk []byte, prevEndEpochBlockHash [32]byte, cert *consensus.Certificate) bool {
	h := sha3.New256()
	h.Write([]byte{0x01})
	h.Write(constant)
	h.Write(certVk)
	h.Write(prevEndEpochBlockHash[:])
	h.Write(consensus.CertBytes(cert))
	var key [32]byte
	h.Sum(key[:0])

	if verdict, ok := v.cache.Get(key); ok {
		return verdict.(bool)
	}
	verdict := v.inner.VerifyCertificate(constant, certVk, prevEndEpochBlockHash, cert)
	v.cache.Add(key, verdict)
	return verdict
}

func (v *CachingVerifier) VerifyCsw(prevCumCertDataHash [32]byte, curCertDataHash [32]byte, lastCumCertDataHash [32]byte,
	ceasedVk []byte, in *consensus.CswInput) bool {
	h := sha3.New256()
	h.Write([]byte{0x02})
	h.Write(prevCumCertDataHash[:])
	h.Write(curCertDataHash[:])
	h.Write(lastCumCertDataHash[:])
	h.Write(ceasedVk)
	h.Write(in.ScId[:])
	var fixed [12]byte
	binary.LittleEndian.PutUint64(fixed[:8], uint64(in.Value))
	binary.LittleEndian.PutUint32(fixed[8:], uint32(in.Epoch))
	h.Write(fixed[:])
	h.Write(in.Nullifier[:])
	h.Write(in.PubKeyHash[:])
	h.Write(in.Proof)
	var key [32]byte
	h.Sum(key[:0])

	if verdict, ok := v.cache.Get(key); ok {
		return verdict.(bool)
	}
	verdict := v.inner.VerifyCsw(prevCumCertDataHash, curCertDataHash, lastCumCertDataHash, ceasedVk, in)
	v.cache.Add(key, verdict)
	return verdict
}
