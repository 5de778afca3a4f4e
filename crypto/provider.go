package crypto

import "zenda.dev/node/consensus"

// ProofVerifier is the oracle the state core consults before accepting a
// certificate or a ceased-sidechain withdrawal. Implementations must be
// side-effect-free: the cache may call them any number of times, including
// zero when an earlier check already rejected the object.
type ProofVerifier interface {
	VerifyCertificate(constant []byte, certVk []byte, prevEndEpochBlockHash [32]byte, cert *consensus.Certificate) bool

	VerifyCsw(prevCumCertDataHash [32]byte, curCertDataHash [32]byte, lastCumCertDataHash [32]byte,
		ceasedVk []byte, in *consensus.CswInput) bool
}
