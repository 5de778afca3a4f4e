package crypto

import (
	"golang.org/x/crypto/sha3"

	"zenda.dev/node/consensus"
)

// DevProofVerifier accepts or rejects everything, per its Result field. Test
// builds use it in place of the SNARK verifier.
type DevProofVerifier struct {
	Result bool
}

func (v DevProofVerifier) VerifyCertificate(_ []byte, _ []byte, _ [32]byte, _ *consensus.Certificate) bool {
	return v.Result
}

func (v DevProofVerifier) VerifyCsw(_ [32]byte, _ [32]byte, _ [32]byte, _ []byte, _ *consensus.CswInput) bool {
	return v.Result
}

// CumulativeCertDataHash chains the previous cumulative hash with the current
// epoch's certificate data hash.
func CumulativeCertDataHash(prevCumulative [32]byte, certDataHash [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, prevCumulative[:]...)
	buf = append(buf, certDataHash[:]...)
	return sha3.Sum256(buf)
}
