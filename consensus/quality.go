package consensus

// CheckCertificatesOrdering validates the certificate sequence of one block:
// all certificates for one sidechain must reference the same epoch, with
// strictly increasing quality. This also forbids two certificates sharing
// (sc_id, epoch, quality).
func CheckCertificatesOrdering(certs []*Certificate) error {
	type lastSeen struct {
		epoch   int32
		quality int64
	}
	seen := make(map[[32]byte]lastSeen, len(certs))

	for _, cert := range certs {
		prev, ok := seen[cert.ScId]
		if ok {
			if cert.EpochNumber != prev.epoch {
				return Errf(EPOCH_INVALID,
					"cert for epoch %d after cert for epoch %d in same block", cert.EpochNumber, prev.epoch)
			}
			if cert.Quality <= prev.quality {
				return Errf(QUALITY_REJECTED,
					"cert quality %d not above preceding quality %d for same sidechain and epoch",
					cert.Quality, prev.quality)
			}
		}
		seen[cert.ScId] = lastSeen{epoch: cert.EpochNumber, quality: cert.Quality}
	}
	return nil
}
