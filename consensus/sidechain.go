package consensus

// SidechainState is the lifecycle state of a sidechain descriptor.
type SidechainState uint8

const (
	StateNotApplicable SidechainState = iota
	StateAlive
	StateCeased
)

func (s SidechainState) String() string {
	switch s {
	case StateAlive:
		return "ALIVE"
	case StateCeased:
		return "CEASED"
	default:
		return "NOT_APPLICABLE"
	}
}

// SidechainCreationData is the immutable part of a descriptor, fixed by the
// creating transaction output.
type SidechainCreationData struct {
	WithdrawalEpochLength int32
	CustomData            []byte
	Constant              []byte
	WCertVk               []byte
	// WCeasedVk is nil when the sidechain does not support ceased
	// withdrawals.
	WCeasedVk []byte
}

// Sidechain is the mainchain-side descriptor of one sidechain.
type Sidechain struct {
	Balance             int64
	CreationBlockHash   [32]byte
	CreationBlockHeight int32
	CreationTxHash      [32]byte
	CurrentState        SidechainState

	CreationData SidechainCreationData

	// Rolling record of the top-quality certificate of the previous-block
	// tip. Epoch is EPOCH_NULL until the first certificate is committed.
	PrevBlockTopQualityCertReferencedEpoch int32
	PrevBlockTopQualityCertHash            [32]byte
	PrevBlockTopQualityCertQuality         int64
	PrevBlockTopQualityCertBwtAmount       int64

	// ImmatureAmounts maps maturation height to the forward-transfer and
	// creation value that enters Balance at that height.
	ImmatureAmounts map[int32]int64
}

func NewSidechain() Sidechain {
	return Sidechain{
		CreationBlockHeight:                    -1,
		PrevBlockTopQualityCertReferencedEpoch: EPOCH_NULL,
		PrevBlockTopQualityCertQuality:         QUALITY_NULL,
		ImmatureAmounts:                        make(map[int32]int64),
	}
}

// EpochFor returns the withdrawal epoch the target height belongs to.
func (sc *Sidechain) EpochFor(targetHeight int32) int32 {
	if sc.CreationBlockHeight == -1 {
		return EPOCH_NULL
	}
	return (targetHeight - sc.CreationBlockHeight) / sc.CreationData.WithdrawalEpochLength
}

func (sc *Sidechain) StartHeightForEpoch(targetEpoch int32) int32 {
	if sc.CreationBlockHeight == -1 {
		return -1
	}
	return sc.CreationBlockHeight + targetEpoch*sc.CreationData.WithdrawalEpochLength
}

// SafeguardMargin is the grace period of the following epoch during which a
// late certificate may still arrive before the sidechain ceases.
func (sc *Sidechain) SafeguardMargin() int32 {
	if sc.CreationData.WithdrawalEpochLength <= 0 {
		return -1
	}
	return sc.CreationData.WithdrawalEpochLength / 5
}

// CeasingHeight is the height at which the sidechain ceases unless a
// certificate for the next epoch arrives first.
func (sc *Sidechain) CeasingHeight() int32 {
	if sc.CreationData.WithdrawalEpochLength <= 0 {
		return -1
	}
	return sc.StartHeightForEpoch(sc.PrevBlockTopQualityCertReferencedEpoch+2) + sc.SafeguardMargin()
}

// Copy returns a deep copy; the immature-amounts map and byte slices are not
// shared with the receiver.
func (sc *Sidechain) Copy() Sidechain {
	out := *sc
	out.ImmatureAmounts = make(map[int32]int64, len(sc.ImmatureAmounts))
	for h, v := range sc.ImmatureAmounts {
		out.ImmatureAmounts[h] = v
	}
	out.CreationData.CustomData = append([]byte(nil), sc.CreationData.CustomData...)
	out.CreationData.Constant = append([]byte(nil), sc.CreationData.Constant...)
	out.CreationData.WCertVk = append([]byte(nil), sc.CreationData.WCertVk...)
	if sc.CreationData.WCeasedVk != nil {
		out.CreationData.WCeasedVk = append([]byte(nil), sc.CreationData.WCeasedVk...)
	}
	return out
}

// Equal compares descriptors field by field, including immature amounts.
func (sc *Sidechain) Equal(other *Sidechain) bool {
	if sc.Balance != other.Balance ||
		sc.CreationBlockHash != other.CreationBlockHash ||
		sc.CreationBlockHeight != other.CreationBlockHeight ||
		sc.CreationTxHash != other.CreationTxHash ||
		sc.CurrentState != other.CurrentState ||
		sc.PrevBlockTopQualityCertReferencedEpoch != other.PrevBlockTopQualityCertReferencedEpoch ||
		sc.PrevBlockTopQualityCertHash != other.PrevBlockTopQualityCertHash ||
		sc.PrevBlockTopQualityCertQuality != other.PrevBlockTopQualityCertQuality ||
		sc.PrevBlockTopQualityCertBwtAmount != other.PrevBlockTopQualityCertBwtAmount {
		return false
	}
	a, b := &sc.CreationData, &other.CreationData
	if a.WithdrawalEpochLength != b.WithdrawalEpochLength ||
		string(a.CustomData) != string(b.CustomData) ||
		string(a.Constant) != string(b.Constant) ||
		string(a.WCertVk) != string(b.WCertVk) ||
		(a.WCeasedVk == nil) != (b.WCeasedVk == nil) ||
		string(a.WCeasedVk) != string(b.WCeasedVk) {
		return false
	}
	if len(sc.ImmatureAmounts) != len(other.ImmatureAmounts) {
		return false
	}
	for h, v := range sc.ImmatureAmounts {
		if ov, ok := other.ImmatureAmounts[h]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (sc *Sidechain) DynamicMemoryUsage() int64 {
	ret := int64(len(sc.ImmatureAmounts)) * immatureEntryOverhead
	ret += int64(cap(sc.CreationData.CustomData))
	ret += int64(cap(sc.CreationData.Constant))
	ret += int64(cap(sc.CreationData.WCertVk))
	ret += int64(cap(sc.CreationData.WCeasedVk))
	return ret
}

const immatureEntryOverhead = 16

// SidechainEvents is the per-height schedule: sidechains whose immature
// amounts mature at the height and sidechains that cease at it.
type SidechainEvents struct {
	MaturingScIds map[[32]byte]struct{}
	CeasingScIds  map[[32]byte]struct{}
}

func NewSidechainEvents() SidechainEvents {
	return SidechainEvents{
		MaturingScIds: make(map[[32]byte]struct{}),
		CeasingScIds:  make(map[[32]byte]struct{}),
	}
}

func (ev *SidechainEvents) IsNull() bool {
	return len(ev.MaturingScIds) == 0 && len(ev.CeasingScIds) == 0
}

func (ev *SidechainEvents) Copy() SidechainEvents {
	out := NewSidechainEvents()
	for id := range ev.MaturingScIds {
		out.MaturingScIds[id] = struct{}{}
	}
	for id := range ev.CeasingScIds {
		out.CeasingScIds[id] = struct{}{}
	}
	return out
}

func (ev *SidechainEvents) Equal(other *SidechainEvents) bool {
	if len(ev.MaturingScIds) != len(other.MaturingScIds) ||
		len(ev.CeasingScIds) != len(other.CeasingScIds) {
		return false
	}
	for id := range ev.MaturingScIds {
		if _, ok := other.MaturingScIds[id]; !ok {
			return false
		}
	}
	for id := range ev.CeasingScIds {
		if _, ok := other.CeasingScIds[id]; !ok {
			return false
		}
	}
	return true
}

func (ev *SidechainEvents) DynamicMemoryUsage() int64 {
	return int64(len(ev.MaturingScIds)+len(ev.CeasingScIds)) * 48
}
