package consensus

const (
	// OP_RETURN marks provably unspendable scripts; such outputs never enter
	// the coin set.
	opReturn = 0x6a

	maxScriptSize = 10_000
)

type OutPoint struct {
	Hash [32]byte
	N    uint32
}

func (p OutPoint) IsNull() bool {
	return p.Hash == ([32]byte{}) && p.N == 0xffffffff
}

type TxIn struct {
	PrevOut OutPoint
}

// TxOut is one output of a transaction or certificate. A null output (value
// sentinel -1, empty script) marks a spent or unspendable slot inside a Coin.
type TxOut struct {
	Value        int64
	PubKeyScript []byte
}

func (o *TxOut) SetNull() {
	o.Value = -1
	o.PubKeyScript = nil
}

func (o *TxOut) IsNull() bool {
	return o.Value == -1 && len(o.PubKeyScript) == 0
}

func (o *TxOut) IsUnspendable() bool {
	return (len(o.PubKeyScript) > 0 && o.PubKeyScript[0] == opReturn) ||
		len(o.PubKeyScript) > maxScriptSize
}

// JoinSplit carries the shielded-pool data the state core cares about: the
// anchor the spend proves against, the nullifiers it reveals and the note
// commitments it appends.
type JoinSplit struct {
	Anchor      [32]byte
	Nullifiers  [][32]byte
	Commitments [][32]byte
}

// ScCreationOut declares a new sidechain.
type ScCreationOut struct {
	ScId                  [32]byte
	Value                 int64
	Address               [32]byte
	WithdrawalEpochLength int32
	CustomData            []byte
	Constant              []byte
	WCertVk               []byte
	// WCeasedVk enables ceased-sidechain withdrawals; nil means unsupported.
	WCeasedVk []byte
}

// ForwardTransferOut moves value from this chain into an existing sidechain.
type ForwardTransferOut struct {
	ScId    [32]byte
	Value   int64
	Address [32]byte
}

// BwtRequestOut is a mainchain backward-transfer request.
type BwtRequestOut struct {
	ScId          [32]byte
	ScFee         int64
	ScRequestData [][]byte
	McDestination [20]byte
}

// CswInput claims value back from a ceased sidechain.
type CswInput struct {
	ScId       [32]byte
	Value      int64
	Nullifier  [32]byte
	Epoch      int32
	PubKeyHash [20]byte
	Proof      []byte
}

type Tx struct {
	Version    int32
	Vin        []TxIn
	Vout       []TxOut
	VjoinSplit []JoinSplit

	VscCcOut []ScCreationOut
	VftCcOut []ForwardTransferOut
	VbwtrOut []BwtRequestOut
	VcswCcIn []CswInput

	Nonce [32]byte
}

func (tx *Tx) IsCoinBase() bool {
	return len(tx.Vin) == 1 && tx.Vin[0].PrevOut.IsNull()
}

func (tx *Tx) IsScVersion() bool {
	return tx.Version == SC_TX_VERSION
}

// CcIsNull reports whether the transaction carries no cross-chain payload.
func (tx *Tx) CcIsNull() bool {
	return len(tx.VscCcOut) == 0 && len(tx.VftCcOut) == 0 &&
		len(tx.VbwtrOut) == 0 && len(tx.VcswCcIn) == 0
}

const (
	EPOCH_NULL   = int32(-1)
	QUALITY_NULL = int64(-1)
)

// BackwardTransfer is the payout view of a certificate output at or past
// FirstBwtPos: amount plus the mainchain destination key hash.
type BackwardTransfer struct {
	Amount     int64
	PubKeyHash [20]byte
}

type Certificate struct {
	Version           int32
	ScId              [32]byte
	EpochNumber       int32
	Quality           int64
	EndEpochBlockHash [32]byte

	// EndEpochCumScTxCommTreeRoot is the cumulative commitment-tree root the
	// certificate proof is bound to.
	EndEpochCumScTxCommTreeRoot [32]byte

	// Vout holds change outputs first, backward transfers from FirstBwtPos on.
	Vout        []TxOut
	FirstBwtPos uint32

	CustomFields [][]byte

	ForwardTransferScFee     int64
	MainchainBwtRequestScFee int64

	Nonce [32]byte
}

func (c *Certificate) ValueOfBackwardTransfers() int64 {
	var total int64
	for pos := int(c.FirstBwtPos); pos < len(c.Vout); pos++ {
		total += c.Vout[pos].Value
	}
	return total
}

func (c *Certificate) NumBackwardTransfers() int {
	if int(c.FirstBwtPos) >= len(c.Vout) {
		return 0
	}
	return len(c.Vout) - int(c.FirstBwtPos)
}

// BackwardTransfers projects the bwt outputs in output order. The key hash is
// the leading 20 bytes of the output script, the layout certificate outputs
// are built with.
func (c *Certificate) BackwardTransfers() []BackwardTransfer {
	out := make([]BackwardTransfer, 0, c.NumBackwardTransfers())
	for pos := int(c.FirstBwtPos); pos < len(c.Vout); pos++ {
		var bt BackwardTransfer
		bt.Amount = c.Vout[pos].Value
		copy(bt.PubKeyHash[:], c.Vout[pos].PubKeyScript)
		out = append(out, bt)
	}
	return out
}
