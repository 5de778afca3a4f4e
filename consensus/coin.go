package consensus

import "math"

// NO_BWT marks a coin without backward-transfer outputs.
const NO_BWT = uint32(math.MaxUint32)

// Coin is the unspent output set of one issuing object, a transaction or a
// certificate, with the metadata needed to decide maturity and prunability.
// Outputs is sparse: spent or unspendable slots are null, trailing nulls are
// trimmed.
type Coin struct {
	IsCoinBase bool
	Outputs    []TxOut
	Height     int32
	Version    int32

	// FirstBwtPos is the index where backward-transfer outputs begin,
	// NO_BWT when the source object carried none.
	FirstBwtPos       uint32
	BwtMaturityHeight int32
}

// NewCoinFromTx populates a coin from a regular transaction at the given
// height. Unspendable outputs are nulled and trailing nulls trimmed.
func NewCoinFromTx(tx *Tx, height int32) Coin {
	c := Coin{
		IsCoinBase:        tx.IsCoinBase(),
		Outputs:           append([]TxOut(nil), tx.Vout...),
		Height:            height,
		Version:           tx.Version,
		FirstBwtPos:       NO_BWT,
		BwtMaturityHeight: 0,
	}
	c.clearUnspendable()
	return c
}

// NewCoinFromCert populates a coin from a certificate. When the certificate
// is not the block's top-quality one for its sidechain and epoch, its
// backward transfers are spent immediately: they belong to a superseded cert.
func NewCoinFromCert(cert *Certificate, height int32, bwtMaturityHeight int32, isBlockTopQuality bool) Coin {
	c := Coin{
		IsCoinBase:        false,
		Outputs:           append([]TxOut(nil), cert.Vout...),
		Height:            height,
		Version:           cert.Version,
		FirstBwtPos:       cert.FirstBwtPos,
		BwtMaturityHeight: bwtMaturityHeight,
	}
	if !isBlockTopQuality {
		for pos := c.FirstBwtPos; pos < uint32(len(c.Outputs)); pos++ {
			c.Outputs[pos].SetNull()
		}
	}
	c.clearUnspendable()
	return c
}

func (c *Coin) Clear() {
	*c = Coin{FirstBwtPos: NO_BWT}
}

// Cleanup trims trailing null outputs.
func (c *Coin) Cleanup() {
	for len(c.Outputs) > 0 && c.Outputs[len(c.Outputs)-1].IsNull() {
		c.Outputs = c.Outputs[:len(c.Outputs)-1]
	}
	if len(c.Outputs) == 0 {
		c.Outputs = nil
	}
}

func (c *Coin) clearUnspendable() {
	for i := range c.Outputs {
		if c.Outputs[i].IsUnspendable() {
			c.Outputs[i].SetNull()
		}
	}
	c.Cleanup()
}

// IsFromCert reports whether the coin was created by a certificate. When
// restored from storage a negative version keeps only its low 7 bits, and the
// closed version set guarantees no other member shares this ending.
func (c *Coin) IsFromCert() bool {
	return (c.Version & 0x7f) == (SC_CERT_VERSION & 0x7f)
}

// IsOutputMature reports whether output pos may be spent at spendHeight.
func (c *Coin) IsOutputMature(pos uint32, spendHeight int32) bool {
	if !c.IsCoinBase && !c.IsFromCert() {
		return true
	}
	if c.IsCoinBase {
		return spendHeight >= c.Height+COINBASE_MATURITY
	}
	// hereinafter a cert
	if pos >= c.FirstBwtPos {
		return spendHeight >= c.BwtMaturityHeight
	}
	return true
}

// Spend nulls output pos. It fails when pos is out of range or already null.
func (c *Coin) Spend(pos uint32) bool {
	if pos >= uint32(len(c.Outputs)) || c.Outputs[pos].IsNull() {
		return false
	}
	c.Outputs[pos].SetNull()
	c.Cleanup()
	return true
}

func (c *Coin) IsAvailable(pos uint32) bool {
	return pos < uint32(len(c.Outputs)) && !c.Outputs[pos].IsNull()
}

func (c *Coin) IsPruned() bool {
	for i := range c.Outputs {
		if !c.Outputs[i].IsNull() {
			return false
		}
	}
	return true
}

// Equal compares two coins. Pruned coins are always equal regardless of
// their other fields.
func (c *Coin) Equal(other *Coin) bool {
	if c.IsPruned() && other.IsPruned() {
		return true
	}
	if c.IsCoinBase != other.IsCoinBase ||
		c.Height != other.Height ||
		c.Version != other.Version ||
		c.FirstBwtPos != other.FirstBwtPos ||
		c.BwtMaturityHeight != other.BwtMaturityHeight ||
		len(c.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range c.Outputs {
		a, b := &c.Outputs[i], &other.Outputs[i]
		if a.Value != b.Value || string(a.PubKeyScript) != string(b.PubKeyScript) {
			return false
		}
	}
	return true
}

// DynamicMemoryUsage approximates the heap bytes held by the coin beyond its
// fixed-size header, for the cache byte accounting.
func (c *Coin) DynamicMemoryUsage() int64 {
	ret := int64(len(c.Outputs)) * int64(txOutOverhead)
	for i := range c.Outputs {
		ret += int64(cap(c.Outputs[i].PubKeyScript))
	}
	return ret
}

const txOutOverhead = 32
