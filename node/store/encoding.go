package store

import (
	"encoding/binary"
	"sort"

	"zenda.dev/node/consensus"
	"zenda.dev/node/node/state"
)

func appendU32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendI32(dst []byte, v int32) []byte {
	return appendU32(dst, uint32(v))
}

func appendI64(dst []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(dst, tmp[:]...)
}

func appendVarBytes(dst []byte, b []byte) []byte {
	dst = consensus.AppendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u8(name string) (byte, error) {
	if r.off+1 > len(r.buf) {
		return 0, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s truncated", name)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32(name string) (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s truncated", name)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *reader) i32(name string) (int32, error) {
	v, err := r.u32(name)
	return int32(v), err
}

func (r *reader) i64(name string) (int64, error) {
	if r.off+8 > len(r.buf) {
		return 0, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s truncated", name)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return int64(v), nil
}

func (r *reader) hash(name string) ([32]byte, error) {
	var out [32]byte
	if r.off+32 > len(r.buf) {
		return out, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s truncated", name)
	}
	copy(out[:], r.buf[r.off:r.off+32])
	r.off += 32
	return out, nil
}

func (r *reader) compactSize(name string) (uint64, error) {
	v, n, err := consensus.DecodeCompactSize(r.buf[r.off:])
	if err != nil {
		return 0, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s: %v", name, err)
	}
	r.off += n
	return v, nil
}

func (r *reader) varBytes(name string) ([]byte, error) {
	n, err := r.compactSize(name)
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.off) < n {
		return nil, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s truncated", name)
	}
	out := append([]byte(nil), r.buf[r.off:r.off+int(n)]...)
	r.off += int(n)
	return out, nil
}

func (r *reader) done(name string) error {
	if r.off != len(r.buf) {
		return consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: %s trailing bytes", name)
	}
	return nil
}

// Coin value layout:
// version i32 | coinbase u8 | height i32 | first_bwt_pos u32 |
// bwt_maturity_height i32 | output_count CompactSize |
// (null u8 | [value i64 | script varbytes]) per output
func encodeCoin(c *consensus.Coin) []byte {
	out := make([]byte, 0, 32+24*len(c.Outputs))
	out = appendI32(out, c.Version)
	if c.IsCoinBase {
		out = append(out, 0x01)
	} else {
		out = append(out, 0x00)
	}
	out = appendI32(out, c.Height)
	out = appendU32(out, c.FirstBwtPos)
	out = appendI32(out, c.BwtMaturityHeight)
	out = consensus.AppendCompactSize(out, uint64(len(c.Outputs)))
	for i := range c.Outputs {
		if c.Outputs[i].IsNull() {
			out = append(out, 0x01)
			continue
		}
		out = append(out, 0x00)
		out = appendI64(out, c.Outputs[i].Value)
		out = appendVarBytes(out, c.Outputs[i].PubKeyScript)
	}
	return out
}

func decodeCoin(b []byte) (consensus.Coin, error) {
	r := &reader{buf: b}
	var c consensus.Coin

	version, err := r.i32("coin version")
	if err != nil {
		return c, err
	}
	if !consensus.ValidCoinVersion(version) {
		return c, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: coin version %d outside closed set", version)
	}
	c.Version = version

	coinbase, err := r.u8("coin coinbase flag")
	if err != nil {
		return c, err
	}
	c.IsCoinBase = coinbase == 0x01

	if c.Height, err = r.i32("coin height"); err != nil {
		return c, err
	}
	if c.FirstBwtPos, err = r.u32("coin first_bwt_pos"); err != nil {
		return c, err
	}
	if c.BwtMaturityHeight, err = r.i32("coin bwt_maturity_height"); err != nil {
		return c, err
	}

	count, err := r.compactSize("coin output count")
	if err != nil {
		return c, err
	}
	c.Outputs = make([]consensus.TxOut, count)
	for i := range c.Outputs {
		nullFlag, err := r.u8("coin output null flag")
		if err != nil {
			return c, err
		}
		if nullFlag == 0x01 {
			c.Outputs[i].SetNull()
			continue
		}
		if c.Outputs[i].Value, err = r.i64("coin output value"); err != nil {
			return c, err
		}
		if c.Outputs[i].PubKeyScript, err = r.varBytes("coin output script"); err != nil {
			return c, err
		}
	}
	return c, r.done("coin")
}

// Sidechain value layout:
// balance i64 | creation_block_hash 32 | creation_block_height i32 |
// creation_tx_hash 32 | state u8 |
// epoch_length i32 | custom_data varbytes | constant varbytes |
// w_cert_vk varbytes | has_w_ceased_vk u8 [| w_ceased_vk varbytes] |
// prev_epoch i32 | prev_hash 32 | prev_quality i64 | prev_bwt_amount i64 |
// immature_count CompactSize | (height i32 | amount i64) per entry
func encodeSidechain(sc *consensus.Sidechain) []byte {
	out := make([]byte, 0, 256)
	out = appendI64(out, sc.Balance)
	out = append(out, sc.CreationBlockHash[:]...)
	out = appendI32(out, sc.CreationBlockHeight)
	out = append(out, sc.CreationTxHash[:]...)
	out = append(out, byte(sc.CurrentState))
	out = appendI32(out, sc.CreationData.WithdrawalEpochLength)
	out = appendVarBytes(out, sc.CreationData.CustomData)
	out = appendVarBytes(out, sc.CreationData.Constant)
	out = appendVarBytes(out, sc.CreationData.WCertVk)
	if sc.CreationData.WCeasedVk != nil {
		out = append(out, 0x01)
		out = appendVarBytes(out, sc.CreationData.WCeasedVk)
	} else {
		out = append(out, 0x00)
	}
	out = appendI32(out, sc.PrevBlockTopQualityCertReferencedEpoch)
	out = append(out, sc.PrevBlockTopQualityCertHash[:]...)
	out = appendI64(out, sc.PrevBlockTopQualityCertQuality)
	out = appendI64(out, sc.PrevBlockTopQualityCertBwtAmount)

	out = consensus.AppendCompactSize(out, uint64(len(sc.ImmatureAmounts)))
	for _, height := range sortedHeights(sc.ImmatureAmounts) {
		out = appendI32(out, height)
		out = appendI64(out, sc.ImmatureAmounts[height])
	}
	return out
}

func sortedHeights(m map[int32]int64) []int32 {
	heights := make([]int32, 0, len(m))
	for h := range m {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

func decodeSidechain(b []byte) (consensus.Sidechain, error) {
	r := &reader{buf: b}
	sc := consensus.NewSidechain()
	var err error

	if sc.Balance, err = r.i64("sc balance"); err != nil {
		return sc, err
	}
	if sc.CreationBlockHash, err = r.hash("sc creation block hash"); err != nil {
		return sc, err
	}
	if sc.CreationBlockHeight, err = r.i32("sc creation height"); err != nil {
		return sc, err
	}
	if sc.CreationTxHash, err = r.hash("sc creation tx hash"); err != nil {
		return sc, err
	}
	stateByte, err := r.u8("sc state")
	if err != nil {
		return sc, err
	}
	sc.CurrentState = consensus.SidechainState(stateByte)

	if sc.CreationData.WithdrawalEpochLength, err = r.i32("sc epoch length"); err != nil {
		return sc, err
	}
	if sc.CreationData.CustomData, err = r.varBytes("sc custom data"); err != nil {
		return sc, err
	}
	if sc.CreationData.Constant, err = r.varBytes("sc constant"); err != nil {
		return sc, err
	}
	if sc.CreationData.WCertVk, err = r.varBytes("sc cert vk"); err != nil {
		return sc, err
	}
	hasCeasedVk, err := r.u8("sc ceased vk flag")
	if err != nil {
		return sc, err
	}
	if hasCeasedVk == 0x01 {
		if sc.CreationData.WCeasedVk, err = r.varBytes("sc ceased vk"); err != nil {
			return sc, err
		}
	}

	if sc.PrevBlockTopQualityCertReferencedEpoch, err = r.i32("sc prev epoch"); err != nil {
		return sc, err
	}
	if sc.PrevBlockTopQualityCertHash, err = r.hash("sc prev cert hash"); err != nil {
		return sc, err
	}
	if sc.PrevBlockTopQualityCertQuality, err = r.i64("sc prev quality"); err != nil {
		return sc, err
	}
	if sc.PrevBlockTopQualityCertBwtAmount, err = r.i64("sc prev bwt amount"); err != nil {
		return sc, err
	}

	count, err := r.compactSize("sc immature count")
	if err != nil {
		return sc, err
	}
	for i := uint64(0); i < count; i++ {
		height, err := r.i32("sc immature height")
		if err != nil {
			return sc, err
		}
		amount, err := r.i64("sc immature amount")
		if err != nil {
			return sc, err
		}
		sc.ImmatureAmounts[height] = amount
	}
	return sc, r.done("sidechain")
}

// Events value layout:
// maturing_count CompactSize | scid 32 per entry |
// ceasing_count CompactSize | scid 32 per entry
func encodeEvents(ev *consensus.SidechainEvents) []byte {
	out := make([]byte, 0, 9+32*(len(ev.MaturingScIds)+len(ev.CeasingScIds)))
	out = consensus.AppendCompactSize(out, uint64(len(ev.MaturingScIds)))
	for scId := range ev.MaturingScIds {
		out = append(out, scId[:]...)
	}
	out = consensus.AppendCompactSize(out, uint64(len(ev.CeasingScIds)))
	for scId := range ev.CeasingScIds {
		out = append(out, scId[:]...)
	}
	return out
}

func decodeEvents(b []byte) (consensus.SidechainEvents, error) {
	r := &reader{buf: b}
	ev := consensus.NewSidechainEvents()

	maturing, err := r.compactSize("events maturing count")
	if err != nil {
		return ev, err
	}
	for i := uint64(0); i < maturing; i++ {
		scId, err := r.hash("events maturing scid")
		if err != nil {
			return ev, err
		}
		ev.MaturingScIds[scId] = struct{}{}
	}

	ceasing, err := r.compactSize("events ceasing count")
	if err != nil {
		return ev, err
	}
	for i := uint64(0); i < ceasing; i++ {
		scId, err := r.hash("events ceasing scid")
		if err != nil {
			return ev, err
		}
		ev.CeasingScIds[scId] = struct{}{}
	}
	return ev, r.done("events")
}

func encodeHeightKey(height int32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(height))
	return out
}

func encodeCswNullifierKey(key state.CswNullifierKey) []byte {
	out := make([]byte, 0, 64)
	out = append(out, key.ScId[:]...)
	return append(out, key.Nullifier[:]...)
}

func encodeCertDataKey(key state.CertDataKey) []byte {
	out := make([]byte, 0, 36)
	out = append(out, key.ScId[:]...)
	return appendI32(out, key.Epoch)
}

func encodeCertDataHashes(h state.CertDataHashes) []byte {
	out := make([]byte, 0, 64)
	out = append(out, h.CertDataHash[:]...)
	return append(out, h.PrevCumulativeHash[:]...)
}

func decodeCertDataHashes(b []byte) (state.CertDataHashes, error) {
	var out state.CertDataHashes
	if len(b) != 64 {
		return out, consensus.Errf(consensus.INTERNAL_ASSERTION, "decode: cert data hashes expected 64 bytes, got %d", len(b))
	}
	copy(out.CertDataHash[:], b[0:32])
	copy(out.PrevCumulativeHash[:], b[32:64])
	return out, nil
}
