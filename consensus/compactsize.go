package consensus

import "encoding/binary"

// CompactSize is the Bitcoin-style varint used by the store codecs for
// variable-length fields.

// AppendCompactSize appends the minimal CompactSize encoding of n to dst.
func AppendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(n))
		return append(append(dst, 0xfd), tmp[:]...)
	case n <= 0xffff_ffff:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(n))
		return append(append(dst, 0xfe), tmp[:]...)
	default:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], n)
		return append(append(dst, 0xff), tmp[:]...)
	}
}

// DecodeCompactSize decodes one CompactSize value from the front of buf.
// Returns the decoded value and the number of bytes consumed. Non-minimal
// encodings are rejected.
func DecodeCompactSize(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: empty buffer")
	}
	tag := buf[0]
	switch {
	case tag < 0xfd:
		return uint64(tag), 1, nil
	case tag == 0xfd:
		if len(buf) < 3 {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: truncated (0xfd)")
		}
		v := binary.LittleEndian.Uint16(buf[1:3])
		if v < 0xfd {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: non-minimal (0xfd)")
		}
		return uint64(v), 3, nil
	case tag == 0xfe:
		if len(buf) < 5 {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: truncated (0xfe)")
		}
		v := binary.LittleEndian.Uint32(buf[1:5])
		if v <= 0xffff {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: non-minimal (0xfe)")
		}
		return uint64(v), 5, nil
	default:
		if len(buf) < 9 {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: truncated (0xff)")
		}
		v := binary.LittleEndian.Uint64(buf[1:9])
		if v <= 0xffff_ffff {
			return 0, 0, scerr(INTERNAL_ASSERTION, "compactsize: non-minimal (0xff)")
		}
		return v, 9, nil
	}
}
