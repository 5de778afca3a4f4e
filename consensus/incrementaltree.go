package consensus

// Incremental append-only merkle tree over shielded note commitments. Anchors
// are historical roots of this tree; the cache stores one tree snapshot per
// anchor so reorgs can restore any past root.

const IncrementalTreeDepth = 29

type IncrementalMerkleTree struct {
	left    *[32]byte
	right   *[32]byte
	parents []*[32]byte
}

func NewIncrementalMerkleTree() *IncrementalMerkleTree {
	return &IncrementalMerkleTree{}
}

func combineNodes(depth int, l, r [32]byte) [32]byte {
	buf := make([]byte, 0, 1+32+32)
	buf = append(buf, byte(depth))
	buf = append(buf, l[:]...)
	buf = append(buf, r[:]...)
	return sha3_256(buf)
}

var emptyRoots [IncrementalTreeDepth + 1][32]byte

func init() {
	for d := 1; d <= IncrementalTreeDepth; d++ {
		emptyRoots[d] = combineNodes(d-1, emptyRoots[d-1], emptyRoots[d-1])
	}
}

// Append adds a commitment as the next leaf. It fails once the tree is full.
func (t *IncrementalMerkleTree) Append(leaf [32]byte) error {
	switch {
	case t.left == nil:
		t.left = &leaf
		return nil
	case t.right == nil:
		t.right = &leaf
		return nil
	}

	carry := combineNodes(0, *t.left, *t.right)
	t.left = &leaf
	t.right = nil

	for i := 0; ; i++ {
		if i >= IncrementalTreeDepth-1 {
			return scerr(INTERNAL_ASSERTION, "incremental tree full")
		}
		if i == len(t.parents) {
			node := carry
			t.parents = append(t.parents, &node)
			return nil
		}
		if t.parents[i] == nil {
			node := carry
			t.parents[i] = &node
			return nil
		}
		carry = combineNodes(i+1, *t.parents[i], carry)
		t.parents[i] = nil
	}
}

// Root folds the partially filled tree up to the fixed depth.
func (t *IncrementalMerkleTree) Root() [32]byte {
	l, r := emptyRoots[0], emptyRoots[0]
	if t.left != nil {
		l = *t.left
	}
	if t.right != nil {
		r = *t.right
	}
	root := combineNodes(0, l, r)

	for d := 1; d < IncrementalTreeDepth; d++ {
		if d-1 < len(t.parents) && t.parents[d-1] != nil {
			root = combineNodes(d, *t.parents[d-1], root)
		} else {
			root = combineNodes(d, root, emptyRoots[d])
		}
	}
	return root
}

func (t *IncrementalMerkleTree) Copy() *IncrementalMerkleTree {
	out := &IncrementalMerkleTree{}
	if t.left != nil {
		v := *t.left
		out.left = &v
	}
	if t.right != nil {
		v := *t.right
		out.right = &v
	}
	out.parents = make([]*[32]byte, len(t.parents))
	for i, p := range t.parents {
		if p != nil {
			v := *p
			out.parents[i] = &v
		}
	}
	return out
}

func (t *IncrementalMerkleTree) DynamicMemoryUsage() int64 {
	n := int64(0)
	if t.left != nil {
		n++
	}
	if t.right != nil {
		n++
	}
	for _, p := range t.parents {
		if p != nil {
			n++
		}
	}
	return 64 + n*32
}

// MarshalBinary encodes the tree for the persistent anchors keyspace.
// Layout: left flag+bytes | right flag+bytes | parent_count CompactSize |
// (flag+bytes) per parent.
func (t *IncrementalMerkleTree) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 2+9+33*(2+len(t.parents)))
	out = appendOptNode(out, t.left)
	out = appendOptNode(out, t.right)
	out = AppendCompactSize(out, uint64(len(t.parents)))
	for _, p := range t.parents {
		out = appendOptNode(out, p)
	}
	return out, nil
}

func appendOptNode(dst []byte, n *[32]byte) []byte {
	if n == nil {
		return append(dst, 0x00)
	}
	dst = append(dst, 0x01)
	return append(dst, n[:]...)
}

func (t *IncrementalMerkleTree) UnmarshalBinary(b []byte) error {
	off := 0
	readOpt := func() (*[32]byte, error) {
		if off >= len(b) {
			return nil, scerr(INTERNAL_ASSERTION, "tree: truncated flag")
		}
		flag := b[off]
		off++
		if flag == 0x00 {
			return nil, nil
		}
		if off+32 > len(b) {
			return nil, scerr(INTERNAL_ASSERTION, "tree: truncated node")
		}
		var node [32]byte
		copy(node[:], b[off:off+32])
		off += 32
		return &node, nil
	}

	var err error
	if t.left, err = readOpt(); err != nil {
		return err
	}
	if t.right, err = readOpt(); err != nil {
		return err
	}
	count, n, err := DecodeCompactSize(b[off:])
	if err != nil {
		return err
	}
	off += n
	if count > IncrementalTreeDepth {
		return scerr(INTERNAL_ASSERTION, "tree: parent count out of range")
	}
	t.parents = make([]*[32]byte, count)
	for i := range t.parents {
		if t.parents[i], err = readOpt(); err != nil {
			return err
		}
	}
	if off != len(b) {
		return scerr(INTERNAL_ASSERTION, "tree: trailing bytes")
	}
	return nil
}
