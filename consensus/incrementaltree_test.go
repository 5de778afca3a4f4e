package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIncrementalTreeRootChangesPerLeaf(t *testing.T) {
	tree := NewIncrementalMerkleTree()
	emptyRoot := tree.Root()

	seen := map[[32]byte]bool{emptyRoot: true}
	for i := byte(1); i <= 5; i++ {
		require.NoError(t, tree.Append([32]byte{i}))
		root := tree.Root()
		require.False(t, seen[root], "root repeated after %d appends", i)
		seen[root] = true
	}
}

func TestIncrementalTreeDeterministic(t *testing.T) {
	a, b := NewIncrementalMerkleTree(), NewIncrementalMerkleTree()
	for i := byte(0); i < 7; i++ {
		require.NoError(t, a.Append([32]byte{i}))
		require.NoError(t, b.Append([32]byte{i}))
	}
	require.Equal(t, a.Root(), b.Root())
}

func TestIncrementalTreeCopyIndependent(t *testing.T) {
	tree := NewIncrementalMerkleTree()
	require.NoError(t, tree.Append([32]byte{1}))
	snapshot := tree.Copy()
	rootBefore := snapshot.Root()

	require.NoError(t, tree.Append([32]byte{2}))
	require.Equal(t, rootBefore, snapshot.Root(), "copy must not alias the original")
	require.NotEqual(t, tree.Root(), snapshot.Root())
}

func TestIncrementalTreeMarshalRoundTrip(t *testing.T) {
	tree := NewIncrementalMerkleTree()
	for i := byte(0); i < 9; i++ {
		require.NoError(t, tree.Append([32]byte{i}))
	}

	raw, err := tree.MarshalBinary()
	require.NoError(t, err)

	restored := NewIncrementalMerkleTree()
	require.NoError(t, restored.UnmarshalBinary(raw))
	require.Equal(t, tree.Root(), restored.Root())

	// The restored tree keeps accepting appends consistently.
	require.NoError(t, tree.Append([32]byte{0xff}))
	require.NoError(t, restored.Append([32]byte{0xff}))
	require.Equal(t, tree.Root(), restored.Root())
}
