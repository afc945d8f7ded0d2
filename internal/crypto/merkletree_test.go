package crypto

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerkleTree_EverLeafProvesAgainstRoot(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 16, 33} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			messages := make([][]byte, n)
			for i := range messages {
				messages[i] = []byte(fmt.Sprintf("message-%d", i))
			}
			tree := BuildMerkleTree(messages)
			root := tree.Root()
			for i, m := range messages {
				proof := tree.ProofFor(i)
				require.True(t, VerifyMerklePath(m, proof, root), "leaf %d failed to verify", i)
			}
		})
	}
}

func TestMerkleTree_EmptyBatchRootDoesNotPanic(t *testing.T) {
	tree := BuildMerkleTree(nil)
	require.Equal(t, [20]byte{}, tree.Root())
}

func TestMerkleTree_TamperedMessageFailsVerification(t *testing.T) {
	messages := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tree := BuildMerkleTree(messages)
	root := tree.Root()
	proof := tree.ProofFor(1)
	require.False(t, VerifyMerklePath([]byte("tampered"), proof, root))
}
