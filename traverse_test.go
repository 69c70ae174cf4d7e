package upscaledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchNodeSentinelBeforeAllKeys(t *testing.T) {
	n := newTestLeaf(t, 16)
	n.SetCount(2)
	n.WriteInlineKey(0, []byte("m"))
	n.WriteInlineKey(1, []byte("z"))

	tree, _ := newTestTree(t)
	idx, exact, err := tree.searchNode(n, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.False(t, exact)
}

func TestSearchNodeExactMatch(t *testing.T) {
	n := newTestLeaf(t, 16)
	n.SetCount(3)
	n.WriteInlineKey(0, []byte("a"))
	n.WriteInlineKey(1, []byte("m"))
	n.WriteInlineKey(2, []byte("z"))

	tree, _ := newTestTree(t)
	idx, exact, err := tree.searchNode(n, []byte("m"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.True(t, exact)
}

func TestSearchNodeLargestLessOrEqual(t *testing.T) {
	n := newTestLeaf(t, 16)
	n.SetCount(3)
	n.WriteInlineKey(0, []byte("a"))
	n.WriteInlineKey(1, []byte("m"))
	n.WriteInlineKey(2, []byte("z"))

	tree, _ := newTestTree(t)
	idx, exact, err := tree.searchNode(n, []byte("q"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.False(t, exact)
}

func TestFindLeafOnFreshTreeIsEmptyRoot(t *testing.T) {
	tree, _ := newTestTree(t)
	leaf, idx, found, err := tree.findLeaf([]byte("anything"))
	require.NoError(t, err)
	assert.True(t, leaf.IsLeaf())
	assert.Equal(t, -1, idx)
	assert.False(t, found)
}
