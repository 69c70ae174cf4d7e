package upscaledb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetSingleKey(t *testing.T) {
	tree, _ := newTestTree(t)
	require.NoError(t, tree.Put([]byte("key"), []byte("value")))

	got, err := tree.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	tree, _ := newTestTree(t)
	assert.ErrorIs(t, tree.Put(nil, []byte("v")), ErrKeyEmpty)
}

func TestPutOverwritesExistingKey(t *testing.T) {
	tree, _ := newTestTree(t)
	require.NoError(t, tree.Put([]byte("k"), []byte("v1")))
	require.NoError(t, tree.Put([]byte("k"), []byte("v2")))

	got, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestPutManyKeysForcesSplitsAndAllRemainFindable(t *testing.T) {
	tree, _ := newTestTree(t)
	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, tree.Put(key, []byte(fmt.Sprintf("val-%d", i))))
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		got, err := tree.Get(key)
		require.NoError(t, err, "key %s should be findable", key)
		assert.Equal(t, []byte(fmt.Sprintf("val-%d", i)), got)
	}
}

func TestPutLargeValueGoesExternal(t *testing.T) {
	tree, blobs := newTestTree(t)
	big := make([]byte, 100)
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, tree.Put([]byte("k"), big))

	got, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, big, got)
	assert.NotEmpty(t, blobs.data)
}

func TestPutLargeKeyGoesExtended(t *testing.T) {
	tree, blobs := newTestTree(t)
	bigKey := make([]byte, 100)
	for i := range bigKey {
		bigKey[i] = byte('a' + i%26)
	}
	require.NoError(t, tree.Put(bigKey, []byte("v")))

	got, err := tree.Get(bigKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.NotEmpty(t, blobs.data)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	tree, _ := newTestTree(t)
	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	_, err := tree.Get([]byte("b"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLeafSiblingChainStaysOrderedAfterManyInserts(t *testing.T) {
	tree, _ := newTestTree(t)
	const n = 50
	for i := n - 1; i >= 0; i-- { // insert in reverse to exercise leftward splits too
		key := []byte(fmt.Sprintf("k-%03d", i))
		require.NoError(t, tree.Put(key, []byte{byte(i)}))
	}

	leaf, err := tree.leftmostLeaf()
	require.NoError(t, err)
	count := 0
	var last []byte
	for {
		for i := 0; i < leaf.Count(); i++ {
			k, err := snapshotKey(leaf, i, tree.resolver)
			require.NoError(t, err)
			if last != nil {
				assert.True(t, string(last) < string(k), "%q should sort before %q", last, k)
			}
			last = k
			count++
		}
		if leaf.Right() == 0 {
			break
		}
		leaf, err = tree.node(leaf.Right())
		require.NoError(t, err)
	}
	assert.Equal(t, n, count)
}
