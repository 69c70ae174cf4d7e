package blobstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taabodim/upscaledb"
	"github.com/taabodim/upscaledb/internal/pagestore"
)

func TestPutGetSmallBlobFitsOnePage(t *testing.T) {
	store := New(pagestore.NewMemStore(256))

	data := []byte("a short extended key")
	id, err := store.Put(data)
	require.NoError(t, err)

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestPutGetLargeBlobSpansPages(t *testing.T) {
	store := New(pagestore.NewMemStore(64)) // small pages force chaining

	data := make([]byte, 10*1024)
	for i := range data {
		data[i] = byte(i)
	}
	id, err := store.Put(data)
	require.NoError(t, err)

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestDeleteFreesEveryPageInChain(t *testing.T) {
	cache := pagestore.NewMemStore(64)
	store := New(cache)

	data := make([]byte, 5*1024)
	id, err := store.Put(data)
	require.NoError(t, err)

	require.NoError(t, store.Delete(id))

	_, err = cache.Fetch(upscaledb.PageAddress(id))
	assert.ErrorIs(t, err, upscaledb.ErrCorruption)
}
