package pagestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taabodim/upscaledb"
)

func TestMemStoreAllocFetchRoundTrip(t *testing.T) {
	m := NewMemStore(256)

	p, err := m.Alloc(upscaledb.PageTypeBTreeNode)
	require.NoError(t, err)
	p.Payload()[0] = 0x42
	m.Put(p)

	got, err := m.Fetch(p.Addr)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got.Payload()[0])
}

func TestMemStoreFetchMissingIsCorruption(t *testing.T) {
	m := NewMemStore(256)
	_, err := m.Fetch(upscaledb.PageAddress(999))
	assert.ErrorIs(t, err, upscaledb.ErrCorruption)
}

func TestMemStoreFreeReusesAddress(t *testing.T) {
	m := NewMemStore(256)

	p1, err := m.Alloc(upscaledb.PageTypeBTreeNode)
	require.NoError(t, err)
	addr := p1.Addr
	require.NoError(t, m.Free(addr))

	p2, err := m.Alloc(upscaledb.PageTypeBTreeNode)
	require.NoError(t, err)
	assert.Equal(t, addr, p2.Addr)

	_, err = m.Fetch(addr)
	require.NoError(t, err) // p2 now occupies it
}

func TestMemStoreNeverAllocatesReservedAddress(t *testing.T) {
	m := NewMemStore(256)
	p, err := m.Alloc(upscaledb.PageTypeBTreeRoot)
	require.NoError(t, err)
	assert.NotEqual(t, upscaledb.PageAddress(0), p.Addr)
}
