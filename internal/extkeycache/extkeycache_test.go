package extkeycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	c.Put(1, []byte("hello"))
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
}

func TestGetMissReportsFalse(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	_, ok := c.Get(999)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	c.Put(1, []byte("hello"))
	c.Remove(1)

	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestZeroCapacityAlwaysMisses(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)

	c.Put(1, []byte("hello"))
	_, ok := c.Get(1)
	assert.False(t, ok)
}
