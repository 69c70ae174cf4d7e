package upscaledb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTree(t *testing.T, n int) *Tree {
	t.Helper()
	tree, _ := newTestTree(t)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%03d", i))
		require.NoError(t, tree.Put(key, []byte(fmt.Sprintf("v-%d", i))))
	}
	return tree
}

func TestCursorMoveFirstAndNextVisitsInOrder(t *testing.T) {
	tree := seedTree(t, 30)
	c := tree.NewCursor()
	require.NoError(t, c.Move(MoveFirst))

	var got []string
	for {
		k, err := c.Key()
		require.NoError(t, err)
		got = append(got, string(k))
		if err := c.Move(MoveNext); err != nil {
			assert.ErrorIs(t, err, ErrKeyNotFound)
			break
		}
	}
	assert.Equal(t, 30, len(got))
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func TestCursorMoveLastAndPrevious(t *testing.T) {
	tree := seedTree(t, 10)
	c := tree.NewCursor()
	require.NoError(t, c.Move(MoveLast))
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "k-009", string(k))

	require.NoError(t, c.Move(MovePrevious))
	k, err = c.Key()
	require.NoError(t, err)
	assert.Equal(t, "k-008", string(k))
}

func TestCursorFindAndValue(t *testing.T) {
	tree := seedTree(t, 10)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-005")))
	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, "v-5", string(v))
}

func TestCursorFindMissingSetsNil(t *testing.T) {
	tree := seedTree(t, 10)
	c := tree.NewCursor()
	err := c.Find([]byte("nope"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, CursorNil, c.State())
}

func TestCursorOverwriteChangesValue(t *testing.T) {
	tree := seedTree(t, 5)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-002")))
	require.NoError(t, c.Overwrite([]byte("new-value")))

	got, err := tree.Get([]byte("k-002"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new-value"), got)
}

func TestCursorSurvivesMergeAfterDelete(t *testing.T) {
	tree := seedTree(t, 60)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-030")))

	// Deleting neighboring keys should trigger merges/shifts (small
	// MaxKeysPerNode via smallTreeOptions), uncoupling c along the way;
	// it must still resolve back to its key afterward.
	for i := 31; i < 40; i++ {
		key := []byte(fmt.Sprintf("k-%03d", i))
		require.NoError(t, tree.Delete(key))
	}

	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "k-030", string(k))
}

func TestCursorRecordCountReflectsDuplicateList(t *testing.T) {
	tree := seedTree(t, 5)
	c := tree.NewCursor()
	n, err := c.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n) // nil cursor

	require.NoError(t, c.Find([]byte("k-001")))
	n, err = c.RecordCount()
	require.NoError(t, err)
	// Every slot's duplicate list currently holds exactly one record
	// (duplicateCount degenerates to 1 until the slot layout grows a
	// duplicate sub-list); duplicate_index tracks position within it.
	assert.Equal(t, 1, n)
}

func TestCursorPointsToSlotChecksDuplicateIndexAgreement(t *testing.T) {
	tree := seedTree(t, 5)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-002")))

	assert.True(t, c.PointsToSlot(c.pageAddr, c.slot, 0))
	assert.False(t, c.PointsToSlot(c.pageAddr, c.slot, 1), "wrong duplicate_index should not match")
	assert.False(t, c.PointsToSlot(c.pageAddr, c.slot+1, 0), "wrong slot should not match")
}

// TestCursorMoveNextAfterUncoupledKeyErased covers §4.E's re-couple
// contract for Move: when an Uncoupled cursor's own remembered key was
// deleted by an intervening structural change, Next must land on the
// first key ≥ the deleted one and advance from there, not fail with
// ErrKeyNotFound the way an exact Find would.
func TestCursorMoveNextAfterUncoupledKeyErased(t *testing.T) {
	tree := seedTree(t, 60)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-030")))

	for i := 33; i < 40; i++ {
		key := []byte(fmt.Sprintf("k-%03d", i))
		require.NoError(t, tree.Delete(key))
	}
	require.Equal(t, CursorUncoupled, c.State(), "deletes near the cursor's page should have uncoupled it")

	require.NoError(t, tree.Delete([]byte("k-030")))

	require.NoError(t, c.Move(MoveNext))
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "k-032", string(k))
}

// TestCursorMovePreviousAfterUncoupledKeyErased is the mirror of the
// above for Previous: re-couple lands on the first key ≤ the deleted
// one.
func TestCursorMovePreviousAfterUncoupledKeyErased(t *testing.T) {
	tree := seedTree(t, 60)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-030")))

	for i := 39; i > 30; i-- {
		key := []byte(fmt.Sprintf("k-%03d", i))
		require.NoError(t, tree.Delete(key))
	}
	require.Equal(t, CursorUncoupled, c.State(), "deletes near the cursor's page should have uncoupled it")

	require.NoError(t, tree.Delete([]byte("k-030")))

	require.NoError(t, c.Move(MovePrevious))
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "k-028", string(k))
}

func TestCursorMoveNextAdvancesPastDuplicatesBeforeCrossingKeys(t *testing.T) {
	tree := seedTree(t, 3)
	c := tree.NewCursor()
	require.NoError(t, c.Move(MoveFirst))

	var keys []string
	for {
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, string(k))
		if err := c.Move(MoveNext); err != nil {
			break
		}
	}
	// With a single-record duplicate list per slot, moveNext crosses to
	// the next key immediately every time; this pins that behavior so a
	// future duplicate sub-list only needs to change duplicateCount.
	assert.Equal(t, []string{"k-000", "k-001", "k-002"}, keys)
}

func TestCursorPointsToKey(t *testing.T) {
	tree := seedTree(t, 5)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-003")))

	ok, err := c.PointsToKey([]byte("k-003"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.PointsToKey([]byte("k-004"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorCloseResetsToNil(t *testing.T) {
	tree := seedTree(t, 5)
	c := tree.NewCursor()
	require.NoError(t, c.Find([]byte("k-000")))
	c.Close()
	assert.Equal(t, CursorNil, c.State())
	_, err := c.Key()
	assert.ErrorIs(t, err, ErrCursorNotSet)
}
