package upscaledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitLeafZeroesHeader(t *testing.T) {
	n := newTestLeaf(t, 16)
	assert.True(t, n.IsLeaf())
	assert.Equal(t, 0, n.Count())
	assert.Equal(t, PageAddress(0), n.Left())
	assert.Equal(t, PageAddress(0), n.Right())
}

func TestInitBranchSetsPtrLeft(t *testing.T) {
	p := NewPage(1, 512, PageTypeBTreeNode)
	n := ViewNode(p, 16)
	n.InitBranch(PageAddress(42))

	assert.False(t, n.IsLeaf())
	assert.Equal(t, PageAddress(42), n.PtrLeft())
}

func TestSetCountAndSiblingLinks(t *testing.T) {
	n := newTestLeaf(t, 16)
	n.SetCount(3)
	assert.Equal(t, 3, n.Count())

	n.SetLeft(PageAddress(5))
	n.SetRight(PageAddress(9))
	assert.Equal(t, PageAddress(5), n.Left())
	assert.Equal(t, PageAddress(9), n.Right())
}

func TestChildAtReadsPtrField(t *testing.T) {
	p := NewPage(1, 512, PageTypeBTreeNode)
	n := ViewNode(p, 16)
	n.InitBranch(PageAddress(1))
	n.SetCount(1)
	n.SetChildAt(0, PageAddress(99))
	assert.Equal(t, PageAddress(99), n.ChildAt(0))
}

func TestMaxKeysForPageSizeMonotonic(t *testing.T) {
	small := MaxKeysForPageSize(512, 16)
	large := MaxKeysForPageSize(4096, 16)
	assert.Positive(t, small)
	assert.Greater(t, large, small)
}

func TestMaxKeysForPageSizeTooSmallIsZero(t *testing.T) {
	assert.Equal(t, 0, MaxKeysForPageSize(8, 16))
}

func TestSlotOffsetsDoNotOverlapHeader(t *testing.T) {
	n := newTestLeaf(t, 16)
	assert.Equal(t, NodeHeaderSize, n.slotOffset(0))
	assert.Equal(t, NodeHeaderSize+n.slotStride(), n.slotOffset(1))
}
