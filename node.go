package upscaledb

import "encoding/binary"

// Node header layout within a page payload (§6):
//
//	flags:1 | is_leaf:1 | count:2 | ptr_left:8 | left:8 | right:8 | slots[]
const (
	nodeOffFlags   = 0
	nodeOffIsLeaf  = 1
	nodeOffCount   = 2
	nodeOffPtrLeft = 4
	nodeOffLeft    = 12
	nodeOffRight   = 20
	NodeHeaderSize = 28
)

// Node flag bits (payload byte 0, distinct from the page-header flags).
const (
	nodeFlagReserved uint8 = 0x01
)

// Node is a thin typed view over a page's payload. It performs no
// allocation; every mutator marks the underlying page dirty (§4.B).
type Node struct {
	page         *Page
	keySizeFixed int
}

// ViewNode wraps p as a Node using the tree's fixed key stride.
func ViewNode(p *Page, keySizeFixed int) *Node {
	return &Node{page: p, keySizeFixed: keySizeFixed}
}

func (n *Node) Page() *Page { return n.page }

func (n *Node) payload() []byte { return n.page.Payload() }

// InitLeaf zeroes the node header and marks it as an empty leaf.
func (n *Node) InitLeaf() {
	buf := n.payload()
	for i := 0; i < NodeHeaderSize; i++ {
		buf[i] = 0
	}
	buf[nodeOffIsLeaf] = 1
	n.page.Type = PageTypeBTreeNode
	n.page.Dirty = true
}

// InitBranch zeroes the node header and marks it as an empty internal
// node with the given leftmost child.
func (n *Node) InitBranch(ptrLeft PageAddress) {
	buf := n.payload()
	for i := 0; i < NodeHeaderSize; i++ {
		buf[i] = 0
	}
	buf[nodeOffIsLeaf] = 0
	binary.LittleEndian.PutUint64(buf[nodeOffPtrLeft:], uint64(ptrLeft))
	n.page.Type = PageTypeBTreeNode
	n.page.Dirty = true
}

func (n *Node) IsLeaf() bool {
	return n.payload()[nodeOffIsLeaf] != 0
}

func (n *Node) Count() int {
	return int(binary.LittleEndian.Uint16(n.payload()[nodeOffCount:]))
}

func (n *Node) SetCount(c int) {
	binary.LittleEndian.PutUint16(n.payload()[nodeOffCount:], uint16(c))
	n.page.Dirty = true
}

func (n *Node) Left() PageAddress {
	return PageAddress(binary.LittleEndian.Uint64(n.payload()[nodeOffLeft:]))
}

func (n *Node) SetLeft(a PageAddress) {
	binary.LittleEndian.PutUint64(n.payload()[nodeOffLeft:], uint64(a))
	n.page.Dirty = true
}

func (n *Node) Right() PageAddress {
	return PageAddress(binary.LittleEndian.Uint64(n.payload()[nodeOffRight:]))
}

func (n *Node) SetRight(a PageAddress) {
	binary.LittleEndian.PutUint64(n.payload()[nodeOffRight:], uint64(a))
	n.page.Dirty = true
}

func (n *Node) PtrLeft() PageAddress {
	return PageAddress(binary.LittleEndian.Uint64(n.payload()[nodeOffPtrLeft:]))
}

func (n *Node) SetPtrLeft(a PageAddress) {
	binary.LittleEndian.PutUint64(n.payload()[nodeOffPtrLeft:], uint64(a))
	n.page.Dirty = true
}

// slotStride is the fixed byte distance between consecutive slots:
// flags(1) + size(2) + ptr(8) + key_bytes(keySizeFixed).
func (n *Node) slotStride() int {
	return slotHeaderSize + n.keySizeFixed
}

// slotOffset returns the byte offset of slot i within the payload.
func (n *Node) slotOffset(i int) int {
	return NodeHeaderSize + i*n.slotStride()
}

// MaxKeysForPageSize returns how many slots fit after the node header
// in a page of the given size and key stride, leaving no slack — the
// caller (Options) is expected to pick MaxKeysPerNode at or below this.
func MaxKeysForPageSize(pageSize, keySizeFixed int) int {
	avail := pageSize - PageHeaderSize - NodeHeaderSize
	stride := slotHeaderSize + keySizeFixed
	if avail < 0 || stride <= 0 {
		return 0
	}
	return avail / stride
}
