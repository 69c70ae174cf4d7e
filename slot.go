package upscaledb

import (
	"bytes"
	"encoding/binary"
)

// Slot header layout (§6): flags:1 | size:2 | ptr:8, followed by
// key_size_fixed bytes of key data. The stride between slots is
// therefore constant for a given tree.
const slotHeaderSize = 11

// Slot flag bits (payload byte 0 of each slot, §4.A).
const (
	flagExtended    uint8 = 0x01 // key overflows into the blob store
	flagRecordTiny  uint8 = 0x02 // leaf only: 1-7 record bytes inline in ptr
	flagRecordSmall uint8 = 0x04 // leaf only: exactly 8 record bytes inline in ptr
	flagRecordEmpty uint8 = 0x08 // leaf only: zero-length record
)

func (n *Node) rawSlot(i int) []byte {
	off := n.slotOffset(i)
	return n.payload()[off : off+n.slotStride()]
}

func (n *Node) SlotFlags(i int) uint8 { return n.rawSlot(i)[0] }

func (n *Node) SetSlotFlags(i int, f uint8) {
	n.rawSlot(i)[0] = f
	n.page.Dirty = true
}

// SlotSize is the full external key length: for a non-extended key this
// equals len(inline bytes); for an extended key it is the true length of
// the key living in the blob store.
func (n *Node) SlotSize(i int) int {
	return int(binary.LittleEndian.Uint16(n.rawSlot(i)[1:3]))
}

func (n *Node) SetSlotSize(i int, sz int) {
	binary.LittleEndian.PutUint16(n.rawSlot(i)[1:3], uint16(sz))
	n.page.Dirty = true
}

// SlotPtrRaw returns the raw 8-byte ptr field: a child page address for
// internal nodes, or (for leaves) either a record id or inline record
// bytes depending on the record flags.
func (n *Node) SlotPtrRaw(i int) uint64 {
	return binary.LittleEndian.Uint64(n.rawSlot(i)[3:11])
}

func (n *Node) SetSlotPtrRaw(i int, v uint64) {
	binary.LittleEndian.PutUint64(n.rawSlot(i)[3:11], v)
	n.page.Dirty = true
}

// ChildAt returns children[i+1] for an internal node: slot i's ptr field
// read as a page address (§3 invariant 2).
func (n *Node) ChildAt(i int) PageAddress { return PageAddress(n.SlotPtrRaw(i)) }

func (n *Node) SetChildAt(i int, a PageAddress) { n.SetSlotPtrRaw(i, uint64(a)) }

// RecordID returns the external record id stored in a leaf slot that is
// not using an inline record encoding.
func (n *Node) RecordID(i int) uint64 { return n.SlotPtrRaw(i) }

// SetExternalRecord points slot i at an out-of-line record id, clearing
// any inline-record flags.
func (n *Node) SetExternalRecord(i int, id uint64) {
	n.SetSlotFlags(i, n.SlotFlags(i)&^(flagRecordTiny|flagRecordSmall|flagRecordEmpty))
	n.SetSlotPtrRaw(i, id)
}

// InlineRecordBytes returns the record bytes stored directly in the slot
// for tiny/small/empty encodings, or nil if the slot uses an external id.
func (n *Node) InlineRecordBytes(i int) []byte {
	flags := n.SlotFlags(i)
	raw := n.rawSlot(i)[3:11]
	switch {
	case flags&flagRecordEmpty != 0:
		return []byte{}
	case flags&flagRecordTiny != 0:
		length := int(raw[7])
		out := make([]byte, length)
		copy(out, raw[:length])
		return out
	case flags&flagRecordSmall != 0:
		out := make([]byte, 8)
		copy(out, raw[:8])
		return out
	}
	return nil
}

// SetInlineRecord stores a record of at most 8 bytes directly in the
// slot's ptr field, choosing the tiny/small/empty encoding by length.
func (n *Node) SetInlineRecord(i int, data []byte) {
	if len(data) > 8 {
		panic("upscaledb: inline record longer than 8 bytes")
	}
	raw := n.rawSlot(i)[3:11]
	for j := range raw {
		raw[j] = 0
	}
	flags := n.SlotFlags(i) &^ (flagRecordTiny | flagRecordSmall | flagRecordEmpty)
	switch {
	case len(data) == 0:
		flags |= flagRecordEmpty
	case len(data) < 8:
		copy(raw, data)
		raw[7] = byte(len(data))
		flags |= flagRecordTiny
	default: // == 8
		copy(raw, data)
		flags |= flagRecordSmall
	}
	n.SetSlotFlags(i, flags)
	n.page.Dirty = true
}

func (n *Node) HasInlineRecord(i int) bool {
	return n.SlotFlags(i)&(flagRecordTiny|flagRecordSmall|flagRecordEmpty) != 0
}

// KeyPrefixLen is the number of inline key bytes an extended slot
// dedicates to the searchable prefix; the remaining 8 bytes hold the
// blob id (§4.A, and DESIGN.md's Open Question decision on encoding).
func (n *Node) KeyPrefixLen() int { return n.keySizeFixed - 8 }

func (n *Node) IsExtended(i int) bool { return n.SlotFlags(i)&flagExtended != 0 }

// SlotKeyBytes returns the raw key_size_fixed-byte region of slot i.
func (n *Node) SlotKeyBytes(i int) []byte {
	s := n.rawSlot(i)
	return s[slotHeaderSize:]
}

// SlotInlineKey returns the bytes usable for comparison without a blob
// fetch: the whole key when not extended, or just the prefix otherwise.
func (n *Node) SlotInlineKey(i int) []byte {
	kb := n.SlotKeyBytes(i)
	if n.IsExtended(i) {
		return kb[:n.KeyPrefixLen()]
	}
	return kb[:n.SlotSize(i)]
}

func (n *Node) SlotBlobID(i int) uint64 {
	kb := n.SlotKeyBytes(i)
	return binary.BigEndian.Uint64(kb[n.KeyPrefixLen():])
}

func (n *Node) SetSlotBlobID(i int, id uint64) {
	kb := n.SlotKeyBytes(i)
	binary.BigEndian.PutUint64(kb[n.KeyPrefixLen():], id)
	n.page.Dirty = true
}

// WriteInlineKey stores key entirely inline (len(key) <= keySizeFixed).
func (n *Node) WriteInlineKey(i int, key []byte) {
	kb := n.SlotKeyBytes(i)
	for j := range kb {
		kb[j] = 0
	}
	copy(kb, key)
	n.SetSlotSize(i, len(key))
	n.SetSlotFlags(i, n.SlotFlags(i)&^flagExtended)
	n.page.Dirty = true
}

// WriteExtendedKey stores an oversized key's prefix and blob id inline,
// recording the true length for comparison and materialization.
func (n *Node) WriteExtendedKey(i int, prefix []byte, fullSize int, blobID uint64) {
	kb := n.SlotKeyBytes(i)
	for j := range kb {
		kb[j] = 0
	}
	copy(kb[:n.KeyPrefixLen()], prefix)
	binary.BigEndian.PutUint64(kb[n.KeyPrefixLen():], blobID)
	n.SetSlotSize(i, fullSize)
	n.SetSlotFlags(i, n.SlotFlags(i)|flagExtended)
	n.page.Dirty = true
}

// StripRecordFlags clears the leaf-only tiny/small/empty record
// encoding bits, leaving the extended-key bit untouched. Mirrors
// upscaledb's INTERNAL_KEY handling in my_replace_key: a key promoted
// into a branch node is routing-only and must not carry record flags.
func (n *Node) StripRecordFlags(i int) {
	n.SetSlotFlags(i, n.SlotFlags(i)&^(flagRecordTiny|flagRecordSmall|flagRecordEmpty))
}

// CopySlotRange moves count slots within this node from srcStart to
// dstStart. Uses Go's copy(), which is memmove-safe under overlap, so
// this serves both remove_entry's left-shift and shift's intra-node
// rotation.
func (n *Node) CopySlotRange(dstStart, srcStart, count int) {
	if count <= 0 {
		return
	}
	stride := n.slotStride()
	dstOff := n.slotOffset(dstStart)
	srcOff := n.slotOffset(srcStart)
	payload := n.payload()
	copy(payload[dstOff:dstOff+count*stride], payload[srcOff:srcOff+count*stride])
	n.page.Dirty = true
}

// CopySlotsCrossNode copies count slots from src (starting srcStart)
// into dst (starting dstStart). dst and src must belong to different
// pages; used by merge and shift to move slots between siblings.
func CopySlotsCrossNode(dst *Node, dstStart int, src *Node, srcStart, count int) {
	if count <= 0 {
		return
	}
	stride := dst.slotStride()
	dstOff := dst.slotOffset(dstStart)
	srcOff := src.slotOffset(srcStart)
	copy(dst.payload()[dstOff:dstOff+count*stride], src.payload()[srcOff:srcOff+count*stride])
	dst.page.Dirty = true
}

// CopySlotContent copies the entire slot at src (flags, size, ptr, key
// bytes) from src into dst, verbatim — used when promoting a separator
// or duplicating an anchor key (my_copy_key / my_replace_key).
func CopySlotContent(dst *Node, dstIdx int, src *Node, srcIdx int) {
	copy(dst.rawSlot(dstIdx), src.rawSlot(srcIdx))
	dst.page.Dirty = true
}

// keyRef is a materialization-lazy handle to a key, used by compareKeys
// so that comparisons only fetch a blob when the inline bytes alone
// cannot decide the ordering (§4.A).
type keyRef struct {
	head     []byte // full key if !extended, else the inline prefix
	size     int    // full logical key length
	extended bool
	blobID   uint64
}

// plainKeyRef wraps a caller-supplied search key, which is always fully
// known in memory regardless of length.
func plainKeyRef(key []byte) keyRef {
	return keyRef{head: key, size: len(key), extended: false}
}

// slotKeyRef captures slot i of n without copying key bytes that aren't
// already resident (the blob, if any, is fetched lazily by compareKeys).
func slotKeyRef(n *Node, i int) keyRef {
	if n.IsExtended(i) {
		return keyRef{head: n.SlotInlineKey(i), size: n.SlotSize(i), extended: true, blobID: n.SlotBlobID(i)}
	}
	return keyRef{head: n.SlotInlineKey(i), size: n.SlotSize(i)}
}

// KeyResolver fetches the full bytes of an extended key's blob,
// consulting the extended-key cache before falling back to the blob
// store (§4.F).
type KeyResolver interface {
	ResolveKey(blobID uint64) ([]byte, error)
}

func compareLenOrder(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareKeys implements the total order over external keys described
// in §4.A: compare over the common known prefix first; only fetch a
// blob when the two keys still agree at the end of the shorter known
// prefix and at least one of them extends beyond it.
func compareKeys(a, b keyRef, resolver KeyResolver) (int, error) {
	n := len(a.head)
	if len(b.head) < n {
		n = len(b.head)
	}
	if c := bytes.Compare(a.head[:n], b.head[:n]); c != 0 {
		return c, nil
	}

	aExhausted := !a.extended || a.size <= len(a.head)
	bExhausted := !b.extended || b.size <= len(b.head)
	if aExhausted && bExhausted {
		return compareLenOrder(a.size, b.size), nil
	}

	afull, err := materializeKey(a, resolver)
	if err != nil {
		return 0, err
	}
	bfull, err := materializeKey(b, resolver)
	if err != nil {
		return 0, err
	}
	if c := bytes.Compare(afull, bfull); c != 0 {
		return c, nil
	}
	return compareLenOrder(len(afull), len(bfull)), nil
}

// materializeKey returns the complete key bytes, fetching the blob for
// an extended key that the resolver hasn't already served in full.
func materializeKey(k keyRef, resolver KeyResolver) ([]byte, error) {
	if !k.extended {
		return k.head, nil
	}
	if resolver == nil {
		return nil, ErrIoFailure
	}
	return resolver.ResolveKey(k.blobID)
}
