package upscaledb

import "bytes"

// CursorState mirrors upscaledb's BtreeCursor states (§4.E): a cursor is
// either coupled directly to a page and slot (fast, O(1) moves), holds
// only a copy of its key because the page it pointed to was mutated
// (uncoupled, needs a fresh lookup on next use), or points nowhere.
type CursorState int

const (
	CursorNil CursorState = iota
	CursorCoupled
	CursorUncoupled
)

// MoveDirection selects which key a Cursor.Move call lands on.
type MoveDirection int

const (
	MoveFirst MoveDirection = iota
	MoveLast
	MoveNext
	MovePrevious
)

// Cursor is a random-access iterator over a Tree's leaves. Coupled
// cursors are tracked in the tree's per-page index (Tree.cursors) so
// that structural operations can find and uncouple every cursor that
// might be invalidated by a merge, shift or slot removal.
//
// dupIndex is the secondary cursor within the current slot's duplicate
// list (§4.E/§9), carried by both the Coupled and Uncoupled states.
// This tree's slot layout (§6) holds exactly one record per key, so
// duplicateCount always reports 1 and dupIndex only ever takes the
// value 0 — see DESIGN.md's Open Question decision on duplicates.
type Cursor struct {
	tree *Tree

	state    CursorState
	pageAddr PageAddress
	slot     int
	dupIndex int

	uncoupledKey []byte
	uncoupledDup int
}

// NewCursor returns a cursor in the nil state.
func (t *Tree) NewCursor() *Cursor {
	return &Cursor{tree: t, state: CursorNil}
}

func (c *Cursor) State() CursorState { return c.state }

// Close resets the cursor to nil, detaching it from any page.
func (c *Cursor) Close() { c.setToNil() }

func (c *Cursor) setToNil() {
	if c.state == CursorCoupled {
		c.tree.unregisterCursor(c.pageAddr, c)
	}
	c.state = CursorNil
	c.pageAddr = 0
	c.slot = -1
	c.dupIndex = 0
	c.uncoupledKey = nil
	c.uncoupledDup = 0
}

// coupleToPage sets Coupled, inserting into P's cursor list. dupIndex is
// the position within the target slot's duplicate list (§4.E); Find
// passes 0, re-coupling passes the index held before uncoupling (clamped
// to the slot's duplicate count), Move passes whatever position it
// landed on.
func (c *Cursor) coupleToPage(addr PageAddress, slot, dupIndex int) {
	if c.state == CursorCoupled {
		c.tree.unregisterCursor(c.pageAddr, c)
	}
	c.state = CursorCoupled
	c.pageAddr = addr
	c.slot = slot
	c.dupIndex = dupIndex
	c.uncoupledKey = nil
	c.uncoupledDup = 0
	c.tree.registerCursor(addr, c)
}

// duplicateCount reports how many duplicates slot holds. This tree's
// slot layout (§6) stores exactly one record per key, so every slot has
// a duplicate list of length 1 until the layout grows a duplicate
// sub-list.
func duplicateCount(n *Node, slot int) int {
	return 1
}

// uncoupleFromPage captures a copy of the current key and drops the
// direct page/slot reference, called on every cursor registered against
// a page right before that page is structurally mutated (merge, shift,
// slot removal) so the cursor survives the mutation (§4.E).
func (c *Cursor) uncoupleFromPage() error {
	if c.state != CursorCoupled {
		return nil
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return err
	}
	key, err := snapshotKey(n, c.slot, c.tree.resolver)
	if err != nil {
		return err
	}
	dup := c.dupIndex
	c.tree.unregisterCursor(c.pageAddr, c)
	c.state = CursorUncoupled
	c.pageAddr = 0
	c.slot = -1
	c.dupIndex = 0
	c.uncoupledKey = key
	c.uncoupledDup = dup
	return nil
}

// couple re-locates an uncoupled cursor's key and re-couples to its
// (possibly new) page and slot, preserving the duplicate index it held
// before uncoupling. A no-op for already-coupled cursors.
func (c *Cursor) couple() error {
	if c.state != CursorUncoupled {
		return nil
	}
	n, idx, found, err := c.tree.findLeaf(c.uncoupledKey)
	if err != nil {
		return err
	}
	if !found {
		c.setToNil()
		return ErrKeyNotFound
	}
	dup := c.uncoupledDup
	if max := duplicateCount(n, idx) - 1; dup > max {
		dup = max
	}
	c.coupleToPage(n.Page().Addr, idx, dup)
	return nil
}

// coupleApprox re-locates an Uncoupled cursor the way Move's Next/
// Previous require (§4.E): if the stored key was deleted by an
// intervening structural change, land on the first slot ≥ key
// (forward) or ≤ key (!forward) instead of failing outright — that
// exact-match failure belongs only to Find. A no-op for cursors that
// are not Uncoupled.
func (c *Cursor) coupleApprox(forward bool) error {
	if c.state != CursorUncoupled {
		return nil
	}
	n, idx, found, err := c.tree.findLeaf(c.uncoupledKey)
	if err != nil {
		return err
	}
	dup := c.uncoupledDup
	if !found {
		dup = 0
		if forward {
			idx++ // searchNode returns the floor slot; ceiling is one past it
		}
	}
	if forward && idx >= n.Count() {
		right := n.Right()
		if right == 0 {
			c.setToNil()
			return ErrKeyNotFound
		}
		rn, err := c.tree.node(right)
		if err != nil {
			return err
		}
		if rn.Count() == 0 {
			c.setToNil()
			return ErrKeyNotFound
		}
		c.coupleToPage(right, 0, 0)
		return nil
	}
	if !forward && idx < 0 {
		left := n.Left()
		if left == 0 {
			c.setToNil()
			return ErrKeyNotFound
		}
		ln, err := c.tree.node(left)
		if err != nil {
			return err
		}
		cnt := ln.Count()
		if cnt == 0 {
			c.setToNil()
			return ErrKeyNotFound
		}
		c.coupleToPage(left, cnt-1, duplicateCount(ln, cnt-1)-1)
		return nil
	}
	if max := duplicateCount(n, idx) - 1; dup > max {
		dup = max
	}
	c.coupleToPage(n.Page().Addr, idx, dup)
	return nil
}

// snapshotKey materializes and copies the full key at slot so it can
// outlive mutation of n's backing page.
func snapshotKey(n *Node, slot int, resolver KeyResolver) ([]byte, error) {
	full, err := materializeKey(slotKeyRef(n, slot), resolver)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(full))
	copy(out, full)
	return out, nil
}

// Find positions the cursor exactly on key, coupled to its first
// duplicate. Returns ErrKeyNotFound (and sets the cursor to nil) if key
// isn't present.
func (c *Cursor) Find(key []byte) error {
	n, idx, found, err := c.tree.findLeaf(key)
	if err != nil {
		return err
	}
	if !found {
		c.setToNil()
		return ErrKeyNotFound
	}
	c.coupleToPage(n.Page().Addr, idx, 0)
	return nil
}

// Move repositions the cursor per dir.
func (c *Cursor) Move(dir MoveDirection) error {
	switch dir {
	case MoveFirst:
		return c.moveFirst()
	case MoveLast:
		return c.moveLast()
	case MoveNext:
		return c.moveNext()
	case MovePrevious:
		return c.movePrevious()
	default:
		return ErrInvariantBroken
	}
}

func (c *Cursor) moveFirst() error {
	n, err := c.tree.leftmostLeaf()
	if err != nil {
		return err
	}
	if n.Count() == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	c.coupleToPage(n.Page().Addr, 0, 0)
	return nil
}

func (c *Cursor) moveLast() error {
	n, err := c.tree.rightmostLeaf()
	if err != nil {
		return err
	}
	cnt := n.Count()
	if cnt == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	c.coupleToPage(n.Page().Addr, cnt-1, duplicateCount(n, cnt-1)-1)
	return nil
}

// moveNext advances duplicate_index within the current slot before
// crossing to another key, per §4.E; it only moves to the next slot (or
// leaf) once the current slot's duplicates are exhausted.
func (c *Cursor) moveNext() error {
	if c.state == CursorNil {
		return c.moveFirst()
	}
	if err := c.coupleApprox(true); err != nil {
		return err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return err
	}
	if c.dupIndex+1 < duplicateCount(n, c.slot) {
		c.coupleToPage(c.pageAddr, c.slot, c.dupIndex+1)
		return nil
	}
	if c.slot+1 < n.Count() {
		c.coupleToPage(c.pageAddr, c.slot+1, 0)
		return nil
	}
	right := n.Right()
	if right == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	rn, err := c.tree.node(right)
	if err != nil {
		return err
	}
	if rn.Count() == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	c.coupleToPage(right, 0, 0)
	return nil
}

// movePrevious retreats duplicate_index within the current slot before
// crossing to another key, the mirror of moveNext.
func (c *Cursor) movePrevious() error {
	if c.state == CursorNil {
		return c.moveLast()
	}
	if err := c.coupleApprox(false); err != nil {
		return err
	}
	if c.dupIndex > 0 {
		c.coupleToPage(c.pageAddr, c.slot, c.dupIndex-1)
		return nil
	}
	if c.slot > 0 {
		n, err := c.tree.node(c.pageAddr)
		if err != nil {
			return err
		}
		c.coupleToPage(c.pageAddr, c.slot-1, duplicateCount(n, c.slot-1)-1)
		return nil
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return err
	}
	left := n.Left()
	if left == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	ln, err := c.tree.node(left)
	if err != nil {
		return err
	}
	cnt := ln.Count()
	if cnt == 0 {
		c.setToNil()
		return ErrKeyNotFound
	}
	c.coupleToPage(left, cnt-1, duplicateCount(ln, cnt-1)-1)
	return nil
}

func (t *Tree) leftmostLeaf() (*Node, error) {
	addr := t.Root()
	for {
		n, err := t.node(addr)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			return n, nil
		}
		addr = n.PtrLeft()
	}
}

func (t *Tree) rightmostLeaf() (*Node, error) {
	addr := t.Root()
	for {
		n, err := t.node(addr)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			return n, nil
		}
		if cnt := n.Count(); cnt > 0 {
			addr = n.ChildAt(cnt - 1)
		} else {
			addr = n.PtrLeft()
		}
	}
}

// Key returns the current key, recoupling first if necessary.
func (c *Cursor) Key() ([]byte, error) {
	if err := c.requireLive(); err != nil {
		return nil, err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return nil, err
	}
	return snapshotKey(n, c.slot, c.tree.resolver)
}

// Value returns the current record's bytes, recoupling first if
// necessary.
func (c *Cursor) Value() ([]byte, error) {
	if err := c.requireLive(); err != nil {
		return nil, err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return nil, err
	}
	return c.tree.readRecord(n, c.slot)
}

// RecordSize returns the byte length of the current record without
// necessarily materializing it in full (inline records report their
// length directly; external records still require a blob fetch).
func (c *Cursor) RecordSize() (int, error) {
	if err := c.requireLive(); err != nil {
		return 0, err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return 0, err
	}
	if n.HasInlineRecord(c.slot) {
		return len(n.InlineRecordBytes(c.slot)), nil
	}
	data, err := c.tree.readRecord(n, c.slot)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// RecordCount reports how many duplicates the current slot's key has.
// The slot layout (§6) stores exactly one record per key, so this is
// always 0 (nil cursor) or 1 (see duplicateCount).
func (c *Cursor) RecordCount() (int, error) {
	if c.state == CursorNil {
		return 0, nil
	}
	if err := c.requireLive(); err != nil {
		return 0, err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return 0, err
	}
	return duplicateCount(n, c.slot), nil
}

// Overwrite replaces the record of the current key in place, freeing
// any previously external blob and choosing an inline or external
// encoding for the new data the same way insertion does.
func (c *Cursor) Overwrite(data []byte) error {
	if err := c.requireLive(); err != nil {
		return err
	}
	n, err := c.tree.node(c.pageAddr)
	if err != nil {
		return err
	}
	if !n.HasInlineRecord(c.slot) && c.tree.blobs != nil {
		_ = c.tree.blobs.Delete(n.RecordID(c.slot))
	}
	if len(data) <= 8 {
		n.SetInlineRecord(c.slot, data)
	} else {
		if c.tree.blobs == nil {
			return ErrIoFailure
		}
		id, err := c.tree.blobs.Put(data)
		if err != nil {
			return err
		}
		n.SetExternalRecord(c.slot, id)
	}
	c.tree.cache.Put(n.Page())
	return nil
}

// PointsToSlot reports whether the cursor is coupled exactly to
// (addr, slot), with matching duplicate_index. One of the two points_to
// overloads from btree_cursor.h.
func (c *Cursor) PointsToSlot(addr PageAddress, slot, dupIndex int) bool {
	return c.state == CursorCoupled && c.pageAddr == addr && c.slot == slot && c.dupIndex == dupIndex
}

// PointsToKey reports whether the cursor currently refers to key,
// recoupling if necessary. The other points_to overload.
func (c *Cursor) PointsToKey(key []byte) (bool, error) {
	if c.state == CursorNil {
		return false, nil
	}
	cur, err := c.Key()
	if err != nil {
		return false, err
	}
	return bytes.Equal(cur, key), nil
}

func (c *Cursor) requireLive() error {
	if c.state == CursorNil {
		return ErrCursorNotSet
	}
	return c.couple()
}
