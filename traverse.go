package upscaledb

// searchNode performs the binary search described by
// original_source/src/btree_erase.c's btree_get_slot: it returns the
// largest slot index whose key is <= the search key, or -1 if the
// search key is smaller than every key in the node. exact reports
// whether that slot's key equals the search key exactly.
func (t *Tree) searchNode(n *Node, key []byte) (idx int, exact bool, err error) {
	return t.searchNodeRef(n, plainKeyRef(key))
}

// searchNodeRef is searchNode generalized to a keyRef, so callers that
// already hold a slot-derived key (e.g. a separator promoted during
// merge/shift) don't need to force it fully into memory first.
func (t *Tree) searchNodeRef(n *Node, search keyRef) (idx int, exact bool, err error) {
	count := n.Count()
	lo, hi := 0, count-1
	idx = -1
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp, cerr := compareKeys(search, slotKeyRef(n, mid), t.resolver)
		if cerr != nil {
			return 0, false, cerr
		}
		switch {
		case cmp == 0:
			return mid, true, nil
		case cmp < 0:
			hi = mid - 1
		default:
			idx = mid
			lo = mid + 1
		}
	}
	return idx, false, nil
}

// childAt resolves the child address an internal node's search slot
// points to: PtrLeft for the -1 sentinel, ChildAt(idx) otherwise.
func childAt(n *Node, idx int) PageAddress {
	if idx == -1 {
		return n.PtrLeft()
	}
	return n.ChildAt(idx)
}

// findLeaf descends from the root to the leaf that would hold key,
// returning the leaf node, the slot search result and whether an exact
// match was found there.
func (t *Tree) findLeaf(key []byte) (*Node, int, bool, error) {
	addr := t.Root()
	for {
		n, err := t.node(addr)
		if err != nil {
			return nil, 0, false, err
		}
		idx, exact, err := t.searchNode(n, key)
		if err != nil {
			return nil, 0, false, err
		}
		if n.IsLeaf() {
			return n, idx, exact, nil
		}
		addr = childAt(n, idx)
	}
}

// pathEntry records one internal hop taken while descending toward a
// leaf: the node visited and the search slot that chose the next child.
// It is the Go analogue of the explicit ancestor stack my_erase_recursive
// builds via C call-stack recursion.
type pathEntry struct {
	addr PageAddress
	idx  int
}

// descendPath walks from the root to the leaf that would hold key,
// recording each internal node and the slot used to descend, so a
// caller can unwind bottom-up performing rebalance work.
func (t *Tree) descendPath(key []byte) ([]pathEntry, *Node, error) {
	addr := t.Root()
	var path []pathEntry
	for {
		n, err := t.node(addr)
		if err != nil {
			return nil, nil, err
		}
		if n.IsLeaf() {
			return path, n, nil
		}
		idx, _, err := t.searchNode(n, key)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, pathEntry{addr: addr, idx: idx})
		addr = childAt(n, idx)
	}
}
