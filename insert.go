package upscaledb

// Insertion and splitting are not part of the erase/rebalance/cursor
// design this module is built around; the algorithm below is a plain,
// unremarkable top-down preemptive-split B+tree insert (grounded on the
// classic shape of the teacher's splitChild/insertNonFull, adapted from
// copy-on-write pages to in-place packed slots) that exists only so the
// erase path has trees to erase from.

// Put inserts or overwrites the record for key.
func (t *Tree) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	root, err := t.node(t.Root())
	if err != nil {
		return err
	}
	if root.Count() >= t.opts.MaxKeysPerNode {
		root, err = t.splitRoot(root)
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(root, key, value)
}

func (t *Tree) insertNonFull(n *Node, key, value []byte) error {
	idx, exact, err := t.searchNode(n, key)
	if err != nil {
		return err
	}
	if n.IsLeaf() {
		if exact {
			return t.setRecord(n, idx, value)
		}
		return t.insertLeafSlot(n, idx+1, key, value)
	}

	child, err := t.node(childAt(n, idx))
	if err != nil {
		return err
	}
	if child.Count() >= t.opts.MaxKeysPerNode {
		if err := t.splitChildAt(n, idx, child); err != nil {
			return err
		}
		// re-search: the split may have moved key's target to the new sibling
		idx, _, err = t.searchNode(n, key)
		if err != nil {
			return err
		}
		child, err = t.node(childAt(n, idx))
		if err != nil {
			return err
		}
	}
	return t.insertNonFull(child, key, value)
}

// splitRoot grows the tree by one level: a fresh branch page becomes
// the root, with the old root as its sole initial child.
func (t *Tree) splitRoot(root *Node) (*Node, error) {
	p, err := t.cache.Alloc(PageTypeBTreeRoot)
	if err != nil {
		return nil, err
	}
	newRoot := ViewNode(p, t.opts.KeySizeFixed)
	newRoot.InitBranch(root.Page().Addr)

	root.Page().Type = PageTypeBTreeNode
	t.cache.Put(root.Page())
	t.setRoot(p.Addr)

	if err := t.splitChildAt(newRoot, -1, root); err != nil {
		return nil, err
	}
	t.cache.Put(newRoot.Page())
	return newRoot, nil
}

// splitChildAt splits an overfull child in two and inserts a separator
// for the new right sibling into parent, immediately after the slot
// that used to point to child alone (parentIdx == -1 means child was
// parent's ptr_left).
func (t *Tree) splitChildAt(parent *Node, parentIdx int, child *Node) error {
	p, err := t.cache.Alloc(PageTypeBTreeNode)
	if err != nil {
		return err
	}
	right := ViewNode(p, t.opts.KeySizeFixed)
	mid := child.Count() / 2

	if child.IsLeaf() {
		right.InitLeaf()
		n := child.Count() - mid
		CopySlotsCrossNode(right, 0, child, mid, n)
		right.SetCount(n)
		child.SetCount(mid)

		right.SetLeft(child.Page().Addr)
		right.SetRight(child.Right())
		if child.Right() != 0 {
			rn, err := t.node(child.Right())
			if err != nil {
				return err
			}
			rn.SetLeft(right.Page().Addr)
			t.cache.Put(rn.Page())
		}
		child.SetRight(right.Page().Addr)

		if err := t.insertBranchSlot(parent, parentIdx+1, right, 0, right.Page().Addr); err != nil {
			return err
		}
	} else {
		right.InitBranch(child.ChildAt(mid))
		n := child.Count() - mid - 1
		CopySlotsCrossNode(right, 0, child, mid+1, n)
		right.SetCount(n)

		if err := t.insertBranchSlot(parent, parentIdx+1, child, mid, right.Page().Addr); err != nil {
			return err
		}
		child.SetCount(mid)
	}

	t.cache.Put(child.Page())
	t.cache.Put(right.Page())
	t.cache.Put(parent.Page())
	return nil
}

// insertBranchSlot copies the key at (src, srcIdx) into parent at
// position at, pointing it at childAddr, shifting any existing slots
// at or after at one place to the right first.
func (t *Tree) insertBranchSlot(parent *Node, at int, src *Node, srcIdx int, childAddr PageAddress) error {
	count := parent.Count()
	if at < count {
		parent.CopySlotRange(at+1, at, count-at)
	}
	if err := t.copyKey(parent, at, src, srcIdx); err != nil {
		return err
	}
	parent.SetChildAt(at, childAddr)
	parent.StripRecordFlags(at)
	parent.SetCount(count + 1)
	return nil
}

func (t *Tree) insertLeafSlot(n *Node, at int, key, value []byte) error {
	count := n.Count()
	if at < count {
		n.CopySlotRange(at+1, at, count-at)
	}
	if err := t.writeKey(n, at, key); err != nil {
		return err
	}
	if err := t.writeRecord(n, at, value); err != nil {
		return err
	}
	n.SetCount(count + 1)
	t.cache.Put(n.Page())
	return nil
}

func (t *Tree) writeKey(n *Node, idx int, key []byte) error {
	if len(key) <= n.keySizeFixed {
		n.WriteInlineKey(idx, key)
		return nil
	}
	if len(key) > 65535 {
		return ErrKeyTooLarge
	}
	if t.blobs == nil {
		return ErrKeyTooLarge
	}
	prefixLen := n.KeyPrefixLen()
	prefix := key
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	id, err := t.blobs.Put(key)
	if err != nil {
		return err
	}
	n.WriteExtendedKey(idx, prefix, len(key), id)
	return nil
}

func (t *Tree) writeRecord(n *Node, idx int, value []byte) error {
	if len(value) <= 8 {
		n.SetInlineRecord(idx, value)
		return nil
	}
	if t.blobs == nil {
		return ErrIoFailure
	}
	id, err := t.blobs.Put(value)
	if err != nil {
		return err
	}
	n.SetExternalRecord(idx, id)
	return nil
}

func (t *Tree) setRecord(n *Node, idx int, value []byte) error {
	if !n.HasInlineRecord(idx) && t.blobs != nil {
		_ = t.blobs.Delete(n.RecordID(idx))
	}
	if err := t.writeRecord(n, idx, value); err != nil {
		return err
	}
	t.cache.Put(n.Page())
	return nil
}
